package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/leandrodaf/midiscan/internal/logger"
	"github.com/leandrodaf/midiscan/sdk/contracts"
	"github.com/leandrodaf/midiscan/sdk/midi"
)

func main() {
	log := logger.NewZapLogger()

	client, err := midi.NewMIDIClient(
		contracts.WithLogger(log),
		contracts.WithLogLevel(contracts.InfoLevel),
		contracts.WithAttemptTimeout(time.Second),
		contracts.WithMIDIEventFilter(contracts.MIDIEventFilter{
			Kinds: []contracts.MessageKind{contracts.KindNoteOn, contracts.KindControlChange},
		}),
	)
	if err != nil {
		log.Error("Failed to initialize MIDI client", log.Field().Error("error", err))
		return
	}
	defer client.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	devices, err := client.ListDevices(ctx)
	if err != nil {
		log.Error("No MIDI devices found or error listing devices", log.Field().Error("error", err))
		return
	}
	fmt.Println("Available MIDI devices:", devices)

	if err = client.ConnectAll(ctx, devices); err != nil {
		log.Warn("Some MIDI devices could not be connected", log.Field().Error("error", err))
	}

	eventChannel := make(chan contracts.MIDI, 100)
	go func() {
		for event := range eventChannel {
			switch e := event.Event.(type) {
			case contracts.NoteOn:
				log.Info("Note on",
					log.Field().String("Device", event.DeviceID),
					log.Field().Uint64("Timestamp", event.Timestamp),
					log.Field().Int("Note", int(e.Note)),
					log.Field().Int("Velocity", int(e.Velocity)),
				)
			case contracts.ControlChange:
				log.Info("Control change",
					log.Field().String("Device", event.DeviceID),
					log.Field().Uint64("Timestamp", event.Timestamp),
					log.Field().Int("Controller", int(e.Controller)),
					log.Field().Int("Value", int(e.Value)),
				)
			}
		}
	}()

	client.StartCapture(eventChannel)

	fmt.Println("Capturing MIDI events from", client.Connected(), "... Press Ctrl+C to exit.")
	<-ctx.Done()
}
