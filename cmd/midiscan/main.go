// midiscan discovers every MIDI input device, connects to each one in turn
// and forwards decoded Note On and Control Change events to the log and,
// when configured, to an MQTT broker.
//
// Configuration is read from the file named by MIDISCAN_CONFIG; without it the
// built-in defaults apply.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/leandrodaf/midiscan/internal/config"
	"github.com/leandrodaf/midiscan/internal/logger"
	"github.com/leandrodaf/midiscan/internal/midi/midiclient"
	"github.com/leandrodaf/midiscan/internal/sink"
	"github.com/leandrodaf/midiscan/sdk/contracts"
	"github.com/leandrodaf/midiscan/sdk/midi"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Getenv("MIDISCAN_CONFIG")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration, connects every discovered device and blocks until
// ctx is cancelled. extra options are applied last.
func run(ctx context.Context, configPath string, extra ...contracts.Option) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.NewZapLogger()
	defer func() {
		if closer, ok := log.(io.Closer); ok {
			_ = closer.Close()
		}
	}()
	opts := []contracts.Option{
		contracts.WithLogger(log),
		contracts.WithLogLevel(cfg.LogLevel()),
		contracts.WithCoreMIDIConfig(contracts.CoreMIDIConfig{ClientName: cfg.ClientName}),
		contracts.WithAttemptTimeout(cfg.AttemptTimeout()),
		contracts.WithMaxAttempts(cfg.Connect.MaxAttempts),
	}
	if cfg.Logging.Output == string(contracts.FileLog) {
		opts = append(opts, contracts.WithLogFile(cfg.Logging.File))
	}
	if filter := cfg.EventFilter(); filter != nil {
		opts = append(opts, contracts.WithMIDIEventFilter(*filter))
	}

	if cfg.MQTT.Enabled {
		mqttSink, err := sink.Connect(cfg.MQTT, log)
		if err != nil {
			return fmt.Errorf("connecting MQTT sink: %w", err)
		}
		defer func() {
			if err := mqttSink.Close(); err != nil {
				log.Warn("Failed to close MQTT sink", log.Field().Error("error", err))
			}
		}()
		opts = append(opts, contracts.WithEventHandler(mqttSink.Handle))
	} else {
		opts = append(opts, contracts.WithEventHandler(func(deviceID string, ev contracts.DecodedEvent) {
			logEvent(log, deviceID, ev)
		}))
	}

	client, err := midi.NewMIDIClient(append(opts, extra...)...)
	if err != nil {
		return fmt.Errorf("creating MIDI client: %w", err)
	}
	defer func() {
		if err := client.Stop(); err != nil {
			log.Warn("MIDI client stopped with errors", log.Field().Error("error", err))
		}
	}()

	log.Info("Starting midiscan", log.Field().String("clientName", cfg.ClientName))

	devices, err := client.ListDevices(ctx)
	switch {
	case errors.Is(err, midiclient.ErrNoMIDIDevices):
		log.Warn("No MIDI input devices found; waiting for shutdown")
	case err != nil:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("listing MIDI devices: %w", err)
	default:
		if err := client.ConnectAll(ctx, devices); err != nil {
			log.Error("Some MIDI devices could not be connected", log.Field().Error("error", err))
		}
		log.Info("MIDI devices connected", log.Field().Strings("devices", client.Connected()))
	}

	<-ctx.Done()
	log.Info("Shutting down midiscan")
	return nil
}

func logEvent(log contracts.Logger, deviceID string, ev contracts.DecodedEvent) {
	switch e := ev.(type) {
	case contracts.NoteOn:
		log.Info("Note on",
			log.Field().String("device", deviceID),
			log.Field().Uint8("note", e.Note),
			log.Field().Uint8("velocity", e.Velocity))
	case contracts.ControlChange:
		log.Info("Control change",
			log.Field().String("device", deviceID),
			log.Field().Uint8("controller", e.Controller),
			log.Field().Uint8("value", e.Value))
	}
}
