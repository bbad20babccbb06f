//go:build linux && cgo
// +build linux,cgo

// Package midirtmidi provides a transport over RtMidi (ALSA on Linux).
package midirtmidi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leandrodaf/midiscan/internal/decoder"
	"github.com/leandrodaf/midiscan/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // registers the RtMidi driver
)

// Error definitions for RtMidi failures.
var (
	ErrInvalidMIDIDevice   = errors.New("invalid MIDI device")
	ErrMIDIConnectionError = errors.New("error opening MIDI input")
	ErrListen              = errors.New("error listening to MIDI input")
)

const idPrefix = "rtmidi:"

// Transport discovers and opens RtMidi input ports.
type Transport struct {
	logger contracts.Logger
}

// NewTransport creates a transport on the registered RtMidi driver.
func NewTransport(options *contracts.ClientOptions) (contracts.Transport, error) {
	options.Logger.Info("RtMidi transport created",
		options.Logger.Field().String("clientName", options.CoreMIDIConfig.ClientName))
	return &Transport{logger: options.Logger}, nil
}

func deviceRef(in drivers.In) contracts.DeviceRef {
	return contracts.DeviceRef{ID: idPrefix + in.String(), Name: in.String()}
}

// Watch reports every input port followed by EnumerationCompleted.
func (t *Transport) Watch(ctx context.Context) (<-chan contracts.DiscoveryEvent, error) {
	ins := midi.GetInPorts()

	events := make(chan contracts.DiscoveryEvent)
	go func() {
		defer close(events)
		for _, in := range ins {
			select {
			case events <- contracts.DiscoveryEvent{Type: contracts.DeviceAdded, Device: deviceRef(in)}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case events <- contracts.DiscoveryEvent{Type: contracts.EnumerationCompleted}:
		case <-ctx.Done():
		}
	}()
	return events, nil
}

// Open opens the input port named by deviceID.
func (t *Transport) Open(ctx context.Context, deviceID string) (contracts.InputPort, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var found drivers.In
	for _, in := range midi.GetInPorts() {
		if deviceRef(in).ID == deviceID {
			found = in
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMIDIDevice, deviceID)
	}

	if err := found.Open(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMIDIConnectionError, deviceID, err)
	}
	if err := ctx.Err(); err != nil {
		_ = found.Close()
		return nil, err
	}
	return &inputPort{id: deviceID, in: found, logger: t.logger}, nil
}

// Close shuts down the RtMidi driver.
func (t *Transport) Close() error {
	midi.CloseDriver()
	return nil
}

// inputPort is one opened RtMidi input.
type inputPort struct {
	id     string
	in     drivers.In
	logger contracts.Logger

	mu     sync.Mutex
	stop   func()
	closed bool
}

func (p *inputPort) DeviceID() string { return p.id }

// Subscribe starts listening; fn runs on the driver's listener goroutine.
func (p *inputPort) Subscribe(fn func(contracts.RawMessage)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
	stop, err := midi.ListenTo(p.in, func(msg midi.Message, _ int32) {
		fn(decoder.Classify([]byte(msg), uint64(time.Now().UTC().UnixNano())))
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrListen, p.id, err)
	}
	p.stop = stop
	return nil
}

// Close stops the listener and closes the port.
func (p *inputPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
	p.logger.Debug("RtMidi port closed", p.logger.Field().String("device", p.id))
	return p.in.Close()
}
