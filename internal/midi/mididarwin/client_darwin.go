//go:build darwin
// +build darwin

package mididarwin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/midiscan/internal/decoder"
	"github.com/leandrodaf/midiscan/sdk/contracts"
	"github.com/youpy/go-coremidi"
)

// Error definitions for MIDI connection and handling issues.
var (
	ErrInvalidMIDIDevice   = errors.New("invalid MIDI device")
	ErrMIDIConnectionError = errors.New("error connecting to MIDI device")
	ErrCreateInputPort     = errors.New("error creating input port")
	ErrTransportClosed     = errors.New("CoreMIDI transport closed")
)

// internalPortConnection is an interface for handling disconnection from a MIDI port.
type internalPortConnection interface {
	Disconnect()
}

// Transport discovers and opens CoreMIDI sources.
type Transport struct {
	logger contracts.Logger
	client coremidi.Client
	mu     sync.Mutex
	closed bool
}

type sourceRef struct {
	ref    contracts.DeviceRef
	source coremidi.Source
}

// NewTransport creates the CoreMIDI client all ports are opened under.
func NewTransport(options *contracts.ClientOptions) (contracts.Transport, error) {
	client, err := coremidi.NewClient(options.CoreMIDIConfig.ClientName)
	if err != nil {
		return nil, err
	}
	options.Logger.Info("CoreMIDI client successfully created",
		options.Logger.Field().String("clientName", options.CoreMIDIConfig.ClientName))

	return &Transport{logger: options.Logger, client: client}, nil
}

// sources lists CoreMIDI sources with IDs that stay stable while the set of
// sources does not change. Sources sharing entity and name get a "#n" suffix.
func (t *Transport) sources() ([]sourceRef, error) {
	sources, err := coremidi.AllSources()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI sources: %w", err)
	}

	seen := make(map[string]int, len(sources))
	refs := make([]sourceRef, 0, len(sources))
	for _, source := range sources {
		entity := source.Entity()
		id := fmt.Sprintf("coremidi:%s/%s", entity.Name(), source.Name())
		seen[id]++
		if n := seen[id]; n > 1 {
			id = fmt.Sprintf("%s#%d", id, n)
		}
		refs = append(refs, sourceRef{
			ref: contracts.DeviceRef{
				ID:           id,
				Name:         source.Name(),
				Manufacturer: entity.Manufacturer(),
			},
			source: source,
		})
	}
	return refs, nil
}

// Watch reports every current source followed by EnumerationCompleted.
func (t *Transport) Watch(ctx context.Context) (<-chan contracts.DiscoveryEvent, error) {
	if t.isClosed() {
		return nil, ErrTransportClosed
	}
	refs, err := t.sources()
	if err != nil {
		return nil, err
	}

	events := make(chan contracts.DiscoveryEvent)
	go func() {
		defer close(events)
		for _, r := range refs {
			select {
			case events <- contracts.DiscoveryEvent{Type: contracts.DeviceAdded, Device: r.ref}:
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

// Open creates an input port and connects it to the source named by deviceID.
// If ctx is cancelled while connecting, the connection is dropped again.
func (t *Transport) Open(ctx context.Context, deviceID string) (contracts.InputPort, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.isClosed() {
		return nil, ErrTransportClosed
	}

	refs, err := t.sources()
	if err != nil {
		return nil, err
	}
	var source *coremidi.Source
	for i := range refs {
		if refs[i].ref.ID == deviceID {
			source = &refs[i].source
			break
		}
	}
	if source == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMIDIDevice, deviceID)
	}

	port := &inputPort{id: deviceID, logger: t.logger}
	inPort, err := coremidi.NewInputPort(t.client, "midiscan "+deviceID, port.handlePacket)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateInputPort, err)
	}

	conn, err := inPort.Connect(*source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMIDIConnectionError, err)
	}
	port.conn = conn

	if err := ctx.Err(); err != nil {
		port.conn.Disconnect()
		return nil, err
	}
	return port, nil
}

// Close marks the transport closed. Ports already handed out stay usable until closed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// inputPort is one connected CoreMIDI source.
type inputPort struct {
	id        string
	logger    contracts.Logger
	conn      internalPortConnection
	handler   atomic.Value // Holds func(contracts.RawMessage).
	closeOnce sync.Once
}

func (p *inputPort) DeviceID() string { return p.id }

func (p *inputPort) Subscribe(fn func(contracts.RawMessage)) error {
	p.handler.Store(fn)
	return nil
}

// handlePacket runs on the CoreMIDI read thread.
func (p *inputPort) handlePacket(_ coremidi.Source, packet coremidi.Packet) {
	if len(packet.Data) == 0 {
		return
	}
	fn, _ := p.handler.Load().(func(contracts.RawMessage))
	if fn == nil {
		return
	}
	fn(decoder.Classify(packet.Data, uint64(time.Now().UTC().UnixNano())))
}

func (p *inputPort) Close() error {
	p.closeOnce.Do(func() {
		p.handler.Store(func(contracts.RawMessage) {})
		if p.conn != nil {
			p.conn.Disconnect()
		}
		p.logger.Debug("CoreMIDI port disconnected", p.logger.Field().String("device", p.id))
	})
	return nil
}
