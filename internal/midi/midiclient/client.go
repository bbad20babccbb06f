package midiclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/midiscan/internal/connection"
	"github.com/leandrodaf/midiscan/internal/discovery"
	"github.com/leandrodaf/midiscan/sdk/contracts"
	"go.uber.org/multierr"
)

// ErrNoMIDIDevices is returned when a discovery pass finds nothing.
var ErrNoMIDIDevices = errors.New("no MIDI devices found")

// Client discovers devices, connects to them one at a time and fans decoded
// events out to the configured handler and capture channel.
type Client struct {
	logger       contracts.Logger
	transport    contracts.Transport
	discovery    *discovery.Adapter
	manager      *connection.Manager
	handler      contracts.EventHandler
	eventChannel atomic.Value // Holds chan contracts.MIDI.
	mu           sync.Mutex
	capturing    bool
	wg           sync.WaitGroup
	stopOnce     sync.Once
}

// New builds a Client on top of transport.
func New(transport contracts.Transport, options *contracts.ClientOptions) *Client {
	c := &Client{
		logger:    options.Logger,
		transport: transport,
		discovery: discovery.NewAdapter(transport, options.Logger),
		handler:   options.EventHandler,
	}
	c.manager = connection.NewManager(transport, connection.Config{
		AttemptTimeout: options.ConnectPolicy.AttemptTimeout,
		MaxAttempts:    options.ConnectPolicy.MaxAttempts,
		Filter:         options.MIDIEventFilter,
		OnEvent:        c.handleEvent,
	}, options.Logger)
	return c
}

// ListDevices runs one discovery session until enumeration completes and
// returns every device it surfaced.
func (c *Client) ListDevices(ctx context.Context) ([]contracts.DeviceRef, error) {
	session, err := c.discovery.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	devices, err := session.Collect()
	if err != nil {
		return devices, err
	}
	if len(devices) == 0 {
		c.logger.Warn(ErrNoMIDIDevices.Error())
		return nil, ErrNoMIDIDevices
	}
	return devices, nil
}

// Connect connects a single device.
func (c *Client) Connect(ctx context.Context, deviceID string) error {
	return c.manager.Connect(ctx, deviceID)
}

// ConnectAll connects the given devices strictly one after another. Call it
// only after ListDevices returned, so that no open overlaps enumeration.
func (c *Client) ConnectAll(ctx context.Context, devices []contracts.DeviceRef) error {
	return c.manager.ConnectAll(ctx, devices)
}

// DisconnectAll unsubscribes every connected device.
func (c *Client) DisconnectAll() error {
	return c.manager.DisconnectAll()
}

// Connected lists connected device IDs.
func (c *Client) Connected() []string {
	return c.manager.Connected()
}

// StartCapture sends every decoded event to eventChannel. Events are dropped
// with a warning when the channel is full.
func (c *Client) StartCapture(eventChannel chan contracts.MIDI) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if eventChannel == nil {
		c.logger.Error("StartCapture called with nil eventChannel")
		return
	}
	if c.capturing {
		c.logger.Warn("Capture already started; replacing event channel")
	}

	c.logger.Info("Starting MIDI event capture")
	c.eventChannel.Store(eventChannel)
	c.capturing = true
}

func (c *Client) handleEvent(deviceID string, ev contracts.DecodedEvent) {
	c.wg.Add(1)
	defer c.wg.Done()

	if c.handler != nil {
		c.handler(deviceID, ev)
	}

	eventChannel, _ := c.eventChannel.Load().(chan contracts.MIDI)
	if eventChannel == nil {
		return
	}

	event := contracts.MIDI{
		DeviceID:  deviceID,
		Timestamp: uint64(time.Now().UTC().UnixNano()),
		Event:     ev,
	}
	select {
	case eventChannel <- event:
	default:
		c.logger.Warn("Event buffer full; dropping MIDI event",
			c.logger.Field().String("device", deviceID))
	}
}

// Stop disconnects every device, waits for in-flight events and releases the
// transport. Only the first call has an effect.
func (c *Client) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		c.logger.Info("Stopping MIDI client")
		err = multierr.Append(err, c.manager.Stop())

		c.mu.Lock()
		if c.capturing {
			c.capturing = false
			// Store a channel nobody reads so late callbacks fall into the drop branch.
			c.eventChannel.Store(make(chan contracts.MIDI))
		}
		c.mu.Unlock()

		c.wg.Wait()
		err = multierr.Append(err, c.transport.Close())
		c.logger.Info("MIDI client stopped")
	})
	return err
}
