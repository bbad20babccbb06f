package connection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/midiscan/internal/decoder"
	"github.com/leandrodaf/midiscan/sdk/contracts"
	"go.uber.org/multierr"
)

// DefaultMaxAttempts is the number of attempts made per device before giving up.
const DefaultMaxAttempts = 3

// Manager errors.
var (
	ErrConnectExhausted = errors.New("connection attempts exhausted")
	ErrManagerStopped   = errors.New("connection manager stopped")
)

// State is the connection state of one device.
type State uint8

const (
	// StateUnattempted means Connect was never called for the device.
	StateUnattempted State = iota

	// StateAttempting means the first attempt is in flight.
	StateAttempting

	// StateRetrying means a previous attempt failed and another is in flight.
	StateRetrying

	// StateConnected means the device has a live connection.
	StateConnected

	// StateGaveUp means every attempt failed.
	StateGaveUp

	// StateDisconnected means the connection was torn down by DisconnectAll.
	StateDisconnected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnattempted:
		return "UNATTEMPTED"
	case StateAttempting:
		return "ATTEMPTING"
	case StateRetrying:
		return "RETRYING"
	case StateConnected:
		return "CONNECTED"
	case StateGaveUp:
		return "GAVE_UP"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Connection is a live, subscribed input port.
type Connection struct {
	Device      string
	Port        contracts.InputPort
	ConnectedAt time.Time
}

// Config tunes a Manager. Zero values select the defaults.
type Config struct {
	AttemptTimeout time.Duration
	MaxAttempts    int
	Filter         *contracts.MIDIEventFilter
	OnEvent        contracts.EventHandler
}

// Manager owns the set of live connections.
//
// Attempts are strictly sequential: attemptMu is held for the whole of a
// Connect call, so no two opens are ever in flight together.
//
// Lock order is attemptMu then mu. mu is never held while calling the
// transport or the event handler.
type Manager struct {
	logger      contracts.Logger
	attempter   *Attempter
	maxAttempts int
	filter      *contracts.MIDIEventFilter
	onEvent     atomic.Value // contracts.EventHandler

	attemptMu sync.Mutex

	mu       sync.Mutex
	conns    map[string]*Connection
	states   map[string]State
	attempts map[string]int
	stopped  bool
}

// NewManager creates a connection manager that opens devices through opener.
func NewManager(opener contracts.Opener, cfg Config, logger contracts.Logger) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	m := &Manager{
		logger:      logger,
		attempter:   NewAttempter(opener, cfg.AttemptTimeout, logger),
		maxAttempts: cfg.MaxAttempts,
		filter:      cfg.Filter,
		conns:       make(map[string]*Connection),
		states:      make(map[string]State),
		attempts:    make(map[string]int),
	}
	m.SetEventHandler(cfg.OnEvent)
	return m
}

// SetEventHandler replaces the consumer callback. A nil handler drops events.
func (m *Manager) SetEventHandler(h contracts.EventHandler) {
	m.onEvent.Store(h)
}

// Connect opens deviceID and subscribes to its messages.
//
// It makes up to MaxAttempts attempts, retrying immediately after a timeout or
// failure. Connecting a device that is already connected is a no-op. When all
// attempts fail the device is left without a connection and the returned error
// wraps ErrConnectExhausted.
//
// Connect should only be called once discovery has finished its enumeration pass.
func (m *Manager) Connect(ctx context.Context, deviceID string) error {
	m.attemptMu.Lock()
	defer m.attemptMu.Unlock()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	if _, ok := m.conns[deviceID]; ok {
		m.mu.Unlock()
		m.logger.Debug("Device already connected", m.logger.Field().String("device", deviceID))
		return nil
	}
	m.states[deviceID] = StateAttempting
	m.attempts[deviceID] = 0
	m.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		m.mu.Lock()
		m.attempts[deviceID] = attempt
		m.mu.Unlock()

		m.logger.Info("Attempting to connect",
			m.logger.Field().String("device", deviceID),
			m.logger.Field().Int("attempt", attempt))

		port, err := m.attempter.Attempt(ctx, deviceID)
		if err == nil {
			if err = m.register(deviceID, port); err == nil {
				m.logger.Info("Succeeded in connecting",
					m.logger.Field().String("device", deviceID),
					m.logger.Field().Int("attempt", attempt))
				return nil
			}
		}

		if ctx.Err() != nil || errors.Is(err, ErrManagerStopped) {
			m.setState(deviceID, StateGaveUp)
			return err
		}

		lastErr = err
		m.logger.Warn("Connection attempt failed",
			m.logger.Field().String("device", deviceID),
			m.logger.Field().Int("attempt", attempt),
			m.logger.Field().Error("error", err))

		if attempt < m.maxAttempts {
			m.setState(deviceID, StateRetrying)
		}
	}

	m.setState(deviceID, StateGaveUp)
	m.logger.Error("Giving up on device",
		m.logger.Field().String("device", deviceID),
		m.logger.Field().Int("attempts", m.maxAttempts),
		m.logger.Field().Error("error", lastErr))
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrConnectExhausted, deviceID, m.maxAttempts, lastErr)
}

// ConnectAll connects devices one after another. A device that cannot be
// connected does not stop the others; its error is collected and returned.
func (m *Manager) ConnectAll(ctx context.Context, devices []contracts.DeviceRef) error {
	var errs error
	for _, d := range devices {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if err := m.Connect(ctx, d.ID); err != nil {
			errs = multierr.Append(errs, err)
			if errors.Is(err, ErrManagerStopped) {
				return errs
			}
		}
	}
	return errs
}

func (m *Manager) register(deviceID string, port contracts.InputPort) error {
	if err := port.Subscribe(func(msg contracts.RawMessage) { m.OnMessage(deviceID, msg) }); err != nil {
		_ = port.Close()
		return fmt.Errorf("%w: subscribe %s: %w", ErrAttemptFailed, deviceID, err)
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		_ = port.Close()
		return ErrManagerStopped
	}
	if _, exists := m.conns[deviceID]; exists {
		m.mu.Unlock()
		_ = port.Close()
		return nil
	}
	m.conns[deviceID] = &Connection{Device: deviceID, Port: port, ConnectedAt: time.Now()}
	m.states[deviceID] = StateConnected
	m.mu.Unlock()
	return nil
}

// OnMessage decodes a message received on deviceID's connection and hands it
// to the event handler. Ignored and filtered messages are dropped silently.
func (m *Manager) OnMessage(deviceID string, msg contracts.RawMessage) {
	ev, ok := decoder.Decode(msg.Kind, msg.Data)
	if !ok {
		return
	}
	if !m.filter.Allows(ev.Kind()) {
		return
	}
	if h, _ := m.onEvent.Load().(contracts.EventHandler); h != nil {
		h(deviceID, ev)
	}
}

// DisconnectAll unsubscribes every live connection and empties the set.
// Calling it with no connections is a no-op.
func (m *Manager) DisconnectAll() error {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*Connection)
	for id := range conns {
		m.states[id] = StateDisconnected
	}
	m.mu.Unlock()

	if len(conns) == 0 {
		return nil
	}

	var errs error
	for _, id := range sortedKeys(conns) {
		if err := conns[id].Port.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("closing %s: %w", id, err))
		}
	}
	m.logger.Info("Disconnected all devices", m.logger.Field().Int("count", len(conns)))
	return errs
}

// Stop disconnects everything and rejects further Connect calls.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	return m.DisconnectAll()
}

// IsConnected reports whether deviceID has a live connection.
func (m *Manager) IsConnected(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.conns[deviceID]
	return ok
}

// Connected returns the IDs of connected devices in sorted order.
func (m *Manager) Connected() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.conns)
}

// State returns the state of deviceID.
func (m *Manager) State(deviceID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[deviceID]
}

// Attempts returns how many attempts the last Connect for deviceID made.
func (m *Manager) Attempts(deviceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[deviceID]
}

func (m *Manager) setState(deviceID string, s State) {
	m.mu.Lock()
	m.states[deviceID] = s
	m.mu.Unlock()
}

func sortedKeys(conns map[string]*Connection) []string {
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
