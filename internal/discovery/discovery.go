// Package discovery surfaces each input device a platform watcher reports
// exactly once per session.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/google/uuid"
	"github.com/leandrodaf/midiscan/sdk/contracts"
)

// ErrSessionClosed is reported when a session ends before enumeration completed.
var ErrSessionClosed = errors.New("discovery session closed before enumeration completed")

// Adapter starts discovery sessions on a watcher.
type Adapter struct {
	watcher contracts.Watcher
	logger  contracts.Logger
}

// NewAdapter returns an Adapter over watcher.
func NewAdapter(watcher contracts.Watcher, logger contracts.Logger) *Adapter {
	return &Adapter{watcher: watcher, logger: logger}
}

// Start begins a new, independent session. Nothing is shared between sessions.
func (a *Adapter) Start(ctx context.Context) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	events, err := a.watcher.Watch(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("starting device watcher: %w", err)
	}

	s := &Session{
		id:        uuid.New(),
		ctx:       ctx,
		cancel:    cancel,
		events:    events,
		logger:    a.logger,
		seen:      make(map[string]struct{}),
		completed: make(chan struct{}),
	}
	a.logger.Debug("Discovery session started", a.logger.Field().String("session", s.id.String()))
	return s, nil
}

// Session is one discovery pass. Its DiscoveredSet is insertion ordered and
// holds each device ID at most once.
type Session struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
	events <-chan contracts.DiscoveryEvent
	logger contracts.Logger

	mu         sync.Mutex
	seen       map[string]struct{}
	discovered []contracts.DeviceRef
	err        error

	completed    chan struct{}
	completeOnce sync.Once
	consumed     bool
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Devices yields each newly seen device until the watcher reports that
// enumeration completed, the watcher stops, the session context ends or the
// loop body breaks. The sequence can be ranged over once; later calls yield nothing.
func (s *Session) Devices() iter.Seq[contracts.DeviceRef] {
	return func(yield func(contracts.DeviceRef) bool) {
		s.mu.Lock()
		if s.consumed {
			s.mu.Unlock()
			return
		}
		s.consumed = true
		s.mu.Unlock()

		for {
			select {
			case <-s.ctx.Done():
				s.fail(s.ctx.Err())
				return
			case ev, ok := <-s.events:
				if !ok {
					s.fail(ErrSessionClosed)
					return
				}
				switch ev.Type {
				case contracts.EnumerationCompleted:
					s.complete()
					return
				case contracts.DeviceAdded:
					if !s.add(ev.Device) {
						continue
					}
					if !yield(ev.Device) {
						return
					}
				}
			}
		}
	}
}

// Collect drains the session and returns the DiscoveredSet as soon as the
// completion event arrives.
func (s *Session) Collect() ([]contracts.DeviceRef, error) {
	for range s.Devices() {
	}
	return s.Discovered(), s.Err()
}

// Completed is closed once the watcher reports enumeration completed.
func (s *Session) Completed() <-chan struct{} {
	return s.completed
}

// Discovered returns a snapshot of the devices seen so far, in discovery order.
func (s *Session) Discovered() []contracts.DeviceRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]contracts.DeviceRef(nil), s.discovered...)
}

// Err reports why the session ended early, if it did.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the underlying watcher.
func (s *Session) Close() {
	s.cancel()
}

func (s *Session) add(dev contracts.DeviceRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[dev.ID]; dup {
		return false
	}
	s.seen[dev.ID] = struct{}{}
	s.discovered = append(s.discovered, dev)

	s.logger.Info("Found MIDI device",
		s.logger.Field().String("session", s.id.String()),
		s.logger.Field().String("device", dev.ID),
		s.logger.Field().String("name", dev.Name))
	return true
}

func (s *Session) complete() {
	s.completeOnce.Do(func() {
		close(s.completed)
		s.logger.Info("Device enumeration completed",
			s.logger.Field().String("session", s.id.String()),
			s.logger.Field().Int("devices", len(s.Discovered())))
	})
	s.cancel()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.cancel()
}
