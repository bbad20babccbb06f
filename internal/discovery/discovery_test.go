package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/leandrodaf/midiscan/internal/logger"
	"github.com/leandrodaf/midiscan/sdk/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedWatcher replays a fixed list of events on every Watch call.
type scriptedWatcher struct {
	events  []contracts.DiscoveryEvent
	keep    bool // leave the channel open after the script
	err     error
	watches int
}

func (w *scriptedWatcher) Watch(ctx context.Context) (<-chan contracts.DiscoveryEvent, error) {
	if w.err != nil {
		return nil, w.err
	}
	w.watches++
	ch := make(chan contracts.DiscoveryEvent)
	go func() {
		if !w.keep {
			defer close(ch)
		}
		for _, ev := range w.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func added(id, name string) contracts.DiscoveryEvent {
	return contracts.DiscoveryEvent{Type: contracts.DeviceAdded, Device: contracts.DeviceRef{ID: id, Name: name}}
}

var completed = contracts.DiscoveryEvent{Type: contracts.EnumerationCompleted}

func TestSession_DeduplicatesByID(t *testing.T) {
	w := &scriptedWatcher{events: []contracts.DiscoveryEvent{
		added("a", "Keys"),
		added("b", "Pads"),
		added("a", "Keys (again)"),
		added("c", "Faders"),
		added("b", "Pads"),
		completed,
	}}
	s, err := NewAdapter(w, logger.NewNopLogger()).Start(context.Background())
	require.NoError(t, err)

	var ids []string
	for dev := range s.Devices() {
		ids = append(ids, dev.ID)
	}

	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, []contracts.DeviceRef{
		{ID: "a", Name: "Keys"},
		{ID: "b", Name: "Pads"},
		{ID: "c", Name: "Faders"},
	}, s.Discovered())
	assert.NoError(t, s.Err())

	select {
	case <-s.Completed():
	default:
		t.Fatal("Completed() not closed after enumeration completed")
	}
}

func TestSession_StopsAtEnumerationCompleted(t *testing.T) {
	w := &scriptedWatcher{events: []contracts.DiscoveryEvent{
		added("a", "Keys"),
		completed,
		added("late", "Late device"),
	}, keep: true}
	s, err := NewAdapter(w, logger.NewNopLogger()).Start(context.Background())
	require.NoError(t, err)

	devices, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, []contracts.DeviceRef{{ID: "a", Name: "Keys"}}, devices)
}

func TestSession_WatcherClosedEarly(t *testing.T) {
	w := &scriptedWatcher{events: []contracts.DiscoveryEvent{added("a", "Keys")}}
	s, err := NewAdapter(w, logger.NewNopLogger()).Start(context.Background())
	require.NoError(t, err)

	devices, err := s.Collect()
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Len(t, devices, 1)
}

func TestSession_ContextCancelled(t *testing.T) {
	w := &scriptedWatcher{keep: true}
	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewAdapter(w, logger.NewNopLogger()).Start(ctx)
	require.NoError(t, err)

	cancel()
	_, err = s.Collect()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSession_BreakStopsEarly(t *testing.T) {
	w := &scriptedWatcher{events: []contracts.DiscoveryEvent{added("a", "A"), added("b", "B"), completed}}
	s, err := NewAdapter(w, logger.NewNopLogger()).Start(context.Background())
	require.NoError(t, err)
	defer s.Close()

	for dev := range s.Devices() {
		assert.Equal(t, "a", dev.ID)
		break
	}
	assert.Len(t, s.Discovered(), 1)

	// A session is consumed once.
	count := 0
	for range s.Devices() {
		count++
	}
	assert.Zero(t, count)
}

func TestAdapter_SessionsAreIndependent(t *testing.T) {
	w := &scriptedWatcher{events: []contracts.DiscoveryEvent{added("a", "Keys"), completed}}
	a := NewAdapter(w, logger.NewNopLogger())

	first, err := a.Start(context.Background())
	require.NoError(t, err)
	d1, err := first.Collect()
	require.NoError(t, err)

	second, err := a.Start(context.Background())
	require.NoError(t, err)
	d2, err := second.Collect()
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.Len(t, d2, 1)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, 2, w.watches)
}

func TestAdapter_WatchError(t *testing.T) {
	w := &scriptedWatcher{err: errors.New("no backend")}
	_, err := NewAdapter(w, logger.NewNopLogger()).Start(context.Background())
	assert.Error(t, err)
}
