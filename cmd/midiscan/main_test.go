package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/leandrodaf/midiscan/internal/logger"
	"github.com/leandrodaf/midiscan/sdk/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quietPort struct{ id string }

func (p *quietPort) DeviceID() string                           { return p.id }
func (p *quietPort) Subscribe(func(contracts.RawMessage)) error { return nil }
func (p *quietPort) Close() error                               { return nil }

type recordingTransport struct {
	devices []contracts.DeviceRef

	mu     sync.Mutex
	opened []string
	closed bool
}

func (t *recordingTransport) Watch(context.Context) (<-chan contracts.DiscoveryEvent, error) {
	ch := make(chan contracts.DiscoveryEvent, len(t.devices)+1)
	for _, d := range t.devices {
		ch <- contracts.DiscoveryEvent{Type: contracts.DeviceAdded, Device: d}
	}
	ch <- contracts.DiscoveryEvent{Type: contracts.EnumerationCompleted}
	close(ch)
	return ch, nil
}

func (t *recordingTransport) Open(_ context.Context, id string) (contracts.InputPort, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opened = append(t.opened, id)
	return &quietPort{id: id}, nil
}

func (t *recordingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func TestRun_ConnectsAllAndStopsOnCancel(t *testing.T) {
	transport := &recordingTransport{devices: []contracts.DeviceRef{{ID: "a"}, {ID: "b"}}}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := run(ctx, "", contracts.WithLogger(logger.NewNopLogger()), contracts.WithTransport(transport))
	require.NoError(t, err)

	transport.mu.Lock()
	defer transport.mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, transport.opened)
	assert.True(t, transport.closed)
}

func TestRun_NoDevicesIsNotAnError(t *testing.T) {
	transport := &recordingTransport{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := run(ctx, "", contracts.WithLogger(logger.NewNopLogger()), contracts.WithTransport(transport))
	assert.NoError(t, err)
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "midiscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connect:\n  max_attempts: 0\n"), 0600))

	err := run(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}
