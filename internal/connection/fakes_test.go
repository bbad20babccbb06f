package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/midiscan/sdk/contracts"
)

var errOpen = errors.New("device busy")

type step int

const (
	stepOK     step = iota // open succeeds immediately
	stepFail               // open returns errOpen
	stepHang               // open blocks until cancelled, then fails
	stepLateOK             // open blocks until cancelled, then returns a port anyway
	stepSlowOK             // open takes a few milliseconds, then succeeds
)

type fakePort struct {
	id           string
	subscribeErr error

	mu      sync.Mutex
	handler func(contracts.RawMessage)
	closed  atomic.Int32
}

func (p *fakePort) DeviceID() string { return p.id }

func (p *fakePort) Subscribe(fn func(contracts.RawMessage)) error {
	if p.subscribeErr != nil {
		return p.subscribeErr
	}
	p.mu.Lock()
	p.handler = fn
	p.mu.Unlock()
	return nil
}

func (p *fakePort) Close() error {
	p.closed.Add(1)
	p.mu.Lock()
	p.handler = nil
	p.mu.Unlock()
	return nil
}

func (p *fakePort) isClosed() bool { return p.closed.Load() > 0 }

func (p *fakePort) emit(kind contracts.MessageKind, data ...byte) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(contracts.RawMessage{Kind: kind, Data: data})
	}
}

type fakeOpener struct {
	mu           sync.Mutex
	script       map[string][]step
	calls        map[string]int
	ports        []*fakePort
	subscribeErr error

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeOpener(script map[string][]step) *fakeOpener {
	if script == nil {
		script = map[string][]step{}
	}
	return &fakeOpener{script: script, calls: map[string]int{}}
}

func (f *fakeOpener) Open(ctx context.Context, id string) (contracts.InputPort, error) {
	f.mu.Lock()
	idx := f.calls[id]
	f.calls[id]++
	s := stepOK
	if steps := f.script[id]; idx < len(steps) {
		s = steps[idx]
	}
	f.mu.Unlock()

	switch s {
	case stepFail:
		return nil, errOpen
	case stepHang:
		<-ctx.Done()
		return nil, ctx.Err()
	case stepLateOK:
		<-ctx.Done()
		return f.newPort(id), nil
	case stepSlowOK:
		n := f.inFlight.Add(1)
		defer f.inFlight.Add(-1)
		for {
			cur := f.maxInFlight.Load()
			if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return f.newPort(id), nil
	default:
		return f.newPort(id), nil
	}
}

func (f *fakeOpener) newPort(id string) *fakePort {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePort{id: id, subscribeErr: f.subscribeErr}
	f.ports = append(f.ports, p)
	return p
}

func (f *fakeOpener) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeOpener) portsFor(id string) []*fakePort {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakePort
	for _, p := range f.ports {
		if p.id == id {
			out = append(out, p)
		}
	}
	return out
}
