package connection

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/midiscan/sdk/contracts"
)

// DefaultAttemptTimeout bounds a single device open.
const DefaultAttemptTimeout = 1000 * time.Millisecond

// Attempt errors.
var (
	ErrAttemptTimedOut = errors.New("connection attempt timed out")
	ErrAttemptFailed   = errors.New("connection attempt failed")
)

type openResult struct {
	port contracts.InputPort
	err  error
}

// Attempter makes single, time-bounded efforts to open a device.
type Attempter struct {
	opener  contracts.Opener
	timeout time.Duration
	logger  contracts.Logger
}

// NewAttempter returns an Attempter. A non-positive timeout selects DefaultAttemptTimeout.
func NewAttempter(opener contracts.Opener, timeout time.Duration, logger contracts.Logger) *Attempter {
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	return &Attempter{opener: opener, timeout: timeout, logger: logger}
}

// Timeout returns the per-attempt bound.
func (a *Attempter) Timeout() time.Duration {
	return a.timeout
}

// Attempt opens deviceID, racing the open against the attempt timeout.
//
// It returns the opened port, ErrAttemptTimedOut when the timer fired first,
// an error wrapping ErrAttemptFailed when the open failed, or ctx.Err() when
// ctx ended first. It never blocks longer than the timeout.
//
// Exactly one side settles the attempt. If the open completes after the timer
// settled it, the port is closed and dropped.
func (a *Attempter) Attempt(ctx context.Context, deviceID string) (contracts.InputPort, error) {
	openCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var settled atomic.Bool
	results := make(chan openResult, 1)

	go func() {
		port, err := a.opener.Open(openCtx, deviceID)
		if settled.CompareAndSwap(false, true) {
			results <- openResult{port: port, err: err}
			return
		}
		a.discardLate(deviceID, port, err)
	}()

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		return a.settle(deviceID, res)
	case <-timer.C:
		if settled.CompareAndSwap(false, true) {
			return nil, fmt.Errorf("%w: %s after %s", ErrAttemptTimedOut, deviceID, a.timeout)
		}
	case <-ctx.Done():
		if settled.CompareAndSwap(false, true) {
			return nil, ctx.Err()
		}
	}

	// The open settled first, right as the timer or ctx fired; its result is already buffered.
	return a.settle(deviceID, <-results)
}

func (a *Attempter) settle(deviceID string, res openResult) (contracts.InputPort, error) {
	if res.err != nil {
		if res.port != nil {
			_ = res.port.Close()
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrAttemptFailed, deviceID, res.err)
	}
	if res.port == nil {
		return nil, fmt.Errorf("%w: %s: transport returned no port", ErrAttemptFailed, deviceID)
	}
	return res.port, nil
}

func (a *Attempter) discardLate(deviceID string, port contracts.InputPort, err error) {
	if port == nil {
		a.logger.Debug("Late open result discarded",
			a.logger.Field().String("device", deviceID),
			a.logger.Field().Error("error", err))
		return
	}
	if cerr := port.Close(); cerr != nil {
		a.logger.Warn("Failed to close late-opened port",
			a.logger.Field().String("device", deviceID),
			a.logger.Field().Error("error", cerr))
		return
	}
	a.logger.Debug("Late-opened port closed", a.logger.Field().String("device", deviceID))
}
