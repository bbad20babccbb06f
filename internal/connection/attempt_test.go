package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leandrodaf/midiscan/internal/logger"
	"github.com/leandrodaf/midiscan/sdk/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 20 * time.Millisecond

func TestAttempt_Success(t *testing.T) {
	opener := newFakeOpener(nil)
	a := NewAttempter(opener, testTimeout, logger.NewNopLogger())

	port, err := a.Attempt(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "A", port.DeviceID())
}

func TestAttempt_DefaultTimeout(t *testing.T) {
	a := NewAttempter(newFakeOpener(nil), 0, logger.NewNopLogger())
	assert.Equal(t, DefaultAttemptTimeout, a.Timeout())
	assert.Equal(t, time.Second, a.Timeout())
}

func TestAttempt_Failure(t *testing.T) {
	opener := newFakeOpener(map[string][]step{"A": {stepFail}})
	a := NewAttempter(opener, testTimeout, logger.NewNopLogger())

	port, err := a.Attempt(context.Background(), "A")
	assert.Nil(t, port)
	assert.ErrorIs(t, err, ErrAttemptFailed)
	assert.ErrorIs(t, err, errOpen)
}

func TestAttempt_TimesOutWithinBound(t *testing.T) {
	opener := newFakeOpener(map[string][]step{"A": {stepHang}})
	a := NewAttempter(opener, testTimeout, logger.NewNopLogger())

	start := time.Now()
	port, err := a.Attempt(context.Background(), "A")
	elapsed := time.Since(start)

	assert.Nil(t, port)
	assert.ErrorIs(t, err, ErrAttemptTimedOut)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestAttempt_LateCompletionIsClosed(t *testing.T) {
	opener := newFakeOpener(map[string][]step{"A": {stepLateOK}})
	a := NewAttempter(opener, testTimeout, logger.NewNopLogger())

	port, err := a.Attempt(context.Background(), "A")
	require.ErrorIs(t, err, ErrAttemptTimedOut)
	assert.Nil(t, port)

	// The open sees the cancellation, returns a port anyway, and that port must be released.
	require.Eventually(t, func() bool {
		ports := opener.portsFor("A")
		return len(ports) == 1 && ports[0].isClosed()
	}, time.Second, 5*time.Millisecond)
}

func TestAttempt_CallerContextCancelled(t *testing.T) {
	opener := newFakeOpener(map[string][]step{"A": {stepHang}})
	a := NewAttempter(opener, time.Minute, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := a.Attempt(ctx, "A")
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

type nilPortOpener struct{}

func (nilPortOpener) Open(context.Context, string) (contracts.InputPort, error) {
	return nil, nil
}

func TestAttempt_NilPortIsFailure(t *testing.T) {
	a := NewAttempter(nilPortOpener{}, testTimeout, logger.NewNopLogger())
	_, err := a.Attempt(context.Background(), "A")
	assert.ErrorIs(t, err, ErrAttemptFailed)
}
