package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/edustack-io/campus-api/pkg/errors"
)

type flakySender struct {
	failures int
	calls    int
	err      error
}

func (s *flakySender) Send(ctx context.Context, msg Message) error {
	s.calls++
	if s.calls <= s.failures {
		return s.err
	}
	return nil
}

func newTestDispatcher(sender Sender, maxAttempts int) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(sender, DispatcherConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
	}, nil)
	var slept []time.Duration
	d.sleep = func(ctx context.Context, delay time.Duration) error {
		slept = append(slept, delay)
		return nil
	}
	d.jitter = func(max time.Duration) time.Duration { return max }
	return d, &slept
}

func TestDispatcherRetriesTransientFailures(t *testing.T) {
	sender := &flakySender{failures: 2, err: appErrors.ErrNetwork}
	d, slept := newTestDispatcher(sender, 4)

	err := d.Send(context.Background(), Message{Channel: "email", Recipient: "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, 3, sender.calls)
	require.Len(t, *slept, 2)
	// Exponential growth with jitter pinned to the cap value.
	assert.Equal(t, 100*time.Millisecond, (*slept)[0])
	assert.Equal(t, 200*time.Millisecond, (*slept)[1])
}

func TestDispatcherStopsOnNonRetryable(t *testing.T) {
	sender := &flakySender{failures: 10, err: appErrors.ErrValidation}
	d, slept := newTestDispatcher(sender, 4)

	err := d.Send(context.Background(), Message{Channel: "sms", Recipient: "+628"})
	require.Error(t, err)
	assert.Equal(t, 1, sender.calls)
	assert.Empty(t, *slept)
}

func TestDispatcherExhaustsAttempts(t *testing.T) {
	sender := &flakySender{failures: 10, err: appErrors.ErrNetwork}
	d, slept := newTestDispatcher(sender, 3)

	err := d.Send(context.Background(), Message{Channel: "email", Recipient: "a@b.c"})
	require.Error(t, err)
	assert.Equal(t, 3, sender.calls)
	assert.Len(t, *slept, 2)
}

func TestDispatcherBackoffCapped(t *testing.T) {
	d := NewDispatcher(NewConsoleSender(nil), DispatcherConfig{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    4 * time.Second,
	}, nil)
	d.jitter = func(max time.Duration) time.Duration { return max }

	assert.Equal(t, time.Second, d.backoff(1))
	assert.Equal(t, 2*time.Second, d.backoff(2))
	assert.Equal(t, 4*time.Second, d.backoff(3))
	assert.Equal(t, 4*time.Second, d.backoff(8))
}

func TestFullJitterWithinBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		v := fullJitter(time.Second)
		assert.Greater(t, v, time.Duration(0))
		assert.LessOrEqual(t, v, time.Second)
	}
}
