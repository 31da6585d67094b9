package notify

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/edustack-io/campus-api/pkg/errors"
)

// DispatcherConfig bounds the retry behaviour for outbound sends.
type DispatcherConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Dispatcher sends messages through a Sender, retrying transient failures
// with exponential backoff and full jitter. Non-retryable provider errors
// surface immediately.
type Dispatcher struct {
	sender Sender
	cfg    DispatcherConfig
	logger *zap.Logger

	// sleep and jitter are injectable for tests.
	sleep  func(context.Context, time.Duration) error
	jitter func(time.Duration) time.Duration
}

// NewDispatcher constructs a dispatcher around the sender.
func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sender: sender,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
		jitter: fullJitter,
	}
}

// Send delivers the message, retrying while the error is retryable and
// attempts remain.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		err := d.sender.Send(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err

		if !appErrors.IsRetryable(err) {
			d.logger.Warn("notification not retryable",
				zap.String("channel", msg.Channel),
				zap.String("recipient", msg.Recipient),
				zap.Error(err),
			)
			return err
		}
		if attempt == d.cfg.MaxAttempts {
			break
		}

		delay := d.backoff(attempt)
		d.logger.Warn("notification send failed, retrying",
			zap.String("channel", msg.Channel),
			zap.String("recipient", msg.Recipient),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := d.sleep(ctx, delay); err != nil {
			return err
		}
	}

	d.logger.Error("notification exhausted retries",
		zap.String("channel", msg.Channel),
		zap.String("recipient", msg.Recipient),
		zap.Int("attempts", d.cfg.MaxAttempts),
		zap.Error(lastErr),
	)
	return lastErr
}

// backoff returns base*2^(attempt-1) capped at MaxDelay, with full jitter.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.cfg.MaxDelay {
			delay = d.cfg.MaxDelay
			break
		}
	}
	return d.jitter(delay)
}

func fullJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)) + 1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
