package dispatcher

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/healthmonitor/agent/monitor/config"
)

// RetryPolicy allows MaxAttempts sends with a fixed Delay between them.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func NewRetryPolicy(conf *config.Config) RetryPolicy {
	return RetryPolicy{MaxAttempts: conf.MaxRetries, Delay: conf.Time.EmailRetryDelay}
}

// BackOff yields MaxAttempts-1 waits and stops early when ctx is done.
func (p RetryPolicy) BackOff(ctx context.Context) backoff.BackOff {
	retries := 0
	if p.MaxAttempts > 1 {
		retries = p.MaxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(retries)), ctx)
}

// Budget is the longest time a give-up can take after the first attempt,
// ignoring the attempts themselves.
func (p RetryPolicy) Budget() time.Duration {
	if p.MaxAttempts < 2 {
		return 0
	}
	return time.Duration(p.MaxAttempts-1) * p.Delay
}

// clockTimer runs backoff waits on an injected clock.
type clockTimer struct {
	clock clock.Clock
	timer clock.Timer
}

var _ backoff.Timer = &clockTimer{}

func newClockTimer(c clock.Clock) *clockTimer {
	return &clockTimer{clock: c}
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C()
}
