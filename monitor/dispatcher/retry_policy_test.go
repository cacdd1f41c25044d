package dispatcher_test

import (
	"context"
	"time"

	. "github.com/healthmonitor/agent/monitor/dispatcher"

	"github.com/cenkalti/backoff/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RetryPolicy", func() {
	It("is built from the configuration", func() {
		policy := NewRetryPolicy(parseConfig("cpu_threshold = 90", 30))
		Expect(policy).To(Equal(RetryPolicy{MaxAttempts: 6, Delay: 30 * time.Second}))
		Expect(policy.Budget()).To(Equal(150 * time.Second))
	})

	It("yields one wait fewer than attempts", func() {
		b := RetryPolicy{MaxAttempts: 6, Delay: time.Minute}.BackOff(context.Background())
		waits := 0
		for b.NextBackOff() != backoff.Stop {
			waits++
		}
		Expect(waits).To(Equal(5))
	})

	It("stops once the context is done", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		b := RetryPolicy{MaxAttempts: 6, Delay: time.Minute}.BackOff(ctx)
		Expect(b.NextBackOff()).To(Equal(backoff.Stop))
	})

	It("never waits for a single attempt", func() {
		b := RetryPolicy{MaxAttempts: 1, Delay: time.Minute}.BackOff(context.Background())
		Expect(b.NextBackOff()).To(Equal(backoff.Stop))
		Expect(RetryPolicy{MaxAttempts: 1, Delay: time.Minute}.Budget()).To(BeZero())
	})
})
