package dispatcher

import (
	"context"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"
	"github.com/cenkalti/backoff/v4"

	"github.com/healthmonitor/agent/instrumentation"
	"github.com/healthmonitor/agent/models"
	"github.com/healthmonitor/agent/monitor/config"
	"github.com/healthmonitor/agent/monitor/mailer"
)

// TestEmailKind labels the startup test e-mail in logs and metrics.
const TestEmailKind models.ResourceKind = "test_email"

type Dispatcher struct {
	logger    lager.Logger
	clock     clock.Clock
	transport mailer.Transport
	collector instrumentation.AlertCollector
}

func NewDispatcher(logger lager.Logger, clock clock.Clock, transport mailer.Transport, collector instrumentation.AlertCollector) *Dispatcher {
	return &Dispatcher{
		logger:    logger.Session("dispatcher"),
		clock:     clock,
		transport: transport,
		collector: collector,
	}
}

// Dispatch delivers the alert for decision. The caller records the cooldown
// when the result is DispatchSent. A returned error wrapping
// models.ErrDispatchGaveUp is fatal for the monitor.
func (d *Dispatcher) Dispatch(ctx context.Context, decision models.AlertDecision, conf *config.Config) (models.DispatchResult, error) {
	msg := RenderAlert(decision, conf)
	return d.Send(ctx, decision.Key(), msg, conf, lager.Data{
		"decision":  decision.ID,
		"value":     decision.Value,
		"threshold": decision.Threshold,
	})
}

// SendTestEmail runs the startup self check under the same retry policy.
func (d *Dispatcher) SendTestEmail(ctx context.Context, conf *config.Config) (models.DispatchResult, error) {
	key := models.AlertKey{Kind: TestEmailKind, Device: conf.General.DeviceName}
	return d.Send(ctx, key, RenderTestEmail(conf), conf)
}

// Send makes up to conf.MaxRetries attempts to deliver msg, waiting
// email_retry_delay between consecutive attempts. Permanent delivery
// errors end the sequence at once.
func (d *Dispatcher) Send(ctx context.Context, key models.AlertKey, msg models.Message, conf *config.Config, data ...lager.Data) (models.DispatchResult, error) {
	policy := NewRetryPolicy(conf)
	logData := lager.Data{"resource": key.Kind, "device": key.Device, "subject": msg.Subject, "max_attempts": policy.MaxAttempts}
	for _, extra := range data {
		for k, v := range extra {
			logData[k] = v
		}
	}
	logger := d.logger.Session("send", logData)

	result := models.DispatchResult{FirstAttemptAt: d.clock.Now()}
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		result.Attempts++
		err := d.transport.Send(ctx, msg, conf.Email.SMTP)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		d.collector.DispatchAttemptFailed(key.Kind)
		result.LastError = fmt.Errorf("%w: attempt %d: %w", models.ErrDispatchFailed, result.Attempts, err)
		if models.IsPermanentDelivery(err) {
			return backoff.Permanent(result.LastError)
		}
		return result.LastError
	}
	notify := func(err error, next time.Duration) {
		logger.Info("dispatch-retry", lager.Data{
			"attempt":       result.Attempts,
			"error":         err.Error(),
			"next_attempt":  next.String(),
			"attempts_left": policy.MaxAttempts - result.Attempts,
		})
	}

	err := backoff.RetryNotifyWithTimer(operation, policy.BackOff(ctx), notify, newClockTimer(d.clock))
	switch {
	case err == nil:
		result.Status = models.DispatchSent
		result.LastError = nil
		d.collector.AlertSent(key.Kind)
		logger.Info("alert-sent", lager.Data{"attempts": result.Attempts})
		return result, nil
	case ctx.Err() != nil:
		result.Status = models.DispatchCanceled
		logger.Info("dispatch-canceled", lager.Data{"attempts": result.Attempts})
		return result, ctx.Err()
	default:
		result.Status = models.DispatchGaveUp
		if result.LastError == nil {
			result.LastError = err
		}
		logger.Error("dispatch-gave-up", result.LastError, lager.Data{
			"attempts": result.Attempts,
			"elapsed":  d.clock.Since(result.FirstAttemptAt).String(),
		})
		return result, fmt.Errorf("%w: %s after %d attempts: %w", models.ErrDispatchGaveUp, key, result.Attempts, result.LastError)
	}
}
