package evaluator

import (
	"time"

	"code.cloudfoundry.org/lager/v3"
	"github.com/google/uuid"

	"github.com/healthmonitor/agent/instrumentation"
	"github.com/healthmonitor/agent/models"
	"github.com/healthmonitor/agent/monitor/config"
)

type Evaluator struct {
	logger    lager.Logger
	collector instrumentation.AlertCollector
	newID     func() string
}

func NewEvaluator(logger lager.Logger, collector instrumentation.AlertCollector) *Evaluator {
	return &Evaluator{
		logger:    logger.Session("evaluator"),
		collector: collector,
		newID:     uuid.NewString,
	}
}

// Evaluate compares readings against conf and returns one decision per
// breach that the cooldown lets through. Readings of kinds without a
// threshold are dropped. Every device is judged on its own.
func (e *Evaluator) Evaluate(readings []models.Reading, conf *config.Config, tracker *CooldownTracker, now time.Time) []models.AlertDecision {
	decisions := []models.AlertDecision{}
	for _, reading := range readings {
		threshold := conf.Threshold(reading.Kind)
		if !threshold.Present {
			continue
		}
		if !threshold.Breached(reading.Kind, reading.Value) {
			e.logger.Debug("within-threshold", readingData(reading, threshold))
			continue
		}

		e.collector.BreachDetected(reading.Kind)
		data := readingData(reading, threshold)
		e.logger.Info("breach-detected", data)

		key := reading.Key()
		if tracker.IsSuppressed(key, now, conf.Time.AlertCooldown) {
			last, _ := tracker.LastAlertAt(key)
			data["last_alert_at"] = last
			data["cooldown"] = conf.Time.AlertCooldown.String()
			e.logger.Info("alert-suppressed", data)
			e.collector.AlertSuppressed(reading.Kind)
			continue
		}

		decisions = append(decisions, models.AlertDecision{
			ID:        e.newID(),
			Kind:      reading.Kind,
			Device:    reading.Device,
			Value:     reading.Value,
			Threshold: threshold.Value,
			Unit:      reading.Unit,
			Detail:    reading.Detail,
			Timestamp: now,
		})
	}
	return decisions
}

func readingData(reading models.Reading, threshold models.Threshold) lager.Data {
	data := lager.Data{
		"resource":  reading.Kind,
		"device":    reading.Device,
		"value":     reading.Value,
		"threshold": threshold.Value,
		"unit":      reading.Unit,
	}
	if reading.Detail != "" {
		data["detail"] = reading.Detail
	}
	return data
}
