package instrumentation

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/healthmonitor/agent/models"
)

const Namespace = "healthmonitor"

// AlertCollector counts what the alerting engine does. It is exported as a
// node-exporter textfile, the agent has no listener.
type AlertCollector interface {
	prometheus.Collector
	CycleCompleted()
	ObserveReading(reading models.Reading)
	BreachDetected(kind models.ResourceKind)
	AlertSuppressed(kind models.ResourceKind)
	AlertSent(kind models.ResourceKind)
	DispatchAttemptFailed(kind models.ResourceKind)
	ConfigReloadFailed()
}

type alertCollector struct {
	cycles               prometheus.Counter
	lastReading          *prometheus.GaugeVec
	breaches             *prometheus.CounterVec
	suppressed           *prometheus.CounterVec
	sent                 *prometheus.CounterVec
	failedAttempts       *prometheus.CounterVec
	configReloadFailures prometheus.Counter
}

func NewAlertCollector(namespace string) AlertCollector {
	return &alertCollector{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Number of completed monitoring cycles",
		}),
		lastReading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_reading",
			Help:      "Most recent sampled value per resource and device",
		}, []string{"resource", "device", "unit"}),
		breaches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaches_total",
			Help:      "Number of readings that violated their threshold",
		}, []string{"resource"}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Number of breaches not alerted because of the cooldown",
		}, []string{"resource"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_sent_total",
			Help:      "Number of alert e-mails delivered",
		}, []string{"resource"}),
		failedAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failed_attempts_total",
			Help:      "Number of failed e-mail send attempts",
		}, []string{"resource"}),
		configReloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reload_failures_total",
			Help:      "Number of configuration reloads that kept the previous configuration",
		}),
	}
}

func (c *alertCollector) collectors() []prometheus.Collector {
	return []prometheus.Collector{c.cycles, c.lastReading, c.breaches, c.suppressed, c.sent, c.failedAttempts, c.configReloadFailures}
}

func (c *alertCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, col := range c.collectors() {
		col.Describe(ch)
	}
}

func (c *alertCollector) Collect(ch chan<- prometheus.Metric) {
	for _, col := range c.collectors() {
		col.Collect(ch)
	}
}

func (c *alertCollector) CycleCompleted() {
	c.cycles.Inc()
}

func (c *alertCollector) ObserveReading(reading models.Reading) {
	c.lastReading.WithLabelValues(string(reading.Kind), reading.Device, reading.Unit).Set(reading.Value)
}

func (c *alertCollector) BreachDetected(kind models.ResourceKind) {
	c.breaches.WithLabelValues(string(kind)).Inc()
}

func (c *alertCollector) AlertSuppressed(kind models.ResourceKind) {
	c.suppressed.WithLabelValues(string(kind)).Inc()
}

func (c *alertCollector) AlertSent(kind models.ResourceKind) {
	c.sent.WithLabelValues(string(kind)).Inc()
}

func (c *alertCollector) DispatchAttemptFailed(kind models.ResourceKind) {
	c.failedAttempts.WithLabelValues(string(kind)).Inc()
}

func (c *alertCollector) ConfigReloadFailed() {
	c.configReloadFailures.Inc()
}
