package loop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"
	"golang.org/x/sync/errgroup"

	"github.com/healthmonitor/agent/instrumentation"
	"github.com/healthmonitor/agent/models"
	"github.com/healthmonitor/agent/monitor/config"
	"github.com/healthmonitor/agent/monitor/dispatcher"
	"github.com/healthmonitor/agent/monitor/evaluator"
	"github.com/healthmonitor/agent/monitor/sampler"
)

type State string

const (
	StateIdle        State = "idle"
	StateSampling    State = "sampling"
	StateEvaluating  State = "evaluating"
	StateDispatching State = "dispatching"
	StateSleeping    State = "sleeping"
	StateTerminated  State = "terminated"
)

// Dispatcher delivers alerts. *dispatcher.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, decision models.AlertDecision, conf *config.Config) (models.DispatchResult, error)
	SendTestEmail(ctx context.Context, conf *config.Config) (models.DispatchResult, error)
}

var _ Dispatcher = &dispatcher.Dispatcher{}

// ConfigSource is the part of config.Store the loop reads each cycle.
type ConfigSource interface {
	Current() *config.Config
	Refresh() (*config.Config, error)
}

var _ ConfigSource = &config.Store{}

// CycleReport summarizes one cycle.
type CycleReport struct {
	Readings  int
	Breaches  int
	Decisions []models.AlertDecision
	Sent      int
	NextCheck time.Duration
}

func (r CycleReport) Healthy() bool {
	return r.Breaches == 0
}

type MonitorLoop struct {
	logger     lager.Logger
	clock      clock.Clock
	configs    ConfigSource
	sampler    sampler.Sampler
	evaluator  *evaluator.Evaluator
	dispatcher Dispatcher
	tracker    *evaluator.CooldownTracker
	collector  instrumentation.AlertCollector
	exporter   *instrumentation.TextfileExporter

	stateLock sync.RWMutex
	state     State
}

func NewMonitorLoop(
	logger lager.Logger,
	clock clock.Clock,
	configs ConfigSource,
	sampler sampler.Sampler,
	dispatcher Dispatcher,
	collector instrumentation.AlertCollector,
	exporter *instrumentation.TextfileExporter,
) *MonitorLoop {
	logger = logger.Session("monitor-loop")
	return &MonitorLoop{
		logger:     logger,
		clock:      clock,
		configs:    configs,
		sampler:    sampler,
		evaluator:  evaluator.NewEvaluator(logger, collector),
		dispatcher: dispatcher,
		tracker:    evaluator.NewCooldownTracker(),
		collector:  collector,
		exporter:   exporter,
		state:      StateIdle,
	}
}

func (m *MonitorLoop) State() State {
	m.stateLock.RLock()
	defer m.stateLock.RUnlock()
	return m.state
}

func (m *MonitorLoop) setState(state State) {
	m.stateLock.Lock()
	previous := m.state
	m.state = state
	m.stateLock.Unlock()
	if previous != state {
		m.logger.Debug("state-changed", lager.Data{"from": previous, "to": state})
	}
}

// Tracker exposes the cooldown state, which lives as long as the loop.
func (m *MonitorLoop) Tracker() *evaluator.CooldownTracker {
	return m.tracker
}

// Run is an ifrit.Runner. A signal ends the loop with nil. Exhausted
// retries and sampler failures end it with the error that caused them.
func (m *MonitorLoop) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case sig := <-signals:
			m.logger.Info("received-signal", lager.Data{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	close(ready)
	m.logger.Info("started")

	err := m.run(ctx)
	if ctx.Err() != nil {
		m.setState(StateTerminated)
		m.logger.Info("stopped")
		return nil
	}
	m.setState(StateTerminated)
	m.logger.Error("terminated", err)
	return err
}

func (m *MonitorLoop) run(ctx context.Context) error {
	if conf := m.configs.Current(); conf != nil && conf.Email.SendTestEmail {
		if _, err := m.dispatcher.SendTestEmail(ctx, conf); err != nil {
			return err
		}
	}

	for {
		report, err := m.RunCycle(ctx)
		if err != nil {
			return err
		}
		if err := m.sleep(ctx, report.NextCheck); err != nil {
			return err
		}
	}
}

// RunCycle refreshes the configuration, samples every configured kind,
// evaluates the readings and dispatches the resulting alerts. It returns
// once every dispatch of the cycle has finished.
func (m *MonitorLoop) RunCycle(ctx context.Context) (CycleReport, error) {
	conf, err := m.configs.Refresh()
	if err != nil {
		m.collector.ConfigReloadFailed()
	}
	if conf == nil {
		return CycleReport{}, fmt.Errorf("%w: no configuration loaded", models.ErrConfigInvalid)
	}
	report := CycleReport{NextCheck: conf.Time.CheckFrequency}
	logger := m.logger.Session("cycle", lager.Data{"resources": conf.ConfiguredKinds()})
	logger.Info("cycle-started")

	m.setState(StateSampling)
	readings, err := m.sample(ctx, logger, conf)
	if err != nil {
		return report, err
	}
	report.Readings = len(readings)

	m.setState(StateEvaluating)
	for _, reading := range readings {
		if conf.Threshold(reading.Kind).Breached(reading.Kind, reading.Value) {
			report.Breaches++
		}
	}
	report.Decisions = m.evaluator.Evaluate(readings, conf, m.tracker, m.clock.Now())

	m.setState(StateDispatching)
	sent, err := m.dispatch(ctx, report.Decisions, conf)
	report.Sent = sent
	if err != nil {
		return report, err
	}

	m.collector.CycleCompleted()
	if err := m.exporter.Export(); err != nil {
		logger.Error("failed-to-export-metrics", err)
	}
	logger.Info("cycle-completed", lager.Data{
		"healthy":    report.Healthy(),
		"readings":   report.Readings,
		"breaches":   report.Breaches,
		"alerts":     report.Sent,
		"next_check": report.NextCheck.String(),
	})
	return report, nil
}

func (m *MonitorLoop) sample(ctx context.Context, logger lager.Logger, conf *config.Config) ([]models.Reading, error) {
	readings := []models.Reading{}
	for _, kind := range conf.ConfiguredKinds() {
		kindReadings, err := m.sampler.Sample(ctx, kind, conf.Devices(kind))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !errors.Is(err, models.ErrSamplingUnavailable) {
				if errors.Is(err, models.ErrSamplerFailed) {
					return nil, err
				}
				return nil, fmt.Errorf("%w: %s: %w", models.ErrSamplerFailed, kind, err)
			}
			logger.Info("sampling-unavailable", lager.Data{"resource": kind, "reason": err.Error()})
		}
		for _, reading := range kindReadings {
			m.collector.ObserveReading(reading)
		}
		readings = append(readings, kindReadings...)
	}
	return readings, nil
}

// dispatch sends the decisions of one cycle in parallel. A give-up cancels
// the dispatches still in progress. The cooldown of a decision is recorded
// only after its send succeeded.
func (m *MonitorLoop) dispatch(ctx context.Context, decisions []models.AlertDecision, conf *config.Config) (int, error) {
	if len(decisions) == 0 {
		return 0, nil
	}
	var sentLock sync.Mutex
	sent := 0

	g, gctx := errgroup.WithContext(ctx)
	for _, decision := range decisions {
		g.Go(func() error {
			result, err := m.dispatcher.Dispatch(gctx, decision, conf)
			if result.Status == models.DispatchSent {
				m.tracker.RecordSuccess(decision.Key(), m.clock.Now())
				sentLock.Lock()
				sent++
				sentLock.Unlock()
			}
			return err
		})
	}
	err := g.Wait()
	return sent, err
}

func (m *MonitorLoop) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	m.setState(StateSleeping)
	timer := m.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}
