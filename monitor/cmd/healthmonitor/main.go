package main

import (
	"os"

	"code.cloudfoundry.org/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tedsuo/ifrit"

	"github.com/healthmonitor/agent/instrumentation"
	"github.com/healthmonitor/agent/monitor/dispatcher"
	"github.com/healthmonitor/agent/monitor/loop"
	"github.com/healthmonitor/agent/monitor/mailer"
	"github.com/healthmonitor/agent/monitor/sampler"
	"github.com/healthmonitor/agent/startup"
)

const serviceName = "healthmonitor"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	app, err := startup.Bootstrap(serviceName, args)
	if err != nil {
		return startup.ExitCode(err)
	}
	logger := app.Logger
	monitorClock := clock.NewClock()

	collector := instrumentation.NewAlertCollector(instrumentation.Namespace)
	promRegistry := prometheus.NewRegistry()
	instrumentation.RegisterCollectors(promRegistry, []prometheus.Collector{collector}, true, logger.Session(serviceName+"-prometheus"))
	exporter := instrumentation.NewTextfileExporter(app.Config.General.MetricsFile, promRegistry)

	hostSampler := sampler.NewHostSampler(logger, sampler.NewNvidiaSMI(logger))
	transport := mailer.NewSMTPTransport(logger, monitorClock)
	alertDispatcher := dispatcher.NewDispatcher(logger, monitorClock, transport, collector)

	err = startup.StartService(logger,
		startup.Service("config_watcher", func() (ifrit.Runner, error) {
			return app.Store.Watcher(), nil
		}),
		startup.Service("monitor", func() (ifrit.Runner, error) {
			return loop.NewMonitorLoop(logger, monitorClock, app.Store, hostSampler, alertDispatcher, collector, exporter), nil
		}),
	)
	return startup.ExitCode(err)
}
