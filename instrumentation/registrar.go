package instrumentation

import (
	"fmt"
	"os"

	"code.cloudfoundry.org/lager/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func RegisterCollectors(registrar prometheus.Registerer, col []prometheus.Collector, includeDefault bool, logger lager.Logger) {
	if includeDefault {
		err := registrar.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
			PidFn: func() (int, error) {
				return os.Getpid(), nil
			},
		}))
		if err != nil {
			logger.Error("failed-to-register-process-collector", err)
		}
		err = registrar.Register(collectors.NewGoCollector())
		if err != nil {
			logger.Error("failed-to-register-go-collector", err)
		}
	}

	for _, c := range col {
		if err := registrar.Register(c); err != nil {
			logger.Error("failed-to-register-collector", err, lager.Data{"collector": fmt.Sprintf("%T", c)})
		}
	}
}

// TextfileExporter writes the registry in the node-exporter textfile format.
// An empty path disables it.
type TextfileExporter struct {
	path     string
	gatherer prometheus.Gatherer
}

func NewTextfileExporter(path string, gatherer prometheus.Gatherer) *TextfileExporter {
	return &TextfileExporter{path: path, gatherer: gatherer}
}

func (e *TextfileExporter) Export() error {
	if e == nil || e.path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(e.path, e.gatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile '%s': %w", e.path, err)
	}
	return nil
}
