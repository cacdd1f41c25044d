package startup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"code.cloudfoundry.org/lager/v3"
	"github.com/spf13/pflag"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/grouper"
	"github.com/tedsuo/ifrit/sigmon"

	"github.com/healthmonitor/agent/helpers"
	"github.com/healthmonitor/agent/models"
	"github.com/healthmonitor/agent/monitor/config"
)

const (
	ExitClean          = 0
	ExitStartupFailed  = 1
	ExitDispatchGaveUp = 2
	ExitSamplerFailed  = 3
)

type ConfigValidator interface {
	Validate() error
}

type ConfigWithLogging interface {
	ConfigValidator
	GetLogging() *helpers.LoggingConfig
}

// ParseFlags returns the configuration path given by -c/--config.
func ParseFlags(name string, args []string, output io.Writer) (string, error) {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(output)
	path := flags.StringP("config", "c", config.DefaultConfigPath, "config file")
	if err := flags.Parse(args); err != nil {
		return "", err
	}
	if *path == "" {
		return "", errors.New("missing config file")
	}
	return *path, nil
}

// App is everything main needs after a successful bootstrap.
type App struct {
	Store  *config.Store
	Config *config.Config
	Logger lager.Logger
	Sink   *lager.ReconfigurableSink
}

// Bootstrap parses the flags, loads the configuration and builds the
// logger. Problems before the logger exists are reported on stdout.
func Bootstrap(serviceName string, args []string) (*App, error) {
	path, err := ParseFlags(serviceName, args, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConfigInvalid, err)
	}

	store := config.NewStore(lager.NewLogger(serviceName), path)
	conf, err := store.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stdout, "failed to read config file '%s' : %s\n", path, err.Error())
		return nil, err
	}

	logger, sink, err := InitLogger(conf, serviceName)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stdout, "%s\n", err.Error())
		return nil, fmt.Errorf("%w: %w", models.ErrConfigInvalid, err)
	}
	store.SetLogger(logger)
	store.OnReload(func(c *config.Config) {
		level, err := helpers.ParseLogLevel(c.General.LogLevel)
		if err != nil {
			return
		}
		sink.SetMinLevel(level)
	})

	return &App{Store: store, Config: conf, Logger: logger, Sink: sink}, nil
}

func InitLogger(conf ConfigWithLogging, serviceName string) (lager.Logger, *lager.ReconfigurableSink, error) {
	return helpers.InitLoggerFromConfig(conf.GetLogging(), serviceName)
}

func StartServices(logger lager.Logger, members grouper.Members) error {
	monitor := ifrit.Invoke(sigmon.New(grouper.NewOrdered(os.Interrupt, members)))
	logger.Info("started")
	err := unwrapTrace(<-monitor.Wait())
	if err != nil {
		logger.Error("exited-with-failure", err)
		return err
	}
	logger.Info("exited")
	return nil
}

// unwrapTrace turns a grouper.ErrorTrace into a joined error so callers can
// match the member errors with errors.Is.
func unwrapTrace(err error) error {
	var trace grouper.ErrorTrace
	if !errors.As(err, &trace) {
		return err
	}
	var errs []error
	for _, event := range trace {
		if event.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", event.Member.Name, event.Err))
		}
	}
	return errors.Join(errs...)
}

// ExitCode maps the error that ended the process onto its exit status.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return ExitClean
	case errors.Is(err, models.ErrDispatchGaveUp):
		return ExitDispatchGaveUp
	case errors.Is(err, models.ErrSamplerFailed):
		return ExitSamplerFailed
	default:
		return ExitStartupFailed
	}
}
