package helpers

import (
	"fmt"
	"io"
	"os"
	"strings"

	"code.cloudfoundry.org/lager/v3"
)

// SecretKeyPatterns match lager.Data keys whose values never reach a sink.
var SecretKeyPatterns = []string{"[Pp]wd", "[Pp]ass", "[Ss]ecret", "[Tt]oken"}

type LoggingConfig struct {
	Level         string
	PlainTextSink bool
	// File, when set, receives a copy of everything written to stdout.
	File string
}

// InitLoggerFromConfig builds the process logger. The returned sink lets a
// configuration reload change the minimum level without a restart.
func InitLoggerFromConfig(conf *LoggingConfig, name string) (lager.Logger, *lager.ReconfigurableSink, error) {
	logLevel, err := ParseLogLevel(conf.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	var writer io.Writer = os.Stdout
	if conf.File != "" {
		file, err := os.OpenFile(conf.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file '%s': %w", conf.File, err)
		}
		writer = io.MultiWriter(os.Stdout, file)
	}

	var sink lager.Sink
	if conf.PlainTextSink {
		sink, err = NewTextWriterSink(writer, lager.DEBUG, SecretKeyPatterns)
	} else {
		sink, err = NewRedactingWriterWithURLCredSink(writer, lager.DEBUG, SecretKeyPatterns, nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log sink: %w", err)
	}

	reconfigurableSink := lager.NewReconfigurableSink(sink, logLevel)
	logger := lager.NewLogger(name)
	logger.RegisterSink(reconfigurableSink)
	return logger, reconfigurableSink, nil
}

// ParseLogLevel maps configured level names onto lager levels. lager has no
// warning level, so warning is logged as info and critical as fatal.
func ParseLogLevel(level string) (lager.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return lager.DEBUG, nil
	case "info", "warn", "warning":
		return lager.INFO, nil
	case "error":
		return lager.ERROR, nil
	case "fatal", "critical":
		return lager.FATAL, nil
	default:
		return -1, fmt.Errorf("unsupported log level: %s", level)
	}
}
