package helpers

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"time"

	"code.cloudfoundry.org/lager/v3"
)

type textWriterSink struct {
	logger      *slog.Logger
	secretKeys  []*regexp.Regexp
	urlRedacter *JSONRedacterWithURLCred
}

var _ lager.Sink = &textWriterSink{}

// NewTextWriterSink renders lager entries as logfmt lines. Values of keys
// matching keyPatterns are masked like in the JSON sink.
func NewTextWriterSink(writer io.Writer, logLevel lager.LogLevel, keyPatterns []string) (lager.Sink, error) {
	secretKeys := make([]*regexp.Regexp, 0, len(keyPatterns))
	for _, pattern := range keyPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		secretKeys = append(secretKeys, re)
	}
	urlRedacter, err := NewJSONRedacterWithURLCred(nil, nil)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level: toSlogLevel(logLevel),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}
	return &textWriterSink{
		logger:      slog.New(slog.NewTextHandler(writer, opts)),
		secretKeys:  secretKeys,
		urlRedacter: urlRedacter,
	}, nil
}

func toSlogLevel(l lager.LogLevel) slog.Level {
	switch l {
	case lager.DEBUG:
		return slog.LevelDebug
	case lager.ERROR, lager.FATAL:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Log lets slog take its own timestamp; the delay against lager's is
// negligible for a text sink.
func (sink *textWriterSink) Log(log lager.LogFormat) {
	sink.logger.LogAttrs(context.Background(), toSlogLevel(log.LogLevel), log.Message, sink.attrs(log)...)
}

func (sink *textWriterSink) attrs(log lager.LogFormat) []slog.Attr {
	var attrs []slog.Attr
	if log.Source != "" {
		attrs = append(attrs, slog.String("source", log.Source))
	}
	for key, value := range log.Data {
		switch {
		case sink.isSecret(key):
			attrs = append(attrs, slog.String(key, redacted))
		default:
			if s, ok := value.(string); ok {
				value = sink.urlRedacter.RedactString(s)
			}
			attrs = append(attrs, slog.Any(key, value))
		}
	}
	return attrs
}

func (sink *textWriterSink) isSecret(key string) bool {
	for _, re := range sink.secretKeys {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}
