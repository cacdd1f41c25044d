package helpers

import (
	"io"
	"sync"

	"code.cloudfoundry.org/lager/v3"
)

type redactingWriterWithURLCredSink struct {
	writer                  io.Writer
	minLogLevel             lager.LogLevel
	writeL                  sync.Mutex
	jsonRedacterWithURLCred *JSONRedacterWithURLCred
}

// NewRedactingWriterWithURLCredSink writes one JSON document per line, with
// secret keys, secret values and URL credentials masked.
func NewRedactingWriterWithURLCredSink(writer io.Writer, minLogLevel lager.LogLevel, keyPatterns []string, valuePatterns []string) (lager.Sink, error) {
	redacter, err := NewJSONRedacterWithURLCred(keyPatterns, valuePatterns)
	if err != nil {
		return nil, err
	}
	return &redactingWriterWithURLCredSink{
		writer:                  writer,
		minLogLevel:             minLogLevel,
		jsonRedacterWithURLCred: redacter,
	}, nil
}

func (sink *redactingWriterWithURLCredSink) Log(log lager.LogFormat) {
	if log.LogLevel < sink.minLogLevel {
		return
	}
	line := sink.jsonRedacterWithURLCred.Redact(NewTimeLogFormat(log).ToJSON())

	sink.writeL.Lock()
	defer sink.writeL.Unlock()
	_, _ = sink.writer.Write(append(line, '\n'))
}
