package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"code.cloudfoundry.org/lager/v3"
)

// TimeLogFormat adds a human readable log_time next to lager's epoch
// timestamp.
type TimeLogFormat struct {
	lager.LogFormat
	LogTime string `json:"log_time"`
}

func NewTimeLogFormat(log lager.LogFormat) TimeLogFormat {
	return TimeLogFormat{
		LogFormat: log,
		LogTime:   parseLagerTimestamp(log.Timestamp).Format(time.RFC3339),
	}
}

func parseLagerTimestamp(timestamp string) time.Time {
	seconds, err := strconv.ParseFloat(timestamp, 64)
	if err == nil {
		return time.Unix(int64(seconds), 0)
	}
	if t, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
		return t
	}
	return time.Unix(0, 0)
}

func (tlf TimeLogFormat) ToJSON() []byte {
	content, err := json.Marshal(tlf)
	if err == nil {
		return content
	}
	var unsupportedErr *json.UnsupportedTypeError
	var marshalErr *json.MarshalerError
	if errors.As(err, &unsupportedErr) || errors.As(err, &marshalErr) {
		tlf.Data = lager.Data{"lager serialisation error": err.Error(), "data_dump": fmt.Sprintf("%#v", tlf.Data)}
		if content, err = json.Marshal(tlf); err == nil {
			return content
		}
	}
	_, _ = fmt.Fprintf(os.Stderr, "%s\n", err.Error())
	return []byte("{}")
}
