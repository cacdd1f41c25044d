package models

import (
	"strconv"
	"time"
)

const (
	// MaxDispatchAttempts is the number of send attempts made for one alert
	// before the process gives up.
	MaxDispatchAttempts = 6
	// MaxRetryDelaySecs bounds email_retry_delay (12 hours).
	MaxRetryDelaySecs = 43200
)

type AlertDecision struct {
	ID        string       `json:"id"`
	Kind      ResourceKind `json:"resource"`
	Device    string       `json:"device"`
	Value     float64      `json:"value"`
	Threshold float64      `json:"threshold"`
	Unit      string       `json:"unit"`
	Detail    string       `json:"detail,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

func (d AlertDecision) Key() AlertKey {
	return AlertKey{Kind: d.Kind, Device: d.Device}
}

// Message is a rendered e-mail. It is rendered once per decision and reused
// for every attempt.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

type DispatchStatus string

const (
	DispatchSent     DispatchStatus = "sent"
	DispatchGaveUp   DispatchStatus = "gave-up"
	DispatchCanceled DispatchStatus = "canceled"
)

// DispatchResult is the retry state of one attempt sequence.
type DispatchResult struct {
	Status         DispatchStatus
	Attempts       int
	FirstAttemptAt time.Time
	LastError      error
}

func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
