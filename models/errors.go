package models

import (
	"errors"
	"fmt"
)

var (
	ErrConfigInvalid       = errors.New("configuration invalid")
	ErrConfigReloadFailed  = errors.New("configuration reload failed")
	ErrSamplingUnavailable = errors.New("sampling unavailable")
	ErrSamplerFailed       = errors.New("sampler failed")
	ErrDispatchFailed      = errors.New("dispatch failed")
	ErrDispatchGaveUp      = errors.New("dispatch gave up")
)

// PermanentDeliveryError is a send failure that another attempt cannot fix,
// such as rejected credentials or a refused recipient.
type PermanentDeliveryError struct {
	Reason string
	Err    error
}

func NewPermanentDeliveryError(reason string, err error) *PermanentDeliveryError {
	return &PermanentDeliveryError{Reason: reason, Err: err}
}

func (e *PermanentDeliveryError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Err.Error())
}

func (e *PermanentDeliveryError) Unwrap() error {
	return e.Err
}

func IsPermanentDelivery(err error) bool {
	var p *PermanentDeliveryError
	return errors.As(err, &p)
}

// SamplingUnavailable wraps err so that callers treat the resource as
// absent for this cycle.
func SamplingUnavailable(kind ResourceKind, device string, err error) error {
	if device == "" {
		return fmt.Errorf("%w: %s: %w", ErrSamplingUnavailable, kind, err)
	}
	return fmt.Errorf("%w: %s %s: %w", ErrSamplingUnavailable, kind, device, err)
}
