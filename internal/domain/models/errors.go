package models

import (
	"errors"
	"fmt"

	"candlestick/pkg/resolution"
)

var (
	// ErrInvalidResolution means the resolution string is malformed.
	ErrInvalidResolution = resolution.ErrInvalid

	// ErrUnsupportedResolution means the resolution is well formed but the provider cannot serve it.
	ErrUnsupportedResolution = errors.New("unsupported resolution")

	// ErrInvalidTimestampForResolution means a daily-or-above bar does not start at UTC midnight.
	ErrInvalidTimestampForResolution = errors.New("invalid timestamp for resolution")

	ErrInstrumentNotFound  = errors.New("instrument not found")
	ErrDuplicateInstrument = errors.New("instrument already exists")
	ErrInvalidInstrument   = errors.New("invalid instrument")
	ErrInvalidBar          = errors.New("invalid bar")
	ErrInvalidRange        = errors.New("invalid time range")

	// ErrProvider wraps every failure coming from the external data source.
	ErrProvider = errors.New("provider error")

	// ErrSeriesBusy means another caller holds the lock for the same series.
	ErrSeriesBusy = errors.New("series is being synchronised by another caller")
)

// SeriesError attaches the series identity to a failed operation.
type SeriesError struct {
	Op         string
	Symbol     string
	Resolution string
	Err        error
}

func (e *SeriesError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Symbol, e.Resolution, e.Err)
}

func (e *SeriesError) Unwrap() error {
	return e.Err
}
