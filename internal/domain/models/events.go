package models

import "time"

// SyncMode tells which sync entry point produced a set of bars.
type SyncMode string

const (
	SyncFetch  SyncMode = "fetch"
	SyncUpdate SyncMode = "update"
)

// SeriesSynced is published after bars of one series were replaced.
type SeriesSynced struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Exchange   string    `json:"exchange,omitempty"`
	Resolution string    `json:"resolution"`
	Mode       SyncMode  `json:"mode"`
	Bars       int       `json:"bars"`
	From       int64     `json:"from,omitempty"`
	To         int64     `json:"to,omitempty"`
	At         time.Time `json:"at"`
}

// SeriesResult is the outcome of one sync in a batch.
type SeriesResult struct {
	Symbol     string        `json:"symbol"`
	Exchange   string        `json:"exchange,omitempty"`
	Resolution string        `json:"resolution"`
	Mode       SyncMode      `json:"mode"`
	Bars       int           `json:"bars"`
	Duration   time.Duration `json:"-"`
	Err        error         `json:"-"`
}

// OK reports whether the sync succeeded.
func (r SeriesResult) OK() bool { return r.Err == nil }
