package repository

import (
	"context"
	"time"

	"candlestick/internal/domain/models"
)

// InstrumentFilter narrows ListInstruments; empty fields match everything.
type InstrumentFilter struct {
	Symbol   string
	Exchange string
	Category string
}

// InstrumentRepository persists instruments. Implementations enforce the
// (symbol, exchange) uniqueness with ErrDuplicateInstrument and delete an
// instrument's bars together with it.
type InstrumentRepository interface {
	CreateInstrument(ctx context.Context, inst *models.Instrument) error
	UpdateInstrument(ctx context.Context, inst *models.Instrument) error
	DeleteInstrument(ctx context.Context, id int64) error
	GetInstrument(ctx context.Context, symbol, exchange string) (*models.Instrument, error)
	// ListInstruments is ordered by symbol, then exchange.
	ListInstruments(ctx context.Context, filter InstrumentFilter) ([]*models.Instrument, error)
}

// BarQuery selects bars of one instrument. Zero From or To leaves that side
// of the range open and an empty Resolution matches every resolution.
type BarQuery struct {
	InstrumentID int64
	Resolution   string
	From         int64
	To           int64
	Limit        int
}

// Contains reports whether ts falls in the query range.
func (q BarQuery) Contains(ts int64) bool {
	if q.From != 0 && ts < q.From {
		return false
	}
	if q.To != 0 && ts > q.To {
		return false
	}
	return true
}

// BarRepository persists bars.
type BarRepository interface {
	InsertBars(ctx context.Context, bars []*models.Bar) error
	// DeleteBars removes bars with from <= timestamp <= to and reports how many.
	DeleteBars(ctx context.Context, instrumentID int64, resolution string, from, to int64) (int64, error)
	// ListBars is ordered by ascending timestamp.
	ListBars(ctx context.Context, q BarQuery) ([]*models.Bar, error)
	// LatestBar returns (nil, nil) when the series is empty.
	LatestBar(ctx context.Context, instrumentID int64, resolution string) (*models.Bar, error)
}

// Store is a complete persistence backend.
type Store interface {
	InstrumentRepository
	BarRepository
	Init(ctx context.Context) error // ensure tables, health checks
	Health(ctx context.Context) error
	Close() error
}

// HistoryQuery asks a provider for raw bars. Range is the lookback used by
// fetch; a non-zero Start asks for everything from Start onward instead.
type HistoryQuery struct {
	Symbol   string
	Interval string
	Range    string
	Start    time.Time
}

// Provider is an external market data source.
type Provider interface {
	Name() string
	// History returns records ordered by ascending period start.
	History(ctx context.Context, q HistoryQuery) ([]models.RawBar, error)
}

type EventPublisher interface {
	PublishSeriesSynced(ctx context.Context, ev *models.SeriesSynced) error
	Close() error
}

type Metrics interface {
	RecordSync(mode, resolution string, bars int, seconds float64)
	RecordSyncError(mode, resolution, kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
