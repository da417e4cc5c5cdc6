package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"candlestick/internal/domain/models"
	domrepo "candlestick/internal/domain/repository"
	"candlestick/internal/service/export"
	"candlestick/pkg/cache"
	applogger "candlestick/pkg/logger"
	"candlestick/pkg/resolution"
)

const (
	defaultBarsLimit = 1000
	maxBarsLimit     = 50000
	barsKeyPrefix    = "bars"
)

// BarsUseCase provides business logic for reading stored bars.
type BarsUseCase struct {
	instruments *InstrumentsUseCase
	bars        domrepo.BarRepository
	cache       cache.Service
	ttl         time.Duration
	log         *applogger.Logger
}

// NewBarsUseCase creates the use case; a nil cache disables caching. With a
// cache it registers itself so catalogue updates and deletes drop stale
// responses.
func NewBarsUseCase(instruments *InstrumentsUseCase, bars domrepo.BarRepository, c cache.Service, ttl time.Duration) *BarsUseCase {
	uc := &BarsUseCase{instruments: instruments, bars: bars, cache: c, ttl: ttl}
	if c != nil {
		instruments.SetInvalidator(uc)
	}
	return uc
}

// SetLogger sets an optional logger.
func (uc *BarsUseCase) SetLogger(l *applogger.Logger) { uc.log = l }

type GetBarsParams struct {
	Symbol     string
	Exchange   string
	Resolution string
	From       int64
	To         int64
	Limit      int
}

type GetBarsResult struct {
	Symbol     string           `json:"symbol"`
	Exchange   string           `json:"exchange,omitempty"`
	Timezone   string           `json:"timezone,omitempty"`
	Resolution string           `json:"resolution"`
	Count      int              `json:"count"`
	Bars       []models.BarView `json:"bars"`
}

// GetBars returns the stored series in ascending order with rendered dates.
func (uc *BarsUseCase) GetBars(ctx context.Context, p GetBarsParams) (*GetBarsResult, error) {
	r, err := resolution.Parse(p.Resolution)
	if err != nil {
		return nil, err
	}
	if p.To != 0 && p.From > p.To {
		return nil, fmt.Errorf("%w: from %d is after to %d", models.ErrInvalidRange, p.From, p.To)
	}
	if p.Limit <= 0 {
		p.Limit = defaultBarsLimit
	}
	if p.Limit > maxBarsLimit {
		p.Limit = maxBarsLimit
	}

	inst, err := uc.instruments.Get(ctx, p.Symbol, p.Exchange)
	if err != nil {
		return nil, err
	}

	bars, err := uc.load(ctx, inst, domrepo.BarQuery{
		InstrumentID: inst.ID,
		Resolution:   r.String(),
		From:         p.From,
		To:           p.To,
		Limit:        p.Limit,
	})
	if err != nil {
		return nil, err
	}

	views := make([]models.BarView, 0, len(bars))
	for _, b := range bars {
		views = append(views, b.View(inst))
	}
	return &GetBarsResult{
		Symbol:     inst.Symbol,
		Exchange:   inst.Exchange,
		Timezone:   inst.Timezone,
		Resolution: r.String(),
		Count:      len(views),
		Bars:       views,
	}, nil
}

func (uc *BarsUseCase) load(ctx context.Context, inst *models.Instrument, q domrepo.BarQuery) ([]*models.Bar, error) {
	if uc.cache == nil {
		return uc.query(ctx, q)
	}

	key := cache.GenerateKeyWithParams(barsKeyPrefix, inst.Key(), q.Resolution, q.From, q.To, q.Limit)
	var bars []*models.Bar
	err := uc.cache.Get(ctx, key, &bars)
	if err == nil {
		return bars, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		uc.log.Warn("bars cache read failed", applogger.String("key", key), applogger.Error(err))
	}

	bars, err = uc.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := uc.cache.Set(ctx, key, bars, uc.ttl); err != nil {
		uc.log.Warn("bars cache write failed", applogger.String("key", key), applogger.Error(err))
	}
	return bars, nil
}

func (uc *BarsUseCase) query(ctx context.Context, q domrepo.BarQuery) ([]*models.Bar, error) {
	bars, err := uc.bars.ListBars(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list bars: %w", err)
	}
	return bars, nil
}

// Invalidate drops every cached response for the instrument.
func (uc *BarsUseCase) Invalidate(ctx context.Context, inst *models.Instrument) error {
	if uc.cache == nil {
		return nil
	}
	pattern := cache.BuildPattern(cache.GenerateKey(barsKeyPrefix, inst.Key()))
	return uc.cache.DeleteByPattern(ctx, pattern)
}

// ExportParquet writes the whole stored series to a parquet file and returns
// the number of bars written.
func (uc *BarsUseCase) ExportParquet(ctx context.Context, p GetBarsParams, path string) (int, error) {
	r, err := resolution.Parse(p.Resolution)
	if err != nil {
		return 0, err
	}
	inst, err := uc.instruments.Get(ctx, p.Symbol, p.Exchange)
	if err != nil {
		return 0, err
	}
	bars, err := uc.query(ctx, domrepo.BarQuery{InstrumentID: inst.ID, Resolution: r.String(), From: p.From, To: p.To})
	if err != nil {
		return 0, err
	}
	if err := export.WriteParquet(path, bars); err != nil {
		return 0, err
	}
	uc.log.Info("series exported",
		applogger.String("instrument", inst.Key()),
		applogger.String("resolution", r.String()),
		applogger.Int("bars", len(bars)),
		applogger.String("path", path),
	)
	return len(bars), nil
}
