package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"candlestick/internal/domain/models"
	domrepo "candlestick/internal/domain/repository"
	"candlestick/pkg/cache"
	applogger "candlestick/pkg/logger"
	"candlestick/pkg/resolution"

	"github.com/google/uuid"
)

const defaultLockTTL = 10 * time.Minute

// BatchUseCase runs syncs on behalf of callers, one series at a time, under a
// per-series lock. Once a series is synced it publishes an event, records
// metrics and drops cached bars.
type BatchUseCase struct {
	instruments *InstrumentsUseCase
	engine      *SyncEngine
	bars        *BarsUseCase
	locker      cache.Service
	lockTTL     time.Duration
	publisher   domrepo.EventPublisher
	metrics     domrepo.Metrics
	log         *applogger.Logger
}

func NewBatchUseCase(instruments *InstrumentsUseCase, engine *SyncEngine, bars *BarsUseCase, locker cache.Service, lockTTL time.Duration) *BatchUseCase {
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &BatchUseCase{
		instruments: instruments,
		engine:      engine,
		bars:        bars,
		locker:      locker,
		lockTTL:     lockTTL,
	}
}

// SetLogger sets an optional logger.
func (uc *BatchUseCase) SetLogger(l *applogger.Logger) { uc.log = l }

// SetPublisher sets an optional event publisher.
func (uc *BatchUseCase) SetPublisher(p domrepo.EventPublisher) { uc.publisher = p }

// SetMetrics sets an optional metrics recorder.
func (uc *BatchUseCase) SetMetrics(m domrepo.Metrics) { uc.metrics = m }

// FetchOne fetches the full history of one series.
func (uc *BatchUseCase) FetchOne(ctx context.Context, symbol, exchange, res string) models.SeriesResult {
	return uc.one(ctx, models.SyncFetch, symbol, exchange, res)
}

// UpdateOne updates one series incrementally.
func (uc *BatchUseCase) UpdateOne(ctx context.Context, symbol, exchange, res string) models.SeriesResult {
	return uc.one(ctx, models.SyncUpdate, symbol, exchange, res)
}

// UpdateMany updates the named symbols, or every instrument when all is set,
// in order. A failing symbol is reported in its result and never stops the
// batch.
func (uc *BatchUseCase) UpdateMany(ctx context.Context, symbols []string, all bool, res string) ([]models.SeriesResult, error) {
	if _, err := resolution.Parse(res); err != nil {
		return nil, err
	}

	if all {
		list, err := uc.instruments.List(ctx, domrepo.InstrumentFilter{})
		if err != nil {
			return nil, fmt.Errorf("list instruments: %w", err)
		}
		results := make([]models.SeriesResult, 0, len(list))
		for _, inst := range list {
			if ctx.Err() != nil {
				break
			}
			results = append(results, uc.sync(ctx, models.SyncUpdate, inst, res))
		}
		return results, ctx.Err()
	}

	results := make([]models.SeriesResult, 0, len(symbols))
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		results = append(results, uc.one(ctx, models.SyncUpdate, symbol, "", res))
	}
	return results, ctx.Err()
}

func (uc *BatchUseCase) one(ctx context.Context, mode models.SyncMode, symbol, exchange, res string) models.SeriesResult {
	inst, err := uc.instruments.Get(ctx, symbol, exchange)
	if err != nil {
		return models.SeriesResult{
			Symbol:     symbol,
			Exchange:   exchange,
			Resolution: res,
			Mode:       mode,
			Err:        &models.SeriesError{Op: string(mode), Symbol: symbol, Resolution: res, Err: err},
		}
	}
	return uc.sync(ctx, mode, inst, res)
}

// LockKey names the lock guarding one series.
func LockKey(inst *models.Instrument, res string) string {
	return cache.GenerateKeyWithParams("lock:series", inst.Symbol, inst.Exchange, res)
}

func (uc *BatchUseCase) sync(ctx context.Context, mode models.SyncMode, inst *models.Instrument, res string) models.SeriesResult {
	if r, err := resolution.Parse(res); err == nil {
		res = r.String()
	}
	result := models.SeriesResult{Symbol: inst.Symbol, Exchange: inst.Exchange, Resolution: res, Mode: mode}
	start := time.Now()

	unlock, err := uc.lock(ctx, inst, res)
	if err != nil {
		result.Err = &models.SeriesError{Op: string(mode), Symbol: inst.Symbol, Resolution: res, Err: err}
		uc.recordError(mode, res, result.Err)
		return result
	}
	defer unlock()

	var bars []*models.Bar
	if mode == models.SyncFetch {
		bars, err = uc.engine.Fetch(ctx, inst, res)
	} else {
		bars, err = uc.engine.Update(ctx, inst, res)
	}
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = err
		uc.recordError(mode, res, err)
		return result
	}
	result.Bars = len(bars)

	uc.afterSync(ctx, mode, inst, res, bars, result.Duration)
	return result
}

func (uc *BatchUseCase) lock(ctx context.Context, inst *models.Instrument, res string) (func(), error) {
	if uc.locker == nil {
		return func() {}, nil
	}
	key := LockKey(inst, res)
	ok, err := uc.locker.TryLock(ctx, key, uc.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, models.ErrSeriesBusy
	}
	return func() {
		// the caller's context may already be cancelled
		if err := uc.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
			uc.log.Warn("release lock failed", applogger.String("key", key), applogger.Error(err))
		}
	}, nil
}

func (uc *BatchUseCase) afterSync(ctx context.Context, mode models.SyncMode, inst *models.Instrument, res string, bars []*models.Bar, d time.Duration) {
	if uc.metrics != nil {
		uc.metrics.RecordSync(string(mode), res, len(bars), d.Seconds())
		if n := len(bars); n > 0 {
			uc.metrics.RecordLastPrice(inst.Symbol, bars[n-1].Close.InexactFloat64())
		}
	}
	if len(bars) == 0 {
		return
	}

	if uc.bars != nil {
		if err := uc.bars.Invalidate(ctx, inst); err != nil {
			uc.log.Warn("bars cache invalidation failed", applogger.String("instrument", inst.Key()), applogger.Error(err))
		}
	}

	if uc.publisher == nil {
		return
	}
	ev := &models.SeriesSynced{
		ID:         uuid.NewString(),
		Symbol:     inst.Symbol,
		Exchange:   inst.Exchange,
		Resolution: res,
		Mode:       mode,
		Bars:       len(bars),
		From:       bars[0].Timestamp,
		To:         bars[len(bars)-1].Timestamp,
		At:         time.Now().UTC(),
	}
	if err := uc.publisher.PublishSeriesSynced(ctx, ev); err != nil {
		uc.log.Error("publish series synced failed",
			applogger.String("instrument", inst.Key()),
			applogger.String("resolution", res),
			applogger.Error(err),
		)
	}
}

func (uc *BatchUseCase) recordError(mode models.SyncMode, res string, err error) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.RecordSyncError(string(mode), res, errorKind(err))
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrSeriesBusy):
		return "busy"
	case errors.Is(err, models.ErrProvider):
		return "provider"
	case errors.Is(err, models.ErrInvalidResolution), errors.Is(err, models.ErrUnsupportedResolution):
		return "resolution"
	case errors.Is(err, models.ErrInstrumentNotFound):
		return "not_found"
	default:
		return "storage"
	}
}
