package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"candlestick/internal/domain/models"
	domrepo "candlestick/internal/domain/repository"
	applogger "candlestick/pkg/logger"
	"candlestick/pkg/resolution"
)

// SyncEngine keeps stored series in line with a provider.
//
// Fetch and Update are not safe to run concurrently for the same
// (instrument, resolution); callers serialise them, see BatchUseCase.
type SyncEngine struct {
	bars     domrepo.BarRepository
	provider domrepo.Provider
	log      *applogger.Logger
}

func NewSyncEngine(bars domrepo.BarRepository, provider domrepo.Provider) *SyncEngine {
	return &SyncEngine{bars: bars, provider: provider}
}

// SetLogger sets an optional logger for sync events.
func (e *SyncEngine) SetLogger(l *applogger.Logger) { e.log = l }

// Fetch downloads the full available history and replaces every stored bar
// between the first and the last returned period start.
func (e *SyncEngine) Fetch(ctx context.Context, inst *models.Instrument, res string) ([]*models.Bar, error) {
	r, params, err := e.prepare(res)
	if err != nil {
		return nil, seriesErr(models.SyncFetch, inst, res, err)
	}

	start := time.Now()
	bars, err := e.download(ctx, inst, r, domrepo.HistoryQuery{
		Symbol:   inst.Symbol,
		Interval: params.Interval,
		Range:    params.Lookback,
	})
	if err != nil {
		return nil, e.fail(models.SyncFetch, inst, r.String(), err)
	}
	if len(bars) == 0 {
		return bars, nil
	}

	if err := e.replace(ctx, inst, r, bars[0].Timestamp, bars[len(bars)-1].Timestamp, bars); err != nil {
		return nil, e.fail(models.SyncFetch, inst, r.String(), err)
	}
	e.done(models.SyncFetch, inst, r.String(), len(bars), time.Since(start))
	return bars, nil
}

// Update downloads bars from a backed-off point after the latest stored bar and
// replaces everything stored from that point on. An empty series is fetched.
func (e *SyncEngine) Update(ctx context.Context, inst *models.Instrument, res string) ([]*models.Bar, error) {
	r, params, err := e.prepare(res)
	if err != nil {
		return nil, seriesErr(models.SyncUpdate, inst, res, err)
	}

	latest, err := e.bars.LatestBar(ctx, inst.ID, r.String())
	if err != nil {
		return nil, e.fail(models.SyncUpdate, inst, r.String(), fmt.Errorf("latest bar: %w", err))
	}
	if latest == nil {
		return e.Fetch(ctx, inst, r.String())
	}

	start := time.Now()
	from := UpdateStart(latest.Timestamp, r)
	bars, err := e.download(ctx, inst, r, domrepo.HistoryQuery{
		Symbol:   inst.Symbol,
		Interval: params.Interval,
		Start:    time.Unix(from, 0).UTC(),
	})
	if err != nil {
		return nil, e.fail(models.SyncUpdate, inst, r.String(), err)
	}
	if len(bars) == 0 {
		return bars, nil
	}

	if err := e.replace(ctx, inst, r, from, math.MaxInt64, bars); err != nil {
		return nil, e.fail(models.SyncUpdate, inst, r.String(), err)
	}
	e.done(models.SyncUpdate, inst, r.String(), len(bars), time.Since(start))
	return bars, nil
}

// UpdateStart backs the latest stored timestamp off far enough that periods
// still forming at the previous sync are downloaded again.
func UpdateStart(last int64, r resolution.Resolution) int64 {
	n := int64(r.Multiplier)
	switch r.Unit {
	case resolution.Second, resolution.Minute, resolution.Hour:
		return resolution.Midnight(last) - resolution.SecondsPerDay
	case resolution.Day:
		if n == 1 {
			return last
		}
		return last - n*resolution.SecondsPerDay
	case resolution.Week:
		return last - n*7*resolution.SecondsPerDay
	default:
		// month and year units back off 35 days per multiplier alike
		return last - n*35*resolution.SecondsPerDay
	}
}

func (e *SyncEngine) prepare(res string) (resolution.Resolution, ProviderParams, error) {
	r, err := resolution.Parse(res)
	if err != nil {
		return r, ProviderParams{}, err
	}
	params, err := ParamsFor(r)
	if err != nil {
		return r, ProviderParams{}, err
	}
	return r, params, nil
}

// download queries the provider and converts its records, ordered by
// timestamp with one bar per timestamp (the later record wins).
func (e *SyncEngine) download(ctx context.Context, inst *models.Instrument, r resolution.Resolution, q domrepo.HistoryQuery) ([]*models.Bar, error) {
	raws, err := e.provider.History(ctx, q)
	if err != nil {
		if errors.Is(err, models.ErrProvider) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", models.ErrProvider, e.provider.Name(), err)
	}

	bars := make([]*models.Bar, 0, len(raws))
	for _, raw := range raws {
		b, err := models.BarFromRaw(inst.ID, r.String(), raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", models.ErrProvider, e.provider.Name(), err)
		}
		bars = append(bars, b)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })

	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Timestamp == b.Timestamp {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (e *SyncEngine) replace(ctx context.Context, inst *models.Instrument, r resolution.Resolution, from, to int64, bars []*models.Bar) error {
	if _, err := e.bars.DeleteBars(ctx, inst.ID, r.String(), from, to); err != nil {
		return fmt.Errorf("delete bars: %w", err)
	}
	if err := e.bars.InsertBars(ctx, bars); err != nil {
		return fmt.Errorf("insert bars: %w", err)
	}
	return nil
}

func (e *SyncEngine) fail(mode models.SyncMode, inst *models.Instrument, res string, err error) error {
	e.log.Error("sync failed",
		applogger.String("mode", string(mode)),
		applogger.String("symbol", inst.Symbol),
		applogger.String("exchange", inst.Exchange),
		applogger.String("resolution", res),
		applogger.Error(err),
	)
	return seriesErr(mode, inst, res, err)
}

func (e *SyncEngine) done(mode models.SyncMode, inst *models.Instrument, res string, n int, d time.Duration) {
	e.log.Info("series synced",
		applogger.String("mode", string(mode)),
		applogger.String("symbol", inst.Symbol),
		applogger.String("exchange", inst.Exchange),
		applogger.String("resolution", res),
		applogger.Int("bars", n),
		applogger.Duration("duration_ms", d),
	)
}

func seriesErr(mode models.SyncMode, inst *models.Instrument, res string, err error) error {
	return &models.SeriesError{Op: string(mode), Symbol: inst.Symbol, Resolution: res, Err: err}
}
