package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"candlestick/internal/domain/models"
	domrepo "candlestick/internal/domain/repository"
	applogger "candlestick/pkg/logger"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Invalidator drops state derived from an instrument's bars.
type Invalidator interface {
	Invalidate(ctx context.Context, inst *models.Instrument) error
}

// InstrumentsUseCase manages the instrument catalogue.
type InstrumentsUseCase struct {
	store       domrepo.InstrumentRepository
	bars        domrepo.BarRepository
	invalidator Invalidator
	log         *applogger.Logger
}

func NewInstrumentsUseCase(store domrepo.InstrumentRepository, bars domrepo.BarRepository) *InstrumentsUseCase {
	return &InstrumentsUseCase{store: store, bars: bars}
}

// SetLogger sets an optional logger.
func (uc *InstrumentsUseCase) SetLogger(l *applogger.Logger) { uc.log = l }

// SetInvalidator registers the cache cleared when an instrument is updated or
// deleted.
func (uc *InstrumentsUseCase) SetInvalidator(i Invalidator) { uc.invalidator = i }

func (uc *InstrumentsUseCase) invalidate(ctx context.Context, insts ...*models.Instrument) {
	if uc.invalidator == nil {
		return
	}
	for _, inst := range insts {
		if err := uc.invalidator.Invalidate(ctx, inst); err != nil {
			uc.log.Warn("invalidate bars cache failed", applogger.String("instrument", inst.Key()), applogger.Error(err))
		}
	}
}

// Create validates and stores a new instrument.
func (uc *InstrumentsUseCase) Create(ctx context.Context, in models.Instrument) (*models.Instrument, error) {
	inst, err := models.NewInstrument(in)
	if err != nil {
		return nil, err
	}
	if err := uc.store.CreateInstrument(ctx, inst); err != nil {
		return nil, fmt.Errorf("create instrument: %w", err)
	}
	uc.log.Info("instrument created", applogger.String("instrument", inst.Key()))
	return inst, nil
}

// Get finds an instrument by symbol. An empty exchange matches any exchange
// and returns the first instrument in (symbol, exchange) order.
func (uc *InstrumentsUseCase) Get(ctx context.Context, symbol, exchange string) (*models.Instrument, error) {
	if exchange != "" {
		return uc.store.GetInstrument(ctx, symbol, exchange)
	}
	list, err := uc.store.ListInstruments(ctx, domrepo.InstrumentFilter{Symbol: symbol})
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrInstrumentNotFound, symbol)
	}
	return list[0], nil
}

// List returns instruments ordered by symbol, then exchange.
func (uc *InstrumentsUseCase) List(ctx context.Context, filter domrepo.InstrumentFilter) ([]*models.Instrument, error) {
	return uc.store.ListInstruments(ctx, filter)
}

// Update applies patch to an existing instrument.
func (uc *InstrumentsUseCase) Update(ctx context.Context, symbol, exchange string, patch models.InstrumentPatch) (*models.Instrument, error) {
	inst, err := uc.Get(ctx, symbol, exchange)
	if err != nil {
		return nil, err
	}
	updated, err := patch.Apply(*inst)
	if err != nil {
		return nil, err
	}
	if err := uc.store.UpdateInstrument(ctx, updated); err != nil {
		return nil, fmt.Errorf("update instrument: %w", err)
	}
	// the exchange, and so the cache key, may have changed
	uc.invalidate(ctx, inst, updated)
	return updated, nil
}

// Delete removes an instrument and all of its bars.
func (uc *InstrumentsUseCase) Delete(ctx context.Context, symbol, exchange string) error {
	inst, err := uc.Get(ctx, symbol, exchange)
	if err != nil {
		return err
	}
	if err := uc.store.DeleteInstrument(ctx, inst.ID); err != nil {
		return fmt.Errorf("delete instrument: %w", err)
	}
	uc.invalidate(ctx, inst)
	uc.log.Info("instrument deleted", applogger.String("instrument", inst.Key()))
	return nil
}

// LatestPrice is the close of the most recent bar of any resolution, or nil
// when the instrument has no bars.
func (uc *InstrumentsUseCase) LatestPrice(ctx context.Context, symbol, exchange string) (*decimal.Decimal, error) {
	inst, err := uc.Get(ctx, symbol, exchange)
	if err != nil {
		return nil, err
	}
	bar, err := uc.bars.LatestBar(ctx, inst.ID, "")
	if err != nil {
		return nil, fmt.Errorf("latest bar: %w", err)
	}
	if bar == nil {
		return nil, nil
	}
	price := bar.Close
	return &price, nil
}

// ImportResult reports what Import did, by instrument key.
type ImportResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}

// Import creates every instrument of a YAML list. Instruments whose
// (symbol, exchange) already exists are skipped; any other failure stops the
// import.
func (uc *InstrumentsUseCase) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var list []models.Instrument
	if err := yaml.NewDecoder(r).Decode(&list); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode instruments: %w", err)
	}

	res := &ImportResult{Created: []string{}, Skipped: []string{}}
	for i, in := range list {
		inst, err := uc.Create(ctx, in)
		switch {
		case errors.Is(err, models.ErrDuplicateInstrument):
			res.Skipped = append(res.Skipped, in.Key())
		case err != nil:
			return res, fmt.Errorf("instrument %d (%s): %w", i+1, in.Symbol, err)
		default:
			res.Created = append(res.Created, inst.Key())
		}
	}
	return res, nil
}
