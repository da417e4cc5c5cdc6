package usecase

import (
	"context"
	"strings"
	"testing"

	"candlestick/internal/domain/models"
	domrepo "candlestick/internal/domain/repository"
	"candlestick/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInstrumentsUseCase() (*InstrumentsUseCase, *repository.MemoryStore) {
	store := repository.NewMemoryStore()
	return NewInstrumentsUseCase(store, store), store
}

func TestInstrumentsCreateUniqueness(t *testing.T) {
	testCases := []struct {
		name    string
		second  models.Instrument
		wantErr error
	}{
		{name: "same exchange", second: models.Instrument{Symbol: "AAPL", Exchange: "NASDAQ", Currency: "USD"}, wantErr: models.ErrDuplicateInstrument},
		{name: "different exchange", second: models.Instrument{Symbol: "AAPL", Exchange: "XETRA", Currency: "EUR"}},
		{name: "empty exchange", second: models.Instrument{Symbol: "AAPL", Currency: "USD"}},
		{name: "invalid", second: models.Instrument{Symbol: "AAPL", Exchange: "LSE"}, wantErr: models.ErrInvalidInstrument},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			uc, _ := newInstrumentsUseCase()
			ctx := context.Background()
			_, err := uc.Create(ctx, models.Instrument{Symbol: "AAPL", Exchange: "NASDAQ", Currency: "USD"})
			require.NoError(t, err)

			got, err := uc.Create(ctx, tc.second)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, got.ID)
		})
	}
}

func TestInstrumentsListOrdered(t *testing.T) {
	uc, _ := newInstrumentsUseCase()
	ctx := context.Background()
	for _, in := range []models.Instrument{
		{Symbol: "MSFT", Currency: "USD", Category: "tech"},
		{Symbol: "AAPL", Exchange: "XETRA", Currency: "EUR", Category: "tech"},
		{Symbol: "BP", Currency: "GBP", Category: "energy"},
		{Symbol: "AAPL", Exchange: "NASDAQ", Currency: "USD", Category: "tech"},
	} {
		_, err := uc.Create(ctx, in)
		require.NoError(t, err)
	}

	list, err := uc.List(ctx, domrepo.InstrumentFilter{})
	require.NoError(t, err)
	keys := make([]string, 0, len(list))
	for _, inst := range list {
		keys = append(keys, inst.Key())
	}
	assert.Equal(t, []string{"AAPL@NASDAQ", "AAPL@XETRA", "BP", "MSFT"}, keys)

	tech, err := uc.List(ctx, domrepo.InstrumentFilter{Category: "tech"})
	require.NoError(t, err)
	assert.Len(t, tech, 3)

	first, err := uc.Get(ctx, "AAPL", "")
	require.NoError(t, err)
	assert.Equal(t, "NASDAQ", first.Exchange)

	_, err = uc.Get(ctx, "TSLA", "")
	assert.ErrorIs(t, err, models.ErrInstrumentNotFound)
}

func TestInstrumentsUpdateAndDelete(t *testing.T) {
	uc, store := newInstrumentsUseCase()
	ctx := context.Background()
	inst, err := uc.Create(ctx, models.Instrument{Symbol: "VOD", Exchange: "LSE", Currency: "GBP"})
	require.NoError(t, err)
	require.NoError(t, store.InsertBars(ctx, []*models.Bar{{InstrumentID: inst.ID, Timestamp: y2k, Resolution: "D"}}))

	tz := "Europe/London"
	updated, err := uc.Update(ctx, "VOD", "LSE", models.InstrumentPatch{Timezone: &tz})
	require.NoError(t, err)
	assert.Equal(t, tz, updated.Timezone)

	require.NoError(t, uc.Delete(ctx, "VOD", "LSE"))
	_, err = uc.Get(ctx, "VOD", "LSE")
	assert.ErrorIs(t, err, models.ErrInstrumentNotFound)

	bars, err := store.ListBars(ctx, domrepo.BarQuery{InstrumentID: inst.ID})
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestInstrumentsLatestPrice(t *testing.T) {
	uc, store := newInstrumentsUseCase()
	ctx := context.Background()
	inst, err := uc.Create(ctx, models.Instrument{Symbol: "AAPL", Currency: "USD"})
	require.NoError(t, err)

	price, err := uc.LatestPrice(ctx, "AAPL", "")
	require.NoError(t, err)
	assert.Nil(t, price)

	require.NoError(t, store.InsertBars(ctx, []*models.Bar{
		{InstrumentID: inst.ID, Timestamp: y2k + 3600, Resolution: "H", Close: decimal.NewFromInt(12)},
		{InstrumentID: inst.ID, Timestamp: y2k, Resolution: "D", Close: decimal.NewFromInt(10)},
	}))
	price, err = uc.LatestPrice(ctx, "AAPL", "")
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.True(t, price.Equal(decimal.NewFromInt(12)))
}

func TestInstrumentsImport(t *testing.T) {
	uc, _ := newInstrumentsUseCase()
	ctx := context.Background()
	_, err := uc.Create(ctx, models.Instrument{Symbol: "AAPL", Exchange: "NASDAQ", Currency: "USD"})
	require.NoError(t, err)

	doc := `
- symbol: AAPL
  exchange: NASDAQ
  currency: USD
- symbol: VOD
  name: Vodafone
  exchange: LSE
  currency: GBP
  timezone: Europe/London
- symbol: ^GSPC
  currency: USD
  category: index
`
	res, err := uc.Import(ctx, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"VOD@LSE", "^GSPC"}, res.Created)
	assert.Equal(t, []string{"AAPL@NASDAQ"}, res.Skipped)

	vod, err := uc.Get(ctx, "VOD", "LSE")
	require.NoError(t, err)
	assert.Equal(t, "Europe/London", vod.Timezone)

	_, err = uc.Import(ctx, strings.NewReader("- symbol: BAD\n"))
	assert.ErrorIs(t, err, models.ErrInvalidInstrument)

	res, err = uc.Import(ctx, strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, res.Created)
}
