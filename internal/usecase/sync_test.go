package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"candlestick/internal/domain/models"
	domrepo "candlestick/internal/domain/repository"
	"candlestick/internal/domain/repository/mock"
	"candlestick/internal/repository"
	"candlestick/pkg/resolution"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const y2k = int64(946684800) // 2000-01-01 00:00:00 UTC

func day(n int64) time.Time {
	return time.Unix(y2k+n*resolution.SecondsPerDay, 0).UTC()
}

func raw(t time.Time, price float64) models.RawBar {
	return models.RawBar{PeriodStart: t, Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 100}
}

func newInstrument(t *testing.T, store *repository.MemoryStore, symbol string) *models.Instrument {
	t.Helper()
	inst := &models.Instrument{Symbol: symbol, Currency: "USD"}
	require.NoError(t, store.CreateInstrument(context.Background(), inst))
	return inst
}

func storedTimestamps(t *testing.T, store *repository.MemoryStore, inst *models.Instrument, res string) []int64 {
	t.Helper()
	bars, err := store.ListBars(context.Background(), domrepo.BarQuery{InstrumentID: inst.ID, Resolution: res})
	require.NoError(t, err)
	out := make([]int64, 0, len(bars))
	for _, b := range bars {
		out = append(out, b.Timestamp)
	}
	return out
}

func TestSyncEngineFetch(t *testing.T) {
	testCases := []struct {
		name     string
		existing []int64
		mockFn   func(p *mock.MockProvider)
		assertFn func(t *testing.T, bars []*models.Bar, stored []int64, err error)
	}{
		{
			name:     "replaces bars inside the returned window only",
			existing: []int64{y2k - resolution.SecondsPerDay, y2k, y2k + resolution.SecondsPerDay, y2k + 5*resolution.SecondsPerDay},
			mockFn: func(p *mock.MockProvider) {
				p.EXPECT().History(gomock.Any(), domrepo.HistoryQuery{Symbol: "AAPL", Interval: "1d", Range: "max"}).
					Return([]models.RawBar{raw(day(0), 10), raw(day(1), 11), raw(day(2), 12)}, nil)
			},
			assertFn: func(t *testing.T, bars []*models.Bar, stored []int64, err error) {
				require.NoError(t, err)
				assert.Len(t, bars, 3)
				assert.Equal(t, []int64{
					y2k - resolution.SecondsPerDay,
					y2k,
					y2k + resolution.SecondsPerDay,
					y2k + 2*resolution.SecondsPerDay,
					y2k + 5*resolution.SecondsPerDay,
				}, stored)
			},
		},
		{
			name:     "empty provider result keeps stored bars",
			existing: []int64{y2k},
			mockFn: func(p *mock.MockProvider) {
				p.EXPECT().History(gomock.Any(), gomock.Any()).Return(nil, nil)
			},
			assertFn: func(t *testing.T, bars []*models.Bar, stored []int64, err error) {
				require.NoError(t, err)
				assert.Empty(t, bars)
				assert.Equal(t, []int64{y2k}, stored)
			},
		},
		{
			name: "unordered records are sorted and de-duplicated",
			mockFn: func(p *mock.MockProvider) {
				p.EXPECT().History(gomock.Any(), gomock.Any()).
					Return([]models.RawBar{raw(day(2), 12), raw(day(0), 10), raw(day(2), 13)}, nil)
			},
			assertFn: func(t *testing.T, bars []*models.Bar, stored []int64, err error) {
				require.NoError(t, err)
				require.Len(t, bars, 2)
				assert.True(t, bars[1].Close.Equal(decimal.NewFromInt(13)))
				assert.Equal(t, []int64{y2k, y2k + 2*resolution.SecondsPerDay}, stored)
			},
		},
		{
			name: "provider failure is a provider error",
			mockFn: func(p *mock.MockProvider) {
				p.EXPECT().History(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))
				p.EXPECT().Name().Return("yahoo").AnyTimes()
			},
			assertFn: func(t *testing.T, bars []*models.Bar, stored []int64, err error) {
				require.Error(t, err)
				assert.ErrorIs(t, err, models.ErrProvider)
				var se *models.SeriesError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, "AAPL", se.Symbol)
				assert.Equal(t, "D", se.Resolution)
				assert.Empty(t, stored)
			},
		},
		{
			name: "misaligned daily record is rejected",
			mockFn: func(p *mock.MockProvider) {
				p.EXPECT().History(gomock.Any(), gomock.Any()).
					Return([]models.RawBar{raw(day(0).Add(time.Hour), 10)}, nil)
				p.EXPECT().Name().Return("yahoo").AnyTimes()
			},
			assertFn: func(t *testing.T, bars []*models.Bar, stored []int64, err error) {
				assert.ErrorIs(t, err, models.ErrProvider)
				assert.ErrorIs(t, err, models.ErrInvalidTimestampForResolution)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			provider := mock.NewMockProvider(ctrl)
			store := repository.NewMemoryStore()
			inst := newInstrument(t, store, "AAPL")
			for _, ts := range tc.existing {
				require.NoError(t, store.InsertBars(context.Background(), []*models.Bar{{
					InstrumentID: inst.ID, Timestamp: ts, Resolution: "D",
				}}))
			}
			tc.mockFn(provider)

			bars, err := NewSyncEngine(store, provider).Fetch(context.Background(), inst, "D")
			tc.assertFn(t, bars, storedTimestamps(t, store, inst, "D"), err)
		})
	}
}

func TestSyncEngineFetchIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mock.NewMockProvider(ctrl)
	store := repository.NewMemoryStore()
	inst := newInstrument(t, store, "AAPL")

	history := []models.RawBar{raw(day(0), 10), raw(day(1), 11), raw(day(2), 12)}
	provider.EXPECT().History(gomock.Any(), gomock.Any()).Return(history, nil).Times(2)

	engine := NewSyncEngine(store, provider)
	_, err := engine.Fetch(context.Background(), inst, "D")
	require.NoError(t, err)
	once := storedTimestamps(t, store, inst, "D")

	_, err = engine.Fetch(context.Background(), inst, "D")
	require.NoError(t, err)
	assert.Equal(t, once, storedTimestamps(t, store, inst, "D"))
	assert.Len(t, once, 3)
}

func TestSyncEngineFetchConvertsRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mock.NewMockProvider(ctrl)
	store := repository.NewMemoryStore()
	inst := newInstrument(t, store, "AAPL")

	provider.EXPECT().History(gomock.Any(), domrepo.HistoryQuery{Symbol: "AAPL", Interval: "1m", Range: "7d"}).
		Return([]models.RawBar{{
			PeriodStart: time.Unix(y2k+60, 0),
			Open:        1.23456789, High: 2, Low: 1, Close: 1.5,
			Volume: math.NaN(),
		}}, nil)

	bars, err := NewSyncEngine(store, provider).Fetch(context.Background(), inst, "1m")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "m", bars[0].Resolution)
	assert.Equal(t, "1.234568", bars[0].Open.String())
	assert.Equal(t, int64(0), bars[0].Volume)
}

func TestSyncEngineRejectsResolution(t *testing.T) {
	testCases := []struct {
		name string
		res  string
		want error
	}{
		{name: "malformed", res: "100H", want: models.ErrInvalidResolution},
		{name: "unknown unit", res: "D1", want: models.ErrInvalidResolution},
		{name: "seconds", res: "30s", want: models.ErrUnsupportedResolution},
		{name: "years", res: "Y", want: models.ErrUnsupportedResolution},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			provider := mock.NewMockProvider(ctrl)
			store := repository.NewMemoryStore()
			inst := newInstrument(t, store, "AAPL")
			engine := NewSyncEngine(store, provider)

			_, err := engine.Fetch(context.Background(), inst, tc.res)
			assert.ErrorIs(t, err, tc.want)
			_, err = engine.Update(context.Background(), inst, tc.res)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSyncEngineUpdateWithoutBarsFetches(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mock.NewMockProvider(ctrl)
	store := repository.NewMemoryStore()
	inst := newInstrument(t, store, "AAPL")

	provider.EXPECT().History(gomock.Any(), domrepo.HistoryQuery{Symbol: "AAPL", Interval: "1d", Range: "max"}).
		Return([]models.RawBar{raw(day(0), 10), raw(day(1), 11)}, nil)

	bars, err := NewSyncEngine(store, provider).Update(context.Background(), inst, "D")
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, []int64{y2k, y2k + resolution.SecondsPerDay}, storedTimestamps(t, store, inst, "D"))
}

func TestSyncEngineUpdate(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mock.NewMockProvider(ctrl)
	store := repository.NewMemoryStore()
	inst := newInstrument(t, store, "AAPL")
	ctx := context.Background()

	for _, n := range []int64{0, 1, 2} {
		require.NoError(t, store.InsertBars(ctx, []*models.Bar{{
			InstrumentID: inst.ID, Timestamp: day(n).Unix(), Resolution: "D",
		}}))
	}
	// other series of the same instrument are never touched
	require.NoError(t, store.InsertBars(ctx, []*models.Bar{{
		InstrumentID: inst.ID, Timestamp: day(2).Unix(), Resolution: "W",
	}}))

	provider.EXPECT().History(gomock.Any(), domrepo.HistoryQuery{Symbol: "AAPL", Interval: "1d", Start: day(2)}).
		Return([]models.RawBar{raw(day(2), 20), raw(day(3), 21)}, nil)

	bars, err := NewSyncEngine(store, provider).Update(ctx, inst, "D")
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, []int64{day(0).Unix(), day(1).Unix(), day(2).Unix(), day(3).Unix()}, storedTimestamps(t, store, inst, "D"))
	assert.Equal(t, []int64{day(2).Unix()}, storedTimestamps(t, store, inst, "W"))

	latest, err := store.LatestBar(ctx, inst.ID, "D")
	require.NoError(t, err)
	assert.True(t, latest.Close.Equal(decimal.NewFromInt(21)))
}

func TestSyncEngineUpdateEmptyResultKeepsBars(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mock.NewMockProvider(ctrl)
	store := repository.NewMemoryStore()
	inst := newInstrument(t, store, "AAPL")
	ctx := context.Background()

	require.NoError(t, store.InsertBars(ctx, []*models.Bar{{InstrumentID: inst.ID, Timestamp: y2k, Resolution: "W"}}))
	provider.EXPECT().History(gomock.Any(), domrepo.HistoryQuery{Symbol: "AAPL", Interval: "1wk", Start: day(-7)}).Return(nil, nil)

	bars, err := NewSyncEngine(store, provider).Update(ctx, inst, "W")
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.Equal(t, []int64{y2k}, storedTimestamps(t, store, inst, "W"))
}

func TestUpdateStart(t *testing.T) {
	const d = resolution.SecondsPerDay

	testCases := []struct {
		name string
		last int64
		res  string
		want int64
	}{
		{name: "daily unchanged", last: y2k, res: "D", want: y2k},
		{name: "minute at midnight", last: y2k, res: "m", want: y2k - d},
		{name: "minute mid day", last: y2k + 13*3600 + 60, res: "m", want: y2k - d},
		{name: "thirty minutes", last: y2k + 3600, res: "30m", want: y2k - d},
		{name: "hour", last: y2k + 23*3600, res: "H", want: y2k - d},
		{name: "seconds", last: y2k + 5, res: "s", want: y2k - d},
		{name: "five days", last: y2k, res: "5D", want: y2k - 5*d},
		{name: "week", last: y2k, res: "W", want: y2k - 7*d},
		{name: "two weeks", last: y2k, res: "2W", want: y2k - 14*d},
		{name: "month", last: y2k, res: "M", want: y2k - 35*d},
		{name: "quarter", last: y2k, res: "3M", want: y2k - 105*d},
		{name: "year", last: y2k, res: "Y", want: y2k - 35*d},
		{name: "five years", last: y2k, res: "5Y", want: y2k - 5*35*d},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, UpdateStart(tc.last, resolution.MustParse(tc.res)))
		})
	}
}

func TestParamsFor(t *testing.T) {
	for _, key := range SupportedResolutions {
		r, err := resolution.Parse(key)
		require.NoError(t, err, key)
		p, err := ParamsFor(r)
		require.NoError(t, err, key)
		assert.Equal(t, providerParams[key], p)
		assert.NotEmpty(t, p.Interval)
		assert.NotEmpty(t, p.Lookback)
	}
	assert.Len(t, SupportedResolutions, len(providerParams))

	p, err := ParamsFor(resolution.MustParse("30m"))
	require.NoError(t, err)
	assert.Equal(t, "1m", p.Interval)

	p, err = ParamsFor(resolution.MustParse("2M"))
	require.NoError(t, err)
	assert.Equal(t, "1mo", p.Interval)

	_, err = ParamsFor(resolution.MustParse("Y"))
	require.ErrorIs(t, err, models.ErrUnsupportedResolution)
	assert.Contains(t, err.Error(), "M, W, D, H, m")
}
