package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"candlestick/internal/domain/models"
	domrepo "candlestick/internal/domain/repository"
	"candlestick/internal/domain/repository/mock"
	"candlestick/internal/repository"
	"candlestick/internal/service/ratelimit"
	"candlestick/internal/usecase"
	"candlestick/pkg/cache"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type apiFixture struct {
	e        *echo.Echo
	store    *repository.MemoryStore
	provider *mock.MockProvider
	locks    *cache.MemoryCache
}

func newFixture(t *testing.T, limiter *ratelimit.Limiter) apiFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	provider := mock.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("yahoo").AnyTimes()

	store := repository.NewMemoryStore()
	locks := cache.NewMemoryCache()
	t.Cleanup(func() { _ = locks.Close() })

	instruments := usecase.NewInstrumentsUseCase(store, store)
	bars := usecase.NewBarsUseCase(instruments, store, locks, time.Minute)
	batch := usecase.NewBatchUseCase(instruments, usecase.NewSyncEngine(store, provider), bars, locks, time.Minute)

	e := echo.New()
	NewInstrumentsEchoHandler(nil, instruments, bars, batch, store, limiter).RegisterRoutes(e)
	return apiFixture{e: e, store: store, provider: provider, locks: locks}
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (f apiFixture) do(t *testing.T, method, target, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func (f apiFixture) create(t *testing.T, body string) {
	t.Helper()
	code, env := f.do(t, http.MethodPost, "/api/instruments", body)
	require.Equal(t, http.StatusCreated, code, string(env.Data))
}

func day(n int64) time.Time {
	return time.Unix(946684800+n*86400, 0).UTC()
}

func rawBar(t time.Time, price float64) models.RawBar {
	return models.RawBar{PeriodStart: t, Open: price, High: price, Low: price, Close: price, Volume: 100}
}

func TestInstrumentCRUD(t *testing.T) {
	f := newFixture(t, nil)

	f.create(t, `{"symbol":"AAPL","currency":"USD","exchange":"NASDAQ","timezone":"America/New_York"}`)

	code, _ := f.do(t, http.MethodPost, "/api/instruments", `{"symbol":"AAPL","currency":"USD","exchange":"NASDAQ"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, env := f.do(t, http.MethodGet, "/api/instruments/AAPL", "")
	require.Equal(t, http.StatusOK, code)
	var inst models.Instrument
	require.NoError(t, json.Unmarshal(env.Data, &inst))
	assert.Equal(t, "NASDAQ", inst.Exchange)

	code, env = f.do(t, http.MethodPut, "/api/instruments/AAPL?exchange=NASDAQ", `{"name":"Apple Inc."}`)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &inst))
	assert.Equal(t, "Apple Inc.", inst.Name)

	code, _ = f.do(t, http.MethodDelete, "/api/instruments/AAPL?exchange=NASDAQ", "")
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = f.do(t, http.MethodGet, "/api/instruments/AAPL", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateInstrumentValidation(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "missing currency", body: `{"symbol":"AAPL"}`},
		{name: "long symbol", body: `{"symbol":"ABCDEFGHIJK","currency":"USD"}`},
		{name: "bad timezone", body: `{"symbol":"AAPL","currency":"USD","timezone":"Mars/Base"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			code, _ := f.do(t, http.MethodPost, "/api/instruments", tc.body)
			assert.Equal(t, http.StatusBadRequest, code)
		})
	}
}

func TestListInstruments(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, `{"symbol":"MSFT","currency":"USD","category":"tech"}`)
	f.create(t, `{"symbol":"AAPL","currency":"USD","category":"tech"}`)
	f.create(t, `{"symbol":"XOM","currency":"USD","category":"energy"}`)

	code, env := f.do(t, http.MethodGet, "/api/instruments?category=tech", "")
	require.Equal(t, http.StatusOK, code)

	var list struct {
		Rows  []models.Instrument `json:"rows"`
		Total int64               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 2, list.Total)
	assert.Equal(t, "AAPL", list.Rows[0].Symbol)
	assert.Equal(t, "MSFT", list.Rows[1].Symbol)
}

func TestFetchThenQueryBars(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, `{"symbol":"AAPL","currency":"USD"}`)

	f.provider.EXPECT().
		History(gomock.Any(), domrepo.HistoryQuery{Symbol: "AAPL", Interval: "1d", Range: "max"}).
		Return([]models.RawBar{rawBar(day(0), 10), rawBar(day(1), 11), rawBar(day(2), 12)}, nil)

	code, env := f.do(t, http.MethodPost, "/api/instruments/AAPL/fetch?resolution=D", "")
	require.Equal(t, http.StatusOK, code, string(env.Data))
	var synced seriesResponse
	require.NoError(t, json.Unmarshal(env.Data, &synced))
	assert.Equal(t, 3, synced.Bars)
	assert.Equal(t, models.SyncFetch, synced.Mode)

	code, env = f.do(t, http.MethodGet, "/api/instruments/AAPL/bars?resolution=D&limit=2", "")
	require.Equal(t, http.StatusOK, code)
	var bars struct {
		Count int `json:"count"`
		Bars  []struct {
			Timestamp int64  `json:"timestamp"`
			Datetime  string `json:"datetime"`
		} `json:"bars"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &bars))
	require.Len(t, bars.Bars, 2)
	assert.Equal(t, day(0).Unix(), bars.Bars[0].Timestamp)
	assert.Equal(t, "2000-01-01", bars.Bars[0].Datetime)

	code, env = f.do(t, http.MethodGet, "/api/instruments/AAPL/bars?resolution=D&from=2000-01-02", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &bars))
	require.Len(t, bars.Bars, 2)
	assert.Equal(t, day(1).Unix(), bars.Bars[0].Timestamp)

	code, _ = f.do(t, http.MethodGet, "/api/instruments/AAPL/bars?resolution=D&from=2000-01-03&to=2000-01-02", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/api/instruments/AAPL/bars?resolution=D&from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = f.do(t, http.MethodGet, "/api/instruments/AAPL/price", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"symbol":"AAPL","price":"12"}`, string(env.Data))
}

func TestSyncErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, `{"symbol":"AAPL","currency":"USD"}`)

	code, _ := f.do(t, http.MethodPost, "/api/instruments/AAPL/fetch?resolution=7x", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/instruments/AAPL/fetch?resolution=Y", "")
	assert.Equal(t, http.StatusBadRequest, code, "unsupported by the provider")

	code, _ = f.do(t, http.MethodPost, "/api/instruments/TSLA/fetch?resolution=D", "")
	assert.Equal(t, http.StatusNotFound, code)

	f.provider.EXPECT().History(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))
	code, _ = f.do(t, http.MethodPost, "/api/instruments/AAPL/fetch?resolution=D", "")
	assert.Equal(t, http.StatusBadGateway, code)

	inst, err := f.store.GetInstrument(context.Background(), "AAPL", "")
	require.NoError(t, err)
	ok, err := f.locks.TryLock(context.Background(), usecase.LockKey(inst, "D"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	code, _ = f.do(t, http.MethodPost, "/api/instruments/AAPL/update?resolution=D", "")
	assert.Equal(t, http.StatusLocked, code)
}

func TestBatchUpdate(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, `{"symbol":"AAPL","currency":"USD"}`)

	f.provider.EXPECT().History(gomock.Any(), gomock.Any()).Return([]models.RawBar{rawBar(day(0), 1)}, nil)

	code, env := f.do(t, http.MethodPost, "/api/update", `{"symbols":["AAPL","TSLA"],"resolution":"D"}`)
	require.Equal(t, http.StatusOK, code, string(env.Data))

	var list struct {
		Rows []seriesResponse `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Rows, 2)
	assert.Nil(t, list.Rows[0].Error)
	assert.Equal(t, 1, list.Rows[0].Bars)
	require.NotNil(t, list.Rows[1].Error)
	assert.Equal(t, "ERR_NOT_FOUND", list.Rows[1].Error.Code)

	code, _ = f.do(t, http.MethodPost, "/api/update", `{"resolution":"D"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSyncRateLimited(t *testing.T) {
	f := newFixture(t, ratelimit.New(1, 0.0001))
	f.create(t, `{"symbol":"AAPL","currency":"USD"}`)

	code, _ := f.do(t, http.MethodPost, "/api/instruments/AAPL/fetch?resolution=Y", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/instruments/AAPL/fetch?resolution=Y", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	code, env := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(env.Data))
}

func TestToAppError(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{err: models.ErrInvalidResolution, want: http.StatusBadRequest},
		{err: models.ErrUnsupportedResolution, want: http.StatusBadRequest},
		{err: models.ErrInvalidTimestampForResolution, want: http.StatusBadRequest},
		{err: models.ErrInstrumentNotFound, want: http.StatusNotFound},
		{err: models.ErrDuplicateInstrument, want: http.StatusConflict},
		{err: models.ErrSeriesBusy, want: http.StatusLocked},
		{err: &models.SeriesError{Op: "fetch", Symbol: "A", Resolution: "D", Err: models.ErrProvider}, want: http.StatusBadGateway},
		{err: errors.New("disk full"), want: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.want, toAppError(tc.err).Status)
		})
	}
}
