package yahoo

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"candlestick/internal/domain/models"
	drepo "candlestick/internal/domain/repository"
	xhttp "candlestick/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dailyChart = `{"chart":{"result":[{
  "meta":{"symbol":"AAPL","exchangeTimezoneName":"America/New_York","gmtoffset":-14400},
  "timestamp":[1222867800,1222954200,1223040600],
  "indicators":{"quote":[{
    "open":[109.5,null,104.0],
    "high":[111.5,null,106.5],
    "low":[108.9,null,101.1],
    "close":[110.0,null,105.25],
    "volume":[1000,null,null]
  }]}
}],"error":null}}`

func newTestClient(t *testing.T, status int, body string, seen *url.Values) drepo.Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		if seen != nil {
			*seen = r.URL.Query()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	now := time.Unix(1300000000, 0)
	return New(xhttp.NewClient(xhttp.WithTimeout(5*time.Second)),
		WithBaseURL(srv.URL),
		WithClock(func() time.Time { return now }),
	)
}

func TestHistoryFetchQuery(t *testing.T) {
	var q url.Values
	c := newTestClient(t, http.StatusOK, dailyChart, &q)

	bars, err := c.History(context.Background(), drepo.HistoryQuery{Symbol: "AAPL", Interval: "1d", Range: "max"})
	require.NoError(t, err)
	assert.Equal(t, "max", q.Get("range"))
	assert.Equal(t, "1d", q.Get("interval"))
	assert.Empty(t, q.Get("period1"))

	// the null row is dropped
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2008, 10, 1, 0, 0, 0, 0, time.UTC), bars[0].PeriodStart)
	assert.Equal(t, 110.0, bars[0].Close)
	assert.Equal(t, 1000.0, bars[0].Volume)
	assert.Equal(t, time.Date(2008, 10, 3, 0, 0, 0, 0, time.UTC), bars[1].PeriodStart)
	assert.True(t, math.IsNaN(bars[1].Volume))
}

func TestHistoryUpdateQuery(t *testing.T) {
	var q url.Values
	c := newTestClient(t, http.StatusOK, dailyChart, &q)

	_, err := c.History(context.Background(), drepo.HistoryQuery{
		Symbol: "AAPL", Interval: "1d", Start: time.Unix(1222819200, 0),
	})
	require.NoError(t, err)
	// one day early so sessions opening before UTC midnight are included
	assert.Equal(t, "1222732800", q.Get("period1"))
	assert.Equal(t, "1300000000", q.Get("period2"))
	assert.Empty(t, q.Get("range"))
}

func TestHistoryUpdateEastOfUTC(t *testing.T) {
	// Pacific/Auckland sessions open at 21:00 UTC of the previous day
	body := `{"chart":{"result":[{"meta":{"symbol":"AAPL","exchangeTimezoneName":"Pacific/Auckland"},
	  "timestamp":[1222722000,1222808400],
	  "indicators":{"quote":[{"open":[1,2],"high":[1,2],"low":[1,2],"close":[1,2],"volume":[10,20]}]}}],"error":null}}`
	var q url.Values
	c := newTestClient(t, http.StatusOK, body, &q)

	start := time.Date(2008, 10, 1, 0, 0, 0, 0, time.UTC)
	bars, err := c.History(context.Background(), drepo.HistoryQuery{Symbol: "AAPL", Interval: "1d", Start: start})
	require.NoError(t, err)
	assert.Equal(t, "1222732800", q.Get("period1"))
	require.Len(t, bars, 1)
	assert.Equal(t, start, bars[0].PeriodStart)
	assert.Equal(t, 2.0, bars[0].Close)
}

func TestHistoryIntradayUpdateStartsAtStart(t *testing.T) {
	body := `{"chart":{"result":[{"meta":{"symbol":"AAPL","exchangeTimezoneName":"America/New_York"},
	  "timestamp":[1222867800],
	  "indicators":{"quote":[{"open":[1],"high":[2],"low":[0.5],"close":[1.5],"volume":[10]}]}}],"error":null}}`
	var q url.Values
	c := newTestClient(t, http.StatusOK, body, &q)

	bars, err := c.History(context.Background(), drepo.HistoryQuery{Symbol: "AAPL", Interval: "1m", Start: time.Unix(1222819200, 0)})
	require.NoError(t, err)
	assert.Equal(t, "1222819200", q.Get("period1"))
	assert.Len(t, bars, 1)
}

func TestHistoryIntradayKeepsTimestamps(t *testing.T) {
	body := `{"chart":{"result":[{"meta":{"symbol":"AAPL","exchangeTimezoneName":"America/New_York"},
	  "timestamp":[1222867800],
	  "indicators":{"quote":[{"open":[1],"high":[2],"low":[0.5],"close":[1.5],"volume":[10]}]}}],"error":null}}`
	c := newTestClient(t, http.StatusOK, body, nil)

	bars, err := c.History(context.Background(), drepo.HistoryQuery{Symbol: "AAPL", Interval: "1m", Range: "7d"})
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, int64(1222867800), bars[0].PeriodStart.Unix())
}

func TestHistoryErrors(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http status", status: http.StatusNotFound, body: `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`},
		{name: "chart error", status: http.StatusOK, body: `{"chart":{"result":null,"error":{"code":"Bad Request","description":"Invalid input"}}}`},
		{name: "empty result", status: http.StatusOK, body: `{"chart":{"result":[],"error":null}}`},
		{name: "malformed", status: http.StatusOK, body: `{"chart":`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.status, tc.body, nil)
			_, err := c.History(context.Background(), drepo.HistoryQuery{Symbol: "AAPL", Interval: "1d", Range: "max"})
			assert.ErrorIs(t, err, models.ErrProvider)
		})
	}
}

func TestDailyInterval(t *testing.T) {
	for _, iv := range []string{"1d", "5d", "1wk", "1mo", "3mo"} {
		assert.True(t, dailyInterval(iv), iv)
	}
	for _, iv := range []string{"1m", "60m"} {
		assert.False(t, dailyInterval(iv), iv)
	}
}
