package yahoo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"candlestick/internal/domain/models"
	drepo "candlestick/internal/domain/repository"
	xhttp "candlestick/pkg/http"

	"github.com/google/uuid"
)

const DefaultBaseURL = "https://query2.finance.yahoo.com"

const secondsPerDay = 24 * 60 * 60

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol               string `json:"symbol"`
		ExchangeTimezoneName string `json:"exchangeTimezoneName"`
		GMTOffset            int    `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// Client reads price history from the Yahoo Finance v8 chart endpoint.
type Client struct {
	http      *xhttp.Client
	baseURL   string
	userAgent string
	now       func() time.Time
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithUserAgent fixes the User-Agent header; by default every request sends a
// random one.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithClock replaces time.Now, used as period2 of update queries.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Yahoo provider on top of an HTTP client.
func New(httpClient *xhttp.Client, opts ...Option) drepo.Provider {
	c := &Client{
		http:    httpClient,
		baseURL: DefaultBaseURL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "yahoo" }

// History returns the records for q. Rows without prices are skipped; a
// missing volume is reported as NaN. Daily and longer intervals are moved to
// UTC midnight of the exchange-local trading date.
//
// For daily intervals with a Start, the request reaches one day further back:
// exchanges east of UTC open date D before D 00:00 UTC, so period1=D would
// miss it. Records dated before Start are dropped again.
func (c *Client) History(ctx context.Context, q drepo.HistoryQuery) ([]models.RawBar, error) {
	daily := dailyInterval(q.Interval)
	params := map[string][]string{
		"interval":       {q.Interval},
		"includePrePost": {"false"},
		"events":         {"div,splits"},
	}
	if q.Start.IsZero() {
		params["range"] = []string{q.Range}
	} else {
		period1 := q.Start.Unix()
		if daily {
			period1 -= secondsPerDay
		}
		params["period1"] = []string{strconv.FormatInt(period1, 10)}
		params["period2"] = []string{strconv.FormatInt(c.now().Unix(), 10)}
	}

	ua := c.userAgent
	if ua == "" {
		ua = uuid.NewString()
	}

	var resp chartResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + "/v8/finance/chart/" + url.PathEscape(q.Symbol),
		Headers:     map[string]string{"User-Agent": ua, "Accept": "application/json"},
		QueryParams: params,
	}, &resp)
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) {
			return nil, fmt.Errorf("%w: %s: status %d", models.ErrProvider, q.Symbol, se.Code)
		}
		return nil, fmt.Errorf("%w: %s: %w", models.ErrProvider, q.Symbol, err)
	}

	if e := resp.Chart.Error; e != nil {
		return nil, fmt.Errorf("%w: %s: %s: %s", models.ErrProvider, q.Symbol, e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s: empty result", models.ErrProvider, q.Symbol)
	}
	bars, err := toRawBars(resp.Chart.Result[0], daily)
	if err != nil || q.Start.IsZero() {
		return bars, err
	}
	kept := bars[:0]
	for _, b := range bars {
		if !b.PeriodStart.Before(q.Start) {
			kept = append(kept, b)
		}
	}
	return kept, nil
}

func toRawBars(r chartResult, daily bool) ([]models.RawBar, error) {
	if len(r.Timestamp) == 0 {
		return []models.RawBar{}, nil
	}
	if len(r.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: %s: no quote indicators", models.ErrProvider, r.Meta.Symbol)
	}
	quote := r.Indicators.Quote[0]
	loc := exchangeLocation(r)

	out := make([]models.RawBar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		o, h, l, cl := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == nil || h == nil || l == nil || cl == nil {
			continue
		}
		vol := math.NaN()
		if v := at(quote.Volume, i); v != nil {
			vol = *v
		}

		start := time.Unix(ts, 0).UTC()
		if daily {
			y, m, d := start.In(loc).Date()
			start = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}
		out = append(out, models.RawBar{
			PeriodStart: start,
			Open:        *o,
			High:        *h,
			Low:         *l,
			Close:       *cl,
			Volume:      vol,
		})
	}
	return out, nil
}

func at(s []*float64, i int) *float64 {
	if i >= len(s) {
		return nil
	}
	return s[i]
}

func exchangeLocation(r chartResult) *time.Location {
	if name := r.Meta.ExchangeTimezoneName; name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.FixedZone("exchange", r.Meta.GMTOffset)
}

func dailyInterval(interval string) bool {
	return strings.HasSuffix(interval, "d") || strings.HasSuffix(interval, "wk") || strings.HasSuffix(interval, "mo")
}
