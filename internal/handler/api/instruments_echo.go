package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"candlestick/internal/domain/models"
	domrepo "candlestick/internal/domain/repository"
	"candlestick/internal/service/ratelimit"
	"candlestick/internal/usecase"
	xhttp "candlestick/pkg/http"
	xlogger "candlestick/pkg/logger"
	"candlestick/pkg/util"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// HealthChecker reports whether the storage backend is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// InstrumentsEchoHandler serves the instrument catalogue, bar queries and
// sync triggers.
type InstrumentsEchoHandler struct {
	logger      *xlogger.Logger
	instruments *usecase.InstrumentsUseCase
	bars        *usecase.BarsUseCase
	batch       *usecase.BatchUseCase
	health      HealthChecker
	limiter     *ratelimit.Limiter
}

func NewInstrumentsEchoHandler(
	logger *xlogger.Logger,
	instruments *usecase.InstrumentsUseCase,
	bars *usecase.BarsUseCase,
	batch *usecase.BatchUseCase,
	health HealthChecker,
	limiter *ratelimit.Limiter,
) *InstrumentsEchoHandler {
	return &InstrumentsEchoHandler{
		logger:      logger,
		instruments: instruments,
		bars:        bars,
		batch:       batch,
		health:      health,
		limiter:     limiter,
	}
}

func (h *InstrumentsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/instruments", h.List)
	g.POST("/instruments", h.Create)
	g.GET("/instruments/:symbol", h.Get)
	g.PUT("/instruments/:symbol", h.Update)
	g.DELETE("/instruments/:symbol", h.Delete)
	g.GET("/instruments/:symbol/bars", h.Bars)
	g.GET("/instruments/:symbol/price", h.Price)

	var limited []echo.MiddlewareFunc
	if h.limiter != nil {
		limited = append(limited, ratelimit.Middleware(h.limiter))
	}
	g.POST("/instruments/:symbol/fetch", h.Fetch, limited...)
	g.POST("/instruments/:symbol/update", h.UpdateSeries, limited...)
	g.POST("/update", h.UpdateMany, limited...)
}

func (h *InstrumentsEchoHandler) Health(c echo.Context) error {
	if h.health != nil {
		if err := h.health.Health(c.Request().Context()); err != nil {
			h.logger.Error("health check failed", xlogger.Error(err))
			return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *InstrumentsEchoHandler) List(c echo.Context) error {
	req := &models.InstrumentListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	list, err := h.instruments.List(c.Request().Context(), domrepo.InstrumentFilter{
		Exchange: req.Exchange,
		Category: req.Category,
	})
	if err != nil {
		return h.fail(c, "list instruments", err)
	}
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *InstrumentsEchoHandler) Create(c echo.Context) error {
	req := &models.InstrumentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	inst, err := h.instruments.Create(c.Request().Context(), req.Instrument())
	if err != nil {
		return h.fail(c, "create instrument", err)
	}
	return xhttp.CreatedResponse(c, inst)
}

func (h *InstrumentsEchoHandler) Get(c echo.Context) error {
	req := &models.InstrumentRef{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	inst, err := h.instruments.Get(c.Request().Context(), req.Symbol, req.Exchange)
	if err != nil {
		return h.fail(c, "get instrument", err)
	}
	return xhttp.SuccessResponse(c, inst)
}

func (h *InstrumentsEchoHandler) Update(c echo.Context) error {
	ref := &models.InstrumentRef{}
	if verr := bindParams(c, ref); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	patch := models.InstrumentPatch{}
	if err := c.Bind(&patch); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("invalid instrument body").WithError(err))
	}
	inst, err := h.instruments.Update(c.Request().Context(), ref.Symbol, ref.Exchange, patch)
	if err != nil {
		return h.fail(c, "update instrument", err)
	}
	return xhttp.SuccessResponse(c, inst)
}

func (h *InstrumentsEchoHandler) Delete(c echo.Context) error {
	req := &models.InstrumentRef{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.instruments.Delete(c.Request().Context(), req.Symbol, req.Exchange); err != nil {
		return h.fail(c, "delete instrument", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *InstrumentsEchoHandler) Bars(c echo.Context) error {
	req := &models.BarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.bars.GetBars(c.Request().Context(), usecase.GetBarsParams{
		Symbol:     req.Symbol,
		Exchange:   req.Exchange,
		Resolution: req.Resolution,
		From:       util.ParseUnixDefault(req.From, 0),
		To:         util.ParseUnixDefault(req.To, 0),
		Limit:      req.Limit,
	})
	if err != nil {
		return h.fail(c, "get bars", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

type priceResponse struct {
	Symbol   string           `json:"symbol"`
	Exchange string           `json:"exchange,omitempty"`
	Price    *decimal.Decimal `json:"price"`
}

func (h *InstrumentsEchoHandler) Price(c echo.Context) error {
	req := &models.InstrumentRef{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	price, err := h.instruments.LatestPrice(c.Request().Context(), req.Symbol, req.Exchange)
	if err != nil {
		return h.fail(c, "latest price", err)
	}
	return xhttp.SuccessResponse(c, priceResponse{Symbol: req.Symbol, Exchange: req.Exchange, Price: price})
}

// seriesResponse is the JSON form of a sync result.
type seriesResponse struct {
	Symbol     string          `json:"symbol"`
	Exchange   string          `json:"exchange,omitempty"`
	Resolution string          `json:"resolution"`
	Mode       models.SyncMode `json:"mode"`
	Bars       int             `json:"bars"`
	Seconds    float64         `json:"seconds"`
	Error      *xhttp.AppError `json:"error,omitempty"`
}

func newSeriesResponse(r models.SeriesResult) seriesResponse {
	out := seriesResponse{
		Symbol:     r.Symbol,
		Exchange:   r.Exchange,
		Resolution: r.Resolution,
		Mode:       r.Mode,
		Bars:       r.Bars,
		Seconds:    r.Duration.Round(time.Millisecond).Seconds(),
	}
	if r.Err != nil {
		out.Error = toAppError(r.Err)
	}
	return out
}

func (h *InstrumentsEchoHandler) Fetch(c echo.Context) error {
	return h.syncOne(c, h.batch.FetchOne)
}

func (h *InstrumentsEchoHandler) UpdateSeries(c echo.Context) error {
	return h.syncOne(c, h.batch.UpdateOne)
}

func (h *InstrumentsEchoHandler) syncOne(c echo.Context, run func(ctx context.Context, symbol, exchange, res string) models.SeriesResult) error {
	req := &models.SyncRequest{}
	if verr := bindParams(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res := run(c.Request().Context(), req.Symbol, req.Exchange, req.Resolution)
	if !res.OK() {
		return h.fail(c, "sync series", res.Err)
	}
	return xhttp.SuccessResponse(c, newSeriesResponse(res))
}

func (h *InstrumentsEchoHandler) UpdateMany(c echo.Context) error {
	req := &models.BatchUpdateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !req.All && len(req.Symbols) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbols is required unless all is set").WithParam("field", "symbols"))
	}

	results, err := h.batch.UpdateMany(c.Request().Context(), req.Symbols, req.All, req.Resolution)
	if err != nil && len(results) == 0 {
		return h.fail(c, "batch update", err)
	}
	rows := make([]seriesResponse, 0, len(results))
	for _, r := range results {
		rows = append(rows, newSeriesResponse(r))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *InstrumentsEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		h.logger.Error(op+" error", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// bindParams binds path and query parameters only, leaving the body for
// the caller.
func bindParams(c echo.Context, req interface{}) interface{} {
	b := new(echo.DefaultBinder)
	if err := b.BindPathParams(c, req); err != nil {
		return xhttp.BadRequestError(err.Error())
	}
	if err := b.BindQueryParams(c, req); err != nil {
		return xhttp.BadRequestError(err.Error())
	}
	return xhttp.ValidateRequest(c, req)
}

func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	msg := err.Error()
	switch {
	case errors.Is(err, models.ErrInvalidResolution),
		errors.Is(err, models.ErrUnsupportedResolution),
		errors.Is(err, models.ErrInvalidTimestampForResolution),
		errors.Is(err, models.ErrInvalidInstrument),
		errors.Is(err, models.ErrInvalidBar),
		errors.Is(err, models.ErrInvalidRange):
		return xhttp.BadRequestError(msg).WithError(err)
	case errors.Is(err, models.ErrInstrumentNotFound):
		return xhttp.NotFoundError(msg).WithError(err)
	case errors.Is(err, models.ErrDuplicateInstrument):
		return xhttp.ConflictError(msg).WithError(err)
	case errors.Is(err, models.ErrSeriesBusy):
		return xhttp.LockedError(msg).WithError(err)
	case errors.Is(err, models.ErrProvider):
		return xhttp.BadGatewayError(msg).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
