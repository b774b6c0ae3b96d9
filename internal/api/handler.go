package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"takerflow/internal/aggregation"
	"takerflow/pkg/cache"
)

// RangeQuerier is the read side of the window store.
type RangeQuerier interface {
	RangeSum(ctx context.Context, label string) (aggregation.Vector, bool, error)
	Periods() []string
}

type periodRequest struct {
	Period string `param:"period"`
}

// AggregationHandler serves bucket sums over the configured periods.
type AggregationHandler struct {
	store      RangeQuerier
	cache      cache.Service
	cacheTTL   time.Duration
	symbol     string
	validate   *validator.Validate
	periodRule string
	logger     *zap.Logger
}

func NewAggregationHandler(store RangeQuerier, symbol string, c cache.Service, cacheTTL time.Duration, logger *zap.Logger) *AggregationHandler {
	return &AggregationHandler{
		store:      store,
		cache:      c,
		cacheTTL:   cacheTTL,
		symbol:     symbol,
		validate:   validator.New(),
		periodRule: "required,oneof=" + strings.Join(store.Periods(), " "),
		logger:     logger,
	}
}

func (h *AggregationHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/aggregation-data/:period", h.Range)
}

// Range returns the six bucket sums of the trailing period as a JSON array.
func (h *AggregationHandler) Range(c echo.Context) error {
	var req periodRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, BadRequest(msgInvalidPeriod, err))
	}
	if err := h.validate.Var(req.Period, h.periodRule); err != nil {
		return writeError(c, BadRequest(msgInvalidPeriod, err))
	}

	ctx := c.Request().Context()
	key := cache.RangeKey(h.symbol, req.Period)

	if h.cache != nil {
		var cached aggregation.Vector
		err := h.cache.Get(ctx, key, &cached)
		if err == nil {
			return c.JSON(http.StatusOK, cached)
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			h.logger.Warn("range cache read failed", zap.String("period", req.Period), zap.Error(err))
		}
	}

	sum, ok, err := h.store.RangeSum(ctx, req.Period)
	if err != nil {
		h.logger.Error("range query failed", zap.String("period", req.Period), zap.Error(err))
		return writeError(c, Internal(msgPeriodError, err))
	}
	if !ok {
		return writeError(c, NotFound(msgNoData))
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, key, sum, h.cacheTTL); err != nil {
			h.logger.Warn("range cache write failed", zap.String("period", req.Period), zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, sum)
}
