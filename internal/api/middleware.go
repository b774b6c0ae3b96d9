package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HTTPRecorder receives one observation per request.
type HTTPRecorder interface {
	RecordHTTP(route, method string, status int, took time.Duration)
}

// requestLogger logs each request with zap and feeds the recorder. Routes are the
// registered templates so label cardinality stays bounded.
func requestLogger(logger *zap.Logger, rec HTTPRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			took := time.Since(start)
			status := c.Response().Status
			route := c.Path()
			method := c.Request().Method

			if rec != nil {
				rec.RecordHTTP(route, method, status, took)
			}

			fields := []zap.Field{
				zap.String("method", method),
				zap.String("route", route),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", status),
				zap.Duration("took", took),
				zap.String("remote", c.RealIP()),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}

			switch {
			case status >= 500:
				logger.Error("http request failed", fields...)
			case status >= 400:
				logger.Warn("http request rejected", fields...)
			default:
				logger.Debug("http request", fields...)
			}
			return nil
		}
	}
}
