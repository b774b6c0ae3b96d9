package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"takerflow/config"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"

	storePingTimeout = 2 * time.Second
)

// HealthFunc reports the values shown by /healthz.
type HealthFunc func(ctx context.Context) Health

type Health struct {
	Status         string `json:"status"`
	Subscribers    int    `json:"subscribers"`
	FeedState      string `json:"feed_state"`
	Restarts       int    `json:"restarts"`
	LastError      string `json:"last_error,omitempty"`
	Store          string `json:"store"`
	PendingRecords int    `json:"pending_records"`
}

// FeedStatus is the supervisor view shown in Health.
type FeedStatus struct {
	State     string
	Restarts  int
	LastError error
}

// HealthSources are the probes behind Healthy. Nil members are skipped.
type HealthSources struct {
	Subscribers    func() int
	Feed           func() FeedStatus
	Store          func(ctx context.Context) error
	PendingRecords func() int
}

// Deps are the collaborators mounted on the server. Nil members are skipped.
type Deps struct {
	Aggregation *AggregationHandler
	WebSocket   http.Handler
	Metrics     http.Handler
	Recorder    HTTPRecorder
	Health      HealthFunc
}

// Server wraps the Echo HTTP server.
type Server struct {
	echo   *echo.Echo
	cfg    config.HTTPConfig
	logger *zap.Logger
}

func NewServer(cfg config.HTTPConfig, deps Deps, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		_ = writeError(c, err)
	}

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("http handler panic",
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err),
				zap.ByteString("stack", stack))
			return err
		},
	}))
	e.Use(requestLogger(logger, deps.Recorder))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	if deps.Aggregation != nil {
		deps.Aggregation.RegisterRoutes(e)
	}
	if deps.WebSocket != nil {
		e.GET(cfg.WSPath, echo.WrapHandler(deps.WebSocket))
	}
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}
	e.GET("/healthz", func(c echo.Context) error {
		h := Health{Status: statusOK, Store: "up"}
		if deps.Health != nil {
			h = deps.Health(c.Request().Context())
		}
		code := http.StatusOK
		if h.Status != statusOK {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, h)
	})

	return &Server{echo: e, cfg: cfg, logger: logger}
}

// ListenAndServe blocks until the server stops. A graceful Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.echo,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("http server listening", zap.String("addr", addr))
	if err := s.echo.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Healthy builds the /healthz report. The service is degraded when the store does
// not answer a ping; feed outages are reported but handled by the supervisor.
func Healthy(src HealthSources, logger *zap.Logger) HealthFunc {
	return func(ctx context.Context) Health {
		h := Health{Status: statusOK, Store: "up"}
		if src.Subscribers != nil {
			h.Subscribers = src.Subscribers()
		}
		if src.Feed != nil {
			fs := src.Feed()
			h.FeedState = fs.State
			h.Restarts = fs.Restarts
			if fs.LastError != nil {
				h.LastError = fs.LastError.Error()
			}
		}
		if src.PendingRecords != nil {
			h.PendingRecords = src.PendingRecords()
		}
		if src.Store != nil {
			pingCtx, cancel := context.WithTimeout(ctx, storePingTimeout)
			defer cancel()
			if err := src.Store(pingCtx); err != nil {
				logger.Warn("store health check failed", zap.Error(err))
				h.Status = statusDegraded
				h.Store = "down"
			}
		}
		return h
	}
}

