package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"takerflow/config"
	"takerflow/internal/aggregation"
	"takerflow/internal/api"
	"takerflow/internal/broadcast"
	"takerflow/internal/metrics"
	"takerflow/internal/ratio"
	"takerflow/internal/scheduler"
	"takerflow/internal/supervisor"
	"takerflow/internal/window"
	"takerflow/pkg/binance"
	"takerflow/pkg/cache"
	"takerflow/pkg/queue"
	"takerflow/pkg/storage/clickhouse"
	"takerflow/pkg/storage/memory"
	"takerflow/pkg/storage/postgres"
)

const finalFlushTimeout = 5 * time.Second

// backend is a window backend the collector can probe and close.
type backend interface {
	window.Backend
	io.Closer
	Ping(ctx context.Context) error
}

// memoryBackend gives the in-process store a ping that always succeeds.
type memoryBackend struct {
	*memory.Store
}

func (memoryBackend) Ping(context.Context) error { return nil }

// postgresBackend adapts the client's health check to Ping.
type postgresBackend struct {
	*postgres.PostgresClient
}

func (p postgresBackend) Ping(ctx context.Context) error {
	if !p.IsHealthy(ctx) {
		return errors.New("postgres ping failed")
	}
	return nil
}

// clickhouseBackend exposes the client's health check as Ping.
type clickhouseBackend struct {
	*clickhouse.Client
}

func (c clickhouseBackend) Ping(ctx context.Context) error {
	return c.Health(ctx)
}

// Run wires the pipeline and blocks until ctx is cancelled or the HTTP server
// fails. Start-up errors are returned before anything runs.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	rec := metrics.New()

	store, db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	}()

	var rangeCache cache.Service
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(ctx,
			cache.WithAddr(cfg.Redis.Host, cfg.Redis.Port),
			cache.WithPassword(cfg.Redis.Password),
			cache.WithDB(cfg.Redis.DB),
			cache.WithPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rc.Close()
		rangeCache = rc
		logger.Info("redis cache enabled", zap.String("host", cfg.Redis.Host))
	} else {
		// query results are still cached, but only for this process
		rangeCache = cache.NewMemoryCache()
	}

	var exporter Publisher
	if cfg.Kafka.Enabled {
		p, err := queue.NewProducer(
			queue.WithBrokers(cfg.Kafka.Brokers),
			queue.WithTopic(cfg.Kafka.Topic),
			queue.WithCompression(cfg.Kafka.Compression),
			queue.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		)
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		defer p.Close()
		exporter = p
		logger.Info("kafka export enabled", zap.String("topic", p.Topic()))
	}

	thresholds := aggregation.Thresholds{
		Unit:   cfg.Aggregation.Unit,
		Min:    cfg.Aggregation.Min,
		Medium: cfg.Aggregation.Medium,
		Large:  cfg.Aggregation.Large,
	}
	if err := thresholds.Validate(); err != nil {
		return fmt.Errorf("aggregation thresholds: %w", err)
	}
	acc := aggregation.NewAccumulator(thresholds, cfg.Feed.LiveThreshold)

	hub := broadcast.NewHub(logger.Named("hub"),
		broadcast.WithMaxSubscribers(cfg.Broadcast.MaxSubscribers),
		broadcast.WithReplay(cfg.Broadcast.ReplayLastRatio),
		broadcast.WithCountHook(rec.SetSubscribers),
		broadcast.WithDropHook(rec.RecordSubscriberDrop),
	)
	defer hub.Close()

	feed := &binanceFeed{
		ws:     binance.NewWSClient(cfg.Feed.WSURL, cfg.Feed.ReadTimeout, logger.Named("feed")),
		rest:   binance.NewRESTClient(cfg.Feed.RESTURL, cfg.Feed.Timeout),
		symbol: cfg.Feed.Symbol,
		logger: logger.Named("feed"),
	}
	sup := supervisor.New(
		supervisor.Config{
			Symbol:             cfg.Feed.Symbol,
			UnsupportedBackoff: cfg.Feed.UnsupportedBackoff,
			ErrorBackoff:       cfg.Feed.ErrorBackoff,
		},
		feed, acc, livePublisher{hub: hub, rec: rec},
		supervisor.WithLogger(logger.Named("supervisor")),
		supervisor.WithBatchHook(rec.RecordBatch),
		supervisor.WithStateHook(func(from, to supervisor.State) {
			rec.SetFeedState(from.String(), to.String())
		}),
	)

	flush := &flusher{
		acc:      acc,
		store:    store,
		exporter: exporter,
		symbol:   cfg.Feed.Symbol,
		now:      time.Now,
		rec:      rec,
		logger:   logger.Named("flush"),
	}
	ratios := &ratioJob{
		engine: ratio.NewEngine(store, store.Periods(),
			ratio.WithTimeout(cfg.Schedule.RatioTimeout),
			ratio.WithLogger(logger.Named("ratio"))),
		hub:    hub,
		cache:  rangeCache,
		rec:    rec,
		logger: logger.Named("ratio"),
	}
	purge := &purgeJob{store: store, logger: logger.Named("purge")}

	taskLogger := logger.Named("scheduler")
	flushTask := scheduler.NewTask("flush", cfg.Schedule.FlushInterval, flush.Flush,
		scheduler.WithImmediate(),
		scheduler.WithTimeout(cfg.Store.WriteTimeout),
		scheduler.WithLogger(taskLogger),
		scheduler.WithResultHook(rec.RecordTask))
	tasks := scheduler.NewGroup(
		flushTask,
		scheduler.NewTask("ratio", cfg.Schedule.RatioInterval, ratios.Run,
			scheduler.WithImmediate(),
			scheduler.WithLogger(taskLogger),
			scheduler.WithResultHook(rec.RecordTask)),
		scheduler.NewTask("purge", cfg.Schedule.PurgeInterval, purge.Run,
			scheduler.WithAlign(cfg.Schedule.PurgeInterval),
			scheduler.WithLogger(taskLogger),
			scheduler.WithResultHook(rec.RecordTask)),
	)

	server := api.NewServer(cfg.HTTP, api.Deps{
		Aggregation: api.NewAggregationHandler(store, cfg.Feed.Symbol, rangeCache, cfg.Redis.QueryTTL, logger.Named("api")),
		WebSocket: broadcast.Handler(hub, broadcast.HandlerOptions{
			WriteTimeout: cfg.Broadcast.WriteTimeout,
			Logger:       logger.Named("ws"),
		}),
		Metrics:  rec.Handler(),
		Recorder: rec,
		Health: api.Healthy(api.HealthSources{
			Subscribers: hub.Count,
			Feed: func() api.FeedStatus {
				st := sup.Status()
				return api.FeedStatus{State: st.State.String(), Restarts: st.Restarts, LastError: st.LastErr}
			},
			Store:          db.Ping,
			PendingRecords: flush.pendingCount,
		}, logger.Named("health")),
	}, logger.Named("http"))

	ratios.restore(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		_ = sup.Run(runCtx)
	}()

	tasks.Start(runCtx)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.ListenAndServe() }()

	logger.Info("aggregator started",
		zap.String("symbol", cfg.Feed.Symbol),
		zap.String("store", cfg.Store.Driver),
		zap.Duration("retention", store.Retention()),
		zap.Strings("periods", store.Periods()))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serverErr:
		runErr = err
		logger.Error("http server stopped unexpectedly", zap.Error(err))
	}

	cancel()
	tasks.Stop()
	<-supDone

	flushCtx, flushCancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	logger.Info("final flush",
		zap.Int64s("pending", acc.Pending().Slice()),
		zap.Int("retries", flush.pendingCount()))
	if err := flushTask.RunOnce(flushCtx); err != nil {
		logger.Error("final flush failed", zap.Error(err))
	}
	flushCancel()

	hub.Close()
	if err := server.Shutdown(context.Background()); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	return runErr
}

// openStore connects the configured backend and wraps it in a window store. The
// caller closes the returned backend.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*window.Store, backend, error) {
	var b backend

	switch cfg.Store.Driver {
	case "postgres":
		client, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.App.Environment, cfg.Store.CreateDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		b = postgresBackend{client}
	case "clickhouse":
		client, err := clickhouse.NewClient(ctx,
			clickhouse.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
			clickhouse.WithAuth(cfg.ClickHouse.Database, cfg.ClickHouse.User, cfg.ClickHouse.Password),
			clickhouse.WithDialTimeout(cfg.ClickHouse.DialTimeout),
			clickhouse.WithRetention(cfg.Store.Retention),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
		}
		if err := client.InitSchema(ctx); err != nil {
			client.Close()
			return nil, nil, err
		}
		b = clickhouseBackend{client}
	case "memory":
		b = memoryBackend{memory.NewStore()}
	default:
		return nil, nil, errors.New("unknown store driver " + cfg.Store.Driver)
	}

	store, err := window.NewStore(b,
		window.WithRetention(cfg.Store.Retention),
		window.WithPeriods(cfg.Store.Periods),
		window.WithLogger(logger.Named("store")),
	)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return store, b, nil
}
