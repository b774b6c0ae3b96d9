package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"takerflow/internal/aggregation"
	"takerflow/internal/broadcast"
	"takerflow/internal/metrics"
	"takerflow/internal/ratio"
	"takerflow/internal/window"
	"takerflow/pkg/cache"
	"takerflow/pkg/queue"
)

// Publisher exports flushed records. Implemented by queue.Producer.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// flusher moves the persistence vector into the window store.
type flusher struct {
	acc      *aggregation.Accumulator
	store    *window.Store
	exporter Publisher
	symbol   string
	now      func() time.Time
	rec      *metrics.Recorder
	logger   *zap.Logger

	mu      sync.Mutex
	pending []window.Record
}

// Flush drains the persistence vector into a new record with its own id and writes
// every pending record in order. A record whose write failed stays pending under the
// same id, so a write that committed before reporting an error is not counted again
// when it is retried.
func (f *flusher) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if v := f.acc.DrainPersistence(); !v.IsZero() {
		f.pending = append(f.pending, window.Record{ID: uuid.NewString(), TradeTime: f.now(), Data: v})
	}
	if len(f.pending) == 0 {
		f.rec.RecordFlush("skipped")
		return nil
	}

	for len(f.pending) > 0 {
		rec := f.pending[0]
		if _, err := f.store.Append(ctx, rec); err != nil {
			f.rec.RecordFlush("failed")
			return fmt.Errorf("flush %d pending records: %w", len(f.pending), err)
		}
		f.pending = f.pending[1:]
		f.rec.RecordFlush("written")
		f.logger.Info("flush completed",
			zap.String("id", rec.ID),
			zap.Time("tradeTime", rec.TradeTime),
			zap.Int64s("data", rec.Data.Slice()))
		f.export(ctx, rec)
	}
	return nil
}

func (f *flusher) export(ctx context.Context, rec window.Record) {
	if f.exporter == nil {
		return
	}
	msg := queue.BucketMessage{ID: rec.ID, TradeTime: rec.TradeTime.UTC(), Data: rec.Data.Slice(), Symbol: f.symbol}
	if err := f.exporter.Publish(ctx, f.symbol, msg); err != nil {
		// the record is already stored, export is best effort
		f.logger.Warn("bucket export failed", zap.String("id", rec.ID), zap.Error(err))
	}
}

// pendingCount returns how many records wait for a retry.
func (f *flusher) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// ratioJob computes and broadcasts the ratio snapshot.
type ratioJob struct {
	engine *ratio.Engine
	hub    *broadcast.Hub
	cache  cache.Service
	rec    *metrics.Recorder
	logger *zap.Logger
}

func (j *ratioJob) Run(ctx context.Context) error {
	snap := j.engine.Compute(ctx)
	j.hub.PublishRatio(snap)

	for period, pct := range snap {
		j.rec.SetRatio(period, pct)
	}
	j.logger.Debug("ratio published", zap.Any("ratio", snap))

	if j.cache != nil {
		if err := j.cache.Set(ctx, cache.RatioKey(), snap, 0); err != nil {
			j.logger.Warn("ratio cache write failed", zap.Error(err))
		}
	}
	return nil
}

// restore seeds the hub with the last cached snapshot so subscribers that connect
// before the first computation still get a ratio frame.
func (j *ratioJob) restore(ctx context.Context) {
	if j.cache == nil {
		return
	}
	var snap ratio.Snapshot
	if err := j.cache.Get(ctx, cache.RatioKey(), &snap); err != nil {
		return
	}
	j.hub.PublishRatio(snap)
	j.logger.Info("restored cached ratio", zap.Any("ratio", snap))
}

type purgeJob struct {
	store  *window.Store
	logger *zap.Logger
}

func (j *purgeJob) Run(ctx context.Context) error {
	n, err := j.store.Purge(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		j.logger.Info("expired records purged", zap.Int64("deleted", n))
	}
	return nil
}

// livePublisher counts live deltas on their way to the hub.
type livePublisher struct {
	hub *broadcast.Hub
	rec *metrics.Recorder
}

func (p livePublisher) PublishLiveDelta(v aggregation.Vector) {
	p.rec.RecordLiveDelta()
	p.hub.PublishLiveDelta(v)
}
