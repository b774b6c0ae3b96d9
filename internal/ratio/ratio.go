package ratio

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"takerflow/internal/aggregation"
)

// Neutral is reported for windows without data.
const Neutral = 50

// Snapshot maps a period label to the taker buy share in percent.
type Snapshot map[string]int

// RangeSummer is the read side of the window store.
type RangeSummer interface {
	RangeSum(ctx context.Context, label string) (aggregation.Vector, bool, error)
}

// Of returns round(100 * long / (short + long)). ok is false when the vector is empty.
func Of(v aggregation.Vector) (int, bool) {
	total := v.Total()
	if total <= 0 {
		return 0, false
	}
	return int(math.Round(100 * float64(v.Long()) / float64(total))), true
}

type Option func(*Engine)

// WithTimeout bounds one Compute run. Periods still pending at the deadline are neutral.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

type Engine struct {
	store   RangeSummer
	periods []string
	timeout time.Duration
	logger  *zap.Logger
}

func NewEngine(store RangeSummer, periods []string, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		periods: append([]string(nil), periods...),
		timeout: 10 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type result struct {
	label string
	value int
}

// Compute queries every period concurrently. It always returns one entry per period.
func (e *Engine) Compute(ctx context.Context) Snapshot {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	results := make(chan result, len(e.periods))
	var wg sync.WaitGroup

	for _, label := range e.periods {
		wg.Add(1)
		go func(label string) {
			defer wg.Done()
			results <- result{label: label, value: e.one(ctx, label)}
		}(label)
	}

	wg.Wait()
	close(results)

	snap := make(Snapshot, len(e.periods))
	for r := range results {
		snap[r.label] = r.value
	}
	return snap
}

func (e *Engine) one(ctx context.Context, label string) int {
	v, ok, err := e.store.RangeSum(ctx, label)
	if err != nil {
		e.logger.Warn("ratio period failed",
			zap.String("period", label),
			zap.Error(err))
		return Neutral
	}
	if !ok {
		return Neutral
	}
	pct, ok := Of(v)
	if !ok {
		return Neutral
	}
	return pct
}

// Periods returns the labels this engine computes.
func (e *Engine) Periods() []string {
	return append([]string(nil), e.periods...)
}
