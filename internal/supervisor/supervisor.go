package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"takerflow/internal/aggregation"
)

// State is the lifecycle position of the supervisor.
type State int

const (
	Connecting State = iota
	Streaming
	Backoff
	Stopped
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Backoff:
		return "backoff"
	default:
		return "stopped"
	}
}

// Feed is the upstream trade source.
type Feed interface {
	// Supported reports whether the feed can currently stream the configured symbol.
	Supported(ctx context.Context) bool
	Subscribe(ctx context.Context, symbol string) (Stream, error)
}

// Stream is one open subscription. Next blocks until at least one trade arrives.
type Stream interface {
	Next(ctx context.Context) ([]aggregation.TradeEvent, error)
	Close() error
}

// Absorber receives every batch read from the stream.
type Absorber interface {
	Absorb(events []aggregation.TradeEvent) int
	DrainLiveIfReady() (aggregation.Vector, bool)
}

// LivePublisher receives live deltas once the trade-count threshold is crossed.
type LivePublisher interface {
	PublishLiveDelta(v aggregation.Vector)
}

// Config holds the backoff delays.
type Config struct {
	Symbol             string
	UnsupportedBackoff time.Duration
	ErrorBackoff       time.Duration
}

type Option func(*Supervisor)

// WithSleep replaces the context-aware sleep used in Backoff.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Supervisor) { s.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// WithStateHook observes every transition.
func WithStateHook(fn func(from, to State)) Option {
	return func(s *Supervisor) { s.onState = fn }
}

// WithBatchHook observes every absorbed batch with the number of received and
// qualifying trades.
func WithBatchHook(fn func(received, absorbed int)) Option {
	return func(s *Supervisor) { s.onBatch = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// Supervisor keeps one feed subscription alive and pushes its trades into the
// accumulator. It moves Connecting -> Streaming -> Backoff -> Connecting until the
// context is cancelled.
type Supervisor struct {
	cfg       Config
	feed      Feed
	acc       Absorber
	publisher LivePublisher

	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
	onState func(from, to State)
	onBatch func(received, absorbed int)
	logger  *zap.Logger

	mu       sync.RWMutex
	state    State
	since    time.Time
	lastErr  error
	restarts int
}

func New(cfg Config, feed Feed, acc Absorber, publisher LivePublisher, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:       cfg,
		feed:      feed,
		acc:       acc,
		publisher: publisher,
		sleep:     sleepContext,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.since = s.now()
	return s
}

// Run blocks until ctx is cancelled. It always returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.transition(Stopped)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.transition(Connecting)
		delay, err := s.attempt(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.recordError(err)
		s.logger.Warn("feed interrupted, backing off",
			zap.String("symbol", s.cfg.Symbol),
			zap.Duration("delay", delay),
			zap.Error(err))

		s.transition(Backoff)
		if err := s.sleep(ctx, delay); err != nil {
			return ctx.Err()
		}
	}
}

var errUnsupported = errors.New("feed does not support symbol")

// attempt runs one connect-and-stream cycle and returns the backoff to apply. A
// panic anywhere in the feed is reported as an error with the error backoff.
func (s *Supervisor) attempt(ctx context.Context) (delay time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			delay = s.cfg.ErrorBackoff
			err = fmt.Errorf("feed panic: %v", r)
		}
	}()

	stream, connectDelay, err := s.connect(ctx)
	if err != nil {
		return connectDelay, err
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			s.logger.Debug("stream close failed", zap.Error(cerr))
		}
	}()

	s.transition(Streaming)
	return s.cfg.ErrorBackoff, s.stream(ctx, stream)
}

func (s *Supervisor) connect(ctx context.Context) (Stream, time.Duration, error) {
	if !s.feed.Supported(ctx) {
		return nil, s.cfg.UnsupportedBackoff, fmt.Errorf("%w: %s", errUnsupported, s.cfg.Symbol)
	}
	stream, err := s.feed.Subscribe(ctx, s.cfg.Symbol)
	if err != nil {
		return nil, s.cfg.ErrorBackoff, fmt.Errorf("subscribe %s: %w", s.cfg.Symbol, err)
	}
	s.logger.Info("feed subscribed", zap.String("symbol", s.cfg.Symbol))
	return stream, 0, nil
}

// stream reads batches until the stream fails.
func (s *Supervisor) stream(ctx context.Context, stream Stream) error {
	for {
		events, err := stream.Next(ctx)
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}

		absorbed := s.acc.Absorb(events)
		if s.onBatch != nil {
			s.onBatch(len(events), absorbed)
		}
		if v, ok := s.acc.DrainLiveIfReady(); ok {
			s.publisher.PublishLiveDelta(v)
		}
	}
}

func (s *Supervisor) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.since = s.now()
	if to == Connecting && from == Backoff {
		s.restarts++
	}
	s.mu.Unlock()

	if from != to {
		s.logger.Debug("feed state", zap.Stringer("from", from), zap.Stringer("to", to))
		if s.onState != nil {
			s.onState(from, to)
		}
	}
}

func (s *Supervisor) recordError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status is a point-in-time view for health reporting.
type Status struct {
	State    State
	Since    time.Time
	Restarts int
	LastErr  error
}

func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{State: s.state, Since: s.since, Restarts: s.restarts, LastErr: s.lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
