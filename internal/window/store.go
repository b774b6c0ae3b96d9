package window

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"takerflow/internal/aggregation"
)

// ErrUnknownPeriod is returned for labels that are malformed or not configured.
var ErrUnknownPeriod = errors.New("unknown period")

// DefaultPeriods is the label set served when none is configured.
var DefaultPeriods = []string{"30m", "1h", "2h", "4h", "12h", "1d"}

// DefaultRetention is how long persisted records stay visible.
const DefaultRetention = 72 * time.Hour

// Record is one persisted bucket vector. Records are never updated. ID makes a
// retried insert of the same record a no-op.
type Record struct {
	ID        string
	TradeTime time.Time
	Data      aggregation.Vector
}

// Backend is the storage driver behind a Store.
type Backend interface {
	// InsertBucket must ignore a record whose ID is already stored.
	InsertBucket(ctx context.Context, rec Record) error
	// SumSince returns the slot-wise sum of records with TradeTime >= since and
	// how many records contributed.
	SumSince(ctx context.Context, since time.Time) (aggregation.Vector, int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

type Option func(*Store)

func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithPeriods replaces the served label set. Invalid labels are rejected by NewStore.
func WithPeriods(labels []string) Option {
	return func(s *Store) {
		if len(labels) > 0 {
			s.labels = append([]string(nil), labels...)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is the time-ordered record store. It hides expired rows from every read,
// whether or not the backend has removed them yet.
type Store struct {
	backend   Backend
	retention time.Duration
	labels    []string
	periods   map[string]time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewStore(backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("window store requires a backend")
	}

	s := &Store{
		backend:   backend,
		retention: DefaultRetention,
		labels:    append([]string(nil), DefaultPeriods...),
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.periods = make(map[string]time.Duration, len(s.labels))
	for _, label := range s.labels {
		d, err := ParsePeriod(label)
		if err != nil {
			return nil, err
		}
		if d > s.retention {
			s.logger.Warn("period exceeds retention, results will be clamped",
				zap.String("period", label),
				zap.Duration("retention", s.retention))
		}
		s.periods[label] = d
	}

	return s, nil
}

// Append writes one record. An all-zero vector is skipped and reported as false.
// Appending a record with an ID that was already written stores nothing new.
func (s *Store) Append(ctx context.Context, rec Record) (bool, error) {
	if rec.Data.IsZero() {
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.TradeTime.IsZero() {
		rec.TradeTime = s.now()
	}
	if err := s.backend.InsertBucket(ctx, rec); err != nil {
		return false, fmt.Errorf("insert bucket: %w", err)
	}
	return true, nil
}

// RangeSum sums the records of the trailing window named by label. ok is false when
// no record falls inside the window.
func (s *Store) RangeSum(ctx context.Context, label string) (aggregation.Vector, bool, error) {
	d, found := s.periods[label]
	if !found {
		return aggregation.Vector{}, false, fmt.Errorf("%w: %q", ErrUnknownPeriod, label)
	}

	now := s.now()
	since := now.Add(-d)
	if horizon := now.Add(-s.retention); since.Before(horizon) {
		since = horizon
	}

	sum, rows, err := s.backend.SumSince(ctx, since)
	if err != nil {
		return aggregation.Vector{}, false, fmt.Errorf("sum %s: %w", label, err)
	}
	if rows == 0 {
		return aggregation.Vector{}, false, nil
	}
	return sum, true, nil
}

// Purge physically removes records older than the retention horizon.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	before := s.now().Add(-s.retention)
	n, err := s.backend.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("delete before %s: %w", before.Format(time.RFC3339), err)
	}
	return n, nil
}

// Periods returns the configured labels in configuration order.
func (s *Store) Periods() []string {
	return append([]string(nil), s.labels...)
}

func (s *Store) HasPeriod(label string) bool {
	_, ok := s.periods[label]
	return ok
}

func (s *Store) Retention() time.Duration {
	return s.retention
}
