package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Func is the unit of work run by a Task.
type Func func(ctx context.Context) error

type TaskOption func(*Task)

// WithImmediate runs the task once as soon as it starts.
func WithImmediate() TaskOption {
	return func(t *Task) { t.immediate = true }
}

// WithAlign delays the first run until the next wall-clock multiple of d in UTC,
// e.g. the top of the hour for d = time.Hour.
func WithAlign(d time.Duration) TaskOption {
	return func(t *Task) { t.align = d }
}

// WithTimeout bounds each run.
func WithTimeout(d time.Duration) TaskOption {
	return func(t *Task) { t.timeout = d }
}

func WithLogger(l *zap.Logger) TaskOption {
	return func(t *Task) { t.logger = l }
}

// WithResultHook observes the outcome and duration of every run.
func WithResultHook(fn func(name string, took time.Duration, err error)) TaskOption {
	return func(t *Task) { t.onResult = fn }
}

func withClock(now func() time.Time) TaskOption {
	return func(t *Task) { t.now = now }
}

// Task runs fn every interval, measured from the end of the previous run, so runs
// of one task never overlap. Errors and panics are logged and the loop continues.
type Task struct {
	name     string
	interval time.Duration
	fn       Func

	immediate bool
	align     time.Duration
	timeout   time.Duration
	now       func() time.Time
	onResult  func(name string, took time.Duration, err error)
	logger    *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTask(name string, interval time.Duration, fn Func, opts ...TaskOption) *Task {
	t := &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the loop. Starting a running task is a no-op.
func (t *Task) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		return
	}

	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go t.loop(ctx, t.done)
}

// Stop cancels the pending timer and waits for an in-flight run to return.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunOnce executes fn synchronously with the task's timeout, outside the loop.
func (t *Task) RunOnce(ctx context.Context) error {
	return t.run(ctx)
}

func (t *Task) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if t.immediate {
		_ = t.run(ctx)
	}

	wait := t.interval
	if t.align > 0 && !t.immediate {
		now := t.now().UTC()
		wait = now.Truncate(t.align).Add(t.align).Sub(now)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		_ = t.run(ctx)
		timer.Reset(t.interval)
	}
}

func (t *Task) run(ctx context.Context) (err error) {
	start := t.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.name, r)
		}
		took := t.now().Sub(start)
		if err != nil {
			t.logger.Error("scheduled task failed",
				zap.String("task", t.name),
				zap.Duration("took", took),
				zap.Error(err))
		} else {
			t.logger.Debug("scheduled task done", zap.String("task", t.name), zap.Duration("took", took))
		}
		if t.onResult != nil {
			t.onResult(t.name, took, err)
		}
	}()

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.fn(ctx)
}
