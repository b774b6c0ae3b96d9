package broadcast

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"takerflow/internal/aggregation"
	"takerflow/internal/ratio"
)

// ErrHubFull is returned by Register when the subscriber cap is reached.
var ErrHubFull = errors.New("broadcast hub is full")

// Subscriber is one live consumer of frames.
type Subscriber interface {
	ID() string
	Send(frame []byte) error
	Close() error
}

type Option func(*Hub)

// WithMaxSubscribers caps the subscriber set. Zero means unlimited.
func WithMaxSubscribers(n int) Option {
	return func(h *Hub) { h.max = n }
}

// WithReplay makes Register send the last ratio frame to new subscribers.
func WithReplay(enabled bool) Option {
	return func(h *Hub) { h.replay = enabled }
}

// WithCountHook is called with the new subscriber count after every change. The
// hook must not publish synchronously.
func WithCountHook(fn func(int)) Option {
	return func(h *Hub) { h.onCount = fn }
}

// WithDropHook is called once per subscriber removed after a failed send.
func WithDropHook(fn func()) Option {
	return func(h *Hub) { h.onDrop = fn }
}

// Hub fans frames out to every registered subscriber. A failing subscriber is
// removed without affecting delivery to the others.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]Subscriber
	lastRatio []byte

	// ratioMu orders replays against ratio publishes, so a new subscriber never
	// sees an older ratio after a newer one.
	ratioMu sync.Mutex

	max     int
	replay  bool
	onCount func(int)
	onDrop  func()
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		subs:   make(map[string]Subscriber),
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Register(s Subscriber) error {
	h.ratioMu.Lock()
	defer h.ratioMu.Unlock()

	h.mu.Lock()
	if h.max > 0 && len(h.subs) >= h.max {
		h.mu.Unlock()
		return ErrHubFull
	}
	h.subs[s.ID()] = s
	n := len(h.subs)
	last := h.lastRatio
	h.mu.Unlock()

	h.notifyCount(n)
	h.logger.Debug("subscriber registered", zap.String("id", s.ID()), zap.Int("subscribers", n))

	if h.replay && last != nil {
		if err := s.Send(last); err != nil {
			h.drop(s, err)
		}
	}
	return nil
}

// Unregister removes and closes s. Calling it for an unknown subscriber is a no-op.
func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s.ID()]
	if ok {
		delete(h.subs, s.ID())
	}
	n := len(h.subs)
	h.mu.Unlock()

	if !ok {
		return
	}
	if err := s.Close(); err != nil {
		h.logger.Debug("subscriber close failed", zap.String("id", s.ID()), zap.Error(err))
	}
	h.notifyCount(n)
}

func (h *Hub) PublishLiveDelta(v aggregation.Vector) {
	frame, err := LiveDeltaFrame(v)
	if err != nil {
		h.logger.Error("encode live delta", zap.Error(err))
		return
	}
	h.publish(frame)
}

func (h *Hub) PublishRatio(s ratio.Snapshot) {
	frame, err := RatioFrame(s)
	if err != nil {
		h.logger.Error("encode ratio", zap.Error(err))
		return
	}

	h.ratioMu.Lock()
	defer h.ratioMu.Unlock()

	h.mu.Lock()
	h.lastRatio = frame
	h.mu.Unlock()

	h.publish(frame)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unregisters every subscriber.
func (h *Hub) Close() {
	for _, s := range h.snapshot() {
		h.Unregister(s)
	}
}

func (h *Hub) publish(frame []byte) {
	for _, s := range h.snapshot() {
		if err := s.Send(frame); err != nil {
			h.drop(s, err)
		}
	}
}

func (h *Hub) snapshot() []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s)
	}
	return out
}

func (h *Hub) drop(s Subscriber, err error) {
	h.logger.Warn("dropping subscriber after failed send", zap.String("id", s.ID()), zap.Error(err))
	h.Unregister(s)
	if h.onDrop != nil {
		h.onDrop()
	}
}

func (h *Hub) notifyCount(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}
