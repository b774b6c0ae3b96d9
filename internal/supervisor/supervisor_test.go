package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takerflow/internal/aggregation"
)

type fakeStream struct {
	batches [][]aggregation.TradeEvent
	err     error
	panics  bool
	closed  bool
}

func (f *fakeStream) Next(ctx context.Context) ([]aggregation.TradeEvent, error) {
	if f.panics {
		panic("decoder exploded")
	}
	if len(f.batches) == 0 {
		return nil, f.err
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

type fakeFeed struct {
	mu        sync.Mutex
	supported []bool
	streams   []*fakeStream
	subErr    error
	subscribe int
	panicOn   string // "supported" or "subscribe"
}

func (f *fakeFeed) Supported(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == "supported" {
		panic("exchange info decoder exploded")
	}
	if len(f.supported) == 0 {
		return true
	}
	ok := f.supported[0]
	f.supported = f.supported[1:]
	return ok
}

func (f *fakeFeed) Subscribe(context.Context, string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribe++
	if f.panicOn == "subscribe" {
		panic("dialer exploded")
	}
	if f.subErr != nil {
		return nil, f.subErr
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	return s, nil
}

type recordingPublisher struct {
	deltas []aggregation.Vector
}

func (p *recordingPublisher) PublishLiveDelta(v aggregation.Vector) {
	p.deltas = append(p.deltas, v)
}

// sleeper records requested delays and cancels the run after limit sleeps.
type sleeper struct {
	delays []time.Duration
	limit  int
	cancel context.CancelFunc
}

func (s *sleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	if len(s.delays) >= s.limit {
		s.cancel()
		return ctx.Err()
	}
	return nil
}

func sell(notional int64) aggregation.TradeEvent {
	return aggregation.TradeEvent{Notional: decimal.NewFromInt(notional), Side: aggregation.Sell}
}

var testConfig = Config{
	Symbol:             "BTCUSDT",
	UnsupportedBackoff: 15 * time.Second,
	ErrorBackoff:       30 * time.Second,
}

// go test -v --run TestUnsupportedFeedBacksOff
func TestUnsupportedFeedBacksOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := &fakeFeed{supported: []bool{false, false}}
	sl := &sleeper{limit: 2, cancel: cancel}
	acc := aggregation.NewAccumulator(aggregation.DefaultThresholds(), 3)

	sup := New(testConfig, feed, acc, &recordingPublisher{}, WithSleep(sl.sleep))
	err := sup.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []time.Duration{15 * time.Second, 15 * time.Second}, sl.delays)
	assert.Equal(t, 0, feed.subscribe)
	assert.Equal(t, Stopped, sup.State())
}

// go test -v --run TestReceiveErrorRestarts
func TestReceiveErrorRestarts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := &fakeStream{
		batches: [][]aggregation.TradeEvent{
			{sell(15_000), sell(500), sell(50)},
			{sell(20_000), sell(20_000)},
		},
		err: errors.New("connection reset by peer"),
	}
	second := &fakeStream{err: errors.New("eof")}
	feed := &fakeFeed{streams: []*fakeStream{first, second}}
	sl := &sleeper{limit: 2, cancel: cancel}
	pub := &recordingPublisher{}
	acc := aggregation.NewAccumulator(aggregation.DefaultThresholds(), 3)

	var transitions []State
	sup := New(testConfig, feed, acc, pub,
		WithSleep(sl.sleep),
		WithStateHook(func(_, to State) { transitions = append(transitions, to) }),
	)
	_ = sup.Run(ctx)

	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, sl.delays)
	assert.True(t, first.closed)
	assert.True(t, second.closed)
	require.Len(t, pub.deltas, 1)
	assert.Equal(t, aggregation.Vector{55, 0, 0, 0, 0, 0}, pub.deltas[0])
	assert.Equal(t, []State{Streaming, Backoff, Connecting, Streaming, Backoff, Stopped}, transitions)
	assert.Equal(t, 1, sup.Status().Restarts)
	assert.Error(t, sup.Status().LastErr)
}

// go test -v --run TestSubscribeErrorBacksOff
func TestSubscribeErrorBacksOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := &fakeFeed{subErr: errors.New("dial tcp: i/o timeout")}
	sl := &sleeper{limit: 1, cancel: cancel}
	acc := aggregation.NewAccumulator(aggregation.DefaultThresholds(), 3)

	sup := New(testConfig, feed, acc, &recordingPublisher{}, WithSleep(sl.sleep))
	_ = sup.Run(ctx)

	assert.Equal(t, []time.Duration{30 * time.Second}, sl.delays)
	assert.Equal(t, 1, feed.subscribe)
}

// go test -v --run TestFeedPanicIsRecovered
func TestFeedPanicIsRecovered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := &fakeStream{panics: true}
	feed := &fakeFeed{streams: []*fakeStream{stream}}
	sl := &sleeper{limit: 1, cancel: cancel}
	acc := aggregation.NewAccumulator(aggregation.DefaultThresholds(), 3)

	sup := New(testConfig, feed, acc, &recordingPublisher{}, WithSleep(sl.sleep))
	_ = sup.Run(ctx)

	assert.True(t, stream.closed)
	assert.Equal(t, []time.Duration{30 * time.Second}, sl.delays)
	assert.ErrorContains(t, sup.Status().LastErr, "feed panic")
}

// go test -v --run TestConnectPanicIsRecovered
func TestConnectPanicIsRecovered(t *testing.T) {
	for _, stage := range []string{"supported", "subscribe"} {
		t.Run(stage, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			feed := &fakeFeed{panicOn: stage}
			sl := &sleeper{limit: 2, cancel: cancel}
			acc := aggregation.NewAccumulator(aggregation.DefaultThresholds(), 3)

			sup := New(testConfig, feed, acc, &recordingPublisher{}, WithSleep(sl.sleep))
			err := sup.Run(ctx)

			assert.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, sl.delays)
			assert.ErrorContains(t, sup.Status().LastErr, "feed panic")
			assert.Equal(t, 1, sup.Status().Restarts)
			assert.Equal(t, Stopped, sup.State())
		})
	}
}

// go test -v --run TestRunStopsOnCancel
func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	feed := &fakeFeed{supported: []bool{false}}
	acc := aggregation.NewAccumulator(aggregation.DefaultThresholds(), 3)
	sup := New(testConfig, feed, acc, &recordingPublisher{})

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool { return sup.State() == Backoff }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}
}
