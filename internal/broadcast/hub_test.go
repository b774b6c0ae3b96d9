package broadcast

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takerflow/internal/aggregation"
	"takerflow/internal/ratio"
)

type fakeSubscriber struct {
	id     string
	fail   error
	mu     sync.Mutex
	frames []string
	closed int
}

func newFake(id string) *fakeSubscriber { return &fakeSubscriber{id: id} }

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(frame []byte) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, string(frame))
	return nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSubscriber) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

// go test -v --run TestWireFormat
func TestWireFormat(t *testing.T) {
	live, err := LiveDeltaFrame(aggregation.Vector{0, 0, 0, 0, 55, 0})
	require.NoError(t, err)
	assert.Equal(t, `{"flag":1,"data":[0,0,0,0,55,0]}`, string(live))

	r, err := RatioFrame(ratio.Snapshot{"30m": 61, "1h": 50})
	require.NoError(t, err)
	assert.Equal(t, `{"flag":0,"data":{"1h":50,"30m":61}}`, string(r))
}

// go test -v --run TestPublishFanout
func TestPublishFanout(t *testing.T) {
	hub := NewHub(nil)
	a, b := newFake("a"), newFake("b")
	require.NoError(t, hub.Register(a))
	require.NoError(t, hub.Register(b))

	hub.PublishLiveDelta(aggregation.Vector{1, 0, 0, 0, 0, 0})

	want := []string{`{"flag":1,"data":[1,0,0,0,0,0]}`}
	assert.Equal(t, want, a.received())
	assert.Equal(t, want, b.received())
}

// go test -v --run TestFailingSubscriberIsDropped
func TestFailingSubscriberIsDropped(t *testing.T) {
	drops := 0
	hub := NewHub(nil, WithDropHook(func() { drops++ }))
	good, bad := newFake("good"), newFake("bad")
	bad.fail = errors.New("broken pipe")
	require.NoError(t, hub.Register(good))
	require.NoError(t, hub.Register(bad))

	hub.PublishRatio(ratio.Snapshot{"1h": 70})

	assert.Equal(t, 1, hub.Count())
	assert.Len(t, good.received(), 1)
	assert.Equal(t, 1, bad.closed)
	assert.Equal(t, 1, drops)

	hub.PublishLiveDelta(aggregation.Vector{})
	assert.Len(t, good.received(), 2)
}

// go test -v --run TestUnregisterIsIdempotent
func TestUnregisterIsIdempotent(t *testing.T) {
	var counts []int
	hub := NewHub(nil, WithCountHook(func(n int) { counts = append(counts, n) }))
	s := newFake("s")
	require.NoError(t, hub.Register(s))

	hub.Unregister(s)
	hub.Unregister(s)

	assert.Equal(t, 0, hub.Count())
	assert.Equal(t, 1, s.closed)
	assert.Equal(t, []int{1, 0}, counts)
}

// go test -v --run TestSubscriberCap
func TestSubscriberCap(t *testing.T) {
	hub := NewHub(nil, WithMaxSubscribers(2))
	require.NoError(t, hub.Register(newFake("1")))
	require.NoError(t, hub.Register(newFake("2")))

	err := hub.Register(newFake("3"))
	assert.ErrorIs(t, err, ErrHubFull)
	assert.Equal(t, 2, hub.Count())
}

// go test -v --run TestReplayLastRatio
func TestReplayLastRatio(t *testing.T) {
	hub := NewHub(nil, WithReplay(true))

	early := newFake("early")
	require.NoError(t, hub.Register(early))
	assert.Empty(t, early.received())

	hub.PublishRatio(ratio.Snapshot{"30m": 40})

	late := newFake("late")
	require.NoError(t, hub.Register(late))
	assert.Equal(t, []string{`{"flag":0,"data":{"30m":40}}`}, late.received())
}

// go test -v --run TestReplayNotReorderedByConcurrentPublish
func TestReplayNotReorderedByConcurrentPublish(t *testing.T) {
	published := make(chan struct{})
	var hub *Hub
	var once sync.Once

	// a publish racing the replay: give it time to overtake before the replay is sent
	hook := func(n int) {
		if n != 1 {
			return
		}
		once.Do(func() {
			go func() {
				hub.PublishRatio(ratio.Snapshot{"30m": 70})
				close(published)
			}()
			select {
			case <-published:
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
	hub = NewHub(nil, WithReplay(true), WithCountHook(hook))
	hub.PublishRatio(ratio.Snapshot{"30m": 40})

	sub := newFake("late")
	require.NoError(t, hub.Register(sub))
	<-published

	assert.Equal(t, []string{
		`{"flag":0,"data":{"30m":40}}`,
		`{"flag":0,"data":{"30m":70}}`,
	}, sub.received())
}

// go test -v --run TestConcurrentRegisterPublish
func TestConcurrentRegisterPublish(t *testing.T) {
	hub := NewHub(nil)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s := newFake(fmt.Sprintf("sub-%d", i))
			_ = hub.Register(s)
			if i%2 == 0 {
				hub.Unregister(s)
			}
		}(i)
		go func() {
			defer wg.Done()
			hub.PublishLiveDelta(aggregation.Vector{1, 1, 1, 1, 1, 1})
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, hub.Count())
	hub.Close()
	assert.Equal(t, 0, hub.Count())
}
