package broadcast

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takerflow/internal/aggregation"
	"takerflow/internal/ratio"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForCount(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Count() == n }, 2*time.Second, 10*time.Millisecond)
}

// go test -v --run TestWebsocketSubscriber
func TestWebsocketSubscriber(t *testing.T) {
	hub := NewHub(nil, WithReplay(true))
	hub.PublishRatio(ratio.Snapshot{"1h": 55})

	srv := httptest.NewServer(Handler(hub, HandlerOptions{WriteTimeout: time.Second}))
	defer srv.Close()

	conn := dial(t, srv)
	waitForCount(t, hub, 1)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"flag":0,"data":{"1h":55}}`, string(msg))

	hub.PublishLiveDelta(aggregation.Vector{0, 12, 0, 0, 0, 0})
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"flag":1,"data":[0,12,0,0,0,0]}`, string(msg))

	// inbound frames are ignored
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))

	conn.Close()
	waitForCount(t, hub, 0)
}

// go test -v --run TestWebsocketRejectsWhenFull
func TestWebsocketRejectsWhenFull(t *testing.T) {
	hub := NewHub(nil, WithMaxSubscribers(1))
	srv := httptest.NewServer(Handler(hub, HandlerOptions{}))
	defer srv.Close()

	dial(t, srv)
	waitForCount(t, hub, 1)

	second := dial(t, srv)
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := second.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "unexpected error: %v", err)
	assert.Equal(t, 1, hub.Count())
}
