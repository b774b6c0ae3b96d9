package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"takerflow/internal/aggregation"
)

// WSClient opens aggTrade subscriptions on the futures websocket.
type WSClient struct {
	url         string
	dialer      *websocket.Dialer
	readTimeout time.Duration
	nextID      atomic.Int64
	logger      *zap.Logger
}

// NewWSClient creates a client for url. readTimeout bounds the wait for any frame,
// so a silent connection is reported as an error instead of hanging.
func NewWSClient(url string, readTimeout time.Duration, logger *zap.Logger) *WSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSClient{
		url:         url,
		dialer:      websocket.DefaultDialer,
		readTimeout: readTimeout,
		logger:      logger,
	}
}

// Subscribe connects and sends a SUBSCRIBE request for the symbol's aggTrade stream.
// It does not wait for the acknowledgement; TradeStream.Next consumes it.
func (c *WSClient) Subscribe(ctx context.Context, symbol string) (*TradeStream, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Error("Failed to connect to WebSocket", zap.String("url", c.url), zap.Error(err))
		return nil, err
	}
	c.logger.Info("WebSocket connected", zap.String("url", c.url))

	id := c.nextID.Add(1)
	subMsg := subscribeRequest{
		Method: "SUBSCRIBE",
		Params: []string{AggTradeStream(symbol)},
		ID:     id,
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("websocket subscribe failed: %w", err)
	}

	return &TradeStream{
		conn:        conn,
		symbol:      symbol,
		readTimeout: c.readTimeout,
		logger:      c.logger,
	}, nil
}

// TradeStream is one live subscription.
type TradeStream struct {
	conn        *websocket.Conn
	symbol      string
	readTimeout time.Duration
	logger      *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Next blocks until the next trade arrives and returns it as a one-element batch.
// Control responses are consumed silently; a rejected subscription is an error.
// Cancelling ctx unblocks the read.
func (s *TradeStream) Next(ctx context.Context) ([]aggregation.TradeEvent, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.readTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}

		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("websocket read: %w", err)
		}

		trade, ok, err := s.decode(msg)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		ev, err := trade.ToTradeEvent()
		if err != nil {
			// one malformed trade is not worth a reconnect
			s.logger.Warn("skipping malformed trade", zap.Int64("aggTradeId", trade.AggTradeID), zap.Error(err))
			continue
		}
		return []aggregation.TradeEvent{ev}, nil
	}
}

func (s *TradeStream) decode(msg []byte) (AggTrade, bool, error) {
	var probe struct {
		EventType string `json:"e"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		return AggTrade{}, false, fmt.Errorf("decode frame: %w", err)
	}

	if probe.EventType == "" {
		var ctrl controlResponse
		if err := json.Unmarshal(msg, &ctrl); err == nil && ctrl.Error != nil {
			return AggTrade{}, false, fmt.Errorf("subscription rejected: %d %s", ctrl.Error.Code, ctrl.Error.Msg)
		}
		return AggTrade{}, false, nil
	}
	if probe.EventType != EventAggTrade {
		return AggTrade{}, false, nil
	}

	var trade AggTrade
	if err := json.Unmarshal(msg, &trade); err != nil {
		return AggTrade{}, false, fmt.Errorf("decode aggTrade: %w", err)
	}
	return trade, true, nil
}

func (s *TradeStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
