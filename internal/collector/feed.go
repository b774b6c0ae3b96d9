package collector

import (
	"context"

	"go.uber.org/zap"

	"takerflow/internal/supervisor"
	"takerflow/pkg/binance"
)

// binanceFeed adapts the Binance clients to supervisor.Feed.
type binanceFeed struct {
	ws     *binance.WSClient
	rest   *binance.RESTClient
	symbol string
	logger *zap.Logger
}

func (f *binanceFeed) Supported(ctx context.Context) bool {
	ok, err := f.rest.IsTrading(ctx, f.symbol)
	if err != nil {
		f.logger.Warn("exchange info probe failed", zap.String("symbol", f.symbol), zap.Error(err))
		return false
	}
	return ok
}

func (f *binanceFeed) Subscribe(ctx context.Context, symbol string) (supervisor.Stream, error) {
	stream, err := f.ws.Subscribe(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return stream, nil
}
