package binance

import "strings"

const (
	// DefaultWSURL is the raw-stream endpoint of USDⓈ-M futures.
	DefaultWSURL = "wss://fstream.binance.com/ws"
	// DefaultRESTURL is the USDⓈ-M futures REST base.
	DefaultRESTURL = "https://fapi.binance.com"

	EventAggTrade = "aggTrade"
	StatusTrading = "TRADING"

	exchangeInfoPath = "/fapi/v1/exchangeInfo"
)

// AggTradeStream returns the stream name for a symbol, e.g. "btcusdt@aggTrade".
func AggTradeStream(symbol string) string {
	return strings.ToLower(symbol) + "@" + EventAggTrade
}
