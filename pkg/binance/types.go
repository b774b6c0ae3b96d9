package binance

// ErrorResponse is the body Binance returns with non-2xx REST responses.
type ErrorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type ExchangeInfoResponse struct {
	Timezone   string       `json:"timezone"`
	ServerTime int64        `json:"serverTime"` // milliseconds since epoch
	Symbols    []SymbolInfo `json:"symbols"`
}

type SymbolInfo struct {
	Symbol       string `json:"symbol"`       // e.g., "BTCUSDT"
	Pair         string `json:"pair"`         // e.g., "BTCUSDT"
	ContractType string `json:"contractType"` // e.g., "PERPETUAL"
	Status       string `json:"status"`       // "TRADING", "SETTLING", ...
	BaseAsset    string `json:"baseAsset"`
	QuoteAsset   string `json:"quoteAsset"`
}

// AggTrade is one aggregated trade event of the <symbol>@aggTrade stream.
type AggTrade struct {
	EventType    string `json:"e"` // "aggTrade"
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	AggTradeID   int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"` // true: the taker sold
}

// subscribeRequest is the live-subscription control message.
type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// controlResponse answers a control message. Error is set when it was rejected.
type controlResponse struct {
	ID     *int64         `json:"id"`
	Result any            `json:"result"`
	Error  *ErrorResponse `json:"error"`
}
