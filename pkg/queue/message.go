package queue

import "time"

// BucketMessage is the exported form of one flushed bucket record.
// ID is the stored record id, letting consumers drop redelivered messages.
type BucketMessage struct {
	ID        string    `json:"id"`
	TradeTime time.Time `json:"tradeTime"`
	Data      []int64   `json:"data"`
	Symbol    string    `json:"symbol"`
}
