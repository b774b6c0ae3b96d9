package broadcast

import (
	"encoding/json"

	"takerflow/internal/aggregation"
	"takerflow/internal/ratio"
)

// Frame flags on the wire.
const (
	FlagRatio = 0
	FlagLive  = 1
)

// Message is the envelope of every frame sent to subscribers.
type Message struct {
	Flag int `json:"flag"`
	Data any `json:"data"`
}

// LiveDeltaFrame encodes {"flag":1,"data":[n0,...,n5]}.
func LiveDeltaFrame(v aggregation.Vector) ([]byte, error) {
	return json.Marshal(Message{Flag: FlagLive, Data: v})
}

// RatioFrame encodes {"flag":0,"data":{"30m":NN,...}}.
func RatioFrame(s ratio.Snapshot) ([]byte, error) {
	return json.Marshal(Message{Flag: FlagRatio, Data: s})
}
