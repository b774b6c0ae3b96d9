package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestNewProducerValidation
func TestNewProducerValidation(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)

	_, err = NewProducer(WithBrokers([]string{"localhost:9092"}), WithTopic(""))
	assert.Error(t, err)

	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("zstd"))
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "bucket-records", p.Topic())
	assert.Equal(t, kafka.Zstd, p.writer.Compression)
}

// go test -v --run TestBucketMessageShape
func TestBucketMessageShape(t *testing.T) {
	msg := BucketMessage{
		ID:        "8f1c6a52-5d0e-4c55-9d7e-0b8f0b5c2a11",
		TradeTime: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Data:      []int64{0, 0, 0, 0, 55, 0},
		Symbol:    "BTCUSDT",
	}
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"8f1c6a52-5d0e-4c55-9d7e-0b8f0b5c2a11","tradeTime":"2024-05-01T12:00:00Z","data":[0,0,0,0,55,0],"symbol":"BTCUSDT"}`, string(b))
}
