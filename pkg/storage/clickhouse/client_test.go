package clickhouse

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takerflow/internal/aggregation"
	"takerflow/internal/window"
)

// go test -v --run TestCreateTableStmt
func TestCreateTableStmt(t *testing.T) {
	stmt := createTableStmt(72 * time.Hour)
	assert.Contains(t, stmt, "data Array(Int64)")
	assert.Contains(t, stmt, "ENGINE = ReplacingMergeTree()")
	assert.Contains(t, stmt, "ORDER BY (trade_time, id)")
	assert.Contains(t, stmt, "TTL trade_time + INTERVAL 259200 SECOND")
}

// go test -v --run TestNewClientRequiresHost
func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(context.Background())
	assert.Error(t, err)
}

// go test -v --run TestClickHouseBuckets
func TestClickHouseBuckets(t *testing.T) {
	addr := os.Getenv("TAKERFLOW_TEST_CLICKHOUSE_ADDR") // host:port
	if addr == "" {
		t.Skip("TAKERFLOW_TEST_CLICKHOUSE_ADDR not set")
	}
	host, portStr, _ := strings.Cut(addr, ":")
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	ctx := context.Background()
	client, err := NewClient(ctx, WithAddr(host, port))
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.InitSchema(ctx))

	since := time.Now().Add(time.Hour) // future window keeps earlier runs out
	rec := window.Record{ID: uuid.NewString(), TradeTime: since.Add(time.Minute), Data: aggregation.Vector{1, 2, 3, 4, 5, 6}}
	require.NoError(t, client.InsertBucket(ctx, rec))
	require.NoError(t, client.InsertBucket(ctx, rec))

	sum, rows, err := client.SumSince(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.Equal(t, rec.Data, sum)
}
