package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"takerflow/internal/aggregation"
	"takerflow/internal/window"
)

const sumQuery = `
	SELECT
		count(),
		sum(data[1]), sum(data[2]), sum(data[3]),
		sum(data[4]), sum(data[5]), sum(data[6])
	FROM bucket_record FINAL
	WHERE trade_time >= ?`

// InsertBucket writes rec. Rows are deduplicated by (trade_time, id), and reads use
// FINAL, so inserting the same record twice counts it once.
func (c *Client) InsertBucket(ctx context.Context, rec window.Record) error {
	id := uuid.New()
	if rec.ID != "" {
		parsed, err := uuid.Parse(rec.ID)
		if err != nil {
			return fmt.Errorf("record id %q: %w", rec.ID, err)
		}
		id = parsed
	}

	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO bucket_record (id, trade_time, data)")
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	if err := batch.Append(id, rec.TradeTime.UTC(), rec.Data.Slice()); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("append row: %w", err)
	}
	return batch.Send()
}

func (c *Client) SumSince(ctx context.Context, since time.Time) (aggregation.Vector, int64, error) {
	var (
		rows uint64
		v    aggregation.Vector
	)
	err := c.conn.QueryRow(ctx, sumQuery, since.UTC()).
		Scan(&rows, &v[0], &v[1], &v[2], &v[3], &v[4], &v[5])
	if err != nil {
		return aggregation.Vector{}, 0, err
	}
	return v, int64(rows), nil
}

// DeleteBefore issues a lightweight mutation. The returned count is taken just before
// the mutation is scheduled.
func (c *Client) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	var n uint64
	if err := c.conn.QueryRow(ctx, "SELECT count() FROM bucket_record FINAL WHERE trade_time < ?", before.UTC()).Scan(&n); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := c.conn.Exec(ctx, "ALTER TABLE bucket_record DELETE WHERE trade_time < ?", before.UTC()); err != nil {
		return 0, err
	}
	return int64(n), nil
}
