package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm/clause"

	"takerflow/internal/aggregation"
	"takerflow/internal/window"
)

// sumQuery adds the array slots one by one. Postgres arrays are 1-based.
const sumQuery = `
SELECT
	COUNT(*)                   AS row_count,
	COALESCE(SUM(data[1]), 0)  AS s0,
	COALESCE(SUM(data[2]), 0)  AS s1,
	COALESCE(SUM(data[3]), 0)  AS s2,
	COALESCE(SUM(data[4]), 0)  AS s3,
	COALESCE(SUM(data[5]), 0)  AS s4,
	COALESCE(SUM(data[6]), 0)  AS s5
FROM bucket_record
WHERE trade_time >= ?`

type sumRow struct {
	RowCount int64
	S0       int64
	S1       int64
	S2       int64
	S3       int64
	S4       int64
	S5       int64
}

func (p *PostgresClient) InsertBucket(ctx context.Context, rec window.Record) error {
	record := ToBucketRecord(rec)
	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(record)
	if err := tx.Error; err != nil {
		return fmt.Errorf("insert bucket at %s: %w", rec.TradeTime.Format(time.RFC3339), err)
	}
	return nil
}

func (p *PostgresClient) SumSince(ctx context.Context, since time.Time) (aggregation.Vector, int64, error) {
	var row sumRow
	if err := p.DB.WithContext(ctx).Raw(sumQuery, since).Scan(&row).Error; err != nil {
		return aggregation.Vector{}, 0, err
	}
	return aggregation.Vector{row.S0, row.S1, row.S2, row.S3, row.S4, row.S5}, row.RowCount, nil
}

func (p *PostgresClient) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tx := p.DB.WithContext(ctx).
		Where("trade_time < ?", before).
		Delete(&BucketRecord{})
	return tx.RowsAffected, tx.Error
}

// ToBucketRecord converts a window record for DB insertion. A record without an ID
// gets a fresh one.
func ToBucketRecord(rec window.Record) *BucketRecord {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &BucketRecord{
		ID:        id,
		TradeTime: rec.TradeTime.UTC(),
		Data:      pq.Int64Array(rec.Data.Slice()),
	}
}

func (r BucketRecord) ToRecord() window.Record {
	return window.Record{
		ID:        r.ID,
		TradeTime: r.TradeTime,
		Data:      aggregation.VectorFrom(r.Data),
	}
}
