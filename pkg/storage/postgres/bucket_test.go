package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"takerflow/internal/aggregation"
	"takerflow/internal/window"
	"takerflow/pkg/storage/postgres"
)

// go test -v --run TestBucketRecordConversion
func TestBucketRecordConversion(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("KST", 9*3600))
	rec := window.Record{TradeTime: at, Data: aggregation.Vector{1, 2, 3, 4, 5, 6}}

	row := postgres.ToBucketRecord(rec)
	if _, err := uuid.Parse(row.ID); err != nil {
		t.Errorf("expected a generated uuid, got %q", row.ID)
	}
	if row.TradeTime.Location() != time.UTC {
		t.Errorf("expected UTC trade time, got %s", row.TradeTime.Location())
	}
	if len(row.Data) != aggregation.Slots {
		t.Fatalf("expected %d slots, got %d", aggregation.Slots, len(row.Data))
	}

	back := row.ToRecord()
	if !back.TradeTime.Equal(at) || back.Data != rec.Data || back.ID != row.ID {
		t.Errorf("round trip changed record: %+v", back)
	}
}

// go test -v --run TestBucketInsertSumDelete
func TestBucketInsertSumDelete(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	// isolate from earlier runs
	far := time.Now().Add(100 * 365 * 24 * time.Hour)
	if _, err := client.DeleteBefore(ctx, far); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	now := time.Now().Truncate(time.Second)
	for _, rec := range []window.Record{
		{TradeTime: now.Add(-3 * time.Hour), Data: aggregation.Vector{0, 0, 0, 0, 5, 6}},
		{TradeTime: now.Add(-20 * time.Minute), Data: aggregation.Vector{1, 2, 0, 0, 0, 0}},
		{TradeTime: now.Add(-10 * time.Minute), Data: aggregation.Vector{0, 0, 3, 4, 0, 0}},
	} {
		if err := client.InsertBucket(ctx, rec); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	sum, rows, err := client.SumSince(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if rows != 2 {
		t.Errorf("expected 2 rows, got %d", rows)
	}
	if sum != (aggregation.Vector{1, 2, 3, 4, 0, 0}) {
		t.Errorf("unexpected sum: %v", sum)
	}

	// a retried insert of an already committed record is ignored
	retry := window.Record{ID: uuid.NewString(), TradeTime: now.Add(-5 * time.Minute), Data: aggregation.Vector{0, 7, 0, 0, 0, 0}}
	for i := 0; i < 2; i++ {
		if err := client.InsertBucket(ctx, retry); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}
	sum, rows, err = client.SumSince(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if rows != 3 || sum != (aggregation.Vector{1, 9, 3, 4, 0, 0}) {
		t.Errorf("retried insert was counted twice: rows=%d sum=%v", rows, sum)
	}

	deleted, err := client.DeleteBefore(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted row, got %d", deleted)
	}

	_, rows, err = client.SumSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if rows != 3 {
		t.Errorf("expected 3 rows after delete, got %d", rows)
	}
}
