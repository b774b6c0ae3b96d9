package postgres

import (
	"time"

	"github.com/lib/pq"
)

// BucketRecord is one flushed bucket vector. Data holds the six slot counters in
// sell-small, buy-small, sell-medium, buy-medium, sell-large, buy-large order.
// ID is assigned when the vector is drained, so a retried flush hits the primary key.
type BucketRecord struct {
	ID string `gorm:"primaryKey;type:uuid"`

	TradeTime time.Time     `gorm:"not null;index:idx_bucket_trade_time"`
	Data      pq.Int64Array `gorm:"type:bigint[];not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (BucketRecord) TableName() string {
	return "bucket_record"
}
