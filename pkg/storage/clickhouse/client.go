package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClientConfig holds connection settings for the bucket store.
type ClientConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	DialTimeout time.Duration
	Retention   time.Duration
}

type ClientOption func(*ClientConfig)

func WithAddr(host string, port int) ClientOption {
	return func(c *ClientConfig) {
		c.Host = host
		c.Port = port
	}
}

func WithAuth(database, user, password string) ClientOption {
	return func(c *ClientConfig) {
		c.Database = database
		c.User = user
		c.Password = password
	}
}

func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.DialTimeout = d }
}

// WithRetention sets the table TTL declared by InitSchema.
func WithRetention(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.Retention = d }
}

// Client stores bucket records in a ReplacingMergeTree table.
type Client struct {
	conn driver.Conn
	cfg  ClientConfig
}

// NewClient opens and pings a native-protocol connection.
func NewClient(ctx context.Context, opts ...ClientOption) (*Client, error) {
	cfg := ClientConfig{
		Port:        9000,
		Database:    "default",
		User:        "default",
		DialTimeout: 5 * time.Second,
		Retention:   72 * time.Hour,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	return &Client{conn: conn, cfg: cfg}, nil
}

// InitSchema creates the bucket table if it does not exist. Rows expire through the
// table TTL in addition to explicit deletes. A retried insert shares the sorting key
// of the original row and collapses into it.
func (c *Client) InitSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, createTableStmt(c.cfg.Retention)); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func createTableStmt(retention time.Duration) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS bucket_record (
			id UUID,
			trade_time DateTime('UTC'),
			data Array(Int64),
			recorded_at DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree()
		ORDER BY (trade_time, id)
		TTL trade_time + INTERVAL %d SECOND`, int64(retention.Seconds()))
}

// Health performs health check.
func (c *Client) Health(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
