package postgres_test

import (
	"os"
	"testing"

	"takerflow/config"
	"takerflow/pkg/storage/postgres"
)

// go test -v --run TestCreateDatabase
func TestCreateDatabase(t *testing.T) {
	if os.Getenv(TestDSNEnv) == "" {
		t.Skipf("%s not set", TestDSNEnv)
	}

	cfg := config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: os.Getenv("PGPASSWORD"),
		DBName:   "test_bucket_db",
		SSLMode:  "disable",
	}

	if err := postgres.CreateDatabase(cfg, "dev"); err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	// second call sees the existing database
	if err := postgres.CreateDatabase(cfg, "dev"); err != nil {
		t.Fatalf("create database is not idempotent: %v", err)
	}
}
