package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

// ConfigDirEnv overrides the directory searched for config.yaml.
const ConfigDirEnv = "TAKERFLOW_CONFIG_DIR"

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Feed        FeedConfig        `mapstructure:"feed"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Store       StoreConfig       `mapstructure:"store"`
	Schedule    ScheduleConfig    `mapstructure:"schedule"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Broadcast   BroadcastConfig   `mapstructure:"broadcast"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	ClickHouse  ClickHouseConfig  `mapstructure:"clickhouse"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Log         LogConfig         `mapstructure:"log"`
}

type AppConfig struct {
	Environment string `mapstructure:"environment" default:"dev" validate:"oneof=dev prod"`
}

// FeedConfig describes the upstream trade stream.
type FeedConfig struct {
	Symbol             string        `mapstructure:"symbol" default:"BTCUSDT" validate:"required,uppercase"`
	WSURL              string        `mapstructure:"ws_url" default:"wss://fstream.binance.com/ws" validate:"required,url"`
	RESTURL            string        `mapstructure:"rest_url" default:"https://fapi.binance.com" validate:"required,url"`
	Timeout            time.Duration `mapstructure:"timeout" default:"10s" validate:"gt=0"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout" default:"60s" validate:"gt=0"`
	UnsupportedBackoff time.Duration `mapstructure:"unsupported_backoff" default:"15s" validate:"gt=0"`
	ErrorBackoff       time.Duration `mapstructure:"error_backoff" default:"30s" validate:"gt=0"`
	LiveThreshold      int           `mapstructure:"live_threshold" default:"3" validate:"gte=1"`
}

// AggregationConfig is the size-bucket table, in multiples of Unit quote currency.
type AggregationConfig struct {
	Unit   int64 `mapstructure:"unit" default:"1000" validate:"gt=0"`
	Min    int64 `mapstructure:"min" default:"10" validate:"gte=0"`
	Medium int64 `mapstructure:"medium" default:"100" validate:"gtfield=Min"`
	Large  int64 `mapstructure:"large" default:"1000" validate:"gtfield=Medium"`
}

type StoreConfig struct {
	Driver         string        `mapstructure:"driver" default:"postgres" validate:"oneof=postgres clickhouse memory"`
	Retention      time.Duration `mapstructure:"retention" default:"72h" validate:"gt=0"`
	Periods        []string      `mapstructure:"periods" default:"[\"30m\",\"1h\",\"2h\",\"4h\",\"12h\",\"1d\"]" validate:"min=1,unique,dive,period"`
	CreateDatabase bool          `mapstructure:"create_database"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" default:"5s" validate:"gt=0"`
}

type ScheduleConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval" default:"60s" validate:"gt=0"`
	RatioInterval time.Duration `mapstructure:"ratio_interval" default:"5m" validate:"gt=0"`
	RatioTimeout  time.Duration `mapstructure:"ratio_timeout" default:"10s" validate:"gt=0"`
	PurgeInterval time.Duration `mapstructure:"purge_interval" default:"1h" validate:"gt=0"`
}

type HTTPConfig struct {
	Host            string        `mapstructure:"host" default:"0.0.0.0"`
	Port            int           `mapstructure:"port" default:"8080" validate:"gt=0,lte=65535"`
	WSPath          string        `mapstructure:"ws_path" default:"/ws" validate:"startswith=/"`
	AllowOrigins    []string      `mapstructure:"allow_origins" default:"[\"*\"]"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" default:"10s"`
}

type BroadcastConfig struct {
	MaxSubscribers  int           `mapstructure:"max_subscribers" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" default:"5s" validate:"gt=0"`
	ReplayLastRatio bool          `mapstructure:"replay_last_ratio"`
}

type ClickHouseConfig struct {
	Host        string        `mapstructure:"host" default:"localhost"`
	Port        int           `mapstructure:"port" default:"9000"`
	Database    string        `mapstructure:"database" default:"takerflow"`
	User        string        `mapstructure:"user" default:"default"`
	Password    string        `mapstructure:"password"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" default:"5s" validate:"gt=0"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host" default:"localhost"`
	Port     int           `mapstructure:"port" default:"6379"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix" default:"takerflow"`
	QueryTTL time.Duration `mapstructure:"query_ttl" default:"15s"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers" validate:"required_if=Enabled true"`
	Topic        string        `mapstructure:"topic" default:"bucket-records"`
	Compression  string        `mapstructure:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" default:"10s" validate:"gt=0"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level" default:"info"`      // "debug", "info", "warn", "error"
	Format      string `mapstructure:"format" default:"json"`     // "json" or "console"
	OutputFile  string `mapstructure:"output_file"`               // rotated file output (optional)
	Environment string `mapstructure:"environment" default:"dev"` // "dev" or "prod"
	MaxSizeMB   int    `mapstructure:"max_size_mb" default:"10"`  // rotate after this size
	MaxBackups  int    `mapstructure:"max_backups" default:"5"`   // rotated files kept
	MaxAgeDays  int    `mapstructure:"max_age_days" default:"7"`  // rotated file retention
	Compress    bool   `mapstructure:"compress"`                  // gzip rotated files
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	cfg, err := LoadFrom(searchPaths()...)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom reads config.yaml from the first of paths that has one. A missing file is
// not an error: defaults and environment variables still apply.
func LoadFrom(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// Support environment variables with dot notation (e.g., FEED_SYMBOL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, reflect.TypeOf(Config{}), "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// defaults first, so an explicit zero in the file or env is kept
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func searchPaths() []string {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return []string{dir}
	}

	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		return []string{filepath.Join(pwd, "../../config"), filepath.Join(pwd, "config")}
	}
	return []string{filepath.Join(filepath.Dir(ex), "../config"), filepath.Join(filepath.Dir(ex), "config")}
}

// bindEnvs registers every mapstructure key so AutomaticEnv also covers keys that are
// absent from config.yaml.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, f.Type, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}
