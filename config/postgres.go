package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// PostgresConfig defines the configuration for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host" default:"localhost"`
	Port     int    `mapstructure:"port" default:"5432"`
	User     string `mapstructure:"user" default:"postgres"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname" default:"takerflow"`
	SSLMode  string `mapstructure:"sslmode" default:"disable"`
	TimeZone string `mapstructure:"timezone" default:"UTC"`

	MaxOpenConns    int           `mapstructure:"max_open_conns" default:"10"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" default:"5"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" default:"1h"`

	// Parameter Store names read in prod instead of Host/User/Password.
	SSMHostParam     string `mapstructure:"ssm_host_param" default:"TAKERFLOW_DB_HOST"`
	SSMUserParam     string `mapstructure:"ssm_user_param" default:"TAKERFLOW_DB_USER"`
	SSMPasswordParam string `mapstructure:"ssm_password_param" default:"TAKERFLOW_DB_PASSWORD"`
}

// DSN builds the connection string for the configured database. In prod the
// credentials come from AWS Systems Manager Parameter Store.
func (cfg *PostgresConfig) DSN(env string) (string, error) {
	return cfg.dsnFor(env, cfg.DBName)
}

// ServerDSN points at the maintenance database so the target database can be created.
func (cfg *PostgresConfig) ServerDSN(env string) (string, error) {
	return cfg.dsnFor(env, "postgres")
}

func (cfg *PostgresConfig) dsnFor(env, dbName string) (string, error) {
	host, user, password := cfg.Host, cfg.User, cfg.Password

	if env == "prod" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var err error
		if host, err = getParameterStoreValue(ctx, cfg.SSMHostParam, true); err != nil {
			return "", err
		}
		if user, err = getParameterStoreValue(ctx, cfg.SSMUserParam, true); err != nil {
			return "", err
		}
		if password, err = getParameterStoreValue(ctx, cfg.SSMPasswordParam, true); err != nil {
			return "", err
		}
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.Port, user, password, dbName, cfg.SSLMode,
	)
	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}
	return dsn, nil
}

func getParameterStoreValue(ctx context.Context, parameterName string, decrypt bool) (string, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}

	client := ssm.NewFromConfig(awsCfg)

	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &parameterName,
		WithDecryption: &decrypt,
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", parameterName, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", parameterName)
	}

	return *result.Parameter.Value, nil
}
