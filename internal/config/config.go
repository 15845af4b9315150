package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hitoshi/postdeck/internal/database"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL      string        `env:"DATABASE_URL,required,notEmpty"`
	DatabaseDriver   string        `env:"DATABASE_DRIVER"`
	DBMaxOpenConns   int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT" envDefault:"10s"`

	// Reconcile
	ReconcileInterval    time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1h"`
	ReconcileConcurrency int           `env:"RECONCILE_CONCURRENCY" envDefault:"4"`
	ReconcileRatePerSec  float64       `env:"RECONCILE_RATE_PER_SEC" envDefault:"50"`

	// Cleanup
	DeletedAccountRetention time.Duration `env:"DELETED_ACCOUNT_RETENTION" envDefault:"4320h"`

	// Ops server
	OpsPort string `env:"OPS_PORT" envDefault:"9090"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Driver はDatabaseDriverまたはDatabaseURLから決定したドライバ。
	Driver database.Driver
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	var problems []string

	if cfg.DatabaseDriver == "" {
		cfg.Driver = database.DetectDriver(cfg.DatabaseURL)
	} else {
		d, err := database.ParseDriver(cfg.DatabaseDriver)
		if err != nil {
			problems = append(problems, "DATABASE_DRIVER must be one of postgres, pgx, sqlite")
		}
		cfg.Driver = d
	}
	if cfg.DBMaxOpenConns <= 0 {
		problems = append(problems, "DB_MAX_OPEN_CONNS must be positive")
	}
	if cfg.OperationTimeout <= 0 {
		problems = append(problems, "OPERATION_TIMEOUT must be positive")
	}
	if cfg.ReconcileInterval <= 0 {
		problems = append(problems, "RECONCILE_INTERVAL must be positive")
	}
	if cfg.ReconcileConcurrency <= 0 {
		problems = append(problems, "RECONCILE_CONCURRENCY must be positive")
	}
	if cfg.ReconcileRatePerSec < 0 {
		problems = append(problems, "RECONCILE_RATE_PER_SEC must not be negative")
	}
	if cfg.DeletedAccountRetention <= 0 {
		problems = append(problems, "DELETED_ACCOUNT_RETENTION must be positive")
	}
	if cfg.OpsPort == "" {
		problems = append(problems, "OPS_PORT must not be empty")
	}

	if len(problems) > 0 {
		return nil, errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}

	return cfg, nil
}
