package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/duck"
)

const (
	DefaultResultCacheTTL  = 10 * time.Minute
	DefaultSummaryCacheTTL = time.Hour
)

type Config struct {
	Logger *slog.Logger
	DB     duck.DB

	// ResultCacheTTL bounds how long a query result is reused. A negative
	// value disables the result cache.
	ResultCacheTTL  time.Duration
	SummaryCacheTTL time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.DB == nil {
		return fmt.Errorf("database is required")
	}
	if cfg.ResultCacheTTL == 0 {
		cfg.ResultCacheTTL = DefaultResultCacheTTL
	}
	if cfg.SummaryCacheTTL <= 0 {
		cfg.SummaryCacheTTL = DefaultSummaryCacheTTL
	}
	return nil
}
