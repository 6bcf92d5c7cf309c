package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/metrics"
)

var (
	ErrGenerationTimeout     = errors.New("GENERATION_TIMEOUT")
	ErrGenerationUnavailable = errors.New("GENERATION_UNAVAILABLE")
)

// Client is a text completion model.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const (
	DefaultTimeout    = 8 * time.Second
	DefaultMaxRetries = 2
)

type GuardConfig struct {
	Logger     *slog.Logger
	Provider   string
	Timeout    time.Duration
	MaxRetries uint

	// RetryInterval overrides the initial backoff interval.
	RetryInterval time.Duration
}

func (cfg *GuardConfig) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Provider == "" {
		cfg.Provider = "unknown"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return nil
}

// Guard bounds every completion with a deadline and a small number of
// retries, and maps failures to ErrGenerationTimeout or
// ErrGenerationUnavailable.
type Guard struct {
	log    *slog.Logger
	cfg    GuardConfig
	client Client
}

func NewGuard(client Client, cfg GuardConfig) (*Guard, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Guard{log: cfg.Logger, cfg: cfg, client: client}, nil
}

func (g *Guard) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	if g.cfg.RetryInterval > 0 {
		bo.InitialInterval = g.cfg.RetryInterval
	}

	start := time.Now()
	attempt := 0
	out, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		text, err := g.client.Complete(ctx, systemPrompt, userPrompt)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(err)
			}
			g.log.Debug("llm: completion attempt failed", "provider", g.cfg.Provider, "attempt", attempt, "error", err)
			return "", err
		}
		if text == "" {
			return "", fmt.Errorf("empty completion")
		}
		return text, nil
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(g.cfg.MaxRetries+1),
	)
	duration := time.Since(start)
	metrics.ModelCallDuration.WithLabelValues(g.cfg.Provider).Observe(duration.Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.ModelCallsTotal.WithLabelValues(g.cfg.Provider, "timeout").Inc()
			g.log.Warn("llm: completion timed out", "provider", g.cfg.Provider, "duration", duration, "attempts", attempt)
			return "", fmt.Errorf("%w: %w", ErrGenerationTimeout, err)
		}
		metrics.ModelCallsTotal.WithLabelValues(g.cfg.Provider, "error").Inc()
		g.log.Warn("llm: completion failed", "provider", g.cfg.Provider, "duration", duration, "attempts", attempt, "error", err)
		return "", fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}

	metrics.ModelCallsTotal.WithLabelValues(g.cfg.Provider, "success").Inc()
	g.log.Debug("llm: completion succeeded", "provider", g.cfg.Provider, "duration", duration, "attempts", attempt)
	return out, nil
}

// IsGenerationFailure reports whether err is one of the generation errors
// that callers answer with the deterministic path.
func IsGenerationFailure(err error) bool {
	return errors.Is(err, ErrGenerationTimeout) || errors.Is(err, ErrGenerationUnavailable)
}
