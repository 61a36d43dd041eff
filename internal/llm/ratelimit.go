package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/csheth/studydesk/internal/logger"
)

const (
	defaultTokensPerSecond = 30000
	defaultBurstTokens     = 60000
	defaultMaxRetries      = 4
	defaultBaseRetryDelay  = time.Second
	defaultMaxRetryDelay   = 16 * time.Second
)

// ErrRateLimited is returned once retries on 429 responses are exhausted.
var ErrRateLimited = errors.New("rate limited by llm provider")

// StatusError is a non-2xx provider response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error: %d %s (%s)", e.Provider, e.Code, http.StatusText(e.Code), e.Body)
}

// LimiterConfig tunes a Limiter. Zero values pick defaults.
type LimiterConfig struct {
	TokensPerSecond int
	Burst           int
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
}

// Limiter is a token bucket shared by every call of a client, with
// exponential backoff on rate-limit responses.
type Limiter struct {
	bucket     *rate.Limiter
	burst      int
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewLimiter returns a limiter for cfg.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.TokensPerSecond <= 0 {
		cfg.TokensPerSecond = defaultTokensPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurstTokens
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseRetryDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxRetryDelay
	}
	return &Limiter{
		bucket:     rate.NewLimiter(rate.Limit(cfg.TokensPerSecond), cfg.Burst),
		burst:      cfg.Burst,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
	}
}

// estimateTokens uses the usual four characters per token.
func estimateTokens(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += len(t)
	}
	return n/4 + 1
}

// call waits for budget, then runs fn, retrying only rate-limit failures.
func call[T any](ctx context.Context, l *Limiter, tokens int, log logger.Logger, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if tokens > l.burst {
		tokens = l.burst
	}
	if err := l.bucket.WaitN(ctx, tokens); err != nil {
		return zero, fmt.Errorf("rate limiter wait: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(l.baseDelay) * math.Pow(2, float64(attempt-1)))
			if delay > l.maxDelay {
				delay = l.maxDelay
			}
			log.Info("retry %d/%d after %v", attempt, l.maxRetries, delay)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			}
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRateLimitError(err) {
			return zero, err
		}
		log.Warn("rate limited on attempt %d/%d: %v", attempt+1, l.maxRetries+1, err)
	}
	return zero, fmt.Errorf("%w after %d attempts: %v", ErrRateLimited, l.maxRetries+1, lastErr)
}

func isRateLimitError(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests
	}
	msg := err.Error()
	for _, marker := range []string{"429", "rate limit", "rate_limit_exceeded", "Too Many Requests"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
