// Package retry provides retry logic for broker operations with exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/torqfleet/botfleet/internal/broker"
	"github.com/torqfleet/botfleet/internal/util"
)

// Config contains retry configuration parameters.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig provides sensible defaults for retry operations.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Client wraps a broker with retry logic for its fallible, idempotent
// operations (market submission and rates fetch). Order-modifying calls
// that are not safely retryable without deduplication (ModifySLTP,
// RemovePending) are left to the caller.
type Client struct {
	broker broker.Broker
	logger *log.Logger
	config Config
}

// NewClient creates a new retry client with the given broker and optional config.
func NewClient(br broker.Broker, logger *log.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	if logger == nil {
		logger = log.Default()
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig.MaxBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	return &Client{broker: br, logger: logger, config: cfg}
}

// SubmitMarketWithRetry submits a market order, retrying transient broker
// failures with exponential backoff and jitter. A non-transient failure (a
// rejected order, an authentication error) returns immediately without
// exhausting the budget.
func (c *Client) SubmitMarketWithRetry(ctx context.Context, req broker.MarketOrderRequest) (broker.OrderResult, error) {
	op := func(opCtx context.Context) (broker.OrderResult, error) {
		return c.broker.SubmitMarket(opCtx, req)
	}
	return doWithRetry(ctx, c, "submit market order", op)
}

// RatesWithRetry fetches historical bars, retrying transient broker
// failures with exponential backoff and jitter.
func (c *Client) RatesWithRetry(ctx context.Context, symbol string, tf util.Timeframe, count int) ([]broker.Bar, error) {
	op := func(opCtx context.Context) ([]broker.Bar, error) {
		return c.broker.Rates(opCtx, symbol, tf, count)
	}
	return doWithRetry(ctx, c, "fetch rates for "+symbol, op)
}

// doWithRetry is the shared retry loop: bound the whole operation by
// config.Timeout, retry c.config.MaxRetries times on a transient error with
// backoff-plus-jitter between attempts, and give up immediately on a
// non-transient error.
func doWithRetry[T any](ctx context.Context, c *Client, label string, op func(context.Context) (T, error)) (T, error) {
	var zero T

	opCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-opCtx.Done():
			return zero, fmt.Errorf("%s: timed out after %v: %w", label, c.config.Timeout, opCtx.Err())
		default:
		}

		result, err := op(opCtx)
		if err == nil {
			return result, nil
		}

		lastErr = err
		c.logger.Printf("retry: %s attempt %d/%d failed: %v", label, attempt+1, c.config.MaxRetries+1, err)

		if !c.isTransientError(err) || attempt >= c.config.MaxRetries {
			break
		}

		c.logger.Printf("retry: %s transient error, retrying in %v", label, backoff)
		select {
		case <-time.After(backoff):
			backoff = c.calculateNextBackoff(backoff)
		case <-opCtx.Done():
			return zero, fmt.Errorf("%s: timed out during backoff: %w", label, opCtx.Err())
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", label, c.config.MaxRetries+1, lastErr)
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.Printf("retry: failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

func (c *Client) isTransientError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"i/o timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"temporarily unavailable",
		"server error",
		"rate limit",
		"429",
		"502",
		"503",
		"504",
		"network",
		"dns",
		"tcp",
		"no such host",
		"deadline exceeded",
		"broken pipe",
		"eof",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
