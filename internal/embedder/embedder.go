// Package embedder implements the text -> fixed-length vector gateway
// contract: retry with exponential backoff on transient provider errors,
// and little-endian float32 byte packing for storage.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyText is returned when the input text is empty or whitespace.
var ErrEmptyText = errors.New("embedder: empty text")

// ErrEmbeddingFailed wraps the last underlying cause after all retries
// are exhausted.
type ErrEmbeddingFailed struct {
	Cause error
}

func (e *ErrEmbeddingFailed) Error() string {
	return fmt.Sprintf("embedder: embedding failed: %v", e.Cause)
}

func (e *ErrEmbeddingFailed) Unwrap() error { return e.Cause }

// Provider is the raw capability a concrete embedding backend implements.
// It need not retry; Gateway wraps it with the retry/backoff contract.
type Provider interface {
	Embed(ctx context.Context, text string, model string) ([]float32, error)
}

// Embedder is the capability the rest of Squirrel depends on. Callers
// substitute a deterministic fake in tests.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config controls retry behavior and the target model/dimension.
type Config struct {
	Model       string
	Dimension   int
	MaxRetries  int           // N, default 3
	RetryDelay  time.Duration // initial delay δ, default 1s
	RetryBackoff float64      // multiplier β, default 2.0
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2.0
	}
	return c
}

// Gateway implements Embedder on top of a raw Provider, adding empty-text
// rejection, retryable/fatal error classification, and exponential backoff.
type Gateway struct {
	provider Provider
	cfg      Config
	sleep    func(time.Duration) // overridable in tests
}

// NewGateway constructs a Gateway. cfg's zero values take the spec's
// defaults (δ=1s, β=2, N=3).
func NewGateway(provider Provider, cfg Config) *Gateway {
	return &Gateway{provider: provider, cfg: cfg.withDefaults(), sleep: time.Sleep}
}

// Embed retries transient failures with exponential backoff before
// surfacing ErrEmbeddingFailed.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	delay := g.cfg.RetryDelay
	var lastErr error

	for attempt := 0; attempt < g.cfg.MaxRetries; attempt++ {
		vec, err := g.provider.Embed(ctx, text, g.cfg.Model)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, &ErrEmbeddingFailed{Cause: err}
		}

		if attempt == g.cfg.MaxRetries-1 {
			break
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.sleep(delay)
		delay = time.Duration(float64(delay) * g.cfg.RetryBackoff)
	}

	return nil, &ErrEmbeddingFailed{Cause: lastErr}
}

// retryableSubstrings classifies provider errors as transient.
var retryableSubstrings = []string{
	"rate limit",
	"timeout",
	"connection reset",
	"429",
	"500", "502", "503", "504",
}

func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
