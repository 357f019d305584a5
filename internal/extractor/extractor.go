// Package extractor is the opaque external collaborator that turns raw
// episode events into MemoryOp batches. It is wrapped in a circuit
// breaker so a failing remote model does not cascade into every
// ingest_chunk call blocking on the same dead endpoint.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kamino/squirrel/pkg/types"
)

// ErrCircuitOpen is returned while the breaker is open, without attempting
// a call to the remote extractor.
var ErrCircuitOpen = errors.New("extractor: circuit breaker open")

// Extractor is the capability the ingest_chunk handler depends on.
type Extractor interface {
	Extract(ctx context.Context, episode *types.Episode, recent []*types.Memory) ([]types.MemoryOp, error)
}

// Config controls the circuit breaker and the remote endpoint.
type Config struct {
	BaseURL          string
	Model            string
	MaxRequests      uint32        // half-open trial requests, default 1
	Interval         time.Duration // closed-state failure-count reset window, default 0 (never)
	Timeout          time.Duration // open -> half-open wait, default 60s
	ConsecutiveTrips uint32        // consecutive failures to trip open, default 5
}

func (c Config) withDefaults() Config {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.ConsecutiveTrips == 0 {
		c.ConsecutiveTrips = 5
	}
	return c
}

// HTTPExtractor calls a remote extraction service over HTTP, protected by
// a gobreaker circuit breaker.
type HTTPExtractor struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPExtractor constructs an HTTPExtractor with its own circuit
// breaker instance.
func NewHTTPExtractor(cfg Config) *HTTPExtractor {
	cfg = cfg.withDefaults()

	settings := gobreaker.Settings{
		Name:        "extractor",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveTrips
		},
	}

	return &HTTPExtractor{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

type extractRequest struct {
	Model   string         `json:"model"`
	Episode *types.Episode `json:"episode"`
	Recent  []*types.Memory `json:"recent_memories"`
}

type extractResponse struct {
	Ops []types.MemoryOp `json:"ops"`
}

func (e *HTTPExtractor) Extract(ctx context.Context, episode *types.Episode, recent []*types.Memory) ([]types.MemoryOp, error) {
	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.doRequest(ctx, episode, recent)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result.([]types.MemoryOp), nil
}

func (e *HTTPExtractor) doRequest(ctx context.Context, episode *types.Episode, recent []*types.Memory) ([]types.MemoryOp, error) {
	body, err := json.Marshal(extractRequest{Model: e.cfg.Model, Episode: episode, Recent: recent})
	if err != nil {
		return nil, fmt.Errorf("extractor: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("extractor: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extractor: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extractor: provider returned status %d", resp.StatusCode)
	}

	var parsed extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("extractor: failed to decode response: %w", err)
	}

	return parsed.Ops, nil
}

// State reports the breaker's current state, for status/health reporting.
func (e *HTTPExtractor) State() gobreaker.State {
	return e.breaker.State()
}
