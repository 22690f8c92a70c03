// Package engine talks to the external verification engine that evaluates
// queries against a project's component data.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds one engine round trip when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Engine evaluates a single query.
type Engine interface {
	SendQuery(ctx context.Context, req *QueryRequest) (*QueryResponse, error)
}

// Settings tunes the engine for one evaluation
type Settings struct {
	DisableClockReduction bool `json:"disable_clock_reduction"`
}

// QueryRequest is everything the engine needs to evaluate a query
type QueryRequest struct {
	UserID         int64           `json:"user_id"`
	QueryID        int64           `json:"query_id"`
	Query          string          `json:"query"`
	ComponentsInfo json.RawMessage `json:"components_info"`
	Settings       Settings        `json:"settings"`
}

// QueryResponse carries the structured verification result
type QueryResponse struct {
	QueryID int64           `json:"query_id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Info    []string        `json:"info,omitempty"`
}

// HasResult reports whether the engine returned a result payload.
func (r *QueryResponse) HasResult() bool {
	return r != nil && len(r.Result) > 0 && string(r.Result) != "null"
}

// EngineError is an evaluation failure reported by the engine itself,
// as opposed to a transport failure.
type EngineError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *EngineError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
	}
	return "engine error: " + e.Message
}

// Config selects the engine endpoint
type Config struct {
	URL     string
	Timeout time.Duration
}

// New returns the client matching the URL scheme: http(s) or ws(s).
func New(cfg Config, logger zerolog.Logger) (Engine, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("engine URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	switch {
	case strings.HasPrefix(cfg.URL, "http://"), strings.HasPrefix(cfg.URL, "https://"):
		return NewHTTPClient(cfg.URL, cfg.Timeout, logger), nil
	case strings.HasPrefix(cfg.URL, "ws://"), strings.HasPrefix(cfg.URL, "wss://"):
		return NewWSClient(cfg.URL, cfg.Timeout, logger), nil
	default:
		return nil, fmt.Errorf("unsupported engine URL scheme: %s", cfg.URL)
	}
}
