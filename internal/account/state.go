package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrNoState is returned when the account monitor has never written a state file
var ErrNoState = errors.New("circuit breaker state not found")

// CircuitBreakerState is the drawdown state maintained by the account monitor.
// The pipeline only ever reads it.
type CircuitBreakerState struct {
	StartEquity   float64   `json:"start_equity"`
	CurrentEquity float64   `json:"current_equity"`
	DrawdownRatio float64   `json:"drawdown_ratio"`
	Active        bool      `json:"active"`
	Reason        string    `json:"reason,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Drawdown returns the drawdown ratio, deriving it from equity when not reported
func (s CircuitBreakerState) Drawdown() float64 {
	if s.DrawdownRatio != 0 || s.StartEquity <= 0 {
		return s.DrawdownRatio
	}
	return (s.StartEquity - s.CurrentEquity) / s.StartEquity
}

// StateSource provides the current circuit breaker state
type StateSource interface {
	State(ctx context.Context) (CircuitBreakerState, error)
}

// FileSource reads the state JSON written by the account monitor
type FileSource struct {
	path string
}

// NewFileSource creates a source for the given state file
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// State loads and decodes the state file
func (f *FileSource) State(ctx context.Context) (CircuitBreakerState, error) {
	if err := ctx.Err(); err != nil {
		return CircuitBreakerState{}, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return CircuitBreakerState{}, fmt.Errorf("%w: %s", ErrNoState, f.path)
		}
		return CircuitBreakerState{}, fmt.Errorf("read circuit breaker state: %w", err)
	}

	var state CircuitBreakerState
	if err := json.Unmarshal(data, &state); err != nil {
		return CircuitBreakerState{}, fmt.Errorf("decode circuit breaker state %s: %w", f.path, err)
	}
	return state, nil
}

// StaticSource returns a fixed state; used by tests and dry runs
type StaticSource struct {
	Value CircuitBreakerState
	Err   error
}

// State returns the configured value
func (s StaticSource) State(context.Context) (CircuitBreakerState, error) {
	return s.Value, s.Err
}
