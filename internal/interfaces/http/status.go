package http

import (
	"sync"
	"time"
)

// Summary is the last run as reported by /health
type Summary struct {
	RunID      string    `json:"run_id"`
	AsOf       time.Time `json:"as_of"`
	FinishedAt time.Time `json:"finished_at"`
	Halted     bool      `json:"halted"`
	Reasons    []string  `json:"reasons,omitempty"`
	Regime     string    `json:"regime,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	BMI        float64   `json:"bmi"`
	Positions  int       `json:"positions"`
	Fallbacks  []string  `json:"fallbacks,omitempty"`
	FailedOpen []string  `json:"failed_open,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Status holds the most recent run summary
type Status struct {
	mu   sync.RWMutex
	last *Summary
}

// Set replaces the stored summary
func (s *Status) Set(sum Summary) {
	s.mu.Lock()
	s.last = &sum
	s.mu.Unlock()
}

// Last returns the stored summary; ok is false before the first run finishes
func (s *Status) Last() (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Summary{}, false
	}
	return *s.last, true
}
