package stream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Phase names, in execution order
const (
	PhaseDiagnostics = "diagnostics"
	PhaseRegime      = "regime"
	PhaseUniverse    = "universe"
	PhaseSector      = "sector"
	PhaseScoring     = "scoring"
	PhaseGamma       = "gamma"
	PhaseSizing      = "sizing"
)

// PhaseEvent describes one phase transition of a run
type PhaseEvent struct {
	RunID        string            `json:"run_id"`
	Phase        string            `json:"phase"`
	AsOf         time.Time         `json:"as_of"`
	SurvivorsIn  int               `json:"survivors_in"`
	SurvivorsOut int               `json:"survivors_out"`
	Exclusions   map[string]int    `json:"exclusions,omitempty"`
	Fallbacks    []string          `json:"fallbacks,omitempty"`
	FailedOpen   []string          `json:"failed_open,omitempty"`
	Detail       map[string]string `json:"detail,omitempty"`
	Halted       bool              `json:"halted,omitempty"`
	Duration     time.Duration     `json:"duration_ns"`
}

// Sink receives phase events
type Sink interface {
	Emit(ctx context.Context, ev PhaseEvent) error
	Close() error
}

// LogSink writes events to the structured log
type LogSink struct {
	Level zerolog.Level
}

func (s LogSink) Emit(_ context.Context, ev PhaseEvent) error {
	e := log.WithLevel(s.Level).
		Str("run_id", ev.RunID).
		Str("phase", ev.Phase).
		Int("in", ev.SurvivorsIn).
		Int("out", ev.SurvivorsOut).
		Dur("duration", ev.Duration)
	if len(ev.Exclusions) > 0 {
		d := zerolog.Dict()
		for reason, n := range ev.Exclusions {
			d.Int(reason, n)
		}
		e = e.Dict("exclusions", d)
	}
	if len(ev.Fallbacks) > 0 {
		e = e.Strs("fallbacks", ev.Fallbacks)
	}
	if len(ev.FailedOpen) > 0 {
		e = e.Strs("failed_open", ev.FailedOpen)
	}
	for k, v := range ev.Detail {
		e = e.Str(k, v)
	}
	if ev.Halted {
		e = e.Bool("halted", true)
	}
	e.Msg("Phase complete")
	return nil
}

func (LogSink) Close() error { return nil }

// Recorder keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []PhaseEvent
}

func (r *Recorder) Emit(_ context.Context, ev PhaseEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded events
func (r *Recorder) Events() []PhaseEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PhaseEvent(nil), r.events...)
}

// Multi fans an event out to several sinks. A failing sink is logged and skipped so
// event delivery can never fail a run.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, ev PhaseEvent) error {
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			log.Warn().Err(err).Str("phase", ev.Phase).Msg("Event sink failed")
		}
	}
	return nil
}

func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
