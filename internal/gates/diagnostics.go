package gates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/gammafunnel/internal/account"
)

// Decision is the outcome of the diagnostics gate
type Decision string

const (
	Proceed Decision = "PROCEED"
	Halt    Decision = "HALT"
)

// Probe is a provider health check. Critical probes halt the run when they stay unreachable;
// non-critical probes name the fallback that replaces them.
type Probe struct {
	Name     string
	Critical bool
	Fallback string
	Ping     func(ctx context.Context) error
}

// ProbeResult records how a probe fared within its retry budget
type ProbeResult struct {
	Name      string        `json:"name"`
	Critical  bool          `json:"critical"`
	Healthy   bool          `json:"healthy"`
	Attempts  int           `json:"attempts"`
	Latency   time.Duration `json:"latency"`
	LastError string        `json:"last_error,omitempty"`
	Fallback  string        `json:"fallback,omitempty"`
}

// Report is the gate's actionable output
type Report struct {
	Decision Decision                    `json:"decision"`
	Breaker  account.CircuitBreakerState `json:"breaker"`
	Probes   []ProbeResult               `json:"probes"`
	Reasons  []string                    `json:"reasons,omitempty"`
	Degraded []string                    `json:"degraded,omitempty"`
}

// Summary renders the halt reasons or the degraded providers on one line
func (r Report) Summary() string {
	if r.Decision == Halt {
		return "HALT: " + strings.Join(r.Reasons, "; ")
	}
	if len(r.Degraded) > 0 {
		return "PROCEED (degraded: " + strings.Join(r.Degraded, ", ") + ")"
	}
	return "PROCEED"
}

// Options configure retry behaviour
type Options struct {
	Retries     int
	Backoff     time.Duration
	PingTimeout time.Duration
}

// Diagnostics is the fail-closed pre-run gate
type Diagnostics struct {
	breaker account.StateSource
	probes  []Probe
	opts    Options
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewDiagnostics creates the gate
func NewDiagnostics(breaker account.StateSource, probes []Probe, opts Options) *Diagnostics {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 10 * time.Second
	}
	return &Diagnostics{
		breaker: breaker,
		probes:  probes,
		opts:    opts,
		sleep:   sleepCtx,
	}
}

// Check evaluates the circuit breaker and every probe. Any doubt about the breaker halts.
func (d *Diagnostics) Check(ctx context.Context) Report {
	report := Report{Decision: Proceed}

	state, err := d.breaker.State(ctx)
	switch {
	case err != nil:
		report.Reasons = append(report.Reasons, fmt.Sprintf("circuit breaker state unreadable: %v", err))
	case state.Active:
		reason := state.Reason
		if reason == "" {
			reason = "no reason recorded"
		}
		report.Reasons = append(report.Reasons, fmt.Sprintf(
			"circuit breaker active (drawdown %.2f%%, equity %.2f): %s",
			state.Drawdown()*100, state.CurrentEquity, reason))
	}
	report.Breaker = state

	for _, probe := range d.probes {
		res := d.runProbe(ctx, probe)
		report.Probes = append(report.Probes, res)
		if res.Healthy {
			continue
		}
		if probe.Critical {
			report.Reasons = append(report.Reasons, fmt.Sprintf(
				"critical provider %s unreachable after %d attempts: %s", probe.Name, res.Attempts, res.LastError))
			continue
		}
		report.Degraded = append(report.Degraded, fmt.Sprintf("%s -> %s", probe.Name, probe.Fallback))
	}

	if len(report.Reasons) > 0 {
		report.Decision = Halt
		log.Error().Strs("reasons", report.Reasons).Msg("Diagnostics gate halted the run")
	} else {
		log.Info().Int("probes", len(report.Probes)).Strs("degraded", report.Degraded).
			Msg("Diagnostics gate passed")
	}
	return report
}

func (d *Diagnostics) runProbe(ctx context.Context, probe Probe) ProbeResult {
	res := ProbeResult{Name: probe.Name, Critical: probe.Critical, Fallback: probe.Fallback}

	for attempt := 1; attempt <= d.opts.Retries; attempt++ {
		res.Attempts = attempt

		pingCtx, cancel := context.WithTimeout(ctx, d.opts.PingTimeout)
		start := time.Now()
		err := probe.Ping(pingCtx)
		res.Latency = time.Since(start)
		cancel()

		if err == nil {
			res.Healthy = true
			res.LastError = ""
			return res
		}
		res.LastError = err.Error()
		log.Warn().Str("provider", probe.Name).Int("attempt", attempt).Err(err).Msg("Provider ping failed")

		if attempt < d.opts.Retries {
			// Linear backoff between attempts
			if err := d.sleep(ctx, time.Duration(attempt)*d.opts.Backoff); err != nil {
				res.LastError = err.Error()
				return res
			}
		}
	}
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
