package log

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sawpanic/gammafunnel/internal/stream"
)

// PhaseProgress renders a step-by-step console view of a funnel run. It is a stream.Sink and
// should only be attached when stdout is a terminal.
type PhaseProgress struct {
	mu        sync.Mutex
	w         io.Writer
	name      string
	phases    []string
	done      int
	startTime time.Time
	failed    bool
}

// NewPhaseProgress creates a progress view over the given phase sequence
func NewPhaseProgress(w io.Writer, name string, phases []string) *PhaseProgress {
	return &PhaseProgress{w: w, name: name, phases: phases, startTime: time.Now()}
}

// Emit prints one line per completed phase
func (p *PhaseProgress) Emit(_ context.Context, ev stream.PhaseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	step := p.done + 1
	for i, ph := range p.phases {
		if ph == ev.Phase {
			step = i + 1
			break
		}
	}
	p.done = step

	if ev.Halted {
		p.failed = true
		_, err := fmt.Fprintf(p.w, "❌ %s halted at %s: %s\n", p.name, ev.Phase, ev.Detail["reasons"])
		return err
	}

	var out strings.Builder
	out.WriteString(bar(step, len(p.phases), 20))
	fmt.Fprintf(&out, " %d/%d %-12s %5d → %-5d (%v)", step, len(p.phases), ev.Phase,
		ev.SurvivorsIn, ev.SurvivorsOut, ev.Duration.Round(time.Millisecond))
	if top := topReasons(ev.Exclusions, 3); top != "" {
		out.WriteString("  " + top)
	}
	if n := len(ev.Fallbacks); n > 0 {
		fmt.Fprintf(&out, "  ⚠ %d fallback(s)", n)
	}
	if n := len(ev.FailedOpen); n > 0 {
		fmt.Fprintf(&out, "  ⚠ %d fail-open", n)
	}
	out.WriteString("\n")
	_, err := io.WriteString(p.w, out.String())
	return err
}

// Close prints the completion line
func (p *PhaseProgress) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed {
		return nil
	}
	_, err := fmt.Fprintf(p.w, "✅ %s completed (%d/%d phases, %v)\n",
		p.name, p.done, len(p.phases), time.Since(p.startTime).Round(time.Millisecond))
	return err
}

func bar(current, total, width int) string {
	if total <= 0 {
		return ""
	}
	filled := width * current / total
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// topReasons formats the n largest exclusion reasons, ties by name
func topReasons(reasons map[string]int, n int) string {
	if len(reasons) == 0 {
		return ""
	}
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if reasons[keys[i]] != reasons[keys[j]] {
			return reasons[keys[i]] > reasons[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, reasons[k])
	}
	return strings.Join(parts, " ")
}
