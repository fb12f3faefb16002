package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/sawpanic/gammafunnel/internal/stream"
)

const namespace = "gammafunnel"

// Registry holds the run metrics. It is also a stream.Sink, so every phase event updates it.
type Registry struct {
	reg *prometheus.Registry

	PhaseDuration *prometheus.HistogramVec
	Survivors     *prometheus.GaugeVec
	Exclusions    *prometheus.CounterVec
	Fallbacks     *prometheus.CounterVec
	FailedOpen    *prometheus.CounterVec
	Halts         prometheus.Counter
	Positions     prometheus.Gauge
	BMI           prometheus.Gauge
}

// New creates a registry with every metric registered
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of each funnel phase in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"phase"},
		),
		Survivors: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "phase_survivors",
				Help:      "Tickers surviving each phase in the latest run",
			},
			[]string{"phase"},
		),
		Exclusions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exclusions_total",
				Help:      "Tickers excluded by phase and reason",
			},
			[]string{"phase", "reason"},
		),
		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Degraded-mode substitutions by phase",
			},
			[]string{"phase"},
		),
		FailedOpen: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failed_open_total",
				Help:      "Tickers passed through a check that could not be performed",
			},
			[]string{"phase"},
		),
		Halts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "halts_total",
			Help:      "Runs halted by the diagnostics gate",
		}),
		Positions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "positions",
			Help:      "Positions produced by the latest run",
		}),
		BMI: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bmi",
			Help:      "Big Money Index of the latest run",
		}),
	}
	r.reg.MustRegister(r.PhaseDuration, r.Survivors, r.Exclusions, r.Fallbacks, r.FailedOpen,
		r.Halts, r.Positions, r.BMI)
	return r
}

// Gatherer exposes the underlying registry for HTTP scraping
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Emit records a phase event
func (r *Registry) Emit(_ context.Context, ev stream.PhaseEvent) error {
	r.PhaseDuration.WithLabelValues(ev.Phase).Observe(ev.Duration.Seconds())
	r.Survivors.WithLabelValues(ev.Phase).Set(float64(ev.SurvivorsOut))
	for reason, n := range ev.Exclusions {
		r.Exclusions.WithLabelValues(ev.Phase, reason).Add(float64(n))
	}
	if n := len(ev.Fallbacks); n > 0 {
		r.Fallbacks.WithLabelValues(ev.Phase).Add(float64(n))
	}
	if n := len(ev.FailedOpen); n > 0 {
		r.FailedOpen.WithLabelValues(ev.Phase).Add(float64(n))
	}
	if ev.Halted {
		r.Halts.Inc()
	}
	if ev.Phase == stream.PhaseSizing {
		r.Positions.Set(float64(ev.SurvivorsOut))
	}
	return nil
}

func (r *Registry) Close() error { return nil }

// WriteTextfile writes the registry in the node-exporter textfile format
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

// Snapshot flattens the current values into `name{label="v",...}` keys. Histograms contribute
// their _count and _sum series.
func (r *Registry) Snapshot() (map[string]float64, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		name := mf.GetName()
		for _, m := range mf.GetMetric() {
			labels := labelString(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[name+labels] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[name+labels] = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				out[name+"_count"+labels] = float64(h.GetSampleCount())
				out[name+"_sum"+labels] = h.GetSampleSum()
			}
		}
	}
	return out, nil
}

func labelString(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", p.GetName(), p.GetValue()))
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}
