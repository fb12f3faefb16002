package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/gammafunnel/internal/application/pipeline"
	"github.com/sawpanic/gammafunnel/internal/domain/market"
	apihttp "github.com/sawpanic/gammafunnel/internal/interfaces/http"
)

func newMonitorCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the funnel on a schedule and serve /health and /metrics",
		Long: `Starts the monitoring HTTP server, runs the funnel immediately and then once per interval.
/health reports the last run and answers 503 while it is halted or failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, opts)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default: monitor.addr)")
	cmd.Flags().Duration("interval", 0, "Run interval (default: monitor.interval)")
	cmd.Flags().Bool("dry-run", false, "Skip signal ledger and microstructure history writes")
	return cmd
}

func runMonitor(cmd *cobra.Command, opts *globalOptions) error {
	addr, _ := cmd.Flags().GetString("addr")
	interval, _ := cmd.Flags().GetDuration("interval")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Monitor.Addr
	}
	if interval <= 0 {
		interval = cfg.Monitor.Interval
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	status := &apihttp.Status{}
	server := apihttp.NewServer(addr, status, a.metrics.Gatherer())
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	runOnce := func() {
		runID := uuid.New().String()
		res, err := a.pipeline.Run(ctx, pipeline.Options{
			RunID:  runID,
			AsOf:   market.Day(time.Now().UTC()),
			DryRun: dryRun,
		})
		status.Set(summarize(runID, res, err))
		if res == nil {
			log.Error().Err(err).Str("run_id", runID).Msg("Scheduled run failed")
			return
		}
		if err := writeArtifacts(a, cfg.Run.OutputDir, res, err); err != nil {
			log.Error().Err(err).Str("run_id", runID).Msg("Failed to write run artifacts")
		}
	}

	log.Info().Str("addr", addr).Dur("interval", interval).Msg("Monitor started")
	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case err := <-serverErr:
			if err != nil {
				return err
			}
			return errors.New("monitor HTTP server stopped")
		case <-ticker.C:
			runOnce()
		}
	}
}

// summarize reduces a run outcome to what /health reports
func summarize(runID string, res *pipeline.Result, err error) apihttp.Summary {
	sum := apihttp.Summary{RunID: runID, FinishedAt: time.Now().UTC()}
	if res != nil {
		sum.AsOf = res.AsOf
		sum.Regime = string(res.Regime.Regime)
		sum.Mode = string(res.Mode)
		sum.BMI = res.Regime.BMI
		sum.Positions = len(res.Positions)
		sum.Fallbacks = res.Fallbacks
		sum.FailedOpen = res.FailedOpen
	}

	var halt *pipeline.HaltError
	switch {
	case errors.As(err, &halt):
		sum.Halted = true
		sum.Reasons = halt.Report.Reasons
	case err != nil:
		sum.Error = err.Error()
	}
	return sum
}
