package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/gammafunnel/internal/application/pipeline"
	"github.com/sawpanic/gammafunnel/internal/domain/market"
	"github.com/sawpanic/gammafunnel/internal/interfaces/output"
	"github.com/sawpanic/gammafunnel/internal/persistence"
)

const dateLayout = "2006-01-02"

func newRunCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the funnel once for a trading date",
		Long: `Runs every phase for one trading date and writes positions-<date>.jsonl, a CSV view and the
full run report to the output directory. Exits 2 when the diagnostics gate halts the run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunnel(cmd, opts)
		},
	}

	cmd.Flags().String("as-of", "", "Trading date YYYY-MM-DD (default: today, UTC)")
	cmd.Flags().String("mode", "", "Force the strategy side (LONG|SHORT) instead of deriving it from the regime")
	cmd.Flags().Float64("equity", 0, "Account equity override")
	cmd.Flags().Bool("dry-run", false, "Skip signal ledger and microstructure history writes")
	cmd.Flags().String("output", "", "Output directory (default: run.output_dir)")
	cmd.Flags().Bool("json", false, "Print the run result as JSON instead of a table")
	return cmd
}

func runFunnel(cmd *cobra.Command, opts *globalOptions) error {
	asOfFlag, _ := cmd.Flags().GetString("as-of")
	modeFlag, _ := cmd.Flags().GetString("mode")
	equity, _ := cmd.Flags().GetFloat64("equity")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	outputDir, _ := cmd.Flags().GetString("output")
	asJSON, _ := cmd.Flags().GetBool("json")

	asOf, err := parseAsOf(asOfFlag)
	if err != nil {
		return err
	}
	mode, err := parseMode(modeFlag)
	if err != nil {
		return err
	}
	if equity < 0 {
		return fmt.Errorf("equity must not be negative: %v", equity)
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if outputDir == "" {
		outputDir = cfg.Run.OutputDir
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progressOut io.Writer
	if stdoutIsTerminal() && !asJSON {
		progressOut = cmd.OutOrStdout()
	}
	a, err := buildApp(ctx, cfg, progressOut)
	if err != nil {
		return err
	}
	defer a.Close()

	runID := uuid.New().String()
	res, runErr := a.pipeline.Run(ctx, pipeline.Options{
		RunID:  runID,
		AsOf:   asOf,
		Mode:   mode,
		Equity: equity,
		DryRun: dryRun,
	})
	if res == nil {
		return runErr
	}

	if err := writeArtifacts(a, outputDir, res, runErr); err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else if runErr == nil {
		if err := output.WriteTable(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	}

	var halt *pipeline.HaltError
	if errors.As(runErr, &halt) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Run halted by the diagnostics gate:")
		for _, reason := range halt.Report.Reasons {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", reason)
		}
	}
	return runErr
}

// writeArtifacts persists the run. A halted or failed run only gets its report; positions are
// never written for a run that did not complete.
func writeArtifacts(a *app, dir string, res *pipeline.Result, runErr error) error {
	emitter := output.NewEmitter(dir)

	if runErr != nil {
		path := emitter.Paths(res).Report
		if err := persistence.WriteJSONAtomic(path, res); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to write run report")
		}
	} else {
		files, err := emitter.EmitAll(res)
		if err != nil {
			return err
		}
		log.Info().Str("positions", files.Positions).Str("report", files.Report).
			Int("count", len(res.Positions)).Msg("Run artifacts written")
	}

	if path := a.cfg.Run.MetricsTextfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to write metrics textfile")
		}
	}
	return nil
}

func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return market.Day(time.Now().UTC()), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func parseMode(s string) (market.StrategyMode, error) {
	switch strings.ToUpper(s) {
	case "":
		return "", nil
	case string(market.ModeLong):
		return market.ModeLong, nil
	case string(market.ModeShort):
		return market.ModeShort, nil
	default:
		return "", fmt.Errorf("invalid --mode %q (LONG|SHORT)", s)
	}
}

// runContext bounds one-shot commands that only probe providers
func runContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
