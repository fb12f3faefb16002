package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/sawpanic/gammafunnel/internal/application/pipeline"
)

const (
	appName = "gammafunnel"
	version = "v1.0.0"

	defaultConfigPath = "configs/gammafunnel.yaml"
)

// Exit codes: 1 for errors, 2 when the diagnostics gate halts the run
const (
	exitError  = 1
	exitHalted = 2
)

type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, pipeline.ErrHalted) {
			os.Exit(exitHalted)
		}
		os.Exit(exitError)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Daily equity funnel: regime, universe, sectors, scoring, gamma and risk sizing",
		Version: version,
		Long: `gammafunnel runs a once-a-day funnel over a market snapshot:

  diagnostics → regime (BMI) → universe → sector rotation → scoring → gamma/microstructure → sizing

The diagnostics gate is fail-closed: an active circuit breaker or an unreachable critical provider
halts the run before any candidate is considered.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(opts.logLevel, opts.logFormat)
		},
	}
	bindGlobalFlags(rootCmd.PersistentFlags(), opts)

	rootCmd.AddCommand(
		newRunCmd(opts),
		newDiagnoseCmd(opts),
		newConfigCmd(opts),
		newHistoryCmd(opts),
		newMonitorCmd(opts),
	)
	return rootCmd
}

func bindGlobalFlags(fs *pflag.FlagSet, opts *globalOptions) {
	fs.StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Configuration file")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	fs.StringVar(&opts.logFormat, "log-format", "auto", "Log format (auto|console|json)")
}

// setupLogging writes console logs to a terminal and JSON lines everywhere else
func setupLogging(level, format string) error {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)

	switch format {
	case "auto":
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "console"
		} else {
			format = "json"
		}
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q (auto|console|json)", format)
	}

	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}

// stdoutIsTerminal gates interactive output such as the phase progress view
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
