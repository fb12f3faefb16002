package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/gammafunnel/internal/application/pipeline"
	"github.com/sawpanic/gammafunnel/internal/gates"
)

func newDiagnoseCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run only the diagnostics gate",
		Long:  "Checks the circuit breaker state and probes every provider without running the funnel",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			// Worst case: every probe exhausts its retries
			budget := time.Duration(cfg.Diagnostics.Retries)*(cfg.Diagnostics.PingTimeout+cfg.Diagnostics.Backoff) + time.Minute
			ctx, cancel := runContext(cmd.Context(), budget)
			defer cancel()

			a, err := buildApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.pipeline.Diagnose(ctx)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else if err := printReport(cmd, report); err != nil {
				return err
			}

			if report.Decision == gates.Halt {
				return &pipeline.HaltError{Report: report}
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, report gates.Report) error {
	out := cmd.OutOrStdout()
	b := report.Breaker
	fmt.Fprintf(out, "Circuit breaker: active=%t equity=%.2f/%.2f drawdown=%.2f%%\n",
		b.Active, b.CurrentEquity, b.StartEquity, b.Drawdown()*100)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tCRITICAL\tHEALTHY\tATTEMPTS\tLATENCY\tDETAIL")
	for _, p := range report.Probes {
		detail := p.LastError
		if !p.Healthy && p.Fallback != "" {
			detail = "fallback: " + p.Fallback
		}
		fmt.Fprintf(tw, "%s\t%t\t%t\t%d\t%v\t%s\n",
			p.Name, p.Critical, p.Healthy, p.Attempts, p.Latency.Round(time.Millisecond), detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out, report.Summary())
	return err
}
