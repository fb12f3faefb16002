package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/gammafunnel/internal/microstructure"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored microstructure history",
	}

	showCmd := &cobra.Command{
		Use:   "show TICKER",
		Short: "Print a ticker's stored feature history and its confidence state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			ticker := strings.ToUpper(args[0])

			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			ctx, cancel := runContext(cmd.Context(), cfg.Storage.QueryTimeout+5*time.Second)
			defer cancel()

			history, _, closeStorage, err := openStorage(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			defer closeStorage()

			entries, err := history.Load(ctx, ticker)
			if err != nil {
				return err
			}

			engine := microstructure.NewEngine(cfg.Microstructure, history)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d entries, confidence %s (partial at %d, complete at %d)\n",
				ticker, len(entries), engine.ConfidenceFor(len(entries)),
				cfg.Microstructure.PartialMin, cfg.Microstructure.MinHistory)
			if len(entries) == 0 {
				return nil
			}

			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			keys := featureKeys(entries)

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintf(tw, "DATE\t%s\t\n", strings.ToUpper(strings.Join(keys, "\t")))
			for _, e := range entries {
				cells := make([]string, len(keys))
				for i, k := range keys {
					cells[i] = fmt.Sprintf("%.4f", e.Features[k])
				}
				fmt.Fprintf(tw, "%s\t%s\t\n", e.Date.Format(dateLayout), strings.Join(cells, "\t"))
			}
			return tw.Flush()
		},
	}
	showCmd.Flags().Int("limit", 30, "Show at most the last N entries (0 = all)")

	historyCmd.AddCommand(showCmd)
	return historyCmd
}

func featureKeys(entries []microstructure.Entry) []string {
	seen := make(map[string]bool)
	for _, e := range entries {
		for k := range e.Features {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
