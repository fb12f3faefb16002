package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sawpanic/gammafunnel/internal/application/pipeline"
	"github.com/sawpanic/gammafunnel/internal/persistence"
	"github.com/sawpanic/gammafunnel/internal/sizing"
)

const dayLayout = "2006-01-02"

// Files names the artifacts written for one run
type Files struct {
	Positions string
	CSV       string
	Report    string
}

// Emitter writes run artifacts under a directory
type Emitter struct {
	dir string
}

func NewEmitter(dir string) *Emitter {
	return &Emitter{dir: dir}
}

// Paths returns the artifact paths for the run's trading date
func (e *Emitter) Paths(res *pipeline.Result) Files {
	day := res.AsOf.Format(dayLayout)
	return Files{
		Positions: filepath.Join(e.dir, "positions-"+day+".jsonl"),
		CSV:       filepath.Join(e.dir, "positions-"+day+".csv"),
		Report:    filepath.Join(e.dir, "report-"+day+".json"),
	}
}

// EmitAll writes the positions JSONL, the CSV view and the full JSON report
func (e *Emitter) EmitAll(res *pipeline.Result) (Files, error) {
	files := e.Paths(res)
	if err := e.EmitPositionsJSONL(files.Positions, res.Positions); err != nil {
		return files, err
	}
	if err := e.EmitPositionsCSV(files.CSV, res.Positions); err != nil {
		return files, err
	}
	if err := persistence.WriteJSONAtomic(files.Report, res); err != nil {
		return files, fmt.Errorf("failed to write run report: %w", err)
	}
	return files, nil
}

// EmitPositionsJSONL writes one position per line. An empty run still produces an empty file.
func (e *Emitter) EmitPositionsJSONL(path string, positions []sizing.Position) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range positions {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("failed to encode position %s: %w", p.Ticker, err)
		}
	}
	if err := persistence.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write positions: %w", err)
	}
	return nil
}

func (e *Emitter) EmitPositionsCSV(path string, positions []sizing.Position) error {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"Ticker", "Direction", "OrderType", "Entry", "Quantity", "Stop", "Target1", "Target2",
		"Risk", "Notional", "Combined", "Gamma", "Micro", "Confidence", "Sector", "Multiplier", "Trimmed",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, p := range positions {
		record := []string{
			p.Ticker,
			string(p.Direction),
			p.OrderType,
			money(p.Entry),
			strconv.Itoa(p.Quantity),
			money(p.Stop),
			money(p.Target1),
			money(p.Target2),
			money(p.Risk),
			money(p.Notional),
			fmt.Sprintf("%.2f", p.Combined),
			string(p.GammaRegime),
			string(p.MicroRegime),
			string(p.MicroConfidence),
			p.Sector,
			fmt.Sprintf("%.3f", p.TotalMultiplier),
			strings.Join(p.Trimmed, "|"),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	return persistence.WriteFileAtomic(path, buf.Bytes())
}

// WriteTable prints the run summary and the position table
func WriteTable(w io.Writer, res *pipeline.Result) error {
	fmt.Fprintf(w, "Run %s  as of %s  regime %s (BMI %.1f)  mode %s  equity %.2f  VIX %.2f  10Y %.2f%%\n",
		res.RunID, res.AsOf.Format(dayLayout), res.Regime.Regime, res.Regime.BMI, res.Mode, res.Equity, res.VIX, res.Treasury10Y)
	if res.Diagnostics.Decision != "" {
		fmt.Fprintf(w, "Diagnostics: %s\n", res.Diagnostics.Summary())
	}
	for _, fb := range res.Fallbacks {
		fmt.Fprintf(w, "⚠ fallback: %s\n", fb)
	}
	if len(res.FailedOpen) > 0 {
		fmt.Fprintf(w, "⚠ earnings lookup failed open: %s\n", strings.Join(res.FailedOpen, ", "))
	}

	if len(res.Positions) == 0 {
		_, err := fmt.Fprintln(w, "No positions.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "TICKER\tSIDE\tQTY\tENTRY\tSTOP\tT1\tT2\tRISK\tSCORE\tGAMMA\tMICRO\tMULT\t")
	for _, p := range res.Positions {
		micro := string(p.MicroRegime)
		if p.MicroConfidence != "" {
			micro += "/" + string(p.MicroConfidence)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%.1f\t%s\t%s\t%.2f\t\n",
			p.Ticker, p.Direction, p.Quantity, money(p.Entry), money(p.Stop), money(p.Target1), money(p.Target2),
			money(p.Risk), p.Combined, p.GammaRegime, micro, p.TotalMultiplier)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, d := range res.Dropped {
		fmt.Fprintf(w, "dropped %s: %s\n", d.Ticker, d.Reason)
	}
	return nil
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
