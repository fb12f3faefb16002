package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sawpanic/gammafunnel/internal/domain/market"
)

// ErrNotFound is returned when the snapshot has no data for a ticker
var ErrNotFound = errors.New("not found in snapshot")

// ErrUnavailable is returned when a whole feed is missing from the snapshot
var ErrUnavailable = errors.New("feed unavailable")

// IsDataGap reports a per-ticker miss, which is no evidence of a provider fault
func IsDataGap(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Snapshot directory layout
const (
	listingsFile     = "listings.json"
	insiderFile      = "insider.json"
	earningsFile     = "earnings.json"
	darkPoolFile     = "darkpool.json"
	microFile        = "micro.json"
	macroFile        = "macro.json"
	barsDir          = "bars"
	optionsDir       = "options"
	earningsDateForm = "2006-01-02"
)

// Macro is the macro.json document
type Macro struct {
	VIX         float64 `json:"vix"`
	Treasury10Y float64 `json:"treasury_10y"`
}

// FileSource serves every market port from an offline snapshot directory.
// Documents are read once and cached for the life of the source.
type FileSource struct {
	dir   string
	mu    sync.Mutex
	cache map[string]any
}

// NewFileSource creates a source over dir
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir, cache: make(map[string]any)}
}

// Name identifies the provider
func (f *FileSource) Name() string { return "snapshot" }

// Ping checks that the snapshot directory holds a listing table
func (f *FileSource) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(f.dir, listingsFile)); err != nil {
		return fmt.Errorf("snapshot %s: %w", f.dir, err)
	}
	return nil
}

func load[T any](f *FileSource, rel string) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var zero T
	if v, ok := f.cache[rel]; ok {
		return v.(T), nil
	}
	data, err := os.ReadFile(filepath.Join(f.dir, rel))
	if errors.Is(err, os.ErrNotExist) {
		return zero, fmt.Errorf("%s: %w", rel, ErrNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", rel, err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, fmt.Errorf("parse %s: %w", rel, err)
	}
	f.cache[rel] = v
	return v, nil
}

func tickerFile(dir, ticker string) string {
	return filepath.Join(dir, strings.ToUpper(ticker)+".json")
}

// Listings returns the screener table
func (f *FileSource) Listings(ctx context.Context) ([]market.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return load[[]market.Listing](f, listingsFile)
}

// Bars returns up to lookback most recent daily bars
func (f *FileSource) Bars(ctx context.Context, ticker string, lookback int) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars, err := load[[]market.Bar](f, tickerFile(barsDir, ticker))
	if err != nil {
		return nil, err
	}
	if lookback > 0 && len(bars) > lookback {
		bars = bars[len(bars)-lookback:]
	}
	return append([]market.Bar(nil), bars...), nil
}

// OptionChain returns the ticker's chain
func (f *FileSource) OptionChain(ctx context.Context, ticker string) ([]market.OptionContract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return load[[]market.OptionContract](f, tickerFile(optionsDir, ticker))
}

// Fundamentals returns the fundamentals carried on the listing row
func (f *FileSource) Fundamentals(ctx context.Context, ticker string) (market.Fundamentals, error) {
	listings, err := f.Listings(ctx)
	if err != nil {
		return market.Fundamentals{}, err
	}
	for _, l := range listings {
		if strings.EqualFold(l.Ticker, ticker) {
			return l.Fundamentals, nil
		}
	}
	return market.Fundamentals{}, fmt.Errorf("fundamentals %s: %w", ticker, ErrNotFound)
}

// InsiderActivity returns 30-day insider counts; unknown tickers have none
func (f *FileSource) InsiderActivity(ctx context.Context, ticker string) (market.InsiderActivity, error) {
	if err := ctx.Err(); err != nil {
		return market.InsiderActivity{}, err
	}
	m, err := load[map[string]market.InsiderActivity](f, insiderFile)
	if errors.Is(err, ErrNotFound) {
		return market.InsiderActivity{}, nil
	}
	if err != nil {
		return market.InsiderActivity{}, err
	}
	return m[strings.ToUpper(ticker)], nil
}

func (f *FileSource) earnings() (map[string]time.Time, error) {
	raw, err := load[map[string]string](f, earningsFile)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(raw))
	for t, d := range raw {
		day, err := time.Parse(earningsDateForm, d)
		if err != nil {
			return nil, fmt.Errorf("earnings date for %s: %w", t, err)
		}
		out[strings.ToUpper(t)] = day
	}
	return out, nil
}

// Bulk returns the earnings dates inside [from, to]
func (f *FileSource) Bulk(ctx context.Context, from, to time.Time) (map[string]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := f.earnings()
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time)
	for t, d := range all {
		if !d.Before(market.Day(from)) && !d.After(market.Day(to)) {
			out[t] = d
		}
	}
	return out, nil
}

// Next returns the ticker's scheduled earnings date
func (f *FileSource) Next(ctx context.Context, ticker string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	all, err := f.earnings()
	if err != nil {
		return time.Time{}, false, err
	}
	d, ok := all[strings.ToUpper(ticker)]
	return d, ok, nil
}

// DarkPool returns the reported dark-pool split
func (f *FileSource) DarkPool(ctx context.Context, ticker string) (market.DarkPoolPrint, error) {
	if err := ctx.Err(); err != nil {
		return market.DarkPoolPrint{}, err
	}
	m, err := load[map[string]market.DarkPoolPrint](f, darkPoolFile)
	if errors.Is(err, ErrNotFound) {
		return market.DarkPoolPrint{}, fmt.Errorf("dark pool: %w", ErrUnavailable)
	}
	if err != nil {
		return market.DarkPoolPrint{}, err
	}
	dp, ok := m[strings.ToUpper(ticker)]
	if !ok {
		return market.DarkPoolPrint{}, fmt.Errorf("dark pool %s: %w", ticker, ErrNotFound)
	}
	return dp, nil
}

// Microstructure returns the reported microstructure features
func (f *FileSource) Microstructure(ctx context.Context, ticker string) (market.MicroFeatures, error) {
	if err := ctx.Err(); err != nil {
		return market.MicroFeatures{}, err
	}
	m, err := load[map[string]market.MicroFeatures](f, microFile)
	if errors.Is(err, ErrNotFound) {
		return market.MicroFeatures{}, fmt.Errorf("microstructure: %w", ErrUnavailable)
	}
	if err != nil {
		return market.MicroFeatures{}, err
	}
	mf, ok := m[strings.ToUpper(ticker)]
	if !ok {
		return market.MicroFeatures{}, fmt.Errorf("microstructure %s: %w", ticker, ErrNotFound)
	}
	return mf, nil
}

func (f *FileSource) macro() (Macro, error) {
	return load[Macro](f, macroFile)
}

// VIX returns the volatility index reading
func (f *FileSource) VIX(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m, err := f.macro()
	if err != nil {
		return 0, err
	}
	return m.VIX, nil
}

// TreasuryYield10Y returns the 10-year yield in percent
func (f *FileSource) TreasuryYield10Y(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m, err := f.macro()
	if err != nil {
		return 0, err
	}
	return m.Treasury10Y, nil
}

// Flow exposes the snapshot's dark-pool and microstructure documents as a separate feed,
// healthy only when the dark-pool document exists
func (f *FileSource) Flow() market.FlowFeed {
	return fileFlow{f}
}

type fileFlow struct {
	*FileSource
}

func (fileFlow) Name() string { return "snapshot-flow" }

func (ff fileFlow) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(ff.dir, darkPoolFile)); err != nil {
		return fmt.Errorf("dark pool feed: %w", ErrUnavailable)
	}
	return nil
}
