package persistence

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sawpanic/gammafunnel/internal/microstructure"
)

// FileHistory stores each ticker's microstructure history as a JSONL file.
// Appends rewrite the file through WriteFileAtomic, so a crash leaves either the old or the new
// file. It assumes a single writer.
type FileHistory struct {
	dir string
}

// NewFileHistory creates a history store rooted at dir
func NewFileHistory(dir string) *FileHistory {
	return &FileHistory{dir: dir}
}

func (h *FileHistory) path(ticker string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(strings.ToUpper(ticker))
	return filepath.Join(h.dir, name+".jsonl")
}

// Load returns entries oldest first
func (h *FileHistory) Load(ctx context.Context, ticker string) ([]microstructure.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(h.path(ticker))
	if errors.Is(err, os.ErrNotExist) {
		return []microstructure.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", ticker, err)
	}

	entries := []microstructure.Entry{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e microstructure.Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("history %s line %d: %w", ticker, line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan history %s: %w", ticker, err)
	}
	return entries, nil
}

// Append adds one entry durably
func (h *FileHistory) Append(ctx context.Context, ticker string, entry microstructure.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := h.path(ticker)
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read history %s: %w", ticker, err)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	buf := make([]byte, 0, len(existing)+len(line)+1)
	buf = append(buf, existing...)
	if len(buf) > 0 && buf[len(buf)-1] != '\n' {
		buf = append(buf, '\n')
	}
	buf = append(buf, line...)
	buf = append(buf, '\n')

	if err := WriteFileAtomic(path, buf); err != nil {
		return fmt.Errorf("write history %s: %w", ticker, err)
	}
	return nil
}

// Tickers lists every ticker with stored history, sorted
func (h *FileHistory) Tickers() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(h.dir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(filepath.Base(m), ".jsonl"))
	}
	sort.Strings(out)
	return out, nil
}
