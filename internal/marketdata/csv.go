package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quantified/hindcast/internal/core"
)

// CSVProvider loads bars from a local CSV file with the header
// time,open,high,low,close,volume. Timestamps are RFC3339 or unix seconds.
type CSVProvider struct {
	path string
}

// NewCSVProvider creates a provider reading from path.
func NewCSVProvider(path string) *CSVProvider {
	return &CSVProvider{path: path}
}

func (p *CSVProvider) Name() string {
	return "csv"
}

// FetchHistory reads the whole file, validates that timestamps increase
// strictly, and returns the bars inside [start, end] tagged with the given
// symbol and interval. An empty result is ErrNoData.
func (p *CSVProvider) FetchHistory(ctx context.Context, symbol, interval string, start, end time.Time) ([]core.Bar, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("opening %s: %w", p.path, err))
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("reading csv header: %w", err))
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var bars []core.Bar
	var prev time.Time
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidParameter, fmt.Errorf("csv line %d: %w", line+1, err))
		}
		line++

		bar, err := parseBar(record, cols, symbol, interval)
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidParameter, fmt.Errorf("csv line %d: %w", line, err))
		}
		if !prev.IsZero() && !bar.Time.After(prev) {
			return nil, core.WrapError(core.ErrInvalidParameter,
				fmt.Errorf("csv line %d: timestamp %s not after %s", line, bar.Time, prev))
		}
		prev = bar.Time

		if !start.IsZero() && bar.Time.Before(start) {
			continue
		}
		if !end.IsZero() && bar.Time.After(end) {
			continue
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrNoData,
			fmt.Errorf("no bars for %s in %s", symbol, p.path))
	}
	return bars, nil
}

// mapColumns resolves the index of each required column from the header.
func mapColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"time", "open", "high", "low", "close", "volume"} {
		if _, ok := cols[required]; !ok {
			return nil, core.WrapError(core.ErrInvalidParameter,
				fmt.Errorf("csv header missing column %q", required))
		}
	}
	return cols, nil
}

func parseBar(record []string, cols map[string]int, symbol, interval string) (core.Bar, error) {
	field := func(name string) (string, error) {
		idx := cols[name]
		if idx >= len(record) {
			return "", fmt.Errorf("missing field %q", name)
		}
		return strings.TrimSpace(record[idx]), nil
	}

	raw, err := field("time")
	if err != nil {
		return core.Bar{}, err
	}
	ts, err := parseTime(raw)
	if err != nil {
		return core.Bar{}, err
	}

	bar := core.Bar{Symbol: symbol, Interval: interval, Time: ts}
	for _, col := range []struct {
		name string
		dst  *float64
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
		{"volume", &bar.Volume},
	} {
		raw, err := field(col.name)
		if err != nil {
			return core.Bar{}, err
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return core.Bar{}, fmt.Errorf("parsing %s: %w", col.name, err)
		}
		*col.dst = v
	}
	return bar, nil
}

// parseTime accepts RFC3339 or unix seconds.
func parseTime(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
