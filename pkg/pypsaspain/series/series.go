// Package series loads and aligns the time-indexed CSV tables the
// pipeline consumes: interconnection market prices, regional demand
// and reported capacities. Files are parsed strictly; a value that
// does not parse names its file and row rather than becoming a NaN
// that surfaces during the external solve.
package series

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrNotCovered reports a snapshot for which a series has no row.
var ErrNotCovered = errors.New("series does not cover snapshot")

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// TimeSeries is one parsed file: a timestamp index shared by one or
// more named value columns. For price files the columns are scenario
// years; for demand files they are region codes.
type TimeSeries struct {
	Path    string
	Index   []time.Time
	Columns []string

	values map[string][]float64
	byUnix map[int64]int
}

// Load parses a time-indexed CSV file. The first column is the
// timestamp index regardless of its header; every remaining column is
// a named series. Timestamps must be strictly increasing.
func Load(path string) (*TimeSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open series file: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %v", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s: no data rows", path)
	}
	header := records[0]
	if len(header) < 2 {
		return nil, fmt.Errorf("%s: need a timestamp column and at least one value column", path)
	}

	ts := &TimeSeries{
		Path:   path,
		values: make(map[string][]float64, len(header)-1),
		byUnix: make(map[int64]int, len(records)-1),
	}
	for _, col := range header[1:] {
		col = strings.TrimSpace(col)
		if col == "" {
			return nil, fmt.Errorf("%s: empty column name in header", path)
		}
		if _, dup := ts.values[col]; dup {
			return nil, fmt.Errorf("%s: duplicate column %q", path, col)
		}
		ts.Columns = append(ts.Columns, col)
		ts.values[col] = make([]float64, 0, len(records)-1)
	}

	for i, row := range records[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("%s row %d: has %d fields, header has %d", path, i+2, len(row), len(header))
		}
		stamp, err := parseTime(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %v", path, i+2, err)
		}
		if len(ts.Index) > 0 && !stamp.After(ts.Index[len(ts.Index)-1]) {
			return nil, fmt.Errorf("%s row %d: timestamps must be strictly increasing", path, i+2)
		}
		ts.byUnix[stamp.Unix()] = len(ts.Index)
		ts.Index = append(ts.Index, stamp)

		for j, col := range ts.Columns {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[j+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: column %s: invalid number %q", path, i+2, col, row[j+1])
			}
			ts.values[col] = append(ts.values[col], v)
		}
	}
	return ts, nil
}

// Column returns the raw values of a named series.
func (ts *TimeSeries) Column(name string) ([]float64, bool) {
	v, ok := ts.values[name]
	return v, ok
}

// HasColumn reports whether the series carries the named column.
func (ts *TimeSeries) HasColumn(name string) bool {
	_, ok := ts.values[name]
	return ok
}

// At returns the value of a column at one timestamp.
func (ts *TimeSeries) At(stamp time.Time, column string) (float64, bool) {
	vals, ok := ts.values[column]
	if !ok {
		return 0, false
	}
	i, ok := ts.byUnix[stamp.Unix()]
	if !ok {
		return 0, false
	}
	return vals[i], true
}

// Align returns one value per snapshot from the named column. Every
// snapshot must have a matching row; the first uncovered snapshot is
// reported via ErrNotCovered so callers can fail before the solve.
func (ts *TimeSeries) Align(snapshots []time.Time, column string) ([]float64, error) {
	vals, ok := ts.values[column]
	if !ok {
		return nil, fmt.Errorf("%s: no column %q (have %s)", ts.Path, column, strings.Join(ts.Columns, ", "))
	}
	out := make([]float64, len(snapshots))
	for i, snap := range snapshots {
		j, ok := ts.byUnix[snap.Unix()]
		if !ok {
			return nil, fmt.Errorf("%s: snapshot %s: %w", ts.Path, snap.Format("2006-01-02 15:04:05"), ErrNotCovered)
		}
		out[i] = vals[j]
	}
	return out, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
