package series

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeSeries(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "series.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write series file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeSeries(t, `datetime,2030,2040
2030-01-01 00:00:00,50.1,61.3
2030-01-01 01:00:00,48.7,60.2
2030-01-01 02:00:00,47.0,58.9
`)

	ts, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(ts.Index) != 3 {
		t.Errorf("Index length = %d, want 3", len(ts.Index))
	}
	if len(ts.Columns) != 2 || ts.Columns[0] != "2030" || ts.Columns[1] != "2040" {
		t.Errorf("Columns = %v, want [2030 2040]", ts.Columns)
	}

	vals, ok := ts.Column("2030")
	if !ok || vals[1] != 48.7 {
		t.Errorf("Column(2030) = %v, %v", vals, ok)
	}

	stamp := time.Date(2030, 1, 1, 2, 0, 0, 0, time.UTC)
	v, ok := ts.At(stamp, "2040")
	if !ok || v != 58.9 {
		t.Errorf("At(%v, 2040) = %v, %v", stamp, v, ok)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no data rows",
			content: "datetime,2030\n",
			wantErr: "no data rows",
		},
		{
			name:    "only timestamp column",
			content: "datetime\n2030-01-01 00:00:00\n",
			wantErr: "at least one value column",
		},
		{
			name:    "bad timestamp",
			content: "datetime,2030\nlast tuesday,50\n",
			wantErr: "unrecognized timestamp",
		},
		{
			name:    "bad number",
			content: "datetime,2030\n2030-01-01 00:00:00,cheap\n",
			wantErr: "invalid number",
		},
		{
			name: "non increasing index",
			content: "datetime,2030\n2030-01-01 01:00:00,50\n" +
				"2030-01-01 00:00:00,48\n",
			wantErr: "strictly increasing",
		},
		{
			name: "duplicate column",
			content: "datetime,2030,2030\n" +
				"2030-01-01 00:00:00,50,51\n",
			wantErr: "duplicate column",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeSeries(t, tt.content))
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestAlign(t *testing.T) {
	path := writeSeries(t, `datetime,2030
2030-01-01 00:00:00,50.1
2030-01-01 01:00:00,48.7
2030-01-01 02:00:00,47.0
2030-01-01 03:00:00,49.9
`)
	ts, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	snapshots := []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)}

	vals, err := ts.Align(snapshots, "2030")
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	want := []float64{50.1, 48.7, 47.0}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("Align()[%d] = %v, want %v", i, vals[i], want[i])
		}
	}
}

func TestAlignNotCovered(t *testing.T) {
	path := writeSeries(t, `datetime,2030
2030-01-01 00:00:00,50.1
2030-01-01 01:00:00,48.7
`)
	ts, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	snapshots := []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)}

	_, err = ts.Align(snapshots, "2030")
	if err == nil {
		t.Fatal("Align() error = nil, want coverage error")
	}
	if !errors.Is(err, ErrNotCovered) {
		t.Errorf("errors.Is(err, ErrNotCovered) = false for %v", err)
	}
	if !strings.Contains(err.Error(), "2030-01-01 02:00:00") {
		t.Errorf("error %v does not name the first uncovered snapshot", err)
	}
}

func TestAlignUnknownColumn(t *testing.T) {
	path := writeSeries(t, "datetime,2030\n2030-01-01 00:00:00,50.1\n")
	ts, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	_, err = ts.Align([]time.Time{time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}, "2050")
	if err == nil {
		t.Fatal("Align() error = nil, want unknown column error")
	}
	if !strings.Contains(err.Error(), "2050") || !strings.Contains(err.Error(), "2030") {
		t.Errorf("error %v should name the missing and the available columns", err)
	}
}
