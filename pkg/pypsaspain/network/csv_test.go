package network

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func buildTestNetwork(t *testing.T) *Network {
	t.Helper()
	n := New("es_test")

	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)}
	if err := n.SetSnapshots(ts, nil); err != nil {
		t.Fatalf("SetSnapshots() error = %v", err)
	}

	mustAdd := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("add component: %v", err)
		}
	}
	mustAdd(n.AddBus(&Bus{Name: "madrid", VNom: 380, X: -3.70, Y: 40.42, Carrier: "AC", Country: "ES",
		Extra: map[string]string{"substation_lv": "True"}}))
	mustAdd(n.AddBus(&Bus{Name: "bilbao", VNom: 380, X: -2.93, Y: 43.26, Carrier: "AC", Country: "ES"}))
	mustAdd(n.AddLine(&Line{Name: "l1", Bus0: "madrid", Bus1: "bilbao", SNom: 1500, Length: 322.5}))
	mustAdd(n.AddLink(&Link{Name: "dc1", Bus0: "madrid", Bus1: "bilbao", Carrier: "DC", PNom: 1000,
		PMinPU: -1, Efficiency: 0.97, Length: 300, PNomMax: math.Inf(1), UnderwaterFraction: 0.25}))
	mustAdd(n.AddGenerator(&Generator{Name: "g1", Bus: "madrid", Carrier: "CCGT", PNom: 400,
		Efficiency: 0.58, MarginalCost: 47.2, PNomMax: math.Inf(1)}))
	mustAdd(n.AddLoad(&Load{Name: "madrid", Bus: "madrid"}))
	mustAdd(n.AddCarrier(&Carrier{Name: "CCGT", CO2Emissions: 0.36, NiceName: "Combined-Cycle Gas"}))

	n.LoadsT.PSet.Set("madrid", []float64{2900, 2850, 2800})
	n.GeneratorsT.MarginalCost.Set("g1", []float64{47.2, 48.1, 46.9})
	return n
}

func TestCSVFolderRoundTrip(t *testing.T) {
	n := buildTestNetwork(t)
	dir := filepath.Join(t.TempDir(), "elec")

	if err := n.ExportCSVFolder(dir); err != nil {
		t.Fatalf("ExportCSVFolder() error = %v", err)
	}

	got, err := ImportCSVFolder(dir)
	if err != nil {
		t.Fatalf("ImportCSVFolder() error = %v", err)
	}

	if len(got.Buses) != 2 || len(got.Lines) != 1 || len(got.Links) != 1 ||
		len(got.Generators) != 1 || len(got.Loads) != 1 || len(got.Carriers) != 1 {
		t.Errorf("component counts changed: buses=%d lines=%d links=%d generators=%d loads=%d carriers=%d",
			len(got.Buses), len(got.Lines), len(got.Links), len(got.Generators), len(got.Loads), len(got.Carriers))
	}
	if len(got.Snapshots) != 3 {
		t.Fatalf("snapshots = %d, want 3", len(got.Snapshots))
	}

	// Unknown columns survive the round trip.
	b := got.Buses["madrid"]
	if b.Extra["substation_lv"] != "True" {
		t.Errorf("Extra[substation_lv] = %q, want True", b.Extra["substation_lv"])
	}
	if b.VNom != 380 || b.Country != "ES" {
		t.Errorf("bus attributes lost: v_nom=%v country=%q", b.VNom, b.Country)
	}

	l := got.Links["dc1"]
	if l.PMinPU != -1 || l.Efficiency != 0.97 || l.UnderwaterFraction != 0.25 {
		t.Errorf("link attributes lost: p_min_pu=%v efficiency=%v underwater=%v",
			l.PMinPU, l.Efficiency, l.UnderwaterFraction)
	}
	if !math.IsInf(l.PNomMax, 1) {
		t.Errorf("p_nom_max = %v, want +inf", l.PNomMax)
	}

	vals, ok := got.LoadsT.PSet.Get("madrid")
	if !ok || len(vals) != 3 || vals[1] != 2850 {
		t.Errorf("loads-p_set series = %v, %v", vals, ok)
	}
	mc, ok := got.GeneratorsT.MarginalCost.Get("g1")
	if !ok || mc[2] != 46.9 {
		t.Errorf("generators-marginal_cost series = %v, %v", mc, ok)
	}
}

func TestImportPreservesUnmodeledFiles(t *testing.T) {
	n := buildTestNetwork(t)
	dir := filepath.Join(t.TempDir(), "elec")
	if err := n.ExportCSVFolder(dir); err != nil {
		t.Fatalf("ExportCSVFolder() error = %v", err)
	}

	// A file this layer does not model, e.g. storage units from an
	// upstream stage.
	raw := []byte("name,bus,p_nom\nphs1,madrid,500\n")
	if err := os.WriteFile(filepath.Join(dir, "storage_units.csv"), raw, 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ImportCSVFolder(dir)
	if err != nil {
		t.Fatalf("ImportCSVFolder() error = %v", err)
	}

	out := filepath.Join(t.TempDir(), "out")
	if err := got.ExportCSVFolder(out); err != nil {
		t.Fatalf("ExportCSVFolder() error = %v", err)
	}

	carried, err := os.ReadFile(filepath.Join(out, "storage_units.csv"))
	if err != nil {
		t.Fatalf("unmodeled file not carried: %v", err)
	}
	if string(carried) != string(raw) {
		t.Errorf("unmodeled file changed: %q", carried)
	}
}

func TestImportRejectsBadData(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "bad number in buses",
			file:    "buses.csv",
			content: "name,v_nom,x,y,carrier\nb1,380,not-a-number,40.0,AC\n",
		},
		{
			name:    "duplicate generator",
			file:    "generators.csv",
			content: "name,bus,carrier,p_nom\ng1,b1,CCGT,100\ng1,b1,CCGT,200\n",
		},
		{
			name:    "bad boolean in lines",
			file:    "lines.csv",
			content: "name,bus0,bus1,s_nom_extendable\nl1,a,b,maybe\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, tt.file), []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := ImportCSVFolder(dir); err == nil {
				t.Error("ImportCSVFolder() error = nil, want parse error")
			}
		})
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{1.5, "1.5"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{2100, "2100"},
	}
	for _, tt := range tests {
		if got := formatFloat(tt.in); got != tt.want {
			t.Errorf("formatFloat(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
