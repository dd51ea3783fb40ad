package network

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// The CSV folder layout follows PyPSA's export_to_csv_folder: one file
// per component table, name-<attribute>.csv for time-varying data,
// pandas-style timestamps and True/False booleans.

const snapshotLayout = "2006-01-02 15:04:05"

var (
	busColumns       = []string{"name", "v_nom", "x", "y", "carrier", "country"}
	lineColumns      = []string{"name", "bus0", "bus1", "s_nom", "s_nom_extendable", "length", "capital_cost"}
	linkColumns      = []string{"name", "bus0", "bus1", "carrier", "p_nom", "p_nom_extendable", "p_nom_max", "p_min_pu", "efficiency", "length", "capital_cost", "marginal_cost", "lifetime", "underwater_fraction"}
	generatorColumns = []string{"name", "bus", "carrier", "p_nom", "p_nom_extendable", "p_nom_min", "p_nom_max", "efficiency", "marginal_cost", "capital_cost", "lifetime", "build_year"}
	loadColumns      = []string{"name", "bus", "carrier", "p_set"}
	carrierColumns   = []string{"name", "co2_emissions", "nice_name", "color"}
)

// ImportCSVFolder reads a PyPSA CSV folder. Columns beyond the typed
// set land in each component's Extra map; whole files that are not
// modeled here are carried as-is and written back on export.
func ImportCSVFolder(dir string) (*Network, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read network folder: %v", err)
	}

	n := New(filepath.Base(dir))

	if err := n.importMeta(filepath.Join(dir, "network.csv")); err != nil {
		return nil, err
	}
	if err := n.importSnapshots(filepath.Join(dir, "snapshots.csv")); err != nil {
		return nil, err
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		path := filepath.Join(dir, name)

		var impErr error
		switch name {
		case "network.csv", "snapshots.csv":
			continue
		case "buses.csv":
			impErr = n.importBuses(path)
		case "lines.csv":
			impErr = n.importLines(path)
		case "links.csv":
			impErr = n.importLinks(path)
		case "generators.csv":
			impErr = n.importGenerators(path)
		case "loads.csv":
			impErr = n.importLoads(path)
		case "carriers.csv":
			impErr = n.importCarriers(path)
		case "generators-marginal_cost.csv":
			impErr = n.importFrame(path, n.GeneratorsT.MarginalCost)
		case "generators-p_max_pu.csv":
			impErr = n.importFrame(path, n.GeneratorsT.PMaxPU)
		case "loads-p_set.csv":
			impErr = n.importFrame(path, n.LoadsT.PSet)
		default:
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %v", path, err)
			}
			n.passthrough[name] = raw
			klog.V(2).InfoS("Carrying unmodeled network file", "file", name)
		}
		if impErr != nil {
			return nil, impErr
		}
	}

	klog.V(2).InfoS("Imported network",
		"dir", dir,
		"buses", len(n.Buses),
		"lines", len(n.Lines),
		"links", len(n.Links),
		"generators", len(n.Generators),
		"loads", len(n.Loads),
		"snapshots", len(n.Snapshots))

	return n, nil
}

// ExportCSVFolder writes the network in the same layout it is
// imported from, so the external optimization stage can consume it
// unmodified.
func (n *Network) ExportCSVFolder(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create network folder: %v", err)
	}

	meta := [][]string{
		{"name", "pypsa_version", "srid"},
		{n.Name, n.PyPSAVersion, strconv.Itoa(n.SRID)},
	}
	if err := writeCSV(filepath.Join(dir, "network.csv"), meta); err != nil {
		return err
	}

	if len(n.Snapshots) > 0 {
		rows := [][]string{{"name", "weightings"}}
		for i, ts := range n.Snapshots {
			rows = append(rows, []string{ts.Format(snapshotLayout), formatFloat(n.SnapshotWeightings[i])})
		}
		if err := writeCSV(filepath.Join(dir, "snapshots.csv"), rows); err != nil {
			return err
		}
	}

	if err := n.exportBuses(filepath.Join(dir, "buses.csv")); err != nil {
		return err
	}
	if err := n.exportLines(filepath.Join(dir, "lines.csv")); err != nil {
		return err
	}
	if err := n.exportLinks(filepath.Join(dir, "links.csv")); err != nil {
		return err
	}
	if err := n.exportGenerators(filepath.Join(dir, "generators.csv")); err != nil {
		return err
	}
	if err := n.exportLoads(filepath.Join(dir, "loads.csv")); err != nil {
		return err
	}
	if err := n.exportCarriers(filepath.Join(dir, "carriers.csv")); err != nil {
		return err
	}

	if err := n.exportFrame(filepath.Join(dir, "generators-marginal_cost.csv"), n.GeneratorsT.MarginalCost); err != nil {
		return err
	}
	if err := n.exportFrame(filepath.Join(dir, "generators-p_max_pu.csv"), n.GeneratorsT.PMaxPU); err != nil {
		return err
	}
	if err := n.exportFrame(filepath.Join(dir, "loads-p_set.csv"), n.LoadsT.PSet); err != nil {
		return err
	}

	for name, raw := range n.passthrough {
		if err := os.WriteFile(filepath.Join(dir, name), raw, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %v", name, err)
		}
	}

	klog.V(2).InfoS("Exported network", "dir", dir, "buses", len(n.Buses), "links", len(n.Links))
	return nil
}

// table is one parsed CSV file with header-indexed access.
type table struct {
	path   string
	header []string
	index  map[string]int
	rows   [][]string
}

func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %v", path, err)
	}
	t := &table{path: path, index: make(map[string]int)}
	if len(records) == 0 {
		return t, nil
	}
	t.header = records[0]
	t.rows = records[1:]
	for i, col := range t.header {
		t.index[strings.TrimSpace(col)] = i
	}
	return t, nil
}

func (t *table) get(row []string, col string) string {
	i, ok := t.index[col]
	if !ok {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *table) float(row []string, rowIdx int, col string, def float64) (float64, error) {
	s := t.get(row, col)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s row %d: column %s: invalid number %q", t.path, rowIdx+2, col, s)
	}
	return v, nil
}

func (t *table) boolean(row []string, rowIdx int, col string, def bool) (bool, error) {
	s := t.get(row, col)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%s row %d: column %s: invalid boolean %q", t.path, rowIdx+2, col, s)
	}
	return v, nil
}

func (t *table) extras(row []string, typed []string) map[string]string {
	typedSet := make(map[string]bool, len(typed))
	for _, c := range typed {
		typedSet[c] = true
	}
	extra := make(map[string]string)
	for i, col := range t.header {
		col = strings.TrimSpace(col)
		if typedSet[col] {
			continue
		}
		if v := strings.TrimSpace(row[i]); v != "" {
			extra[col] = v
		}
	}
	return extra
}

func (n *Network) importMeta(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	t, err := readTable(path)
	if err != nil {
		return err
	}
	if len(t.rows) == 0 {
		return nil
	}
	row := t.rows[0]
	if v := t.get(row, "name"); v != "" {
		n.Name = v
	}
	if v := t.get(row, "pypsa_version"); v != "" {
		n.PyPSAVersion = v
	}
	if v := t.get(row, "srid"); v != "" {
		srid, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid srid %q", path, v)
		}
		n.SRID = srid
	}
	return nil
}

func (n *Network) importSnapshots(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	t, err := readTable(path)
	if err != nil {
		return err
	}
	ts := make([]time.Time, 0, len(t.rows))
	ws := make([]float64, 0, len(t.rows))
	for i, row := range t.rows {
		stamp, err := parseSnapshotTime(t.get(row, "name"))
		if err != nil {
			return fmt.Errorf("%s row %d: %v", path, i+2, err)
		}
		w, err := t.float(row, i, "weightings", 1)
		if err != nil {
			return err
		}
		ts = append(ts, stamp)
		ws = append(ws, w)
	}
	return n.SetSnapshots(ts, ws)
}

func (n *Network) importBuses(path string) error {
	t, err := readTable(path)
	if err != nil {
		return err
	}
	for i, row := range t.rows {
		b := &Bus{
			Name:    t.get(row, "name"),
			Carrier: t.get(row, "carrier"),
			Country: t.get(row, "country"),
			Extra:   t.extras(row, busColumns),
		}
		if b.VNom, err = t.float(row, i, "v_nom", 0); err != nil {
			return err
		}
		if b.X, err = t.float(row, i, "x", 0); err != nil {
			return err
		}
		if b.Y, err = t.float(row, i, "y", 0); err != nil {
			return err
		}
		if err := n.AddBus(b); err != nil {
			return fmt.Errorf("%s row %d: %v", path, i+2, err)
		}
	}
	return nil
}

func (n *Network) importLines(path string) error {
	t, err := readTable(path)
	if err != nil {
		return err
	}
	for i, row := range t.rows {
		l := &Line{
			Name:  t.get(row, "name"),
			Bus0:  t.get(row, "bus0"),
			Bus1:  t.get(row, "bus1"),
			Extra: t.extras(row, lineColumns),
		}
		if l.SNom, err = t.float(row, i, "s_nom", 0); err != nil {
			return err
		}
		if l.SNomExtendable, err = t.boolean(row, i, "s_nom_extendable", false); err != nil {
			return err
		}
		if l.Length, err = t.float(row, i, "length", 0); err != nil {
			return err
		}
		if l.CapitalCost, err = t.float(row, i, "capital_cost", 0); err != nil {
			return err
		}
		if err := n.AddLine(l); err != nil {
			return fmt.Errorf("%s row %d: %v", path, i+2, err)
		}
	}
	return nil
}

func (n *Network) importLinks(path string) error {
	t, err := readTable(path)
	if err != nil {
		return err
	}
	for i, row := range t.rows {
		l := &Link{
			Name:    t.get(row, "name"),
			Bus0:    t.get(row, "bus0"),
			Bus1:    t.get(row, "bus1"),
			Carrier: t.get(row, "carrier"),
			Extra:   t.extras(row, linkColumns),
		}
		if l.PNom, err = t.float(row, i, "p_nom", 0); err != nil {
			return err
		}
		if l.PNomExtendable, err = t.boolean(row, i, "p_nom_extendable", false); err != nil {
			return err
		}
		if l.PNomMax, err = t.float(row, i, "p_nom_max", math.Inf(1)); err != nil {
			return err
		}
		if l.PMinPU, err = t.float(row, i, "p_min_pu", 0); err != nil {
			return err
		}
		if l.Efficiency, err = t.float(row, i, "efficiency", 1); err != nil {
			return err
		}
		if l.Length, err = t.float(row, i, "length", 0); err != nil {
			return err
		}
		if l.CapitalCost, err = t.float(row, i, "capital_cost", 0); err != nil {
			return err
		}
		if l.MarginalCost, err = t.float(row, i, "marginal_cost", 0); err != nil {
			return err
		}
		if l.Lifetime, err = t.float(row, i, "lifetime", math.Inf(1)); err != nil {
			return err
		}
		if l.UnderwaterFraction, err = t.float(row, i, "underwater_fraction", 0); err != nil {
			return err
		}
		if err := n.AddLink(l); err != nil {
			return fmt.Errorf("%s row %d: %v", path, i+2, err)
		}
	}
	return nil
}

func (n *Network) importGenerators(path string) error {
	t, err := readTable(path)
	if err != nil {
		return err
	}
	for i, row := range t.rows {
		g := &Generator{
			Name:    t.get(row, "name"),
			Bus:     t.get(row, "bus"),
			Carrier: t.get(row, "carrier"),
			Extra:   t.extras(row, generatorColumns),
		}
		if g.PNom, err = t.float(row, i, "p_nom", 0); err != nil {
			return err
		}
		if g.PNomExtendable, err = t.boolean(row, i, "p_nom_extendable", false); err != nil {
			return err
		}
		if g.PNomMin, err = t.float(row, i, "p_nom_min", 0); err != nil {
			return err
		}
		if g.PNomMax, err = t.float(row, i, "p_nom_max", math.Inf(1)); err != nil {
			return err
		}
		if g.Efficiency, err = t.float(row, i, "efficiency", 1); err != nil {
			return err
		}
		if g.MarginalCost, err = t.float(row, i, "marginal_cost", 0); err != nil {
			return err
		}
		if g.CapitalCost, err = t.float(row, i, "capital_cost", 0); err != nil {
			return err
		}
		if g.Lifetime, err = t.float(row, i, "lifetime", math.Inf(1)); err != nil {
			return err
		}
		year, err := t.float(row, i, "build_year", 0)
		if err != nil {
			return err
		}
		g.BuildYear = int(year)
		if err := n.AddGenerator(g); err != nil {
			return fmt.Errorf("%s row %d: %v", path, i+2, err)
		}
	}
	return nil
}

func (n *Network) importLoads(path string) error {
	t, err := readTable(path)
	if err != nil {
		return err
	}
	for i, row := range t.rows {
		l := &Load{
			Name:    t.get(row, "name"),
			Bus:     t.get(row, "bus"),
			Carrier: t.get(row, "carrier"),
			Extra:   t.extras(row, loadColumns),
		}
		if l.PSet, err = t.float(row, i, "p_set", 0); err != nil {
			return err
		}
		if err := n.AddLoad(l); err != nil {
			return fmt.Errorf("%s row %d: %v", path, i+2, err)
		}
	}
	return nil
}

func (n *Network) importCarriers(path string) error {
	t, err := readTable(path)
	if err != nil {
		return err
	}
	for i, row := range t.rows {
		c := &Carrier{
			Name:     t.get(row, "name"),
			NiceName: t.get(row, "nice_name"),
			Color:    t.get(row, "color"),
			Extra:    t.extras(row, carrierColumns),
		}
		if c.CO2Emissions, err = t.float(row, i, "co2_emissions", 0); err != nil {
			return err
		}
		if err := n.AddCarrier(c); err != nil {
			return fmt.Errorf("%s row %d: %v", path, i+2, err)
		}
	}
	return nil
}

func (n *Network) importFrame(path string, f *Frame) error {
	t, err := readTable(path)
	if err != nil {
		return err
	}
	if len(t.header) < 2 {
		return nil
	}
	if len(t.rows) != len(n.Snapshots) {
		return fmt.Errorf("%s: has %d rows for %d snapshots", path, len(t.rows), len(n.Snapshots))
	}
	for i, row := range t.rows {
		stamp, err := parseSnapshotTime(strings.TrimSpace(row[0]))
		if err != nil {
			return fmt.Errorf("%s row %d: %v", path, i+2, err)
		}
		if !stamp.Equal(n.Snapshots[i]) {
			return fmt.Errorf("%s row %d: timestamp %s does not match snapshot %s",
				path, i+2, stamp.Format(snapshotLayout), n.Snapshots[i].Format(snapshotLayout))
		}
	}
	for j := 1; j < len(t.header); j++ {
		col := strings.TrimSpace(t.header[j])
		vals := make([]float64, len(t.rows))
		for i, row := range t.rows {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[j]), 64)
			if err != nil {
				return fmt.Errorf("%s row %d: column %s: invalid number %q", path, i+2, col, row[j])
			}
			vals[i] = v
		}
		f.Set(col, vals)
	}
	return nil
}

func (n *Network) exportBuses(path string) error {
	names := n.BusNames()
	extras := extraKeys(len(names), func(i int) map[string]string { return n.Buses[names[i]].Extra })
	rows := [][]string{append(append([]string{}, busColumns...), extras...)}
	for _, name := range names {
		b := n.Buses[name]
		row := []string{b.Name, formatFloat(b.VNom), formatFloat(b.X), formatFloat(b.Y), b.Carrier, b.Country}
		rows = append(rows, appendExtras(row, b.Extra, extras))
	}
	return writeCSV(path, rows)
}

func (n *Network) exportLines(path string) error {
	names := n.LineNames()
	extras := extraKeys(len(names), func(i int) map[string]string { return n.Lines[names[i]].Extra })
	rows := [][]string{append(append([]string{}, lineColumns...), extras...)}
	for _, name := range names {
		l := n.Lines[name]
		row := []string{l.Name, l.Bus0, l.Bus1, formatFloat(l.SNom), formatBool(l.SNomExtendable),
			formatFloat(l.Length), formatFloat(l.CapitalCost)}
		rows = append(rows, appendExtras(row, l.Extra, extras))
	}
	return writeCSV(path, rows)
}

func (n *Network) exportLinks(path string) error {
	names := n.LinkNames()
	extras := extraKeys(len(names), func(i int) map[string]string { return n.Links[names[i]].Extra })
	rows := [][]string{append(append([]string{}, linkColumns...), extras...)}
	for _, name := range names {
		l := n.Links[name]
		row := []string{l.Name, l.Bus0, l.Bus1, l.Carrier, formatFloat(l.PNom), formatBool(l.PNomExtendable),
			formatFloat(l.PNomMax), formatFloat(l.PMinPU), formatFloat(l.Efficiency), formatFloat(l.Length),
			formatFloat(l.CapitalCost), formatFloat(l.MarginalCost), formatFloat(l.Lifetime),
			formatFloat(l.UnderwaterFraction)}
		rows = append(rows, appendExtras(row, l.Extra, extras))
	}
	return writeCSV(path, rows)
}

func (n *Network) exportGenerators(path string) error {
	names := n.GeneratorNames()
	extras := extraKeys(len(names), func(i int) map[string]string { return n.Generators[names[i]].Extra })
	rows := [][]string{append(append([]string{}, generatorColumns...), extras...)}
	for _, name := range names {
		g := n.Generators[name]
		row := []string{g.Name, g.Bus, g.Carrier, formatFloat(g.PNom), formatBool(g.PNomExtendable),
			formatFloat(g.PNomMin), formatFloat(g.PNomMax), formatFloat(g.Efficiency),
			formatFloat(g.MarginalCost), formatFloat(g.CapitalCost), formatFloat(g.Lifetime),
			strconv.Itoa(g.BuildYear)}
		rows = append(rows, appendExtras(row, g.Extra, extras))
	}
	return writeCSV(path, rows)
}

func (n *Network) exportLoads(path string) error {
	names := n.LoadNames()
	extras := extraKeys(len(names), func(i int) map[string]string { return n.Loads[names[i]].Extra })
	rows := [][]string{append(append([]string{}, loadColumns...), extras...)}
	for _, name := range names {
		l := n.Loads[name]
		row := []string{l.Name, l.Bus, l.Carrier, formatFloat(l.PSet)}
		rows = append(rows, appendExtras(row, l.Extra, extras))
	}
	return writeCSV(path, rows)
}

func (n *Network) exportCarriers(path string) error {
	names := n.CarrierNames()
	extras := extraKeys(len(names), func(i int) map[string]string { return n.Carriers[names[i]].Extra })
	rows := [][]string{append(append([]string{}, carrierColumns...), extras...)}
	for _, name := range names {
		c := n.Carriers[name]
		row := []string{c.Name, formatFloat(c.CO2Emissions), c.NiceName, c.Color}
		rows = append(rows, appendExtras(row, c.Extra, extras))
	}
	return writeCSV(path, rows)
}

func (n *Network) exportFrame(path string, f *Frame) error {
	if f.Len() == 0 {
		return nil
	}
	cols := f.Columns()
	sort.Strings(cols)

	rows := [][]string{append([]string{"snapshot"}, cols...)}
	for i, ts := range n.Snapshots {
		row := make([]string, 0, len(cols)+1)
		row = append(row, ts.Format(snapshotLayout))
		for _, col := range cols {
			vals, _ := f.Get(col)
			if len(vals) != len(n.Snapshots) {
				return fmt.Errorf("%s: series %s has %d values for %d snapshots", path, col, len(vals), len(n.Snapshots))
			}
			row = append(row, formatFloat(vals[i]))
		}
		rows = append(rows, row)
	}
	return writeCSV(path, rows)
}

// extraKeys collects the sorted union of Extra column names across a
// component table so the exported header is stable.
func extraKeys(count int, extraAt func(i int) map[string]string) []string {
	seen := make(map[string]bool)
	for i := 0; i < count; i++ {
		for k := range extraAt(i) {
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

func appendExtras(row []string, extra map[string]string, keys []string) []string {
	for _, k := range keys {
		row = append(row, extra[k])
	}
	return row
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %v", path, err)
	}
	w.Flush()
	return w.Error()
}

func parseSnapshotTime(s string) (time.Time, error) {
	for _, layout := range []string{snapshotLayout, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func formatFloat(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	if math.IsInf(v, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
