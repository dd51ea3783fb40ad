// Package costs loads the technology cost database and derives the
// per-technology capital and marginal costs the generator and
// transmission stages consume. The input is the long-form CSV keyed
// by (technology, parameter) used by the upstream cost workflows;
// units quoted per kW are normalized to per MW on load.
package costs

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/config"
)

// Parameter names of the cost table. Raw parameters come from the
// file; the derived ones are computed during Load.
const (
	ParamInvestment   = "investment"
	ParamFOM          = "FOM"
	ParamVOM          = "VOM"
	ParamFuel         = "fuel"
	ParamEfficiency   = "efficiency"
	ParamLifetime     = "lifetime"
	ParamDiscountRate = "discount rate"
	ParamCO2Intensity = "CO2 intensity"

	ParamCapitalCost  = "capital_cost"
	ParamMarginalCost = "marginal_cost"
	ParamCO2Emissions = "co2_emissions"
)

// Table holds the loaded cost records: technology -> parameter ->
// value, in MW-based units, with capital and marginal costs already
// derived and config overrides applied.
type Table struct {
	params map[string]map[string]float64
	nyears float64
}

// Annuity is the annualization factor for an asset with the given
// lifetime in years at discount rate r: r / (1 - (1+r)^-n), or 1/n
// for a zero rate.
func Annuity(lifetime, rate float64) float64 {
	if rate > 0 {
		return rate / (1.0 - math.Pow(1.0+rate, -lifetime))
	}
	return 1.0 / lifetime
}

// Load reads the cost table and derives capital and marginal costs.
// maxHours supplies the energy-to-power ratios used to compose the
// storage technologies; nyears scales annualized capital costs to the
// modeled period.
func Load(path string, cfg config.CostsConfig, maxHours map[string]float64, nyears float64) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cost table: %v", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse cost table %s: %v", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("cost table %s has no data rows", path)
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"technology", "parameter", "value", "unit"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("cost table %s has no %q column", path, required)
		}
	}

	t := &Table{params: make(map[string]map[string]float64), nyears: nyears}

	for i, row := range rows[1:] {
		tech := strings.TrimSpace(row[col["technology"]])
		param := strings.TrimSpace(row[col["parameter"]])
		raw := strings.TrimSpace(row[col["value"]])
		unit := strings.TrimSpace(row[col["unit"]])
		if tech == "" || param == "" {
			return nil, fmt.Errorf("cost table %s row %d: technology and parameter must not be empty", path, i+2)
		}
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("cost table %s row %d: invalid value %q for %s/%s", path, i+2, raw, tech, param)
		}
		if strings.Contains(unit, "/kW") {
			value *= 1e3
		}
		t.set(tech, param, value)
	}

	t.fill(cfg.FillValues)
	t.derive(maxHours)

	if err := t.override(ParamMarginalCost, cfg.MarginalCost); err != nil {
		return nil, err
	}
	if err := t.override(ParamCapitalCost, cfg.CapitalCost); err != nil {
		return nil, err
	}

	klog.V(2).InfoS("Loaded cost table",
		"path", path,
		"technologies", len(t.params),
		"nyears", nyears)
	return t, nil
}

func (t *Table) set(tech, param string, value float64) {
	rec, ok := t.params[tech]
	if !ok {
		rec = make(map[string]float64)
		t.params[tech] = rec
	}
	rec[param] = value
}

// fill substitutes the configured defaults for parameters a
// technology is missing, so the derivations below never divide by an
// absent value.
func (t *Table) fill(defaults map[string]float64) {
	for _, rec := range t.params {
		for param, value := range defaults {
			if _, ok := rec[param]; !ok {
				rec[param] = value
			}
		}
	}
}

// derive computes capital and marginal costs and the gas-fired,
// solar and storage aliases of the upstream workflow.
func (t *Table) derive(maxHours map[string]float64) {
	for _, rec := range t.params {
		rec[ParamCapitalCost] = (Annuity(rec[ParamLifetime], rec[ParamDiscountRate]) + rec[ParamFOM]/100.0) *
			rec[ParamInvestment] * t.nyears
		if co2, ok := rec[ParamCO2Intensity]; ok {
			rec[ParamCO2Emissions] = co2
		}
	}

	// Open and combined cycle turbines burn gas; their fuel cost and
	// emissions come from the gas record.
	if gas, ok := t.params["gas"]; ok {
		for _, turbine := range []string{"OCGT", "CCGT"} {
			if rec, ok := t.params[turbine]; ok {
				rec[ParamFuel] = gas[ParamFuel]
				rec[ParamCO2Emissions] = gas[ParamCO2Emissions]
			}
		}
	}

	for _, rec := range t.params {
		rec[ParamMarginalCost] = rec[ParamVOM] + rec[ParamFuel]/rec[ParamEfficiency]
	}

	if utility, ok := t.params["solar-utility"]; ok {
		if solar, ok := t.params["solar"]; ok {
			solar[ParamCapitalCost] = utility[ParamCapitalCost]
		}
	}
	if hsat, ok := t.params["solar-utility single-axis tracking"]; ok {
		t.params["solar-hsat"] = hsat
		delete(t.params, "solar-utility single-axis tracking")
	}

	t.composeStorage("battery", maxHours["battery"], "battery storage", "battery inverter")
	t.composeStorage("H2", maxHours["H2"], "hydrogen storage underground", "fuel cell", "electrolysis")
}

// composeStorage builds a combined storage technology from a store
// record scaled by its energy-to-power ratio plus one or two
// converter records.
func (t *Table) composeStorage(name string, maxHours float64, store string, converters ...string) {
	storeRec, ok := t.params[store]
	if !ok {
		klog.V(2).InfoS("Storage composition skipped, store technology missing",
			"technology", name, "store", store)
		return
	}
	capital := maxHours * storeRec[ParamCapitalCost]
	for _, conv := range converters {
		rec, ok := t.params[conv]
		if !ok {
			klog.V(2).InfoS("Storage composition skipped, converter technology missing",
				"technology", name, "converter", conv)
			return
		}
		capital += rec[ParamCapitalCost]
	}
	t.params[name] = map[string]float64{
		ParamCapitalCost:  capital,
		ParamMarginalCost: 0,
		ParamCO2Emissions: 0,
	}
}

// override applies the per-technology cost overrides from the
// configuration. Overriding a technology the table does not carry is
// an error: a typo here would otherwise silently leave the file value
// in force.
func (t *Table) override(param string, overrides map[string]float64) error {
	techs := make([]string, 0, len(overrides))
	for tech := range overrides {
		techs = append(techs, tech)
	}
	sort.Strings(techs)
	for _, tech := range techs {
		rec, ok := t.params[tech]
		if !ok {
			return fmt.Errorf("%s override for unknown technology %q", param, tech)
		}
		rec[param] = overrides[tech]
		klog.V(2).InfoS("Applied cost override", "technology", tech, "parameter", param, "value", overrides[tech])
	}
	return nil
}

// Has reports whether the table carries the technology. A nil table
// carries nothing.
func (t *Table) Has(tech string) bool {
	if t == nil {
		return false
	}
	_, ok := t.params[tech]
	return ok
}

// Lookup returns one parameter of one technology.
func (t *Table) Lookup(tech, param string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	rec, ok := t.params[tech]
	if !ok {
		return 0, false
	}
	v, ok := rec[param]
	return v, ok
}

// at is Lookup with a missing entry promoted to an error naming both
// keys.
func (t *Table) at(tech, param string) (float64, error) {
	v, ok := t.Lookup(tech, param)
	if !ok {
		return 0, fmt.Errorf("cost table has no %s for technology %q", param, tech)
	}
	return v, nil
}

func (t *Table) CapitalCost(tech string) (float64, error)  { return t.at(tech, ParamCapitalCost) }
func (t *Table) MarginalCost(tech string) (float64, error) { return t.at(tech, ParamMarginalCost) }
func (t *Table) CO2Emissions(tech string) (float64, error) { return t.at(tech, ParamCO2Emissions) }
func (t *Table) Efficiency(tech string) (float64, error)   { return t.at(tech, ParamEfficiency) }
func (t *Table) VOM(tech string) (float64, error)          { return t.at(tech, ParamVOM) }
func (t *Table) Fuel(tech string) (float64, error)         { return t.at(tech, ParamFuel) }

// Technologies returns the loaded technology names sorted.
func (t *Table) Technologies() []string {
	techs := make([]string, 0, len(t.params))
	for tech := range t.params {
		techs = append(techs, tech)
	}
	sort.Strings(techs)
	return techs
}

// Nyears returns the period scaling the capital costs embed.
func (t *Table) Nyears() float64 {
	return t.nyears
}
