// Package interconnect builds the cross-border interconnection
// topology: border buses, export/import links to the nearest node of
// the base network, links to neighbouring-country buses, and the
// generators and loads representing imported and exported energy.
// The builder is a single-pass transformation from two declarative
// YAML tables to staged network components; it never mutates the
// network it was given until the whole table has built.
package interconnect

import "sort"

// Carrier tags of the emitted components. The export/import tags are
// the authoritative schema; the plain DC tag is the deprecated
// single-link compatibility path.
const (
	CarrierExport    = "DC_ic export"
	CarrierImport    = "DC_ic import"
	CarrierCountry   = "DC_ic nc"
	CarrierLegacy    = "DC"
	CarrierGenerator = "import"
)

// BusParams are the attributes of a declared bus. Coordinates are
// geographic (longitude, latitude), matching the base network.
type BusParams struct {
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Carrier string  `yaml:"carrier"`
	VNom    float64 `yaml:"v_nom"`
}

// LinkParams are the recognized attributes of a declared link.
// Optional fields keep their PyPSA defaults when absent: efficiency
// 1, p_nom_max and lifetime unbounded, p_min_pu per link role (0 for
// the directed export/import legs, -1 for bidirectional links).
type LinkParams struct {
	PNom           float64  `yaml:"p_nom"`
	PNomExtendable bool     `yaml:"p_nom_extendable"`
	PNomMax        *float64 `yaml:"p_nom_max"`
	PMinPU         *float64 `yaml:"p_min_pu"`
	Efficiency     *float64 `yaml:"efficiency"`
	Length         float64  `yaml:"length"`
	CapitalCost    float64  `yaml:"capital_cost"`
	MarginalCost   float64  `yaml:"marginal_cost"`
	Lifetime       *float64 `yaml:"lifetime"`
}

// GeneratorParams configure the import generator of one
// interconnection. The generator is always extendable and carries no
// static cost of its own beyond the capital cost; its marginal cost
// comes from the neighbouring country's reference price and the
// per-snapshot market price series.
type GeneratorParams struct {
	PNom        float64  `yaml:"p_nom"`
	PNomMax     *float64 `yaml:"p_nom_max"`
	CapitalCost float64  `yaml:"capital_cost"`
	Efficiency  *float64 `yaml:"efficiency"`
	Lifetime    *float64 `yaml:"lifetime"`
}

// LoadParams configure the export load of one interconnection.
type LoadParams struct {
	PSet float64 `yaml:"p_set"`
}

// CountryRecord is one entry of the neighbouring-countries table:
// the synthetic bus representing the country's market and the
// reference marginal cost of energy imported from it.
type CountryRecord struct {
	BusName      string    `yaml:"bus_name"`
	BusParams    BusParams `yaml:"bus_params"`
	MarginalCost float64   `yaml:"marginal_cost"`
}

// Record is one entry of the interconnections table. The export and
// import groups belong to the current schema; LinkName/LinkParams
// belong to the legacy single-link schema. Validation enforces that
// exactly the group matching the configured schema is present.
type Record struct {
	Country   string    `yaml:"country"`
	BusName   string    `yaml:"bus_name"`
	BusParams BusParams `yaml:"bus_params"`

	LinkExportName   string     `yaml:"link_export_name"`
	LinkExportParams LinkParams `yaml:"link_export_params"`
	LinkImportName   string     `yaml:"link_import_name"`
	LinkImportParams LinkParams `yaml:"link_import_params"`
	LinkNCName       string     `yaml:"link_nc_name"`
	LinkNCParams     LinkParams `yaml:"link_nc_params"`

	LinkName   string     `yaml:"link_name"`
	LinkParams LinkParams `yaml:"link_params"`

	GeneratorName   string          `yaml:"generator_name"`
	GeneratorParams GeneratorParams `yaml:"generator_params"`
	GeneratorPrices string          `yaml:"generator_prices"`
	LoadName        string          `yaml:"load_name"`
	LoadParams      LoadParams      `yaml:"load_params"`
}

// Tables are the two loaded and validated input tables. Countries is
// nil under the legacy schema, which has no neighbouring-countries
// table.
type Tables struct {
	Legacy           bool
	Countries        map[string]CountryRecord
	Interconnections map[string]Record
}

// IDs returns the interconnection identifiers sorted, so every pass
// over the table is deterministic.
func (t *Tables) IDs() []string {
	ids := make([]string, 0, len(t.Interconnections))
	for id := range t.Interconnections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CountryCodes returns the neighbouring-country codes sorted.
func (t *Tables) CountryCodes() []string {
	codes := make([]string, 0, len(t.Countries))
	for code := range t.Countries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
