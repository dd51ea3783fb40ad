package interconnect

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
	"k8s.io/klog/v2"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/config"
)

// LoadTables reads and validates the interconnection tables named by
// the configuration. Under the current schema both tables load and
// every record is cross-checked against the countries table; under the
// legacy schema only the interconnections table exists. All validation
// happens here, before any network is touched, so a bad table never
// reaches the build stage.
func LoadTables(cfg config.InterconnectionsConfig) (*Tables, error) {
	if !cfg.Enable {
		return nil, &Error{Kind: ErrConfig, Detail: "interconnections are not enabled"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &Error{Kind: ErrConfig, Detail: err.Error()}
	}

	t := &Tables{Legacy: cfg.LegacySchema}

	if !cfg.LegacySchema {
		countries, err := loadCountries(cfg.NCFile)
		if err != nil {
			return nil, err
		}
		t.Countries = countries
	}

	ics, err := loadInterconnections(cfg.ICFile)
	if err != nil {
		return nil, err
	}
	t.Interconnections = ics

	for _, id := range t.IDs() {
		rec := t.Interconnections[id]
		if err := rec.validate(id, cfg.LegacySchema); err != nil {
			return nil, err
		}
		if !cfg.LegacySchema {
			if _, ok := t.Countries[rec.Country]; !ok {
				return nil, configError(id, "country %q not present in the neighbouring-countries table", rec.Country)
			}
		}
	}

	klog.V(2).InfoS("Loaded interconnection tables",
		"interconnections", len(t.Interconnections),
		"countries", len(t.Countries),
		"legacySchema", cfg.LegacySchema)

	return t, nil
}

func loadCountries(path string) (map[string]CountryRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: ErrConfig, Detail: fmt.Sprintf("failed to read countries table %s", path), Cause: err}
	}
	countries := make(map[string]CountryRecord)
	if err := yaml.UnmarshalStrict(data, &countries); err != nil {
		return nil, &Error{Kind: ErrConfig, Detail: fmt.Sprintf("failed to parse countries table %s", path), Cause: err}
	}
	for code, c := range countries {
		if c.BusName == "" {
			return nil, &Error{Kind: ErrConfig, Detail: fmt.Sprintf("country %q: bus_name must not be empty", code)}
		}
		if c.MarginalCost < 0 {
			return nil, &Error{Kind: ErrConfig, Detail: fmt.Sprintf("country %q: marginal_cost must not be negative", code)}
		}
	}
	return countries, nil
}

func loadInterconnections(path string) (map[string]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: ErrConfig, Detail: fmt.Sprintf("failed to read interconnections table %s", path), Cause: err}
	}
	ics := make(map[string]Record)
	if err := yaml.UnmarshalStrict(data, &ics); err != nil {
		return nil, &Error{Kind: ErrConfig, Detail: fmt.Sprintf("failed to parse interconnections table %s", path), Cause: err}
	}
	return ics, nil
}

// validate checks one record against the active schema. Records are
// rejected when they mix fields of both schemas, so a half-migrated
// table fails loudly instead of silently dropping links.
func (r *Record) validate(id string, legacy bool) error {
	if r.BusName == "" {
		return configError(id, "bus_name must not be empty")
	}
	if r.GeneratorName == "" {
		return configError(id, "generator_name must not be empty")
	}
	if r.LoadName == "" {
		return configError(id, "load_name must not be empty")
	}
	if r.GeneratorPrices == "" {
		return configError(id, "generator_prices must name a price-series file while interconnections are enabled")
	}

	if legacy {
		if r.LinkName == "" {
			return configError(id, "link_name must not be empty")
		}
		if r.Country != "" {
			return configError(id, "country is not recognized by the legacy schema")
		}
		if r.LinkExportName != "" || r.LinkImportName != "" || r.LinkNCName != "" {
			return configError(id, "link_export_name, link_import_name and link_nc_name are not recognized by the legacy schema")
		}
		if err := r.LinkParams.validate(id, "link_params"); err != nil {
			return err
		}
	} else {
		if r.Country == "" {
			return configError(id, "country must not be empty")
		}
		if r.LinkName != "" {
			return configError(id, "link_name belongs to the legacy schema")
		}
		if r.LinkExportName == "" || r.LinkImportName == "" {
			return configError(id, "link_export_name and link_import_name must both be set")
		}
		if r.LinkNCName == "" {
			return configError(id, "link_nc_name must not be empty")
		}
		for _, lp := range []struct {
			field  string
			params LinkParams
		}{
			{"link_export_params", r.LinkExportParams},
			{"link_import_params", r.LinkImportParams},
			{"link_nc_params", r.LinkNCParams},
		} {
			if err := lp.params.validate(id, lp.field); err != nil {
				return err
			}
		}
	}

	if r.GeneratorParams.PNom < 0 {
		return configError(id, "generator_params: p_nom must not be negative")
	}
	if eff := r.GeneratorParams.Efficiency; eff != nil && (*eff <= 0 || *eff > 1) {
		return configError(id, "generator_params: efficiency must be in (0, 1]")
	}
	if r.LoadParams.PSet < 0 {
		return configError(id, "load_params: p_set must not be negative")
	}
	return nil
}

func (p *LinkParams) validate(id, field string) error {
	if p.PNom < 0 {
		return configError(id, "%s: p_nom must not be negative", field)
	}
	if p.PNomMax != nil && *p.PNomMax < p.PNom {
		return configError(id, "%s: p_nom_max %g is below p_nom %g", field, *p.PNomMax, p.PNom)
	}
	if p.Efficiency != nil && (*p.Efficiency <= 0 || *p.Efficiency > 1) {
		return configError(id, "%s: efficiency must be in (0, 1]", field)
	}
	if p.PMinPU != nil && (*p.PMinPU < -1 || *p.PMinPU > 0) {
		return configError(id, "%s: p_min_pu must be in [-1, 0]", field)
	}
	if p.Length < 0 {
		return configError(id, "%s: length must not be negative", field)
	}
	return nil
}
