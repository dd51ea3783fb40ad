// Package generators attaches the existing conventional fleet to the
// network and keeps the carrier table consistent with everything the
// components reference.
package generators

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"k8s.io/klog/v2"
)

// carrierAliases normalizes the fuel names of powerplant datasets to
// the carrier names of the cost table.
var carrierAliases = map[string]string{
	"ocgt":          "OCGT",
	"ccgt":          "CCGT",
	"bioenergy":     "biomass",
	"ccgt, thermal": "CCGT",
	"hard coal":     "coal",
}

// PowerPlant is one row of the powerplants table. Bus may be empty,
// in which case the plant is placed at the nearest network node to
// its coordinates. A nil Efficiency defers to the cost table.
type PowerPlant struct {
	Name       string
	Carrier    string
	Technology string
	Bus        string
	X          float64
	Y          float64
	PNom       float64
	Efficiency *float64
	DateIn     int
	DateOut    int
}

// LoadPowerPlants reads the powerplants CSV and normalizes the
// carrier names. Recognized columns: name, carrier, technology, bus,
// x, y, p_nom, efficiency, datein, dateout; efficiency, bus and the
// commissioning dates may be blank.
func LoadPowerPlants(path string) ([]*PowerPlant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open powerplants table: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse powerplants table %s: %v", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("powerplants table %s has no data rows", path)
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"name", "carrier", "p_nom"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("powerplants table %s has no %q column", path, required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	plants := make([]*PowerPlant, 0, len(rows)-1)
	seen := make(map[string]bool, len(rows)-1)
	for i, row := range rows[1:] {
		p := &PowerPlant{
			Name:       field(row, "name"),
			Carrier:    field(row, "carrier"),
			Technology: field(row, "technology"),
			Bus:        field(row, "bus"),
		}
		if p.Name == "" {
			return nil, fmt.Errorf("powerplants table %s row %d: name must not be empty", path, i+2)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("powerplants table %s row %d: duplicate plant %q", path, i+2, p.Name)
		}
		seen[p.Name] = true

		if alias, ok := carrierAliases[p.Carrier]; ok {
			p.Carrier = alias
		}

		if p.PNom, err = parseFloatField(field(row, "p_nom")); err != nil {
			return nil, fmt.Errorf("powerplants table %s row %d: p_nom: %v", path, i+2, err)
		}
		if p.X, err = parseFloatField(field(row, "x")); err != nil {
			return nil, fmt.Errorf("powerplants table %s row %d: x: %v", path, i+2, err)
		}
		if p.Y, err = parseFloatField(field(row, "y")); err != nil {
			return nil, fmt.Errorf("powerplants table %s row %d: y: %v", path, i+2, err)
		}
		if raw := field(row, "efficiency"); raw != "" {
			eff, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("powerplants table %s row %d: efficiency: invalid number %q", path, i+2, raw)
			}
			p.Efficiency = &eff
		}
		if p.DateIn, err = parseYearField(field(row, "datein")); err != nil {
			return nil, fmt.Errorf("powerplants table %s row %d: datein: %v", path, i+2, err)
		}
		if p.DateOut, err = parseYearField(field(row, "dateout")); err != nil {
			return nil, fmt.Errorf("powerplants table %s row %d: dateout: %v", path, i+2, err)
		}

		plants = append(plants, p)
	}

	klog.V(2).InfoS("Loaded powerplants table", "path", path, "plants", len(plants))
	return plants, nil
}

func parseFloatField(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func parseYearField(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	// Some datasets carry years as floats ("2002.0").
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return int(v), nil
}
