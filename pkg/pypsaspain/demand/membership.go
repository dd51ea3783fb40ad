// Package demand distributes regional electricity demand series over
// the substation buses of each region, weighted by gross domestic
// product and population. Regions follow the NUTS classification; the
// bus-to-region membership table is shared with the capacity
// reconciliation stage.
package demand

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"k8s.io/klog/v2"
)

// Member is one bus of the membership table with its regional
// weighting inputs.
type Member struct {
	Bus    string
	Region string
	GDP    float64
	Pop    float64
}

// Membership maps buses to their NUTS region. A bus belongs to
// exactly one region; the loader rejects duplicates so demand is
// never counted twice.
type Membership struct {
	byBus    map[string]*Member
	byRegion map[string][]string
}

// LoadMembership reads the bus,region,gdp,pop table.
func LoadMembership(path string) (*Membership, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open membership table: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse membership table %s: %v", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("membership table %s has no data rows", path)
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"bus", "region", "gdp", "pop"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("membership table %s has no %q column", path, required)
		}
	}

	m := &Membership{
		byBus:    make(map[string]*Member, len(rows)-1),
		byRegion: make(map[string][]string),
	}
	for i, row := range rows[1:] {
		member := &Member{
			Bus:    strings.TrimSpace(row[col["bus"]]),
			Region: strings.TrimSpace(row[col["region"]]),
		}
		if member.Bus == "" || member.Region == "" {
			return nil, fmt.Errorf("membership table %s row %d: bus and region must not be empty", path, i+2)
		}
		if prev, dup := m.byBus[member.Bus]; dup {
			return nil, fmt.Errorf("membership table %s row %d: bus %q already assigned to region %q",
				path, i+2, member.Bus, prev.Region)
		}
		if member.GDP, err = parseWeight(row[col["gdp"]]); err != nil {
			return nil, fmt.Errorf("membership table %s row %d: gdp: %v", path, i+2, err)
		}
		if member.Pop, err = parseWeight(row[col["pop"]]); err != nil {
			return nil, fmt.Errorf("membership table %s row %d: pop: %v", path, i+2, err)
		}
		m.byBus[member.Bus] = member
		m.byRegion[member.Region] = append(m.byRegion[member.Region], member.Bus)
	}
	for _, buses := range m.byRegion {
		sort.Strings(buses)
	}

	klog.V(2).InfoS("Loaded membership table",
		"path", path,
		"buses", len(m.byBus),
		"regions", len(m.byRegion))
	return m, nil
}

func parseWeight(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("weight %g must not be negative", v)
	}
	return v, nil
}

// Member returns the membership record of a bus.
func (m *Membership) Member(bus string) (*Member, bool) {
	rec, ok := m.byBus[bus]
	return rec, ok
}

// Region returns the region a bus belongs to.
func (m *Membership) Region(bus string) (string, bool) {
	rec, ok := m.byBus[bus]
	if !ok {
		return "", false
	}
	return rec.Region, true
}

// BusesInRegion returns the member buses of a region, sorted.
func (m *Membership) BusesInRegion(region string) []string {
	return m.byRegion[region]
}

// Regions returns all region codes sorted.
func (m *Membership) Regions() []string {
	regions := make([]string, 0, len(m.byRegion))
	for region := range m.byRegion {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}
