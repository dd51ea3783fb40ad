// Package capacity reconciles the modeled generator capacities with
// the values reported by the system operator, per NUTS2 region and
// carrier. Targets are regional annual means; the spatial assignment
// of buses to regions is shared with the demand stage.
package capacity

import (
	"fmt"
	"os"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v2"
	"k8s.io/klog/v2"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/demand"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/network"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/series"
)

// Methods for distributing a capacity increase over the generators
// of a region. Decreases are always proportional.
const (
	MethodProportional = "proportional"
	MethodAdditional   = "additional"
)

// Reported maps a carrier to its regional reported-capacity series:
// one column per NUTS2 region, one row per reporting timestamp.
type Reported map[string]*series.TimeSeries

// LoadReported reads the carrier-to-file YAML map and loads every
// referenced series.
func LoadReported(path string, store *series.Store) (Reported, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reported-capacities map: %v", err)
	}
	files := make(map[string]string)
	if err := yaml.UnmarshalStrict(data, &files); err != nil {
		return nil, fmt.Errorf("failed to parse reported-capacities map %s: %v", path, err)
	}

	reported := make(Reported, len(files))
	for carrier, file := range files {
		ts, err := store.Get(file)
		if err != nil {
			return nil, fmt.Errorf("reported capacities for %s: %v", carrier, err)
		}
		reported[carrier] = ts
	}

	klog.V(2).InfoS("Loaded reported capacities", "path", path, "carriers", len(reported))
	return reported, nil
}

// Carriers returns the carrier names sorted.
func (r Reported) Carriers() []string {
	carriers := make([]string, 0, len(r))
	for c := range r {
		carriers = append(carriers, c)
	}
	sort.Strings(carriers)
	return carriers
}

// Update adjusts generator p_nom so every (region, carrier) group
// matches its reported capacity. Increases follow the configured
// method; decreases scale proportionally. Generators above their
// p_nom_max after the update are clamped one at a time and the excess
// is re-shared over the rest until every maximum holds.
func Update(n *network.Network, reported Reported, membership *demand.Membership, method string) error {
	if method != MethodProportional && method != MethodAdditional {
		return fmt.Errorf("unknown capacity update method %q", method)
	}

	for _, carrier := range reported.Carriers() {
		ts := reported[carrier]
		for _, region := range ts.Columns {
			buses := membership.BusesInRegion(region)
			// Columns without member buses are aggregates such as
			// country totals or territories outside the model.
			if len(buses) == 0 {
				klog.V(3).InfoS("Skipping reported column without member buses",
					"carrier", carrier, "column", region)
				continue
			}

			group := regionGenerators(n, buses, carrier)
			if len(group) == 0 {
				klog.InfoS("Warning: no generator for reported capacity",
					"carrier", carrier, "region", region)
				continue
			}

			vals, _ := ts.Column(region)
			target := stat.Mean(vals, nil)

			if err := updateGroup(group, target, method, carrier, region); err != nil {
				return err
			}
		}
	}
	return nil
}

// regionGenerators collects the generators of one carrier on the
// region's buses, sorted by name. Generators below 0.01 MW are
// ignored unless they are all the region has, so zero-capacity
// everywhere-generators do not soak up reported capacity.
func regionGenerators(n *network.Network, buses []string, carrier string) []*network.Generator {
	inRegion := make(map[string]bool, len(buses))
	for _, b := range buses {
		inRegion[b] = true
	}

	var all, sized []*network.Generator
	for _, name := range n.GeneratorNames() {
		g := n.Generators[name]
		if g.Carrier != carrier || !inRegion[g.Bus] {
			continue
		}
		all = append(all, g)
		if g.PNom > 0.01 {
			sized = append(sized, g)
		}
	}
	if len(sized) > 0 {
		return sized
	}
	return all
}

// updateGroup drives one (region, carrier) group to the target and
// resolves p_nom_max violations.
func updateGroup(group []*network.Generator, target float64, method, carrier, region string) error {
	initial := groupPNom(group)

	distribute(group, target, method, carrier, region)

	var maxSum float64
	for _, g := range group {
		maxSum += g.PNomMax
	}
	if groupPNom(group) > maxSum {
		return fmt.Errorf("reported %s capacity in %s (%.0f MW) exceeds the group's p_nom_max (%.0f MW)",
			carrier, region, target, maxSum)
	}

	// Clamp violators one at a time, re-sharing the overflow across
	// the remaining generators with the same method.
	remaining := append([]*network.Generator(nil), group...)
	for {
		violator := -1
		for i, g := range remaining {
			if g.PNom > g.PNomMax {
				violator = i
				break
			}
		}
		if violator < 0 {
			break
		}
		g := remaining[violator]
		overflow := g.PNom - g.PNomMax
		g.PNom = g.PNomMax
		remaining = append(remaining[:violator], remaining[violator+1:]...)

		distribute(remaining, groupPNom(remaining)+overflow, method, carrier, region)
	}

	final := groupPNom(group)
	if int64(final) == int64(initial) {
		klog.V(2).InfoS("Reported capacity matches", "carrier", carrier, "region", region)
	} else {
		klog.InfoS("Updated capacity",
			"carrier", carrier, "region", region,
			"fromMW", int64(initial), "toMW", int64(final))
	}

	saturated := 0
	for _, g := range group {
		if g.PNom == g.PNomMax {
			saturated++
		}
	}
	if saturated > 0 {
		klog.InfoS("Generators saturated at p_nom_max",
			"carrier", carrier, "region", region, "generators", saturated)
	}
	return nil
}

// distribute moves a group's summed p_nom to the target. Whole-MW
// equality counts as matching, so reporting noise below one megawatt
// never churns the fleet.
func distribute(group []*network.Generator, target float64, method, carrier, region string) {
	if len(group) == 0 {
		return
	}
	current := groupPNom(group)

	switch {
	case int64(target) > int64(current):
		if method == MethodProportional && current > 0 {
			factor := target / current
			for _, g := range group {
				g.PNom *= factor
			}
			return
		}
		if method == MethodProportional {
			klog.InfoS("Warning: no initial capacity, falling back to the additional method",
				"carrier", carrier, "region", region)
		}
		share := (target - current) / float64(len(group))
		for _, g := range group {
			g.PNom += share
		}
	case int64(target) < int64(current):
		factor := target / current
		for _, g := range group {
			g.PNom *= factor
		}
	}
}

func groupPNom(group []*network.Generator) float64 {
	var sum float64
	for _, g := range group {
		sum += g.PNom
	}
	return sum
}
