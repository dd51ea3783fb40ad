package demand

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/config"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/network"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/series"
)

// Attach distributes the regional demand series over the member buses
// of each region. The weight of bus b in its region is
//
//	w_b = scale_gdp * gdp_b/sum(gdp) + scale_pop * pop_b/sum(pop)
//
// renormalized so the weights of a region sum to one, which keeps the
// per-region energy total intact. One load per bus is added, named
// after the bus and carrying no carrier tag.
func Attach(n *network.Network, regional *series.TimeSeries, membership *Membership, cfg config.LoadConfig) error {
	if len(n.Snapshots) == 0 {
		return fmt.Errorf("network has no snapshots; demand series cannot be aligned")
	}

	// Stage every region before the first load is added, so a bad
	// table leaves the network untouched. Load names are claimed
	// against the existing loads up front, the way the topology
	// builder claims component names before committing.
	type staged struct {
		region string
		buses  []string
		pset   mat.Dense
	}
	claimed := make(map[string]bool, len(n.Loads))
	var blocks []staged
	for _, region := range regional.Columns {
		buses := membership.BusesInRegion(region)
		if len(buses) == 0 {
			return fmt.Errorf("demand region %q has no member buses", region)
		}
		for _, bus := range buses {
			if _, ok := n.Buses[bus]; !ok {
				return fmt.Errorf("demand region %q: bus %q not in the network", region, bus)
			}
			if _, ok := n.Loads[bus]; ok || claimed[bus] {
				return fmt.Errorf("demand region %q: load %q already exists", region, bus)
			}
			claimed[bus] = true
		}

		factors, err := regionFactors(membership, buses, cfg.ScaleGDP, cfg.ScalePop)
		if err != nil {
			return fmt.Errorf("demand region %q: %v", region, err)
		}

		vals, err := regional.Align(n.Snapshots, region)
		if err != nil {
			return fmt.Errorf("demand region %q: %v", region, err)
		}

		// p_set[t][b] = series[t] * w_b, one column per member bus.
		block := staged{region: region, buses: buses}
		block.pset.Outer(1, mat.NewVecDense(len(vals), vals), mat.NewVecDense(len(factors), factors))
		blocks = append(blocks, block)
	}

	attached := 0
	for i := range blocks {
		block := &blocks[i]
		for j, bus := range block.buses {
			if err := n.AddLoad(&network.Load{Name: bus, Bus: bus}); err != nil {
				return fmt.Errorf("demand region %q: %v", block.region, err)
			}
			n.LoadsT.PSet.Set(bus, mat.Col(nil, j, &block.pset))
			attached++
		}
	}

	klog.V(2).InfoS("Attached regional demand",
		"regions", len(regional.Columns),
		"loads", attached,
		"scaleGDP", cfg.ScaleGDP,
		"scalePop", cfg.ScalePop)
	return nil
}

// regionFactors computes the normalized per-bus weights of one
// region.
func regionFactors(membership *Membership, buses []string, scaleGDP, scalePop float64) ([]float64, error) {
	gdp := make([]float64, len(buses))
	pop := make([]float64, len(buses))
	for i, bus := range buses {
		member, _ := membership.Member(bus)
		gdp[i] = member.GDP
		pop[i] = member.Pop
	}
	gdpSum := floats.Sum(gdp)
	popSum := floats.Sum(pop)

	if scaleGDP > 0 && gdpSum == 0 {
		return nil, fmt.Errorf("gdp weights sum to zero")
	}
	if scalePop > 0 && popSum == 0 {
		return nil, fmt.Errorf("pop weights sum to zero")
	}

	factors := make([]float64, len(buses))
	for i := range buses {
		if scaleGDP > 0 {
			factors[i] += scaleGDP * gdp[i] / gdpSum
		}
		if scalePop > 0 {
			factors[i] += scalePop * pop[i] / popSum
		}
	}
	total := floats.Sum(factors)
	if total == 0 {
		return nil, fmt.Errorf("bus weights sum to zero")
	}
	floats.Scale(1/total, factors)
	return factors, nil
}
