package generators

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"k8s.io/klog/v2"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/config"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/costs"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/network"
)

// AttachConventional adds the conventional fleet to the network. Only
// plants whose carrier is configured as conventional or extendable
// are attached; extendable-only carriers enter with zero capacity so
// the solver decides their build-out. Costs come from the cost table,
// with the plant's own efficiency taking precedence when reported.
func AttachConventional(n *network.Network, plants []*PowerPlant, table *costs.Table, cfg config.ElectricityConfig) error {
	conventional := toSet(cfg.ConventionalCarriers)
	extendable := toSet(cfg.ExtendableCarriers)
	eligible := make(map[string]bool, len(conventional)+len(extendable))
	for c := range conventional {
		eligible[c] = true
	}
	for c := range extendable {
		eligible[c] = true
	}

	attached := 0
	perCarrier := make(map[string]float64)
	for _, plant := range plants {
		carrier := plant.Carrier
		// Gas plants carry their cycle type in the technology column.
		if carrier == "natural gas" {
			carrier = plant.Technology
		}
		if !eligible[carrier] {
			continue
		}

		if err := ensureCarrier(n, carrier, table); err != nil {
			return err
		}

		bus := plant.Bus
		if bus != "" {
			if _, ok := n.Buses[bus]; !ok {
				return fmt.Errorf("powerplant %q: bus %q not in the network", plant.Name, bus)
			}
		} else {
			nearest, _, ok := n.NearestBus(orb.Point{plant.X, plant.Y}, network.ACBuses)
			if !ok {
				return fmt.Errorf("powerplant %q: no candidate bus for coordinates (%g, %g)", plant.Name, plant.X, plant.Y)
			}
			bus = nearest
		}

		efficiency, err := table.Efficiency(carrier)
		if err != nil {
			return fmt.Errorf("powerplant %q: %v", plant.Name, err)
		}
		if plant.Efficiency != nil {
			efficiency = *plant.Efficiency
		}

		vom, err := table.VOM(carrier)
		if err != nil {
			return fmt.Errorf("powerplant %q: %v", plant.Name, err)
		}
		fuel, err := table.Fuel(carrier)
		if err != nil {
			return fmt.Errorf("powerplant %q: %v", plant.Name, err)
		}
		capital, err := table.CapitalCost(carrier)
		if err != nil {
			return fmt.Errorf("powerplant %q: %v", plant.Name, err)
		}

		pNom := plant.PNom
		if !conventional[carrier] {
			pNom = 0
		}
		lifetime := math.Inf(1)
		if plant.DateIn > 0 && plant.DateOut > 0 {
			lifetime = float64(plant.DateOut - plant.DateIn)
		}

		gen := &network.Generator{
			Name:           "C" + plant.Name,
			Bus:            bus,
			Carrier:        carrier,
			PNom:           pNom,
			PNomMin:        pNom,
			PNomMax:        math.Inf(1),
			PNomExtendable: extendable[carrier],
			Efficiency:     efficiency,
			MarginalCost:   vom + fuel/efficiency,
			CapitalCost:    capital,
			Lifetime:       lifetime,
			BuildYear:      plant.DateIn,
		}
		if err := n.AddGenerator(gen); err != nil {
			return fmt.Errorf("powerplant %q: %v", plant.Name, err)
		}
		attached++
		perCarrier[carrier] += pNom
	}

	for _, carrier := range sortedKeys(perCarrier) {
		klog.V(2).InfoS("Attached conventional capacity",
			"carrier", carrier, "pNomGW", perCarrier[carrier]/1e3)
	}
	klog.InfoS("Attached conventional generators", "generators", attached, "carriers", len(perCarrier))
	return nil
}

// ensureCarrier adds a carrier to the network if missing, with its
// emissions taken from the cost table. Emission factors are keyed by
// the technology family, the part of the carrier name before the
// first dash.
func ensureCarrier(n *network.Network, name string, table *costs.Table) error {
	if _, exists := n.Carriers[name]; exists {
		return nil
	}
	c := &network.Carrier{Name: name}
	family := strings.SplitN(name, "-", 2)[0]
	if co2, ok := table.Lookup(family, costs.ParamCO2Emissions); ok {
		c.CO2Emissions = co2
	}
	return n.AddCarrier(c)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
