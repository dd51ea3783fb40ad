package generators

import (
	"sort"

	"k8s.io/klog/v2"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/config"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/costs"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/network"
)

// SanitizeCarriers makes the carrier table consistent before export:
// every carrier referenced by a bus, link, generator or load exists,
// emissions are filled from the cost table where known, and display
// metadata comes from the plotting configuration. Carriers without a
// configured color are reported in one warning.
func SanitizeCarriers(n *network.Network, table *costs.Table, cfg config.PlottingConfig) error {
	referenced := make(map[string]bool)
	for _, b := range n.Buses {
		referenced[b.Carrier] = true
	}
	for _, l := range n.Links {
		referenced[l.Carrier] = true
	}
	for _, g := range n.Generators {
		referenced[g.Carrier] = true
	}
	for _, l := range n.Loads {
		referenced[l.Carrier] = true
	}
	delete(referenced, "")

	carriers := make([]string, 0, len(referenced))
	for c := range referenced {
		carriers = append(carriers, c)
	}
	sort.Strings(carriers)

	added := 0
	for _, name := range carriers {
		if _, exists := n.Carriers[name]; !exists {
			if err := ensureCarrier(n, name, table); err != nil {
				return err
			}
			added++
		}
	}

	var missingColors []string
	for _, name := range n.CarrierNames() {
		c := n.Carriers[name]
		if c.NiceName == "" {
			if nice, ok := cfg.NiceNames[name]; ok {
				c.NiceName = nice
			} else {
				c.NiceName = name
			}
		}
		if c.Color == "" {
			if color, ok := cfg.TechColors[name]; ok {
				c.Color = color
			} else {
				missingColors = append(missingColors, name)
			}
		}
	}
	if len(missingColors) > 0 {
		klog.InfoS("Warning: tech_colors not defined for carriers", "carriers", missingColors)
	}

	klog.V(2).InfoS("Sanitized carriers", "referenced", len(carriers), "added", added, "total", len(n.Carriers))
	return nil
}
