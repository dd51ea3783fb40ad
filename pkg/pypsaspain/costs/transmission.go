package costs

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/network"
)

// Transmission technologies of the cost table.
const (
	TechHVACOverhead     = "HVAC overhead"
	TechHVDCOverhead     = "HVDC overhead"
	TechHVDCSubmarine    = "HVDC submarine"
	TechHVDCInverterPair = "HVDC inverter pair"
)

// UpdateTransmissionCosts recomputes the capital costs of AC lines
// and plain DC links from their lengths. Only links with the exact
// carrier "DC" are touched: the DC_ic interconnection carriers keep
// the costs configured in their tables. lengthFactor inflates
// geodesic lengths to account for routing; simpleHVDC prices DC links
// as overhead lines only, without the submarine share and converter
// pair.
func UpdateTransmissionCosts(n *network.Network, t *Table, lengthFactor float64, simpleHVDC bool) error {
	if len(n.Lines) > 0 {
		hvac, err := t.CapitalCost(TechHVACOverhead)
		if err != nil {
			return fmt.Errorf("failed to update line costs: %v", err)
		}
		for _, name := range n.LineNames() {
			line := n.Lines[name]
			line.CapitalCost = line.Length * lengthFactor * hvac
		}
		klog.V(2).InfoS("Updated line capital costs", "lines", len(n.Lines), "lengthFactor", lengthFactor)
	}

	var dcLinks []*network.Link
	for _, name := range n.LinkNames() {
		if link := n.Links[name]; link.Carrier == "DC" {
			dcLinks = append(dcLinks, link)
		}
	}
	if len(dcLinks) == 0 {
		return nil
	}

	overhead, err := t.CapitalCost(TechHVDCOverhead)
	if err != nil {
		return fmt.Errorf("failed to update DC link costs: %v", err)
	}

	if simpleHVDC {
		for _, link := range dcLinks {
			link.CapitalCost = link.Length * lengthFactor * overhead
		}
		klog.V(2).InfoS("Updated DC link capital costs", "links", len(dcLinks), "simpleHVDC", true)
		return nil
	}

	submarine, err := t.CapitalCost(TechHVDCSubmarine)
	if err != nil {
		return fmt.Errorf("failed to update DC link costs: %v", err)
	}
	inverter, err := t.CapitalCost(TechHVDCInverterPair)
	if err != nil {
		return fmt.Errorf("failed to update DC link costs: %v", err)
	}

	for _, link := range dcLinks {
		link.CapitalCost = link.Length*lengthFactor*
			((1.0-link.UnderwaterFraction)*overhead+link.UnderwaterFraction*submarine) + inverter
	}
	klog.V(2).InfoS("Updated DC link capital costs", "links", len(dcLinks), "lengthFactor", lengthFactor)
	return nil
}
