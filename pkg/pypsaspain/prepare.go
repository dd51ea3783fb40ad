// Package pypsaspain assembles the network preparation pipeline: one
// scenario configuration drives snapshot construction, cost loading,
// demand and generator attachment, interconnection building and
// capacity reconciliation on a base network, in the order the
// upstream workflow runs them.
package pypsaspain

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/capacity"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/config"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/costs"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/demand"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/generators"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/interconnect"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/network"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/series"
)

// Pipeline runs the preparation stages of one scenario. Stages that
// have no configured inputs are skipped; stages that run mutate the
// network in place.
type Pipeline struct {
	cfg   *config.Config
	store *series.Store
}

// Summary reports what one preparation produced.
type Summary struct {
	Run        string
	Stages     []string
	Snapshots  int
	Nyears     float64
	Buses      int
	Lines      int
	Links      int
	Generators int
	Loads      int
	Carriers   int
}

// NewPipeline builds a pipeline over a validated configuration.
func NewPipeline(cfg *config.Config) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration must not be nil")
	}
	store, err := series.NewStore(series.DefaultStoreSize)
	if err != nil {
		return nil, fmt.Errorf("series store: %v", err)
	}
	return &Pipeline{cfg: cfg, store: store}, nil
}

// Prepare runs every configured stage on the network and returns a
// summary. The first failing stage aborts the run with its error;
// nothing is exported here, writing the result is the caller's step.
func (p *Pipeline) Prepare(n *network.Network) (*Summary, error) {
	var (
		stages     []string
		table      *costs.Table
		membership *demand.Membership
	)

	run := func(name string, fn func() error) error {
		klog.V(2).InfoS("Running preparation stage", "stage", name)
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %v", name, err)
		}
		stages = append(stages, name)
		return nil
	}

	if err := run("snapshots", func() error { return p.stageSnapshots(n) }); err != nil {
		return nil, err
	}

	if p.cfg.Costs.File != "" {
		if err := run("costs", func() error {
			var err error
			table, err = costs.Load(p.cfg.Costs.File, p.cfg.Costs, p.cfg.Electricity.MaxHours, n.Nyears())
			return err
		}); err != nil {
			return nil, err
		}
	}

	if table != nil && p.cfg.Lines.LengthFactor > 0 {
		if err := run("transmission-costs", func() error {
			return costs.UpdateTransmissionCosts(n, table, p.cfg.Lines.LengthFactor, false)
		}); err != nil {
			return nil, err
		}
	}

	if p.cfg.Load.RegionalFile != "" {
		if err := run("demand", func() error {
			var err error
			if membership, err = p.loadMembership(membership); err != nil {
				return err
			}
			regional, err := p.store.Get(p.cfg.Load.RegionalFile)
			if err != nil {
				return err
			}
			return demand.Attach(n, regional, membership, p.cfg.Load)
		}); err != nil {
			return nil, err
		}
	}

	if p.cfg.Electricity.PowerPlantsFile != "" {
		if err := run("conventional-generators", func() error {
			if table == nil {
				return fmt.Errorf("powerplants_file requires costs.file")
			}
			plants, err := generators.LoadPowerPlants(p.cfg.Electricity.PowerPlantsFile)
			if err != nil {
				return err
			}
			return generators.AttachConventional(n, plants, table, p.cfg.Electricity)
		}); err != nil {
			return nil, err
		}
	}

	if p.cfg.Interconnections.Enable {
		if err := run("interconnections", func() error {
			tables, err := interconnect.LoadTables(p.cfg.Interconnections)
			if err != nil {
				return err
			}
			_, err = interconnect.NewBuilder(tables, p.store).Attach(n)
			return err
		}); err != nil {
			return nil, err
		}
	}

	if p.cfg.Electricity.UpdateCapacities.Enable {
		if err := run("capacity-update", func() error {
			var err error
			if membership, err = p.loadMembership(membership); err != nil {
				return fmt.Errorf("update_elec_capacities: %v", err)
			}
			reported, err := capacity.LoadReported(p.cfg.Electricity.UpdateCapacities.File, p.store)
			if err != nil {
				return err
			}
			return capacity.Update(n, reported, membership, p.cfg.Electricity.UpdateCapacities.Method)
		}); err != nil {
			return nil, err
		}
	}

	if err := run("sanitize-carriers", func() error {
		return generators.SanitizeCarriers(n, table, p.cfg.Plotting)
	}); err != nil {
		return nil, err
	}

	s := p.summarize(n, stages)
	klog.InfoS("Prepared network",
		"run", s.Run,
		"stages", len(s.Stages),
		"snapshots", s.Snapshots,
		"buses", s.Buses,
		"links", s.Links,
		"generators", s.Generators,
		"loads", s.Loads)
	return s, nil
}

// ValidateInputs runs every configured stage against the network and
// collects all failures instead of stopping at the first. Stages
// whose prerequisites failed are skipped, their cause is already in
// the list. The network is mutated and should be discarded afterward.
func (p *Pipeline) ValidateInputs(n *network.Network) []error {
	var problems []error
	fail := func(name string, err error) {
		problems = append(problems, fmt.Errorf("%s: %v", name, err))
	}

	if err := p.stageSnapshots(n); err != nil {
		fail("snapshots", err)
	}

	var table *costs.Table
	if p.cfg.Costs.File != "" {
		var err error
		if table, err = costs.Load(p.cfg.Costs.File, p.cfg.Costs, p.cfg.Electricity.MaxHours, n.Nyears()); err != nil {
			fail("costs", err)
			table = nil
		}
	}

	if table != nil && p.cfg.Lines.LengthFactor > 0 {
		if err := costs.UpdateTransmissionCosts(n, table, p.cfg.Lines.LengthFactor, false); err != nil {
			fail("transmission-costs", err)
		}
	}

	var membership *demand.Membership
	if p.cfg.Load.RegionalFile != "" {
		var err error
		if membership, err = p.loadMembership(membership); err != nil {
			fail("demand", err)
		} else if regional, err := p.store.Get(p.cfg.Load.RegionalFile); err != nil {
			fail("demand", err)
		} else if err := demand.Attach(n, regional, membership, p.cfg.Load); err != nil {
			fail("demand", err)
		}
	}

	if p.cfg.Electricity.PowerPlantsFile != "" {
		plants, err := generators.LoadPowerPlants(p.cfg.Electricity.PowerPlantsFile)
		switch {
		case err != nil:
			fail("conventional-generators", err)
		case table == nil:
			if p.cfg.Costs.File == "" {
				fail("conventional-generators", fmt.Errorf("powerplants_file requires costs.file"))
			}
		default:
			if err := generators.AttachConventional(n, plants, table, p.cfg.Electricity); err != nil {
				fail("conventional-generators", err)
			}
		}
	}

	if p.cfg.Interconnections.Enable {
		if tables, err := interconnect.LoadTables(p.cfg.Interconnections); err != nil {
			fail("interconnections", err)
		} else if _, err := interconnect.NewBuilder(tables, p.store).Attach(n); err != nil {
			fail("interconnections", err)
		}
	}

	if p.cfg.Electricity.UpdateCapacities.Enable {
		var err error
		if membership, err = p.loadMembership(membership); err != nil {
			fail("capacity-update", fmt.Errorf("update_elec_capacities: %v", err))
		} else if reported, err := capacity.LoadReported(p.cfg.Electricity.UpdateCapacities.File, p.store); err != nil {
			fail("capacity-update", err)
		} else if err := capacity.Update(n, reported, membership, p.cfg.Electricity.UpdateCapacities.Method); err != nil {
			fail("capacity-update", err)
		}
	}

	if err := generators.SanitizeCarriers(n, table, p.cfg.Plotting); err != nil {
		fail("sanitize-carriers", err)
	}

	return problems
}

// stageSnapshots installs the configured horizon, or keeps the base
// network's snapshots when the configuration does not define one.
func (p *Pipeline) stageSnapshots(n *network.Network) error {
	if p.cfg.Snapshots.Start != "" {
		return n.BuildSnapshots(p.cfg.Snapshots)
	}
	if len(n.Snapshots) == 0 {
		return fmt.Errorf("the base network has no snapshots and the configuration defines none")
	}
	klog.V(2).InfoS("Keeping snapshots from the base network", "snapshots", len(n.Snapshots))
	return nil
}

// loadMembership loads the bus membership table once; the demand and
// capacity stages share it.
func (p *Pipeline) loadMembership(current *demand.Membership) (*demand.Membership, error) {
	if current != nil {
		return current, nil
	}
	if p.cfg.Load.MembershipFile == "" {
		return nil, fmt.Errorf("load.membership_file is not configured")
	}
	return demand.LoadMembership(p.cfg.Load.MembershipFile)
}

func (p *Pipeline) summarize(n *network.Network, stages []string) *Summary {
	return &Summary{
		Run:        p.cfg.Run.Name,
		Stages:     stages,
		Snapshots:  len(n.Snapshots),
		Nyears:     n.Nyears(),
		Buses:      len(n.Buses),
		Lines:      len(n.Lines),
		Links:      len(n.Links),
		Generators: len(n.Generators),
		Loads:      len(n.Loads),
		Carriers:   len(n.Carriers),
	}
}
