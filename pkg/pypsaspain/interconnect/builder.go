package interconnect

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"k8s.io/klog/v2"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/network"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/series"
)

// Builder turns the loaded tables into network components. Build
// stages everything in a Result without touching the network; Apply
// commits the staged set. A failed Build therefore emits no partial
// output.
type Builder struct {
	tables *Tables
	store  *series.Store
}

// NewBuilder creates a builder over validated tables. A nil store
// gets a private one with the default capacity.
func NewBuilder(tables *Tables, store *series.Store) *Builder {
	if store == nil {
		store, _ = series.NewStore(series.DefaultStoreSize)
	}
	return &Builder{tables: tables, store: store}
}

// Result is the staged augmentation: the new components, the resolved
// nearest base-network node per interconnection, and the per-snapshot
// marginal cost series per generator.
type Result struct {
	Buses      []*network.Bus
	Links      []*network.Link
	Generators []*network.Generator
	Loads      []*network.Load

	NearestNodes map[string]string
	PriceSeries  map[string][]float64
}

// Build resolves every table entry against the base network and
// stages the resulting components. The network is read, never
// written; snapshots must already be installed because the price
// series are aligned to them here.
func (b *Builder) Build(n *network.Network) (*Result, error) {
	if len(n.Snapshots) == 0 {
		return nil, &Error{Kind: ErrConfig, Detail: "network has no snapshots; price series cannot be aligned"}
	}

	res := &Result{
		NearestNodes: make(map[string]string),
		PriceSeries:  make(map[string][]float64),
	}
	staged := newNameIndex(n)

	countryBus := make(map[string]string, len(b.tables.Countries))
	for _, code := range b.tables.CountryCodes() {
		c := b.tables.Countries[code]
		if owner, clash := staged.addBus(c.BusName, "country "+code); clash {
			return nil, &Error{Kind: ErrConfig, Detail: fmt.Sprintf("country %q: bus %q already used by %s", code, c.BusName, owner)}
		}
		res.Buses = append(res.Buses, &network.Bus{
			Name:    c.BusName,
			VNom:    c.BusParams.VNom,
			X:       c.BusParams.X,
			Y:       c.BusParams.Y,
			Carrier: c.BusParams.Carrier,
			Country: code,
		})
		countryBus[code] = c.BusName
	}

	for _, id := range b.tables.IDs() {
		rec := b.tables.Interconnections[id]
		owner := "interconnection " + id

		if !b.tables.Legacy {
			if _, ok := b.tables.Countries[rec.Country]; !ok {
				return nil, configError(id, "country %q not present in the neighbouring-countries table", rec.Country)
			}
		}

		if prev, clash := staged.addBus(rec.BusName, owner); clash {
			return nil, configError(id, "bus %q already used by %s", rec.BusName, prev)
		}
		border := &network.Bus{
			Name:    rec.BusName,
			VNom:    rec.BusParams.VNom,
			X:       rec.BusParams.X,
			Y:       rec.BusParams.Y,
			Carrier: rec.BusParams.Carrier,
			Country: rec.Country,
		}
		res.Buses = append(res.Buses, border)

		nearest, dist, ok := n.NearestBus(orb.Point{rec.BusParams.X, rec.BusParams.Y}, network.ACBuses)
		if !ok {
			return nil, resolutionError(id, "base network has no candidate buses for bus %q", rec.BusName)
		}
		res.NearestNodes[id] = nearest
		klog.V(2).InfoS("Resolved interconnection node",
			"interconnection", id, "borderBus", rec.BusName, "nearest", nearest, "distanceKm", dist/1000)

		if b.tables.Legacy {
			if prev, clash := staged.addLink(rec.LinkName, owner); clash {
				return nil, configError(id, "link %q already used by %s", rec.LinkName, prev)
			}
			res.Links = append(res.Links, newLink(rec.LinkName, rec.BusName, nearest, CarrierLegacy, rec.LinkParams, -1))
		} else {
			for _, l := range []struct {
				name    string
				bus0    string
				bus1    string
				carrier string
				params  LinkParams
				pMinPU  float64
			}{
				{rec.LinkExportName, nearest, rec.BusName, CarrierExport, rec.LinkExportParams, 0},
				{rec.LinkImportName, rec.BusName, nearest, CarrierImport, rec.LinkImportParams, 0},
				{rec.LinkNCName, rec.BusName, countryBus[rec.Country], CarrierCountry, rec.LinkNCParams, -1},
			} {
				if prev, clash := staged.addLink(l.name, owner); clash {
					return nil, configError(id, "link %q already used by %s", l.name, prev)
				}
				link := newLink(l.name, l.bus0, l.bus1, l.carrier, l.params, l.pMinPU)
				if l.carrier == CarrierCountry {
					link.PNomExtendable = true
				}
				res.Links = append(res.Links, link)
			}
		}

		if prev, clash := staged.addGenerator(rec.GeneratorName, owner); clash {
			return nil, configError(id, "generator %q already used by %s", rec.GeneratorName, prev)
		}
		gen := &network.Generator{
			Name:           rec.GeneratorName,
			Bus:            rec.BusName,
			Carrier:        CarrierGenerator,
			PNom:           rec.GeneratorParams.PNom,
			PNomExtendable: true,
			PNomMax:        math.Inf(1),
			Efficiency:     1,
			CapitalCost:    rec.GeneratorParams.CapitalCost,
			Lifetime:       math.Inf(1),
		}
		if rec.GeneratorParams.PNomMax != nil {
			gen.PNomMax = *rec.GeneratorParams.PNomMax
		}
		if rec.GeneratorParams.Efficiency != nil {
			gen.Efficiency = *rec.GeneratorParams.Efficiency
		}
		if rec.GeneratorParams.Lifetime != nil {
			gen.Lifetime = *rec.GeneratorParams.Lifetime
		}
		if !b.tables.Legacy {
			gen.MarginalCost = b.tables.Countries[rec.Country].MarginalCost
		}
		res.Generators = append(res.Generators, gen)

		prices, err := b.priceSeries(id, rec.GeneratorPrices, n.Snapshots)
		if err != nil {
			return nil, err
		}
		res.PriceSeries[rec.GeneratorName] = prices

		if prev, clash := staged.addLoad(rec.LoadName, owner); clash {
			return nil, configError(id, "load %q already used by %s", rec.LoadName, prev)
		}
		res.Loads = append(res.Loads, &network.Load{
			Name: rec.LoadName,
			Bus:  rec.BusName,
			PSet: rec.LoadParams.PSet,
		})
	}

	klog.V(2).InfoS("Built interconnection topology",
		"interconnections", len(b.tables.Interconnections),
		"buses", len(res.Buses),
		"links", len(res.Links),
		"generators", len(res.Generators),
		"loads", len(res.Loads))
	return res, nil
}

// Apply commits a staged result to the network, including the
// per-snapshot marginal cost series of the generators.
func (r *Result) Apply(n *network.Network) error {
	for _, b := range r.Buses {
		if err := n.AddBus(b); err != nil {
			return fmt.Errorf("failed to apply interconnection buses: %v", err)
		}
	}
	for _, l := range r.Links {
		if err := n.AddLink(l); err != nil {
			return fmt.Errorf("failed to apply interconnection links: %v", err)
		}
	}
	for _, g := range r.Generators {
		if err := n.AddGenerator(g); err != nil {
			return fmt.Errorf("failed to apply interconnection generators: %v", err)
		}
		if prices, ok := r.PriceSeries[g.Name]; ok {
			n.GeneratorsT.MarginalCost.Set(g.Name, prices)
		}
	}
	for _, l := range r.Loads {
		if err := n.AddLoad(l); err != nil {
			return fmt.Errorf("failed to apply interconnection loads: %v", err)
		}
	}
	return nil
}

// Attach builds against the network and applies the result.
func (b *Builder) Attach(n *network.Network) (*Result, error) {
	res, err := b.Build(n)
	if err != nil {
		return nil, err
	}
	if err := res.Apply(n); err != nil {
		return nil, err
	}
	return res, nil
}

// priceSeries loads one price file and aligns it to the snapshot
// index. Price files carry one column per scenario year; the column
// matching the first snapshot's year wins, with a single-column file
// accepted as-is.
func (b *Builder) priceSeries(id, path string, snapshots []time.Time) ([]float64, error) {
	ts, err := b.store.Get(path)
	if err != nil {
		return nil, missingDataError(id, fmt.Sprintf("price file %s", path), err)
	}

	column := strconv.Itoa(snapshots[0].Year())
	if !ts.HasColumn(column) {
		if len(ts.Columns) == 1 {
			column = ts.Columns[0]
		} else {
			return nil, missingDataError(id,
				fmt.Sprintf("price file %s has no column for year %s", path, column), nil)
		}
	}

	vals, err := ts.Align(snapshots, column)
	if err != nil {
		return nil, missingDataError(id, fmt.Sprintf("price file %s", path), err)
	}
	return vals, nil
}

func newLink(name, bus0, bus1, carrier string, p LinkParams, defaultPMinPU float64) *network.Link {
	l := &network.Link{
		Name:           name,
		Bus0:           bus0,
		Bus1:           bus1,
		Carrier:        carrier,
		PNom:           p.PNom,
		PNomExtendable: p.PNomExtendable,
		PNomMax:        math.Inf(1),
		PMinPU:         defaultPMinPU,
		Efficiency:     1,
		Length:         p.Length,
		CapitalCost:    p.CapitalCost,
		MarginalCost:   p.MarginalCost,
		Lifetime:       math.Inf(1),
	}
	if p.PNomMax != nil {
		l.PNomMax = *p.PNomMax
	}
	if p.PMinPU != nil {
		l.PMinPU = *p.PMinPU
	}
	if p.Efficiency != nil {
		l.Efficiency = *p.Efficiency
	}
	if p.Lifetime != nil {
		l.Lifetime = *p.Lifetime
	}
	return l
}

// nameIndex tracks staged and pre-existing component names so
// collisions surface during the build, not during Apply.
type nameIndex struct {
	buses      map[string]string
	links      map[string]string
	generators map[string]string
	loads      map[string]string
}

func newNameIndex(n *network.Network) *nameIndex {
	idx := &nameIndex{
		buses:      make(map[string]string, len(n.Buses)),
		links:      make(map[string]string, len(n.Links)),
		generators: make(map[string]string, len(n.Generators)),
		loads:      make(map[string]string, len(n.Loads)),
	}
	for name := range n.Buses {
		idx.buses[name] = "the base network"
	}
	for name := range n.Links {
		idx.links[name] = "the base network"
	}
	for name := range n.Generators {
		idx.generators[name] = "the base network"
	}
	for name := range n.Loads {
		idx.loads[name] = "the base network"
	}
	return idx
}

func claim(m map[string]string, name, owner string) (string, bool) {
	if prev, exists := m[name]; exists {
		return prev, true
	}
	m[name] = owner
	return "", false
}

func (idx *nameIndex) addBus(name, owner string) (string, bool) {
	return claim(idx.buses, name, owner)
}

func (idx *nameIndex) addLink(name, owner string) (string, bool) {
	return claim(idx.links, name, owner)
}

func (idx *nameIndex) addGenerator(name, owner string) (string, bool) {
	return claim(idx.generators, name, owner)
}

func (idx *nameIndex) addLoad(name, owner string) (string, bool) {
	return claim(idx.loads, name, owner)
}
