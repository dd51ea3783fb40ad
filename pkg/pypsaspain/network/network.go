package network

import (
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"k8s.io/klog/v2"
)

// HoursPerYear converts summed snapshot weightings into years.
const HoursPerYear = 8760.0

// defaultPyPSAVersion is written to exported folders when the network
// was built from scratch rather than imported.
const defaultPyPSAVersion = "0.21.3"

// Network is an in-memory PyPSA network: component tables keyed by
// name, a snapshot index, and the time-varying attribute frames this
// layer touches. Files of the CSV folder that are not modeled here are
// kept verbatim and written back on export.
type Network struct {
	Name               string
	PyPSAVersion       string
	SRID               int
	Snapshots          []time.Time
	SnapshotWeightings []float64

	Buses      map[string]*Bus
	Lines      map[string]*Line
	Links      map[string]*Link
	Generators map[string]*Generator
	Loads      map[string]*Load
	Carriers   map[string]*Carrier

	GeneratorsT GeneratorsTime
	LoadsT      LoadsTime

	passthrough map[string][]byte
}

// New creates an empty network.
func New(name string) *Network {
	return &Network{
		Name:         name,
		PyPSAVersion: defaultPyPSAVersion,
		SRID:         4326,
		Buses:        make(map[string]*Bus),
		Lines:        make(map[string]*Line),
		Links:        make(map[string]*Link),
		Generators:   make(map[string]*Generator),
		Loads:        make(map[string]*Load),
		Carriers:     make(map[string]*Carrier),
		GeneratorsT: GeneratorsTime{
			MarginalCost: NewFrame(),
			PMaxPU:       NewFrame(),
		},
		LoadsT:      LoadsTime{PSet: NewFrame()},
		passthrough: make(map[string][]byte),
	}
}

// SetSnapshots installs the snapshot index. Timestamps must be
// strictly increasing. A nil weightings slice defaults every snapshot
// to weight 1.
func (n *Network) SetSnapshots(ts []time.Time, weightings []float64) error {
	for i := 1; i < len(ts); i++ {
		if !ts[i].After(ts[i-1]) {
			return fmt.Errorf("snapshots must be strictly increasing: %s >= %s",
				ts[i-1].Format(time.RFC3339), ts[i].Format(time.RFC3339))
		}
	}
	if weightings == nil {
		weightings = make([]float64, len(ts))
		for i := range weightings {
			weightings[i] = 1
		}
	}
	if len(weightings) != len(ts) {
		return fmt.Errorf("got %d snapshot weightings for %d snapshots", len(weightings), len(ts))
	}
	n.Snapshots = ts
	n.SnapshotWeightings = weightings
	return nil
}

// Nyears is the modeled period length in years, used to scale
// annualized capital costs.
func (n *Network) Nyears() float64 {
	var sum float64
	for _, w := range n.SnapshotWeightings {
		sum += w
	}
	return sum / HoursPerYear
}

func (n *Network) AddBus(b *Bus) error {
	if b.Name == "" {
		return fmt.Errorf("bus name must not be empty")
	}
	if _, exists := n.Buses[b.Name]; exists {
		return fmt.Errorf("bus %q already exists", b.Name)
	}
	n.Buses[b.Name] = b
	return nil
}

func (n *Network) AddLine(l *Line) error {
	if l.Name == "" {
		return fmt.Errorf("line name must not be empty")
	}
	if _, exists := n.Lines[l.Name]; exists {
		return fmt.Errorf("line %q already exists", l.Name)
	}
	n.Lines[l.Name] = l
	return nil
}

func (n *Network) AddLink(l *Link) error {
	if l.Name == "" {
		return fmt.Errorf("link name must not be empty")
	}
	if _, exists := n.Links[l.Name]; exists {
		return fmt.Errorf("link %q already exists", l.Name)
	}
	n.Links[l.Name] = l
	return nil
}

func (n *Network) AddGenerator(g *Generator) error {
	if g.Name == "" {
		return fmt.Errorf("generator name must not be empty")
	}
	if _, exists := n.Generators[g.Name]; exists {
		return fmt.Errorf("generator %q already exists", g.Name)
	}
	n.Generators[g.Name] = g
	return nil
}

func (n *Network) AddLoad(l *Load) error {
	if l.Name == "" {
		return fmt.Errorf("load name must not be empty")
	}
	if _, exists := n.Loads[l.Name]; exists {
		return fmt.Errorf("load %q already exists", l.Name)
	}
	n.Loads[l.Name] = l
	return nil
}

func (n *Network) AddCarrier(c *Carrier) error {
	if c.Name == "" {
		return fmt.Errorf("carrier name must not be empty")
	}
	if _, exists := n.Carriers[c.Name]; exists {
		return fmt.Errorf("carrier %q already exists", c.Name)
	}
	n.Carriers[c.Name] = c
	return nil
}

// BusNames returns all bus names sorted, for deterministic iteration.
func (n *Network) BusNames() []string {
	names := make([]string, 0, len(n.Buses))
	for name := range n.Buses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BusesWithCarrier returns the sorted names of buses on one carrier.
func (n *Network) BusesWithCarrier(carrier string) []string {
	var names []string
	for name, b := range n.Buses {
		if b.Carrier == carrier {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (n *Network) LineNames() []string {
	names := make([]string, 0, len(n.Lines))
	for name := range n.Lines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n *Network) LinkNames() []string {
	names := make([]string, 0, len(n.Links))
	for name := range n.Links {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n *Network) GeneratorNames() []string {
	names := make([]string, 0, len(n.Generators))
	for name := range n.Generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n *Network) LoadNames() []string {
	names := make([]string, 0, len(n.Loads))
	for name := range n.Loads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n *Network) CarrierNames() []string {
	names := make([]string, 0, len(n.Carriers))
	for name := range n.Carriers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Point returns the geographic coordinate of a bus.
func (b *Bus) Point() orb.Point {
	return orb.Point{b.X, b.Y}
}

// BusCoordinates looks up the location of a named bus; ok is false
// when the bus does not exist.
func (n *Network) BusCoordinates(name string) (orb.Point, bool) {
	b, ok := n.Buses[name]
	if !ok {
		return orb.Point{}, false
	}
	return b.Point(), true
}

// NearestBus finds the bus closest to p by great-circle distance,
// considering only buses accepted by the filter (a nil filter accepts
// every bus). Distance ties break toward the lexicographically
// smaller name so the result is deterministic. The returned distance
// is in meters; ok is false when no bus passed the filter.
func (n *Network) NearestBus(p orb.Point, filter func(*Bus) bool) (string, float64, bool) {
	var (
		bestName string
		bestDist float64
		found    bool
	)
	for _, name := range n.BusNames() {
		b := n.Buses[name]
		if filter != nil && !filter(b) {
			continue
		}
		d := geo.Distance(p, b.Point())
		if !found || d < bestDist {
			bestName = name
			bestDist = d
			found = true
		}
	}
	if found {
		klog.V(4).InfoS("Resolved nearest bus", "x", p[0], "y", p[1], "bus", bestName, "distanceKm", bestDist/1000)
	}
	return bestName, bestDist, found
}

// ACBuses is the usual NearestBus filter: plain electric buses of the
// base network.
func ACBuses(b *Bus) bool {
	return b.Carrier == "AC" || b.Carrier == ""
}
