package network

// Component records mirror the PyPSA component tables. Typed fields
// cover the attributes this layer reads or writes; every other column
// survives in Extra so the CSV folder round-trips losslessly.

// Bus is a network node. X and Y are geographic coordinates
// (longitude and latitude, EPSG:4326), the convention of the base
// networks this layer augments.
type Bus struct {
	Name    string
	VNom    float64
	X       float64
	Y       float64
	Carrier string
	Country string
	Extra   map[string]string
}

// Line is an AC branch.
type Line struct {
	Name           string
	Bus0           string
	Bus1           string
	SNom           float64
	SNomExtendable bool
	Length         float64
	CapitalCost    float64
	Extra          map[string]string
}

// Link is a controllable branch (DC links, interconnections). With
// PMinPU of -1 a link is bidirectional; 0 restricts flow to the
// bus0 to bus1 direction.
type Link struct {
	Name               string
	Bus0               string
	Bus1               string
	Carrier            string
	PNom               float64
	PNomExtendable     bool
	PNomMax            float64
	PMinPU             float64
	Efficiency         float64
	Length             float64
	CapitalCost        float64
	MarginalCost       float64
	Lifetime           float64
	UnderwaterFraction float64
	Extra              map[string]string
}

// Generator attaches dispatchable or variable supply to a bus.
// PNomMax is +Inf when unbounded.
type Generator struct {
	Name           string
	Bus            string
	Carrier        string
	PNom           float64
	PNomExtendable bool
	PNomMin        float64
	PNomMax        float64
	Efficiency     float64
	MarginalCost   float64
	CapitalCost    float64
	Lifetime       float64
	BuildYear      int
	Extra          map[string]string
}

// Load withdraws power at a bus. An empty Carrier is meaningful:
// interconnection export loads deliberately carry no carrier so they
// stay out of carrier-based aggregations.
type Load struct {
	Name    string
	Bus     string
	Carrier string
	PSet    float64
	Extra   map[string]string
}

// Carrier classifies components by energy medium or product.
type Carrier struct {
	Name         string
	CO2Emissions float64
	NiceName     string
	Color        string
	Extra        map[string]string
}

// Frame holds one time-varying attribute for a set of components, one
// value per snapshot per component.
type Frame struct {
	columns []string
	values  map[string][]float64
}

func NewFrame() *Frame {
	return &Frame{values: make(map[string][]float64)}
}

// Set stores the series for a component, replacing any previous one.
func (f *Frame) Set(name string, vals []float64) {
	if _, exists := f.values[name]; !exists {
		f.columns = append(f.columns, name)
	}
	f.values[name] = vals
}

// Get returns the series for a component.
func (f *Frame) Get(name string) ([]float64, bool) {
	v, ok := f.values[name]
	return v, ok
}

func (f *Frame) Delete(name string) {
	if _, ok := f.values[name]; !ok {
		return
	}
	delete(f.values, name)
	for i, c := range f.columns {
		if c == name {
			f.columns = append(f.columns[:i], f.columns[i+1:]...)
			break
		}
	}
}

// Columns returns the component names in insertion order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.columns))
	copy(out, f.columns)
	return out
}

func (f *Frame) Len() int {
	return len(f.columns)
}

// GeneratorsTime groups the time-varying generator attributes.
type GeneratorsTime struct {
	MarginalCost *Frame
	PMaxPU       *Frame
}

// LoadsTime groups the time-varying load attributes.
type LoadsTime struct {
	PSet *Frame
}
