package demand

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/config"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/network"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/series"
)

// TestAttachWeightingProperties checks that the per-region energy
// total survives any weighting: whatever the gdp/pop splits, the bus
// loads of a region always sum back to the regional series.
func TestAttachWeightingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("bus loads sum to the regional series", prop.ForAll(
		func(k int, gdpBase, popBase, scaleGDP float64) bool {
			n := network.New("prop")
			m := &Membership{
				byBus:    make(map[string]*Member),
				byRegion: make(map[string][]string),
			}
			for i := 0; i < k; i++ {
				bus := fmt.Sprintf("bus%02d", i)
				if err := n.AddBus(&network.Bus{Name: bus, Carrier: "AC"}); err != nil {
					return false
				}
				member := &Member{
					Bus:    bus,
					Region: "ES30",
					GDP:    gdpBase + float64(i)*7.3,
					Pop:    popBase + float64(i)*101,
				}
				m.byBus[bus] = member
				m.byRegion["ES30"] = append(m.byRegion["ES30"], bus)
			}

			base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
			snaps := []time.Time{base, base.Add(time.Hour)}
			if err := n.SetSnapshots(snaps, nil); err != nil {
				return false
			}

			regional := seriesFixture(t, "snapshot,ES30\n2030-01-01 00:00:00,1000\n2030-01-01 01:00:00,750\n")

			cfg := config.LoadConfig{ScaleGDP: scaleGDP, ScalePop: 1 - scaleGDP}
			if err := Attach(n, regional, m, cfg); err != nil {
				return false
			}

			for i, want := range []float64{1000, 750} {
				var sum float64
				for _, bus := range m.BusesInRegion("ES30") {
					vals, ok := n.LoadsT.PSet.Get(bus)
					if !ok {
						return false
					}
					sum += vals[i]
				}
				if math.Abs(sum-want) > 1e-6 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.Float64Range(1, 500),
		gen.Float64Range(1, 5000),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

func seriesFixture(t *testing.T, content string) *series.TimeSeries {
	t.Helper()
	ts, err := series.Load(writeFile(t, "prop_regional.csv", content))
	if err != nil {
		t.Fatalf("series fixture: %v", err)
	}
	return ts
}
