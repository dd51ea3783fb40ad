package costs

import (
	"testing"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/network"
)

func transmissionNetwork(t *testing.T) *network.Network {
	t.Helper()
	n := network.New("grid")
	for _, b := range []string{"a", "b", "c"} {
		if err := n.AddBus(&network.Bus{Name: b, Carrier: "AC"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := n.AddLine(&network.Line{Name: "l1", Bus0: "a", Bus1: "b", Length: 100}); err != nil {
		t.Fatal(err)
	}
	if err := n.AddLink(&network.Link{Name: "dc1", Bus0: "a", Bus1: "c", Carrier: "DC", Length: 200, UnderwaterFraction: 0.25}); err != nil {
		t.Fatal(err)
	}
	if err := n.AddLink(&network.Link{Name: "ic1", Bus0: "b", Bus1: "c", Carrier: "DC_ic export", Length: 50, CapitalCost: 1234}); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestUpdateTransmissionCosts(t *testing.T) {
	n := transmissionNetwork(t)
	table := loadFixture(t, defaultCostsConfig())

	if err := UpdateTransmissionCosts(n, table, 1.25, false); err != nil {
		t.Fatalf("UpdateTransmissionCosts: %v", err)
	}

	hvac, _ := table.CapitalCost(TechHVACOverhead)
	if got, want := n.Lines["l1"].CapitalCost, 100*1.25*hvac; !almostEqual(got, want) {
		t.Errorf("line capital cost = %g, want %g", got, want)
	}

	overhead, _ := table.CapitalCost(TechHVDCOverhead)
	submarine, _ := table.CapitalCost(TechHVDCSubmarine)
	inverter, _ := table.CapitalCost(TechHVDCInverterPair)
	want := 200*1.25*(0.75*overhead+0.25*submarine) + inverter
	if got := n.Links["dc1"].CapitalCost; !almostEqual(got, want) {
		t.Errorf("DC link capital cost = %g, want %g", got, want)
	}

	// Interconnection links keep their table-configured costs.
	if got := n.Links["ic1"].CapitalCost; got != 1234 {
		t.Errorf("DC_ic link capital cost = %g, must stay 1234", got)
	}
}

func TestUpdateTransmissionCostsSimpleHVDC(t *testing.T) {
	n := transmissionNetwork(t)
	table := loadFixture(t, defaultCostsConfig())

	if err := UpdateTransmissionCosts(n, table, 1.0, true); err != nil {
		t.Fatalf("UpdateTransmissionCosts: %v", err)
	}

	overhead, _ := table.CapitalCost(TechHVDCOverhead)
	if got, want := n.Links["dc1"].CapitalCost, 200*overhead; !almostEqual(got, want) {
		t.Errorf("simple DC link capital cost = %g, want %g", got, want)
	}
}

func TestUpdateTransmissionCostsNoDCLinks(t *testing.T) {
	n := network.New("acgrid")
	if err := n.AddBus(&network.Bus{Name: "a", Carrier: "AC"}); err != nil {
		t.Fatal(err)
	}
	if err := n.AddLink(&network.Link{Name: "ic1", Bus0: "a", Bus1: "a", Carrier: "DC_ic import", CapitalCost: 7}); err != nil {
		t.Fatal(err)
	}
	table := loadFixture(t, defaultCostsConfig())

	if err := UpdateTransmissionCosts(n, table, 1.0, false); err != nil {
		t.Fatalf("networks without plain DC links must not fail: %v", err)
	}
	if n.Links["ic1"].CapitalCost != 7 {
		t.Error("interconnection link cost must stay untouched")
	}
}

func TestUpdateTransmissionCostsMissingTechnology(t *testing.T) {
	n := transmissionNetwork(t)
	trimmed := "technology,parameter,value,unit\ngas,fuel,21.6,EUR/MWh_th\n"
	table, err := Load(writeCosts(t, trimmed), defaultCostsConfig(), nil, 1.0)
	if err != nil {
		t.Fatal(err)
	}

	if err := UpdateTransmissionCosts(n, table, 1.0, false); err == nil {
		t.Fatal("missing transmission technologies must fail")
	}
}
