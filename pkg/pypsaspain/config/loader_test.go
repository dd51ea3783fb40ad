package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "run:\n  name: test\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Run.Name != "test" {
		t.Errorf("Run.Name = %q, want %q", cfg.Run.Name, "test")
	}
	if cfg.Lines.LengthFactor != 1.25 {
		t.Errorf("Lines.LengthFactor = %v, want 1.25", cfg.Lines.LengthFactor)
	}
	if cfg.Load.ScaleGDP != 0.18 || cfg.Load.ScalePop != 0.82 {
		t.Errorf("Load scales = %v/%v, want 0.18/0.82", cfg.Load.ScaleGDP, cfg.Load.ScalePop)
	}
	if cfg.ESIOS.MaxRetries != 3 {
		t.Errorf("ESIOS.MaxRetries = %d, want 3", cfg.ESIOS.MaxRetries)
	}
	if got := time.Duration(cfg.ESIOS.Timeout); got != 30*time.Second {
		t.Errorf("ESIOS.Timeout = %v, want 30s", got)
	}
	if cfg.Interconnections.Enable {
		t.Error("Interconnections.Enable = true by default, want false")
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
run:
  name: es_2030
snapshots:
  start: "2030-01-01"
  end: "2030-02-01"
  resolution: 1
interconnections:
  enable: true
  ic_ES_file: data/interconnections_ES.yaml
  nc_ES_file: data/neighbouring_countries_ES.yaml
electricity:
  conventional_carriers: [nuclear, CCGT]
  extendable_carriers: [CCGT]
  update_elec_capacities:
    enable: true
    file: data/capacities.csv
    method: additional
load:
  regional_file: data/demand.csv
  membership_file: data/membership.csv
costs:
  file: data/costs.csv
  marginal_cost:
    CCGT: 48.5
esios:
  timeout: 45s
  cache_ttl: 12h
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Interconnections.Enable {
		t.Error("Interconnections.Enable = false, want true")
	}
	if cfg.Interconnections.ICFile != "data/interconnections_ES.yaml" {
		t.Errorf("ICFile = %q", cfg.Interconnections.ICFile)
	}
	if cfg.Electricity.UpdateCapacities.Method != "additional" {
		t.Errorf("UpdateCapacities.Method = %q, want additional", cfg.Electricity.UpdateCapacities.Method)
	}
	if got := time.Duration(cfg.ESIOS.Timeout); got != 45*time.Second {
		t.Errorf("ESIOS.Timeout = %v, want 45s", got)
	}
	if got := time.Duration(cfg.ESIOS.CacheTTL); got != 12*time.Hour {
		t.Errorf("ESIOS.CacheTTL = %v, want 12h", got)
	}
	if cfg.Costs.MarginalCost["CCGT"] != 48.5 {
		t.Errorf("Costs.MarginalCost[CCGT] = %v, want 48.5", cfg.Costs.MarginalCost["CCGT"])
	}
	// Defaults survive a partial file.
	if cfg.ESIOS.MaxRetries != 3 {
		t.Errorf("ESIOS.MaxRetries = %d, want default 3", cfg.ESIOS.MaxRetries)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "run:\n  name: test\nsnapshotz:\n  start: x\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() accepted unknown key, want error")
	}
	if !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "interconnections enabled without table",
			yaml:    "interconnections:\n  enable: true\n",
			wantErr: "ic_ES_file",
		},
		{
			name: "newer schema without countries table",
			yaml: "interconnections:\n  enable: true\n" +
				"  ic_ES_file: data/ic.yaml\n",
			wantErr: "nc_ES_file",
		},
		{
			name: "legacy schema with countries table",
			yaml: "interconnections:\n  enable: true\n  legacy_schema: true\n" +
				"  ic_ES_file: data/ic.yaml\n  nc_ES_file: data/nc.yaml\n",
			wantErr: "legacy schema",
		},
		{
			name: "unknown capacity method",
			yaml: "electricity:\n  update_elec_capacities:\n    enable: true\n" +
				"    file: data/cap.csv\n    method: magic\n",
			wantErr: "must be one of",
		},
		{
			name:    "capacity update without file",
			yaml:    "electricity:\n  update_elec_capacities:\n    enable: true\n",
			wantErr: "without a file",
		},
		{
			name:    "regional demand without membership",
			yaml:    "load:\n  regional_file: data/demand.csv\n",
			wantErr: "membership_file",
		},
		{
			name:    "gdp scale out of range",
			yaml:    "load:\n  scale_gdp: 1.5\n",
			wantErr: "must be <=",
		},
		{
			name:    "snapshots missing end",
			yaml:    "snapshots:\n  start: \"2030-01-01\"\n",
			wantErr: "both start and end",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ESIOS_API_TOKEN", "secret-token")
	t.Setenv("ESIOS_MAX_RETRIES", "5")
	t.Setenv("PYPSA_IC_ENABLE", "false")
	t.Setenv("PYPSA_LOAD_SCALE_GDP", "0.5")

	path := writeConfig(t, `
interconnections:
  enable: true
  ic_ES_file: data/ic.yaml
  nc_ES_file: data/nc.yaml
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ESIOS.Token != "secret-token" {
		t.Errorf("ESIOS.Token = %q, want env value", cfg.ESIOS.Token)
	}
	if cfg.ESIOS.MaxRetries != 5 {
		t.Errorf("ESIOS.MaxRetries = %d, want 5", cfg.ESIOS.MaxRetries)
	}
	if cfg.Interconnections.Enable {
		t.Error("Interconnections.Enable = true, env override should disable")
	}
	if cfg.Load.ScaleGDP != 0.5 {
		t.Errorf("Load.ScaleGDP = %v, want 0.5", cfg.Load.ScaleGDP)
	}
}

func TestEnvOverrideBadValues(t *testing.T) {
	t.Setenv("ESIOS_MAX_RETRIES", "not-a-number")
	t.Setenv("ESIOS_TIMEOUT", "soon")

	path := writeConfig(t, "run:\n  name: test\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ESIOS.MaxRetries != 3 {
		t.Errorf("ESIOS.MaxRetries = %d, want default 3 on bad env", cfg.ESIOS.MaxRetries)
	}
	if got := time.Duration(cfg.ESIOS.Timeout); got != 30*time.Second {
		t.Errorf("ESIOS.Timeout = %v, want default 30s on bad env", got)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("PYPSA_ES_CONFIG", "")
	if got := DefaultPath(); got != "config/config.yaml" {
		t.Errorf("DefaultPath() = %q, want config/config.yaml", got)
	}

	t.Setenv("PYPSA_ES_CONFIG", "/etc/pypsa/es_2030.yaml")
	if got := DefaultPath(); got != "/etc/pypsa/es_2030.yaml" {
		t.Errorf("DefaultPath() = %q, want the env value", got)
	}
}

func TestRebaseData(t *testing.T) {
	cfg := Default()
	cfg.Costs.File = "data/costs.csv"
	cfg.Load.RegionalFile = "/abs/demand.csv"
	cfg.Load.MembershipFile = "data/membership.csv"
	cfg.Interconnections.ICFile = "data/ic.yaml"

	cfg.RebaseData("/srv/bundle")

	if cfg.Costs.File != filepath.Join("/srv/bundle", "data/costs.csv") {
		t.Errorf("Costs.File = %q, want it rebased", cfg.Costs.File)
	}
	if cfg.Load.RegionalFile != "/abs/demand.csv" {
		t.Errorf("Load.RegionalFile = %q, absolute paths must not move", cfg.Load.RegionalFile)
	}
	if cfg.Load.MembershipFile != filepath.Join("/srv/bundle", "data/membership.csv") {
		t.Errorf("Load.MembershipFile = %q, want it rebased", cfg.Load.MembershipFile)
	}
	if cfg.Interconnections.ICFile != filepath.Join("/srv/bundle", "data/ic.yaml") {
		t.Errorf("Interconnections.ICFile = %q, want it rebased", cfg.Interconnections.ICFile)
	}
	if cfg.Electricity.PowerPlantsFile != "" {
		t.Errorf("PowerPlantsFile = %q, unset fields must stay empty", cfg.Electricity.PowerPlantsFile)
	}
}
