package config

import (
	"fmt"
	"time"

	"github.com/prometheus/common/model"
)

// Config holds the full configuration tree for a PyPSA-Spain run.
// The YAML layout mirrors the upstream configuration files; unknown
// keys are rejected at load time so that stale or misspelled options
// fail before the optimization stage is ever reached.
type Config struct {
	Run              RunConfig              `yaml:"run"`
	Snapshots        SnapshotsConfig        `yaml:"snapshots"`
	Interconnections InterconnectionsConfig `yaml:"interconnections"`
	Electricity      ElectricityConfig      `yaml:"electricity"`
	Load             LoadConfig             `yaml:"load"`
	Costs            CostsConfig            `yaml:"costs"`
	Lines            LinesConfig            `yaml:"lines"`
	ESIOS            ESIOSConfig            `yaml:"esios"`
	Bundle           BundleConfig           `yaml:"bundle"`
	Plotting         PlottingConfig         `yaml:"plotting"`
}

// RunConfig identifies the scenario being prepared.
type RunConfig struct {
	Name string `yaml:"name"`
}

// SnapshotsConfig defines the model horizon. Start is inclusive, End
// exclusive, both "2006-01-02" dates or full timestamps. Resolution is
// the step in hours; each snapshot is weighted by it.
type SnapshotsConfig struct {
	Start      string `yaml:"start"`
	End        string `yaml:"end"`
	Resolution int    `yaml:"resolution" validate:"gte=0,lte=168"`
}

// InterconnectionsConfig gates the interconnection topology builder.
// The recognized options follow the upstream names: enable switches the
// whole subsystem, ic_ES_file points at the interconnections table and
// nc_ES_file at the neighbouring-countries table. The legacy_schema
// flag selects the deprecated single-bidirectional-link table layout,
// which has no neighbouring-countries table.
type InterconnectionsConfig struct {
	Enable       bool   `yaml:"enable"`
	LegacySchema bool   `yaml:"legacy_schema"`
	ICFile       string `yaml:"ic_ES_file"`
	NCFile       string `yaml:"nc_ES_file"`
}

// ElectricityConfig selects which generation technologies are attached
// and which of them the solver may expand.
type ElectricityConfig struct {
	Voltage              float64                `yaml:"voltage"`
	ConventionalCarriers []string               `yaml:"conventional_carriers"`
	ExtendableCarriers   []string               `yaml:"extendable_carriers"`
	MaxHours             map[string]float64     `yaml:"max_hours"`
	PowerPlantsFile      string                 `yaml:"powerplants_file"`
	UpdateCapacities     UpdateCapacitiesConfig `yaml:"update_elec_capacities"`
	CO2Limit             float64                `yaml:"co2_limit"`
}

// UpdateCapacitiesConfig reconciles modeled capacities with the values
// reported by the system operator, per NUTS2 region and carrier.
type UpdateCapacitiesConfig struct {
	Enable bool   `yaml:"enable"`
	File   string `yaml:"file"`
	Method string `yaml:"method" validate:"omitempty,oneof=proportional additional"`
}

// LoadConfig distributes regional demand series over substation buses.
// The GDP and population coefficients are the Spanish calibration; the
// upstream default is 0.6/0.4.
type LoadConfig struct {
	RegionalFile   string  `yaml:"regional_file"`
	MembershipFile string  `yaml:"membership_file"`
	ScaleGDP       float64 `yaml:"scale_gdp" validate:"gte=0,lte=1"`
	ScalePop       float64 `yaml:"scale_pop" validate:"gte=0,lte=1"`
}

// CostsConfig points at the technology cost table and carries the
// per-technology overrides applied after loading.
type CostsConfig struct {
	File         string             `yaml:"file"`
	FillValues   map[string]float64 `yaml:"fill_values"`
	MarginalCost map[string]float64 `yaml:"marginal_cost"`
	CapitalCost  map[string]float64 `yaml:"capital_cost"`
}

// LinesConfig holds transmission cost parameters. LengthFactor
// inflates geodesic line lengths to account for routing.
type LinesConfig struct {
	LengthFactor float64 `yaml:"length_factor" validate:"gte=0"`
}

// ESIOSConfig configures the client for the system operator's
// indicator API. The token is never read from YAML; it comes from the
// ESIOS_API_TOKEN environment variable.
type ESIOSConfig struct {
	BaseURL        string         `yaml:"base_url" validate:"omitempty,url"`
	Token          string         `yaml:"-"`
	Timeout        model.Duration `yaml:"timeout"`
	MaxRetries     int            `yaml:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay     model.Duration `yaml:"retry_delay"`
	RateLimit      int            `yaml:"rate_limit" validate:"gte=0"`
	CacheTTL       model.Duration `yaml:"cache_ttl"`
	MaxCacheAge    model.Duration `yaml:"max_cache_age"`
	DatabasePath   string         `yaml:"database_path"`
	PriceIndicator int            `yaml:"price_indicator" validate:"gte=0"`
	GeoID          int            `yaml:"geo_id" validate:"gte=0"`
}

// BundleConfig configures databundle retrieval from S3-compatible
// object storage. Credentials come from the environment.
type BundleConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Secure    bool   `yaml:"secure"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// PlottingConfig carries display metadata for carriers. It is consumed
// during carrier sanitization, not for plotting itself.
type PlottingConfig struct {
	NiceNames  map[string]string `yaml:"nice_names"`
	TechColors map[string]string `yaml:"tech_colors"`
}

// Validate checks the configuration tree. Field-level rules run
// through the struct tags; cross-field rules are explicit below.
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}

	if c.Snapshots.Start != "" || c.Snapshots.End != "" {
		if c.Snapshots.Start == "" || c.Snapshots.End == "" {
			return fmt.Errorf("snapshots: both start and end must be set")
		}
	}

	if err := c.Interconnections.Validate(); err != nil {
		return fmt.Errorf("interconnections: %v", err)
	}

	if c.Load.RegionalFile != "" && c.Load.MembershipFile == "" {
		return fmt.Errorf("load: regional_file requires membership_file")
	}
	if sum := c.Load.ScaleGDP + c.Load.ScalePop; c.Load.RegionalFile != "" && sum == 0 {
		return fmt.Errorf("load: scale_gdp and scale_pop must not both be zero")
	}

	if c.Electricity.UpdateCapacities.Enable {
		if c.Electricity.UpdateCapacities.File == "" {
			return fmt.Errorf("electricity: update_elec_capacities enabled without a file")
		}
		if c.Electricity.UpdateCapacities.Method == "" {
			return fmt.Errorf("electricity: update_elec_capacities enabled without a method")
		}
	}

	if c.ESIOS.Timeout < 0 || c.ESIOS.RetryDelay < 0 {
		return fmt.Errorf("esios: timeout and retry_delay must not be negative")
	}

	return nil
}

// Validate enforces the fail-fast policy for the interconnection
// subsystem: enabling it with a blank table path is a configuration
// error here, not a runtime error during the build.
func (ic *InterconnectionsConfig) Validate() error {
	if !ic.Enable {
		return nil
	}
	if ic.ICFile == "" {
		return fmt.Errorf("enabled without ic_ES_file")
	}
	if !ic.LegacySchema && ic.NCFile == "" {
		return fmt.Errorf("enabled without nc_ES_file (required unless legacy_schema is set)")
	}
	if ic.LegacySchema && ic.NCFile != "" {
		return fmt.Errorf("nc_ES_file is not recognized by the legacy schema")
	}
	return nil
}

// TimeoutOrDefault returns the configured API timeout or the fallback.
func (e *ESIOSConfig) TimeoutOrDefault(d time.Duration) time.Duration {
	if e.Timeout > 0 {
		return time.Duration(e.Timeout)
	}
	return d
}
