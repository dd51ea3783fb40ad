package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v2"
	"k8s.io/klog/v2"
)

// Default returns the configuration used where the file is silent.
func Default() *Config {
	return &Config{
		Run:       RunConfig{Name: "base"},
		Snapshots: SnapshotsConfig{Resolution: 1},
		Electricity: ElectricityConfig{
			Voltage: 380,
			MaxHours: map[string]float64{
				"battery": 6,
				"H2":      168,
			},
			UpdateCapacities: UpdateCapacitiesConfig{Method: "proportional"},
		},
		Load: LoadConfig{ScaleGDP: 0.18, ScalePop: 0.82},
		Costs: CostsConfig{
			FillValues: map[string]float64{
				"FOM":           0,
				"VOM":           0,
				"efficiency":    1,
				"fuel":          0,
				"investment":    0,
				"lifetime":      25,
				"CO2 intensity": 0,
				"discount rate": 0.07,
			},
		},
		Lines: LinesConfig{LengthFactor: 1.25},
		ESIOS: ESIOSConfig{
			BaseURL:        "https://api.esios.ree.es",
			Timeout:        model.Duration(30 * time.Second),
			MaxRetries:     3,
			RetryDelay:     model.Duration(time.Second),
			RateLimit:      2,
			CacheTTL:       model.Duration(6 * time.Hour),
			MaxCacheAge:    model.Duration(24 * time.Hour),
			DatabasePath:   "data/esios.db",
			PriceIndicator: 600,
			GeoID:          3,
		},
		Bundle: BundleConfig{Secure: true},
	}
}

// Load reads the YAML configuration at path on top of the defaults,
// applies environment overrides and validates the result. Unknown YAML
// keys are rejected so that misspelled options surface immediately.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %v", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	klog.V(2).InfoS("Loaded configuration",
		"path", path,
		"run", cfg.Run.Name,
		"interconnections", cfg.Interconnections.Enable,
		"legacySchema", cfg.Interconnections.LegacySchema,
		"updateCapacities", cfg.Electricity.UpdateCapacities.Enable)

	return cfg, nil
}

// FromEnv returns the default configuration with environment
// overrides applied, for tools that run without a YAML file.
func FromEnv() (*Config, error) {
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}
	return cfg, nil
}

// DefaultPath resolves the configuration file location for binaries:
// the PYPSA_ES_CONFIG environment variable when set, otherwise the
// conventional config/config.yaml.
func DefaultPath() string {
	if p := os.Getenv("PYPSA_ES_CONFIG"); p != "" {
		return p
	}
	return "config/config.yaml"
}

// RebaseData joins dir onto every relative data-file path in the
// configuration so a data bundle can live outside the working
// directory. Absolute paths and unset fields are left alone.
func (c *Config) RebaseData(dir string) {
	for _, p := range []*string{
		&c.Costs.File,
		&c.Load.RegionalFile,
		&c.Load.MembershipFile,
		&c.Electricity.PowerPlantsFile,
		&c.Electricity.UpdateCapacities.File,
		&c.Interconnections.ICFile,
		&c.Interconnections.NCFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// applyEnvOverrides pulls secrets and deployment-specific knobs from
// the environment. Secrets are never read from the YAML file.
func applyEnvOverrides(cfg *Config) {
	cfg.ESIOS.Token = os.Getenv("ESIOS_API_TOKEN")
	cfg.ESIOS.BaseURL = getEnvOrDefault("ESIOS_API_URL", cfg.ESIOS.BaseURL)
	cfg.ESIOS.MaxRetries = getIntOrDefault("ESIOS_MAX_RETRIES", cfg.ESIOS.MaxRetries)
	cfg.ESIOS.RateLimit = getIntOrDefault("ESIOS_RATE_LIMIT", cfg.ESIOS.RateLimit)
	cfg.ESIOS.Timeout = model.Duration(getDurationOrDefault("ESIOS_TIMEOUT", time.Duration(cfg.ESIOS.Timeout)))

	cfg.Bundle.AccessKey = os.Getenv("PYPSA_BUNDLE_ACCESS_KEY")
	cfg.Bundle.SecretKey = os.Getenv("PYPSA_BUNDLE_SECRET_KEY")
	cfg.Bundle.Endpoint = getEnvOrDefault("PYPSA_BUNDLE_ENDPOINT", cfg.Bundle.Endpoint)

	cfg.Interconnections.Enable = getBoolOrDefault("PYPSA_IC_ENABLE", cfg.Interconnections.Enable)
	cfg.Load.ScaleGDP = getFloatOrDefault("PYPSA_LOAD_SCALE_GDP", cfg.Load.ScaleGDP)
	cfg.Load.ScalePop = getFloatOrDefault("PYPSA_LOAD_SCALE_POP", cfg.Load.ScalePop)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if strValue := os.Getenv(key); strValue != "" {
		if value, err := strconv.Atoi(strValue); err == nil {
			return value
		}
		klog.V(2).InfoS("Invalid integer value, using default",
			"key", key,
			"value", strValue,
			"default", defaultValue)
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if strValue := os.Getenv(key); strValue != "" {
		if value, err := strconv.ParseFloat(strValue, 64); err == nil {
			return value
		}
		klog.V(2).InfoS("Invalid float value, using default",
			"key", key,
			"value", strValue,
			"default", defaultValue)
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if strValue := os.Getenv(key); strValue != "" {
		value, err := strconv.ParseBool(strValue)
		if err == nil {
			return value
		}
		klog.V(2).InfoS("Invalid boolean value, using default",
			"key", key,
			"value", strValue,
			"default", defaultValue)
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if strValue := os.Getenv(key); strValue != "" {
		if value, err := time.ParseDuration(strValue); err == nil {
			return value
		}
		klog.V(2).InfoS("Invalid duration value, using default",
			"key", key,
			"value", strValue,
			"default", defaultValue)
	}
	return defaultValue
}
