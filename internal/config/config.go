// Package config provides configuration management for simulation runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"barsim/internal/models"
)

// Config holds all run configuration.
type Config struct {
	Simulation SimulationConfig `mapstructure:"simulation"`
	Costs      CostsConfig      `mapstructure:"costs"`
	Data       DataConfig       `mapstructure:"data"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SimulationConfig holds engine parameters.
type SimulationConfig struct {
	StartingCash float64 `mapstructure:"starting_cash"`
	LookBack     int     `mapstructure:"look_back"`
	LotSize      int64   `mapstructure:"lot_size"`
	MatchingMode string  `mapstructure:"matching_mode"` // CURRENT_BAR_CLOSE, NEXT_BAR_OPEN
	TPlus        int     `mapstructure:"t_plus"`
	RewardMode   string  `mapstructure:"reward_mode"` // same_bar, forward_bar
}

// CostsConfig holds the stock fee parameters.
type CostsConfig struct {
	CommissionRate       float64 `mapstructure:"commission_rate"`
	CommissionMultiplier float64 `mapstructure:"commission_multiplier"`
	MinCommission        float64 `mapstructure:"min_commission"`
	TaxRate              float64 `mapstructure:"tax_rate"`
	TaxMultiplier        float64 `mapstructure:"tax_multiplier"`
}

// DataConfig selects the bar source.
type DataConfig struct {
	// SQLitePath loads bars from a database; empty generates mock data.
	SQLitePath      string `mapstructure:"sqlite_path"`
	InstrumentCount int    `mapstructure:"instrument_count"`
	FeatureCount    int    `mapstructure:"feature_count"`
	BarCount        int    `mapstructure:"bar_count"`
	Seed            int64  `mapstructure:"seed"`
}

// LoggingConfig holds log sink parameters.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/barsim"
	}
	return filepath.Join(home, ".config", "barsim")
}

// Load loads configuration from the specified directory, falling back
// to defaults when no config file exists. Environment variables with
// the BARSIM_ prefix override file values.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("BARSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("simulation.starting_cash", 1_000_000.0)
	v.SetDefault("simulation.look_back", 2)
	v.SetDefault("simulation.lot_size", 100)
	v.SetDefault("simulation.matching_mode", string(models.MatchCurrentBarClose))
	v.SetDefault("simulation.t_plus", 0)
	v.SetDefault("simulation.reward_mode", "same_bar")

	v.SetDefault("costs.commission_rate", 0.0008)
	v.SetDefault("costs.commission_multiplier", 1.0)
	v.SetDefault("costs.min_commission", 5.0)
	v.SetDefault("costs.tax_rate", 0.001)
	v.SetDefault("costs.tax_multiplier", 1.0)

	v.SetDefault("data.sqlite_path", "")
	v.SetDefault("data.instrument_count", 2)
	v.SetDefault("data.feature_count", 3)
	v.SetDefault("data.bar_count", 40)
	v.SetDefault("data.seed", 1)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.file_path", "")
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Simulation.StartingCash <= 0 {
		return fmt.Errorf("simulation.starting_cash must be positive, got %v", c.Simulation.StartingCash)
	}
	if c.Simulation.LookBack < 1 {
		return fmt.Errorf("simulation.look_back must be at least 1, got %d", c.Simulation.LookBack)
	}
	if c.Simulation.LotSize <= 0 {
		return fmt.Errorf("simulation.lot_size must be positive, got %d", c.Simulation.LotSize)
	}
	switch models.MatchingMode(c.Simulation.MatchingMode) {
	case models.MatchCurrentBarClose, models.MatchNextBarOpen:
	default:
		return fmt.Errorf("unknown simulation.matching_mode %q", c.Simulation.MatchingMode)
	}
	switch c.Simulation.RewardMode {
	case "same_bar", "forward_bar":
	default:
		return fmt.Errorf("unknown simulation.reward_mode %q", c.Simulation.RewardMode)
	}
	return nil
}

// MatchingMode returns the typed matching mode.
func (c *Config) MatchingMode() models.MatchingMode {
	return models.MatchingMode(c.Simulation.MatchingMode)
}

// ForwardReward reports whether the forward-bar reward mode is set.
func (c *Config) ForwardReward() bool {
	return c.Simulation.RewardMode == "forward_bar"
}
