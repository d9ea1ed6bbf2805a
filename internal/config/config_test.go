package config

import (
	"os"
	"path/filepath"
	"testing"

	"barsim/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Simulation.StartingCash != 1_000_000 {
		t.Errorf("starting_cash = %v, want 1000000", cfg.Simulation.StartingCash)
	}
	if cfg.Simulation.LookBack != 2 {
		t.Errorf("look_back = %d, want 2", cfg.Simulation.LookBack)
	}
	if cfg.Simulation.LotSize != 100 {
		t.Errorf("lot_size = %d, want 100", cfg.Simulation.LotSize)
	}
	if cfg.MatchingMode() != models.MatchCurrentBarClose {
		t.Errorf("matching mode = %v, want CURRENT_BAR_CLOSE", cfg.MatchingMode())
	}
	if cfg.ForwardReward() {
		t.Error("forward reward should be off by default")
	}
	if cfg.Costs.MinCommission != 5 {
		t.Errorf("min_commission = %v, want 5", cfg.Costs.MinCommission)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	toml := `
[simulation]
starting_cash = 250000.0
matching_mode = "NEXT_BAR_OPEN"
reward_mode = "forward_bar"
t_plus = 1

[data]
instrument_count = 5
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Simulation.StartingCash != 250_000 {
		t.Errorf("starting_cash = %v, want 250000", cfg.Simulation.StartingCash)
	}
	if cfg.MatchingMode() != models.MatchNextBarOpen {
		t.Errorf("matching mode = %v, want NEXT_BAR_OPEN", cfg.MatchingMode())
	}
	if !cfg.ForwardReward() {
		t.Error("forward reward should be on")
	}
	if cfg.Simulation.TPlus != 1 {
		t.Errorf("t_plus = %d, want 1", cfg.Simulation.TPlus)
	}
	// Values not present in the file keep their defaults.
	if cfg.Simulation.LookBack != 2 {
		t.Errorf("look_back = %d, want default 2", cfg.Simulation.LookBack)
	}
	if cfg.Data.InstrumentCount != 5 {
		t.Errorf("instrument_count = %d, want 5", cfg.Data.InstrumentCount)
	}
	if cfg.Data.BarCount != 40 {
		t.Errorf("bar_count = %d, want default 40", cfg.Data.BarCount)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	toml := `
[simulation]
matching_mode = "MIDPRICE"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("expected an error for an unknown matching mode")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Simulation: SimulationConfig{
			StartingCash: 1_000_000,
			LookBack:     1,
			LotSize:      100,
			MatchingMode: string(models.MatchCurrentBarClose),
			RewardMode:   "same_bar",
		}}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cash", func(c *Config) { c.Simulation.StartingCash = 0 }},
		{"negative cash", func(c *Config) { c.Simulation.StartingCash = -1 }},
		{"zero look back", func(c *Config) { c.Simulation.LookBack = 0 }},
		{"zero lot", func(c *Config) { c.Simulation.LotSize = 0 }},
		{"bad matching mode", func(c *Config) { c.Simulation.MatchingMode = "MIDPRICE" }},
		{"bad reward mode", func(c *Config) { c.Simulation.RewardMode = "hourly" }},
	}
	for _, tc := range cases {
		cfg := valid()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", tc.name)
		}
	}
}
