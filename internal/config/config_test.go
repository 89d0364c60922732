package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"plant_monitor/internal/models"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestDefault_FaultyRangesContainNormal(t *testing.T) {
	cfg := Default()
	for _, p := range models.Parameters {
		nr := cfg.Simulator.NormalRange[p]
		fr := cfg.Simulator.FaultyRange[p]
		if fr.Lower > nr.Lower || fr.Upper < nr.Upper {
			t.Fatalf("%s: faulty range %+v does not contain normal range %+v", p, fr, nr)
		}
	}
}

func TestRange_Contains(t *testing.T) {
	r := Range{Lower: 40, Upper: 60}
	cases := []struct {
		v    float64
		want bool
	}{
		{40, true}, {60, true}, {50, true}, {39.99, false}, {60.01, false},
	}
	for _, tc := range cases {
		if got := r.Contains(tc.v); got != tc.want {
			t.Fatalf("Contains(%.2f) = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yml := []byte(`
port: "9090"
simulator:
  plants: 2
  machines_per_plant: 3
kpi:
  interval: 5m
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yml"), yml, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("port = %q, want 9090", cfg.Port)
	}
	if cfg.Simulator.Plants != 2 || cfg.Simulator.MachinesPerPlant != 3 {
		t.Fatalf("fleet override lost: %+v", cfg.Simulator)
	}
	if cfg.KPI.Interval != 5*time.Minute {
		t.Fatalf("kpi interval = %v, want 5m", cfg.KPI.Interval)
	}
	// Untouched sections keep defaults.
	if cfg.Ingest.Workers != 10 {
		t.Fatalf("ingest workers = %d, want default 10", cfg.Ingest.Workers)
	}
	if got := cfg.Simulator.NormalRange[models.ParamTemperature]; got != (Range{Lower: 40, Upper: 60}) {
		t.Fatalf("normal range default lost: %+v", got)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero plants", func(c *Config) { c.Simulator.Plants = 0 }},
		{"zero tick", func(c *Config) { c.Simulator.Tick = 0 }},
		{"zero workers", func(c *Config) { c.Ingest.Workers = 0 }},
		{"zero flush size", func(c *Config) { c.Filter.FlushSize = 0 }},
		{"faulty range narrower than normal", func(c *Config) {
			c.Simulator.FaultyRange[models.ParamTemperature] = Range{Lower: 45, Upper: 55}
		}},
		{"missing normal range", func(c *Config) {
			delete(c.Simulator.NormalRange, models.ParamVibration)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
