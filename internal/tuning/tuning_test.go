package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	d := Default()
	if d.PullCost != 1 || d.StabilizeCost != 10 {
		t.Fatalf("costs = (%d, %d), want (1, 10)", d.PullCost, d.StabilizeCost)
	}
	if d.MessageInstability != 0.3 {
		t.Fatalf("message instability = %v, want 0.3", d.MessageInstability)
	}
	if d.ThresholdMin != 95 || d.ThresholdMax != 99 {
		t.Fatalf("threshold range = [%v, %v], want [95, 99]", d.ThresholdMin, d.ThresholdMax)
	}
	if d.CheckInterval() != 30*time.Second || d.DriftInterval() != 5*time.Minute {
		t.Fatalf("intervals = (%v, %v)", d.CheckInterval(), d.DriftInterval())
	}
	if err := d.validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	content := "pull_cost: 2\ncheck_interval_seconds: 5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write tuning file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PullCost != 2 {
		t.Fatalf("pull cost = %d, want 2", cfg.PullCost)
	}
	if cfg.CheckInterval() != 5*time.Second {
		t.Fatalf("check interval = %v, want 5s", cfg.CheckInterval())
	}
	// Untouched fields keep their defaults.
	if cfg.StabilizeCost != 10 || cfg.DriftMax != 2.0 {
		t.Fatalf("defaults clobbered: %+v", cfg)
	}
}

func TestLoadRejectsInvertedRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	content := "drift_min: 3.0\ndrift_max: 1.0\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write tuning file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("inverted range accepted")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}
