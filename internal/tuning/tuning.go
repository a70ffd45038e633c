// Package tuning holds the gameplay constants. Defaults are compiled in; a
// YAML file can override any subset of them.
package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	PullCost      int `yaml:"pull_cost"`
	StabilizeCost int `yaml:"stabilize_cost"`

	MessageInstability float64 `yaml:"message_instability"`
	PullInstabilityMin float64 `yaml:"pull_instability_min"`
	PullInstabilityMax float64 `yaml:"pull_instability_max"`
	StabilizeMin       float64 `yaml:"stabilize_min"`
	StabilizeMax       float64 `yaml:"stabilize_max"`

	DriftMin     float64 `yaml:"drift_min"`
	DriftMax     float64 `yaml:"drift_max"`
	ThresholdMin float64 `yaml:"threshold_min"`
	ThresholdMax float64 `yaml:"threshold_max"`

	CheckIntervalSeconds int `yaml:"check_interval_seconds"`
	DriftIntervalSeconds int `yaml:"drift_interval_seconds"`

	WarnInstability float64 `yaml:"warn_instability"`
	WarnChance      float64 `yaml:"warn_chance"`
}

func Default() Tuning {
	return Tuning{
		PullCost:             1,
		StabilizeCost:        10,
		MessageInstability:   0.3,
		PullInstabilityMin:   1.5,
		PullInstabilityMax:   3.5,
		StabilizeMin:         5.0,
		StabilizeMax:         15.0,
		DriftMin:             0.5,
		DriftMax:             2.0,
		ThresholdMin:         95.0,
		ThresholdMax:         99.0,
		CheckIntervalSeconds: 30,
		DriftIntervalSeconds: 300,
		WarnInstability:      80.0,
		WarnChance:           0.02,
	}
}

// Load reads a YAML override file on top of the defaults. Fields absent from
// the file keep their default values.
func Load(path string) (Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning %s: %w", path, err)
	}
	if err := t.validate(); err != nil {
		return t, fmt.Errorf("tuning %s: %w", path, err)
	}
	return t, nil
}

func (t Tuning) validate() error {
	if t.PullCost <= 0 || t.StabilizeCost <= 0 {
		return fmt.Errorf("costs must be positive")
	}
	ranges := [][2]float64{
		{t.PullInstabilityMin, t.PullInstabilityMax},
		{t.StabilizeMin, t.StabilizeMax},
		{t.DriftMin, t.DriftMax},
		{t.ThresholdMin, t.ThresholdMax},
	}
	for _, r := range ranges {
		if r[0] > r[1] {
			return fmt.Errorf("range [%v, %v] inverted", r[0], r[1])
		}
	}
	if t.CheckIntervalSeconds <= 0 || t.DriftIntervalSeconds <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	return nil
}

func (t Tuning) CheckInterval() time.Duration {
	return time.Duration(t.CheckIntervalSeconds) * time.Second
}

func (t Tuning) DriftInterval() time.Duration {
	return time.Duration(t.DriftIntervalSeconds) * time.Second
}
