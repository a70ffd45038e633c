package loot

import (
	"math"
	"math/rand"
	"strings"
	"testing"
)

func TestAdjustedProbabilitiesSumToOne(t *testing.T) {
	for _, instability := range []float64{-50, 0, 0.5, 13.7, 50, 80, 99.9, 100, 250} {
		probs := AdjustedProbabilities(instability)
		if len(probs) != len(All) {
			t.Fatalf("instability %v: expected %d weights, got %d", instability, len(All), len(probs))
		}
		var sum float64
		for r, p := range probs {
			if p < 0 {
				t.Fatalf("instability %v: negative weight %v for %s", instability, p, r)
			}
			sum += p
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Fatalf("instability %v: weights sum to %v, want 1.0", instability, sum)
		}
	}
}

func TestAdjustedProbabilitiesMonotonic(t *testing.T) {
	prevCommon := math.Inf(1)
	prevBreaker := math.Inf(-1)
	for i := 0; i <= 100; i++ {
		probs := AdjustedProbabilities(float64(i))
		if probs[Common] > prevCommon {
			t.Fatalf("Common weight rose at instability %d: %v > %v", i, probs[Common], prevCommon)
		}
		if probs[RealityBreaker] < prevBreaker {
			t.Fatalf("Reality Breaker weight fell at instability %d: %v < %v", i, probs[RealityBreaker], prevBreaker)
		}
		prevCommon = probs[Common]
		prevBreaker = probs[RealityBreaker]
	}
}

func TestAdjustedProbabilitiesAtZeroMatchBaseTable(t *testing.T) {
	var total float64
	for _, r := range All {
		total += tiers[r].Base
	}

	probs := AdjustedProbabilities(0)
	for _, r := range All {
		want := tiers[r].Base / total
		if math.Abs(probs[r]-want) > 1e-12 {
			t.Fatalf("%s at instability 0: got %v, want %v", r, probs[r], want)
		}
	}
}

func TestGenerateConvergesToDistribution(t *testing.T) {
	const draws = 50000
	rng := rand.New(rand.NewSource(42))

	for _, instability := range []float64{0, 60, 100} {
		counts := make(map[Rarity]int)
		for i := 0; i < draws; i++ {
			_, r := Generate(rng, instability)
			counts[r]++
		}
		probs := AdjustedProbabilities(instability)
		for _, r := range All {
			got := float64(counts[r]) / draws
			if math.Abs(got-probs[r]) > 0.01 {
				t.Fatalf("instability %v: %s frequency %v, want %v ± 0.01", instability, r, got, probs[r])
			}
		}
	}
}

func TestGenerateNamesComeFromPool(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		name, rarity := Generate(rng, 100)
		found := false
		for _, candidate := range tiers[rarity].Pool {
			if candidate == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("item %q not in %s pool", name, rarity)
		}
	}
}

func TestParseRarityRoundTrip(t *testing.T) {
	for _, r := range All {
		parsed, err := ParseRarity(r.String())
		if err != nil {
			t.Fatalf("ParseRarity(%q): %v", r.String(), err)
		}
		if parsed != r {
			t.Fatalf("ParseRarity(%q) = %v, want %v", r.String(), parsed, r)
		}
	}
	if _, err := ParseRarity("Ultra"); err == nil {
		t.Fatal("expected error for unknown rarity")
	}
}

func TestRarityRankOrdering(t *testing.T) {
	for i := 1; i < len(All); i++ {
		if All[i].Rank() <= All[i-1].Rank() {
			t.Fatalf("rank not strictly increasing: %s (%d) after %s (%d)",
				All[i], All[i].Rank(), All[i-1], All[i-1].Rank())
		}
	}
}

func TestLevelDescriptionBands(t *testing.T) {
	cases := []struct {
		instability float64
		title       string
	}{
		{0, "Stable Universe"},
		{19.9, "Stable Universe"},
		{20, "Minor Fluctuations"},
		{40, "Quantum Turbulence"},
		{60, "Critical Instability"},
		{80, "IMMINENT COLLAPSE"},
		{95, "REALITY FAILURE"},
		{100, "REALITY FAILURE"},
	}
	for _, tc := range cases {
		title, desc := LevelDescription(tc.instability)
		if title != tc.title {
			t.Fatalf("LevelDescription(%v) title = %q, want %q", tc.instability, title, tc.title)
		}
		if desc == "" {
			t.Fatalf("LevelDescription(%v) returned empty description", tc.instability)
		}
	}
}

func TestFormatProbabilitiesHasLinePerRarity(t *testing.T) {
	out := FormatProbabilities(50)
	for _, r := range All {
		if !strings.Contains(out, r.String()) {
			t.Fatalf("display missing rarity %s:\n%s", r, out)
		}
	}
}
