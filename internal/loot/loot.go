package loot

import (
	"fmt"
	"math/rand"
	"strings"
)

// Rarity tiers in draw order, Common first. Rank order for display is the
// reverse: Reality Breaker outranks everything.
type Rarity int

const (
	Common Rarity = iota
	Rare
	Epic
	Legendary
	Mythic
	RealityBreaker
)

// All lists every rarity in ascending rank order.
var All = []Rarity{Common, Rare, Epic, Legendary, Mythic, RealityBreaker}

func (r Rarity) String() string {
	switch r {
	case Common:
		return "Common"
	case Rare:
		return "Rare"
	case Epic:
		return "Epic"
	case Legendary:
		return "Legendary"
	case Mythic:
		return "Mythic"
	case RealityBreaker:
		return "Reality Breaker"
	}
	return fmt.Sprintf("Rarity(%d)", int(r))
}

// Rank returns a sortable rank; higher is rarer.
func (r Rarity) Rank() int { return int(r) }

func ParseRarity(s string) (Rarity, error) {
	for _, r := range All {
		if r.String() == s {
			return r, nil
		}
	}
	return Common, fmt.Errorf("unknown rarity %q", s)
}

// Tier holds the fixed per-rarity constants: the base draw probability at
// zero instability, presentation metadata, and the item name pool.
type Tier struct {
	Base  float64
	Emoji string
	Color int
	Pool  []string
}

var tiers = map[Rarity]Tier{
	Common: {
		Base:  0.60,
		Emoji: "⚪",
		Color: 0x95a5a6,
		Pool: []string{
			"Quantum Dust", "Broken Clock", "Rusty Coin", "Faded Photograph",
			"Mundane Stone", "Worn Button", "Ordinary Paperclip", "Plain Marble",
			"Standard Penny", "Simple Thread",
		},
	},
	Rare: {
		Base:  0.25,
		Emoji: "🔵",
		Color: 0x3498db,
		Pool: []string{
			"Glowing Crystal", "Mysterious Key", "Ancient Scroll", "Enchanted Ring",
			"Silver Dagger", "Ethereal Feather", "Mystic Orb", "Rune Stone",
			"Arcane Symbol", "Blessed Charm",
		},
	},
	Epic: {
		Base:  0.10,
		Emoji: "🟣",
		Color: 0x9b59b6,
		Pool: []string{
			"Void Fragment", "Temporal Shard", "Dimensional Gate Key", "Chaos Essence",
			"Stellar Crown", "Infinity Loop", "Quantum Entangler", "Nebula Core",
			"Warp Catalyst", "Astral Compass",
		},
	},
	Legendary: {
		Base:  0.04,
		Emoji: "🟡",
		Color: 0xf1c40f,
		Pool: []string{
			"Singularity Heart", "Time Fracture", "Reality Anchor", "Cosmic Thread",
			"Eternal Flame", "Universe Seed", "Dimensional Rift", "Probability Manipulator",
			"Fate Weaver", "Spacetime Fabric",
		},
	},
	Mythic: {
		Base:  0.008,
		Emoji: "🔴",
		Color: 0xe74c3c,
		Pool: []string{
			"Primordial Spark", "Omega Point", "Genesis Code", "Entropy Reversal",
			"Absolute Zero", "Infinite Horizon", "Quantum Godhood", "Big Bang Remnant",
			"Existential Key", "Multiverse Core",
		},
	},
	RealityBreaker: {
		Base:  0.002,
		Emoji: "💠",
		Color: 0x00ffff,
		Pool: []string{
			"The Impossible Thing", "Paradox Incarnate", "Laws of Physics (Broken)",
			"End of Everything", "Beginning After End", "Schrödinger's Answer",
			"Divide by Zero", "Fourth Wall Fragment", "Meta Singularity",
			"Conceptual Nullifier",
		},
	},
}

// Per-rarity boost applied to the base probability as chaos rises. Common is
// the only tier that loses probability mass.
var chaosBoost = map[Rarity]float64{
	Common:         -0.7,
	Rare:           0.5,
	Epic:           1.5,
	Legendary:      3.0,
	Mythic:         6.0,
	RealityBreaker: 15.0,
}

// TierInfo returns the fixed metadata for a rarity.
func TierInfo(r Rarity) Tier { return tiers[r] }

func clampInstability(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// AdjustedProbabilities maps an instability value to the normalized rarity
// distribution. Higher instability shifts mass from Common toward the rare
// tiers; the result always sums to 1.
func AdjustedProbabilities(instability float64) map[Rarity]float64 {
	chaos := clampInstability(instability) / 100.0

	adjusted := make(map[Rarity]float64, len(All))
	var total float64
	for _, r := range All {
		w := tiers[r].Base * (1 + chaosBoost[r]*chaos)
		adjusted[r] = w
		total += w
	}
	for r := range adjusted {
		adjusted[r] /= total
	}
	return adjusted
}

// Generate draws one loot item for the given instability: a weighted rarity
// draw followed by a uniform pick from that rarity's pool. Pure apart from
// the caller-supplied rng; safe for any number of concurrent callers as long
// as they do not share an unsynchronized rng.
func Generate(rng *rand.Rand, instability float64) (name string, rarity Rarity) {
	probs := AdjustedProbabilities(instability)

	roll := rng.Float64()
	selected := All[len(All)-1]
	var cum float64
	for _, r := range All {
		cum += probs[r]
		if roll < cum {
			selected = r
			break
		}
	}

	pool := tiers[selected].Pool
	return pool[rng.Intn(len(pool))], selected
}

// LevelDescription returns the flavor band for an instability value.
func LevelDescription(instability float64) (title, desc string) {
	switch {
	case instability < 20:
		return "Stable Universe", "Reality is holding together... for now."
	case instability < 40:
		return "Minor Fluctuations", "Space-time is getting wobbly."
	case instability < 60:
		return "Quantum Turbulence", "The fabric of reality is trembling!"
	case instability < 80:
		return "Critical Instability", "Reality is fracturing at the seams!"
	case instability < 95:
		return "IMMINENT COLLAPSE", "The universe hangs by a thread!"
	default:
		return "REALITY FAILURE", "TOTAL COLLAPSE APPROACHING!"
	}
}

// FormatProbabilities renders the current drop rates, one line per rarity in
// ascending rank order.
func FormatProbabilities(instability float64) string {
	probs := AdjustedProbabilities(instability)
	lines := make([]string, 0, len(All))
	for _, r := range All {
		lines = append(lines, fmt.Sprintf("%s %s: %.2f%%", tiers[r].Emoji, r, probs[r]*100))
	}
	return strings.Join(lines, "\n")
}
