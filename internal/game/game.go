// Package game composes the universe owner, the ledger, and the probability
// engine into the player-facing operations: pull, stabilize, status,
// inventory, and the activity tick. Each owner serializes its own state; the
// steps of one operation are not jointly transactional (a crash between the
// debit and the instability bump is an accepted inconsistency window).
package game

import (
	"math/rand"
	"sync"
	"time"

	"github.com/example/quantum-lotto/internal/ledger"
	"github.com/example/quantum-lotto/internal/loot"
	"github.com/example/quantum-lotto/internal/tuning"
	"github.com/example/quantum-lotto/internal/universe"
)

var chaosWarnings = []string{
	"Reality trembles...",
	"The void stirs...",
	"Quantum fluctuations detected!",
	"Something feels... wrong...",
	"Entropy increases...",
}

type Game struct {
	cfg tuning.Tuning
	uni *universe.State
	led *ledger.Ledger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New wires the coordinator. A nil rng gets a time-seeded one.
func New(uni *universe.State, led *ledger.Ledger, cfg tuning.Tuning, rng *rand.Rand) *Game {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Game{cfg: cfg, uni: uni, led: led, rng: rng}
}

func (g *Game) uniform(min, max float64) float64 {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return min + g.rng.Float64()*(max-min)
}

func (g *Game) chance(p float64) bool {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return g.rng.Float64() < p
}

func (g *Game) draw(instability float64) (string, loot.Rarity) {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return loot.Generate(g.rng, instability)
}

func (g *Game) pick(options []string) string {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return options[g.rng.Intn(len(options))]
}

type PullResult struct {
	Item        string
	Rarity      loot.Rarity
	Instability float64
	Credits     int
}

// Pull spends one credit and draws one loot item at the current instability,
// then feeds the chaos back into the universe.
func (g *Game) Pull(userID, displayName string) (PullResult, error) {
	if _, err := g.led.GetOrCreateUser(userID, displayName); err != nil {
		return PullResult{}, err
	}

	credits, err := g.led.TryDebit(userID, g.cfg.PullCost)
	if err != nil {
		return PullResult{Credits: credits}, err
	}
	if err := g.led.IncrementStat(userID, ledger.StatPulls); err != nil {
		return PullResult{}, err
	}

	instability := g.uni.Instability()
	item, rarity := g.draw(instability)
	if err := g.led.AddItem(userID, item, rarity, time.Now()); err != nil {
		return PullResult{}, err
	}

	newInstability, err := g.uni.AdjustInstability(g.uniform(g.cfg.PullInstabilityMin, g.cfg.PullInstabilityMax))
	if err != nil {
		return PullResult{}, err
	}

	return PullResult{Item: item, Rarity: rarity, Instability: newInstability, Credits: credits}, nil
}

type StabilizeResult struct {
	Before    float64
	After     float64
	Reduction float64
	Credits   int
}

// Stabilize spends credits to pull the universe back from the brink by a
// random amount.
func (g *Game) Stabilize(userID, displayName string) (StabilizeResult, error) {
	if _, err := g.led.GetOrCreateUser(userID, displayName); err != nil {
		return StabilizeResult{}, err
	}

	credits, err := g.led.TryDebit(userID, g.cfg.StabilizeCost)
	if err != nil {
		return StabilizeResult{Credits: credits}, err
	}
	if err := g.led.IncrementStat(userID, ledger.StatStabilizations); err != nil {
		return StabilizeResult{}, err
	}

	before := g.uni.Instability()
	reduction := g.uniform(g.cfg.StabilizeMin, g.cfg.StabilizeMax)
	after, err := g.uni.AdjustInstability(-reduction)
	if err != nil {
		return StabilizeResult{}, err
	}

	return StabilizeResult{Before: before, After: after, Reduction: reduction, Credits: credits}, nil
}

type Status struct {
	Universe      universe.Snapshot
	LevelTitle    string
	LevelDesc     string
	Probabilities map[loot.Rarity]float64
	TopHolders    []ledger.Holder
}

// StatusReport returns the universe snapshot with the live drop rates and
// the leaderboard.
func (g *Game) StatusReport() (Status, error) {
	snap := g.uni.Snapshot()
	title, desc := loot.LevelDescription(snap.Instability)

	holders, err := g.led.TopHolders(10)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Universe:      snap,
		LevelTitle:    title,
		LevelDesc:     desc,
		Probabilities: loot.AdjustedProbabilities(snap.Instability),
		TopHolders:    holders,
	}, nil
}

type InventoryView struct {
	User         ledger.User
	Items        []ledger.Item
	RarityCounts map[loot.Rarity]int
}

// Inventory returns the user's collection, rarest first.
func (g *Game) Inventory(userID, displayName string) (InventoryView, error) {
	user, err := g.led.GetOrCreateUser(userID, displayName)
	if err != nil {
		return InventoryView{}, err
	}
	items, err := g.led.Inventory(userID)
	if err != nil {
		return InventoryView{}, err
	}
	counts, err := g.led.RarityCounts(userID)
	if err != nil {
		return InventoryView{}, err
	}
	return InventoryView{User: user, Items: items, RarityCounts: counts}, nil
}

type ActivityResult struct {
	Instability float64
	Warning     string // empty unless a high-chaos warning fired
}

// NoteMessage records one unit of background activity: the message counter
// ticks and instability creeps up. At high instability there is a small
// chance the result carries a warning line for the presentation layer.
func (g *Game) NoteMessage() (ActivityResult, error) {
	if err := g.uni.RecordMessage(); err != nil {
		return ActivityResult{}, err
	}
	instability, err := g.uni.AdjustInstability(g.cfg.MessageInstability)
	if err != nil {
		return ActivityResult{}, err
	}

	res := ActivityResult{Instability: instability}
	if instability > g.cfg.WarnInstability && g.chance(g.cfg.WarnChance) {
		res.Warning = g.pick(chaosWarnings)
	}
	return res, nil
}

// Ledger exposes the ledger for presentation-layer reads.
func (g *Game) Ledger() *ledger.Ledger { return g.led }

// Universe exposes the universe owner for presentation-layer reads.
func (g *Game) Universe() *universe.State { return g.uni }
