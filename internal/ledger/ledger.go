// Package ledger owns per-user credit balances and the append-only loot log.
// Operations on the same user serialize through the database; different users
// never block each other. The one exception is the global collapse delete,
// which stops the whole inventory store for its duration so the sampled ids
// match the rows actually removed.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/example/quantum-lotto/internal/loot"
)

const txAttempts = 3

var (
	ErrInsufficientFunds = errors.New("insufficient credits")
	ErrUnknownUser       = errors.New("unknown user")
)

// Stat identifies a user counter. Using a closed enum instead of a column
// name keeps bad stat names unrepresentable.
type Stat int

const (
	StatPulls Stat = iota
	StatStabilizations
)

func (s Stat) column() string {
	if s == StatStabilizations {
		return "total_stabilizations"
	}
	return "total_pulls"
}

const startingCredits = 10

// acquiredAtLayout is fixed-width (always nine fractional digits, always UTC)
// so that lexicographic order on the stored text matches chronological order.
// RFC3339Nano trims trailing zeros, which makes "...T00:00:00Z" sort after
// "...T00:00:00.5Z" and breaks the acquired_at ORDER BY.
const acquiredAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

type User struct {
	ID                  string
	DisplayName         string
	Credits             int
	TotalPulls          int
	TotalStabilizations int
}

type Item struct {
	OwnerID    string
	Name       string
	Rarity     loot.Rarity
	AcquiredAt time.Time
}

type Holder struct {
	UserID      string
	DisplayName string
	ItemCount   int
}

// Ledger mediates all access to the users and loot_items tables. Reads and
// per-user writes share the lock in read mode; BulkCollapseDelete takes it
// exclusively.
type Ledger struct {
	db *sql.DB
	mu sync.RWMutex
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// GetOrCreateUser returns the user, creating it with the starting balance on
// first contact. Repeat calls refresh the display name and nothing else.
func (l *Ledger) GetOrCreateUser(id, displayName string) (User, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if id == "" {
		return User{}, fmt.Errorf("empty user id")
	}
	_, err := l.db.Exec(`
		INSERT INTO users (user_id, username, credits) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET username = excluded.username`,
		id, displayName, startingCredits)
	if err != nil {
		return User{}, fmt.Errorf("get or create user %s: %w", id, err)
	}
	return l.userLocked(id)
}

func (l *Ledger) userLocked(id string) (User, error) {
	var u User
	row := l.db.QueryRow(`SELECT user_id, username, credits, total_pulls, total_stabilizations FROM users WHERE user_id = ?`, id)
	if err := row.Scan(&u.ID, &u.DisplayName, &u.Credits, &u.TotalPulls, &u.TotalStabilizations); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUnknownUser
		}
		return User{}, fmt.Errorf("load user %s: %w", id, err)
	}
	return u, nil
}

// User returns the stored record without creating it.
func (l *Ledger) User(id string) (User, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.userLocked(id)
}

// TryDebit atomically checks and subtracts. Exactly one of two racing debits
// can win the last credit: the balance guard sits inside the UPDATE itself.
func (l *Ledger) TryDebit(id string, amount int) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	var balance int
	err := l.db.QueryRow(`UPDATE users SET credits = credits - ? WHERE user_id = ? AND credits >= ? RETURNING credits`,
		amount, id, amount).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		u, err := l.userLocked(id)
		if err != nil {
			return 0, err
		}
		return u.Credits, ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("debit user %s: %w", id, err)
	}
	return balance, nil
}

// Credit adds earned or refunded credits and returns the new balance.
func (l *Ledger) Credit(id string, amount int) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if amount < 0 {
		return 0, fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}
	var balance int
	err := l.db.QueryRow(`UPDATE users SET credits = credits + ? WHERE user_id = ? RETURNING credits`, amount, id).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnknownUser
	}
	if err != nil {
		return 0, fmt.Errorf("credit user %s: %w", id, err)
	}
	return balance, nil
}

// IncrementStat bumps one of the user counters.
func (l *Ledger) IncrementStat(id string, stat Stat) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	col := stat.column()
	res, err := l.db.Exec(`UPDATE users SET `+col+` = `+col+` + 1 WHERE user_id = ?`, id)
	if err != nil {
		return fmt.Errorf("increment %s for user %s: %w", col, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUnknownUser
	}
	return nil
}

// AddItem appends one loot item to the owner's log. Items are immutable and
// only ever removed by a collapse.
func (l *Ledger) AddItem(userID, name string, rarity loot.Rarity, acquiredAt time.Time) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, err := l.db.Exec(`INSERT INTO loot_items (user_id, item_name, rarity, rarity_rank, acquired_at) VALUES (?, ?, ?, ?, ?)`,
		userID, name, rarity.String(), rarity.Rank(), acquiredAt.UTC().Format(acquiredAtLayout))
	if err != nil {
		return fmt.Errorf("add item for user %s: %w", userID, err)
	}
	return nil
}

// Inventory lists a user's items, rarest tier first, newest first within a
// tier.
func (l *Ledger) Inventory(userID string) ([]Item, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.Query(`
		SELECT user_id, item_name, rarity, acquired_at FROM loot_items
		WHERE user_id = ?
		ORDER BY rarity_rank DESC, acquired_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("inventory for user %s: %w", userID, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var rarity, acquired string
		if err := rows.Scan(&it.OwnerID, &it.Name, &rarity, &acquired); err != nil {
			return nil, fmt.Errorf("inventory for user %s: %w", userID, err)
		}
		if it.Rarity, err = loot.ParseRarity(rarity); err != nil {
			return nil, fmt.Errorf("inventory for user %s: %w", userID, err)
		}
		if it.AcquiredAt, err = time.Parse(acquiredAtLayout, acquired); err != nil {
			return nil, fmt.Errorf("inventory for user %s: %w", userID, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// InventoryCount returns the user's total item count.
func (l *Ledger) InventoryCount(userID string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var n int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM loot_items WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("inventory count for user %s: %w", userID, err)
	}
	return n, nil
}

// RarityCounts returns the user's item tally per rarity.
func (l *Ledger) RarityCounts(userID string) (map[loot.Rarity]int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.Query(`SELECT rarity, COUNT(*) FROM loot_items WHERE user_id = ? GROUP BY rarity`, userID)
	if err != nil {
		return nil, fmt.Errorf("rarity counts for user %s: %w", userID, err)
	}
	defer rows.Close()

	counts := make(map[loot.Rarity]int)
	for rows.Next() {
		var rarity string
		var n int
		if err := rows.Scan(&rarity, &n); err != nil {
			return nil, fmt.Errorf("rarity counts for user %s: %w", userID, err)
		}
		r, err := loot.ParseRarity(rarity)
		if err != nil {
			return nil, fmt.Errorf("rarity counts for user %s: %w", userID, err)
		}
		counts[r] = n
	}
	return counts, rows.Err()
}

// TopHolders ranks users by item count, descending, ties broken by user id.
// Users with no items are excluded.
func (l *Ledger) TopHolders(limit int) ([]Holder, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.Query(`
		SELECT u.user_id, u.username, COUNT(li.id) AS n
		FROM users u
		JOIN loot_items li ON li.user_id = u.user_id
		GROUP BY u.user_id
		ORDER BY n DESC, u.user_id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("top holders: %w", err)
	}
	defer rows.Close()

	var holders []Holder
	for rows.Next() {
		var h Holder
		if err := rows.Scan(&h.UserID, &h.DisplayName, &h.ItemCount); err != nil {
			return nil, fmt.Errorf("top holders: %w", err)
		}
		holders = append(holders, h)
	}
	return holders, rows.Err()
}

// BulkCollapseDelete removes a uniform random 50-80% of all items in
// existence, across every user, as a single transaction. The write lock
// excludes every other inventory operation for the duration, so the count
// used for sampling always matches the rows deleted and no reader can see a
// half-collapsed universe.
func (l *Ledger) BulkCollapseDelete(rng *rand.Rand) (removed, total int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for attempt := 0; attempt < txAttempts; attempt++ {
		removed, total, err = l.collapseOnce(rng)
		if err == nil {
			return removed, total, nil
		}
	}
	return 0, 0, fmt.Errorf("collapse delete: %w", err)
}

// collapseRemoveCount rounds half-up so that a fraction of at least 0.5
// always removes at least half the items, odd totals included. Truncating
// would remove 2 of 5 at fraction 0.55.
func collapseRemoveCount(total int, fraction float64) int {
	return int(math.Round(float64(total) * fraction))
}

func (l *Ledger) collapseOnce(rng *rand.Rand) (int, int, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT id FROM loot_items`)
	if err != nil {
		return 0, 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	total := len(ids)
	if total == 0 {
		return 0, 0, tx.Commit()
	}

	fraction := 0.5 + rng.Float64()*0.3
	removeCount := collapseRemoveCount(total, fraction)

	// Partial Fisher-Yates: the first removeCount slots are a uniform sample
	// without replacement.
	for i := 0; i < removeCount; i++ {
		j := i + rng.Intn(total-i)
		ids[i], ids[j] = ids[j], ids[i]
	}
	doomed := ids[:removeCount]

	// SQLite caps bound parameters per statement; delete in slices.
	const chunk = 500
	for start := 0; start < len(doomed); start += chunk {
		end := start + chunk
		if end > len(doomed) {
			end = len(doomed)
		}
		part := doomed[start:end]
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(part)), ",")
		args := make([]any, len(part))
		for i, id := range part {
			args[i] = id
		}
		if _, err := tx.Exec(`DELETE FROM loot_items WHERE id IN (`+placeholders+`)`, args...); err != nil {
			return 0, 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return removeCount, total, nil
}
