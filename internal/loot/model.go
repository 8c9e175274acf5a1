package loot

import (
	"fmt"
	"time"
)

// Vec3i is an integer block position.
type Vec3i struct {
	X, Y, Z int
}

func (v Vec3i) String() string { return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z) }

// Entry is a candidate item in a pool: an item kind, an amount range, a
// selection weight, and the conditions under which it applies.
type Entry struct {
	Kind        string
	MinAmount   int
	MaxAmount   int
	Weight      float64
	DisplayName string
	Lore        []string
	Conditions  []Condition
	Overwrite   bool
}

// NewEntry clamps MinAmount to at least 1 and MaxAmount to at least MinAmount.
func NewEntry(kind string, minAmount, maxAmount int, weight float64, displayName string, lore []string, conditions []Condition, overwrite bool) Entry {
	if minAmount < 1 {
		minAmount = 1
	}
	if maxAmount < minAmount {
		maxAmount = minAmount
	}
	if weight < 0 {
		weight = 0
	}
	return Entry{
		Kind:        kind,
		MinAmount:   minAmount,
		MaxAmount:   maxAmount,
		Weight:      weight,
		DisplayName: displayName,
		Lore:        lore,
		Conditions:  conditions,
		Overwrite:   overwrite,
	}
}

// Applies reports whether every condition on the entry holds for ctx.
// An entry with no conditions always applies.
func (e Entry) Applies(ctx Context) bool {
	for _, cond := range e.Conditions {
		if !cond(ctx) {
			return false
		}
	}
	return true
}

// Pool is a weighted group of entries rolled a configured number of times.
type Pool struct {
	Name      string
	Entries   []Entry
	Rolls     int
	RollBonus float64
}

// NewPool clamps Rolls to at least 1 and RollBonus to at least 0.
func NewPool(name string, entries []Entry, rolls int, rollBonus float64) Pool {
	if rolls < 1 {
		rolls = 1
	}
	if rollBonus < 0 {
		rollBonus = 0
	}
	return Pool{Name: name, Entries: entries, Rolls: rolls, RollBonus: rollBonus}
}

// EffectiveRolls is floor(Rolls + RollBonus). Truncation, not rounding.
func (p Pool) EffectiveRolls() int {
	return int(float64(p.Rolls) + p.RollBonus)
}

// Table is a named root definition grouping pools, with first-open and
// respawn policy.
type Table struct {
	Name            string
	Pools           []Pool
	FirstOpenOnly   bool
	RespawnCooldown time.Duration
	RespawnVariance float64 // percentage, 0-100
}

func NewTable(name string, pools []Pool, firstOpenOnly bool, respawnCooldown time.Duration, respawnVariance float64) *Table {
	if respawnVariance < 0 {
		respawnVariance = 0
	}
	if respawnVariance > 100 {
		respawnVariance = 100
	}
	return &Table{
		Name:            name,
		Pools:           pools,
		FirstOpenOnly:   firstOpenOnly,
		RespawnCooldown: respawnCooldown,
		RespawnVariance: respawnVariance,
	}
}

// EntityKey derives the persistence and coalescing key for a block position.
// The full world identity is used: two worlds never collide on a shared
// prefix, and identical coordinates in the same world always agree.
func EntityKey(worldID string, pos Vec3i) string {
	return fmt.Sprintf("%s:%d:%d:%d", worldID, pos.X, pos.Y, pos.Z)
}

// ScopePrefix is the key prefix shared by every entity in a scope (world).
func ScopePrefix(scopeID string) string {
	return scopeID + ":"
}
