package loot

import (
	"math/rand"
	"time"

	"valloot.dev/internal/items"
)

// Roll computes loot for a table against a context snapshot. It is pure: no
// I/O, no shared state, safe to run on any goroutine. A nil table yields an
// empty result.
//
// Each pool contributes at most EffectiveRolls picks; failed picks are
// silently skipped, so the result can hold fewer items than the sum of
// effective rolls.
func Roll(t *Table, ctx Context) *Result {
	start := time.Now()
	res := &Result{Context: ctx, Items: []items.Stack{}}
	if t == nil {
		res.RollTime = time.Since(start)
		return res
	}
	res.TableName = t.Name

	for _, pool := range t.Pools {
		rolls := pool.EffectiveRolls()
		for i := 0; i < rolls; i++ {
			entry, ok := pool.PickEntry(ctx)
			if !ok {
				continue
			}
			res.Items = append(res.Items, materialize(entry))
		}
	}

	res.RollTime = time.Since(start)
	return res
}

// PickEntry draws one weighted entry from the pool, considering only entries
// whose conditions all hold. Returns ok=false when nothing applies or the
// applicable weights sum to zero or less.
//
// The draw is uniform in [0, totalWeight); the walk returns the first entry
// whose cumulative weight meets or exceeds the draw, so ties favor the
// earlier entry. A floating-point draw landing exactly on the final
// cumulative total falls back to the last applicable entry.
func (p Pool) PickEntry(ctx Context) (Entry, bool) {
	applicable := make([]Entry, 0, len(p.Entries))
	total := 0.0
	for _, e := range p.Entries {
		if e.Applies(ctx) {
			applicable = append(applicable, e)
			total += e.Weight
		}
	}
	if len(applicable) == 0 || total <= 0 {
		return Entry{}, false
	}

	draw := rand.Float64() * total
	cumulative := 0.0
	for _, e := range applicable {
		cumulative += e.Weight
		if draw <= cumulative {
			return e, true
		}
	}
	return applicable[len(applicable)-1], true
}

// RandomAmount draws a uniform amount in [MinAmount, MaxAmount] inclusive.
func (e Entry) RandomAmount() int {
	if e.MinAmount == e.MaxAmount {
		return e.MinAmount
	}
	return e.MinAmount + rand.Intn(e.MaxAmount-e.MinAmount+1)
}

func materialize(e Entry) items.Stack {
	return items.Stack{
		Kind:  e.Kind,
		Count: e.RandomAmount(),
		Name:  e.DisplayName,
		Lore:  e.Lore,
	}
}

// ApplyModifier invokes the modifier hook exactly once, after all pools are
// processed, with write access to the result's item list.
func ApplyModifier(res *Result, m Modifier) {
	if m != nil {
		m.Modify(res)
	}
}

// RespawnDeadline computes the next respawn time for the table, applying the
// configured variance percentage uniformly in [-variance%, +variance%].
func (t *Table) RespawnDeadline(now time.Time) time.Time {
	if t.RespawnVariance <= 0 {
		return now.Add(t.RespawnCooldown)
	}
	spread := t.RespawnVariance / 100.0
	factor := 1.0 - spread + rand.Float64()*2*spread
	return now.Add(time.Duration(float64(t.RespawnCooldown) * factor))
}
