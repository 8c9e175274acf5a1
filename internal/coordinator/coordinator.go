// Package coordinator bridges the world-owning goroutine and the roll
// workers. It owns the at-most-one-in-flight guarantee: for any
// (entity, actor) pair at most one roll is ever outstanding, later requests
// in the window are dropped, and results are applied back on the
// world-owning goroutine in a fixed order.
package coordinator

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"valloot.dev/internal/items"
	"valloot.dev/internal/loot"
	"valloot.dev/internal/sched"
	"valloot.dev/internal/store"
)

// Target is the world-side object that receives rolled items. Both methods
// are only ever called on the world-owning goroutine.
type Target interface {
	// Valid reports whether the target still exists and can accept items.
	// Rechecked at apply time: the world may have changed during the roll.
	Valid() bool
	Materialize([]items.Stack) error
}

// TableSource resolves table names to definitions. Nil means unknown.
type TableSource interface {
	Table(name string) *loot.Table
}

// RollFunc computes loot on a worker goroutine. It must be pure.
type RollFunc func(*loot.Table, loot.Context) *loot.Result

// Event kinds emitted on the world-owning goroutine after state changes.
const (
	EventApplied  = "applied"
	EventRestored = "restored"
)

// Event describes one completed open for observers.
type Event struct {
	Kind      string        `json:"kind"`
	EntityKey string        `json:"entity_key"`
	ActorID   string        `json:"actor_id"`
	Table     string        `json:"table"`
	ItemCount int           `json:"item_count"`
	RollTime  time.Duration `json:"roll_time"`
}

type Config struct {
	// PerActorLoot selects per-actor first-open gating and snapshots instead
	// of a single global first open per entity.
	PerActorLoot bool
	// OpenInterval throttles repeat opens per actor. Zero disables.
	OpenInterval time.Duration
	Logger       *log.Logger
	// Roll defaults to loot.Roll.
	Roll RollFunc
	// Modifier runs once per roll on the worker, after all pools.
	Modifier loot.Modifier
	// Events, when set, receives an Event per applied or restored open.
	Events func(Event)
}

// Outcome is the synchronous answer to an Open: what happened to the request
// before any worker was involved.
type Outcome int

const (
	// OutcomeScheduled means a roll was handed to a worker.
	OutcomeScheduled Outcome = iota
	// OutcomeRestored means a stored snapshot was applied synchronously.
	OutcomeRestored
	// OutcomeCoalesced means a roll for the pair was already in flight and
	// this request was dropped.
	OutcomeCoalesced
	// OutcomeGated means the first-open-only policy suppressed generation.
	OutcomeGated
	// OutcomeThrottled means the actor's open rate limit rejected it.
	OutcomeThrottled
	// OutcomeNoTable means the table name did not resolve.
	OutcomeNoTable
	// OutcomeDropped means the target was invalid on the restore path.
	OutcomeDropped
)

// OpenRequest is one actor interacting with one lootable entity. The
// Context must be a snapshot taken on the world-owning goroutine.
type OpenRequest struct {
	Context loot.Context
	Table   string
	Target  Target
	// Bypass skips the first-open gate (admin preview, forced rerolls).
	Bypass bool
}

// Stats is a snapshot of the coordinator's counters.
type Stats struct {
	RollsStarted          uint64
	Applied               uint64
	Coalesced             uint64
	GateDrops             uint64
	Throttled             uint64
	SnapshotRestores      uint64
	InvalidTargets        uint64
	RollFailures          uint64
	BackgroundConversions uint64
}

type Coordinator struct {
	store  *store.Store
	tables TableSource
	sched  sched.Scheduler
	cfg    Config

	limiter *RateLimiter

	// inflight is touched only on the world-owning goroutine.
	inflight map[string]struct{}

	rollsStarted     atomic.Uint64
	applied          atomic.Uint64
	coalesced        atomic.Uint64
	gateDrops        atomic.Uint64
	throttled        atomic.Uint64
	snapshotRestores atomic.Uint64
	invalidTargets   atomic.Uint64
	rollFailures     atomic.Uint64
	conversions      atomic.Uint64
}

func New(st *store.Store, tables TableSource, sc sched.Scheduler, cfg Config) *Coordinator {
	if cfg.Roll == nil {
		cfg.Roll = loot.Roll
	}
	if cfg.Modifier == nil {
		cfg.Modifier = loot.NoopModifier{}
	}
	c := &Coordinator{
		store:    st,
		tables:   tables,
		sched:    sc,
		cfg:      cfg,
		inflight: map[string]struct{}{},
	}
	if cfg.OpenInterval > 0 {
		c.limiter = NewRateLimiter(cfg.OpenInterval)
	}
	return c
}

// Open handles one interaction. Must be called on the world-owning
// goroutine. It never blocks: the roll itself runs on a worker and the
// result is applied by a scheduled world callback.
func (c *Coordinator) Open(req OpenRequest) Outcome {
	table := c.tables.Table(req.Table)
	if table == nil {
		c.logf("open %s: unknown table %q", req.Context.EntityKey(), req.Table)
		return OutcomeNoTable
	}

	key := req.Context.EntityKey()
	actor := req.Context.ActorID

	if c.limiter != nil && !req.Bypass && !c.limiter.Allow(actor) {
		c.throttled.Add(1)
		return OutcomeThrottled
	}

	// A lapsed respawn cooldown reopens an already-looted entity: skip the
	// stored snapshot so a fresh roll overwrites it.
	respawnDue := table.RespawnCooldown > 0 && c.alreadyOpened(key, actor) && c.store.CanRespawn(key)

	// A stored snapshot means this pair already rolled once; hand the same
	// items back instead of generating again. A snapshot that fails to
	// decode is treated as absent and the open falls through to generation.
	if data, ok := c.store.GetPlayerLoot(key, actor); ok && !respawnDue {
		stacks, err := items.Decode(data)
		if err == nil {
			if !req.Target.Valid() {
				c.invalidTargets.Add(1)
				return OutcomeDropped
			}
			if err := req.Target.Materialize(stacks); err != nil {
				c.logf("restore snapshot %s/%s: %v", key, actor, err)
				return OutcomeDropped
			}
			c.snapshotRestores.Add(1)
			c.emit(Event{Kind: EventRestored, EntityKey: key, ActorID: actor,
				Table: table.Name, ItemCount: len(stacks)})
			return OutcomeRestored
		}
		c.logf("corrupt snapshot %s/%s, rerolling: %v", key, actor, err)
	}

	if table.FirstOpenOnly && !req.Bypass && !respawnDue && c.alreadyOpened(key, actor) {
		c.gateDrops.Add(1)
		return OutcomeGated
	}

	fk := flightKey(key, actor)
	if _, busy := c.inflight[fk]; busy {
		c.coalesced.Add(1)
		return OutcomeCoalesced
	}
	c.inflight[fk] = struct{}{}
	c.rollsStarted.Add(1)

	p := sched.NewPromise[*loot.Result]()
	ctx := req.Context
	c.sched.RunWorker(func() {
		defer func() {
			if r := recover(); r != nil {
				p.Fail(fmt.Errorf("roll panic: %v", r))
			}
		}()
		res := c.cfg.Roll(table, ctx)
		loot.ApplyModifier(res, c.cfg.Modifier)
		p.Complete(res)
	})
	p.OnDone(func(res *loot.Result, err error) {
		c.sched.RunWorld(func() {
			c.apply(table, req.Target, key, actor, res, err)
		})
	})
	return OutcomeScheduled
}

// apply lands a finished roll on the world-owning goroutine. Order matters:
// items reach the target first, then the snapshot is persisted, then the
// first open is marked. The in-flight slot is released last so a request
// arriving mid-apply still coalesces.
func (c *Coordinator) apply(table *loot.Table, target Target, key, actor string, res *loot.Result, err error) {
	defer delete(c.inflight, flightKey(key, actor))

	if err != nil {
		c.rollFailures.Add(1)
		c.logf("roll %s/%s failed: %v", key, actor, err)
		return
	}
	if !target.Valid() {
		c.invalidTargets.Add(1)
		return
	}
	if err := target.Materialize(res.Items); err != nil {
		c.rollFailures.Add(1)
		c.logf("materialize %s/%s: %v", key, actor, err)
		return
	}

	if encoded, err := items.Encode(res.Items); err != nil {
		c.logf("encode snapshot %s/%s: %v", key, actor, err)
	} else {
		c.store.SavePlayerLoot(key, actor, encoded)
	}
	c.store.MarkOpened(key, actor)
	c.store.MarkOpenedByActor(key, actor)
	if table.RespawnCooldown > 0 {
		c.store.SetRespawnCooldown(key, table.Name, table.RespawnDeadline(time.Now()))
	}

	c.applied.Add(1)
	c.emit(Event{Kind: EventApplied, EntityKey: key, ActorID: actor,
		Table: table.Name, ItemCount: len(res.Items), RollTime: res.RollTime})
}

func (c *Coordinator) alreadyOpened(key, actor string) bool {
	if c.cfg.PerActorLoot {
		return c.store.IsOpenedByActor(key, actor)
	}
	return c.store.IsOpened(key)
}

// CanRespawn reports whether an entity's respawn cooldown has lapsed.
func (c *Coordinator) CanRespawn(entityKey string) bool {
	return c.store.CanRespawn(entityKey)
}

// RecordConversion counts one background conversion of a plain entity into
// a lootable one.
func (c *Coordinator) RecordConversion() { c.conversions.Add(1) }

func (c *Coordinator) Stats() Stats {
	return Stats{
		RollsStarted:          c.rollsStarted.Load(),
		Applied:               c.applied.Load(),
		Coalesced:             c.coalesced.Load(),
		GateDrops:             c.gateDrops.Load(),
		Throttled:             c.throttled.Load(),
		SnapshotRestores:      c.snapshotRestores.Load(),
		InvalidTargets:        c.invalidTargets.Load(),
		RollFailures:          c.rollFailures.Load(),
		BackgroundConversions: c.conversions.Load(),
	}
}

func (c *Coordinator) emit(ev Event) {
	if c.cfg.Events != nil {
		c.cfg.Events(ev)
	}
}

func (c *Coordinator) logf(format string, args ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Printf(format, args...)
	}
}

func flightKey(entityKey, actorID string) string {
	return entityKey + "|" + actorID
}
