// Package world is a demo world runtime hosting lootable containers. All
// container state is owned by the single world-loop goroutine; the exported
// Request* methods are the only way in, and each one schedules its handle*
// counterpart onto the loop.
package world

import (
	"log"

	"valloot.dev/internal/coordinator"
	"valloot.dev/internal/items"
	"valloot.dev/internal/loot"
	"valloot.dev/internal/sched"
	"valloot.dev/internal/store"
)

// Container is one block-position inventory in the world. A container only
// produces loot after it has been converted: its original contents backed
// up and the slots handed over to the roll engine. Player-placed containers
// are never converted.
type Container struct {
	Kind         string
	Pos          loot.Vec3i
	Slots        []items.Stack
	Converted    bool
	PlayerPlaced bool
}

type Config struct {
	ID   string
	Name string
	// Biome reported for every context snapshot. A real integration would
	// derive this per position.
	Biome string
	// Classify maps a container kind to a loot table name. Defaults to the
	// kind itself.
	Classify func(kind string) string
	Logger   *log.Logger
}

type World struct {
	id       string
	name     string
	biome    string
	classify func(string) string
	log      *log.Logger

	sched sched.Scheduler
	coord *coordinator.Coordinator
	store *store.Store

	// World-loop goroutine only below this line.
	containers map[string]*Container
	worldTime  uint64
}

func New(cfg Config, sc sched.Scheduler, coord *coordinator.Coordinator, st *store.Store) *World {
	classify := cfg.Classify
	if classify == nil {
		classify = func(kind string) string { return kind }
	}
	return &World{
		id:         cfg.ID,
		name:       cfg.Name,
		biome:      cfg.Biome,
		classify:   classify,
		log:        cfg.Logger,
		sched:      sc,
		coord:      coord,
		store:      st,
		containers: map[string]*Container{},
	}
}

func (w *World) ID() string { return w.id }

// ScopePrefix is the store key prefix covering every container in this
// world.
func (w *World) ScopePrefix() string { return loot.ScopePrefix(w.id) }

func (w *World) key(pos loot.Vec3i) string { return loot.EntityKey(w.id, pos) }

// snapshotContext captures who/where/when for one open. Runs on the world
// loop so every field is a consistent read; the result is value-only and
// safe to hand to a worker.
func (w *World) snapshotContext(c *Container, actorID, actorName string, meta map[string]any) loot.Context {
	t := w.worldTime % 24000
	return loot.Context{
		ActorID:    actorID,
		ActorName:  actorName,
		Pos:        c.Pos,
		WorldID:    w.id,
		WorldName:  w.name,
		EntityKind: c.Kind,
		Biome:      w.biome,
		WorldTime:  w.worldTime,
		Night:      t >= 13000 && t < 23000,
		Metadata:   meta,
	}
}

// containerTarget adapts a container position to the coordinator's apply
// side. Both methods run on the world-loop goroutine, so looking the
// container up again is safe and picks up any changes since the roll began.
type containerTarget struct {
	w   *World
	key string
}

func (t containerTarget) Valid() bool {
	c := t.w.containers[t.key]
	return c != nil && c.Converted && !c.PlayerPlaced
}

func (t containerTarget) Materialize(stacks []items.Stack) error {
	c := t.w.containers[t.key]
	c.Slots = items.Clone(stacks)
	return nil
}

func (w *World) logf(format string, args ...any) {
	if w.log != nil {
		w.log.Printf(format, args...)
	}
}
