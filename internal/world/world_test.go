package world_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"valloot.dev/internal/coordinator"
	"valloot.dev/internal/items"
	"valloot.dev/internal/loot"
	"valloot.dev/internal/sched"
	"valloot.dev/internal/store"
	"valloot.dev/internal/world"
)

type catalogStub map[string]*loot.Table

func (c catalogStub) Table(name string) *loot.Table { return c[name] }

type testRig struct {
	ctx   context.Context
	world *world.World
	coord *coordinator.Coordinator
	store *store.Store
}

func newTestRig(t *testing.T, cat catalogStub) *testRig {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "valloot.db"), store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	loop := sched.NewLoop(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = loop.Run(ctx) }()

	coord := coordinator.New(st, cat, loop, coordinator.Config{PerActorLoot: true})
	w := world.New(world.Config{
		ID:    "world_main",
		Name:  "main",
		Biome: "plains",
	}, loop, coord, st)
	return &testRig{ctx: ctx, world: w, coord: coord, store: st}
}

func coinCatalog() catalogStub {
	entry := loot.NewEntry("coin", 3, 3, 1, "", nil, nil, false)
	pool := loot.NewPool("main", []loot.Entry{entry}, 1, 0)
	return catalogStub{"chest": loot.NewTable("chest", []loot.Pool{pool}, true, 0, 0)}
}

func (r *testRig) waitForLoot(t *testing.T, pos loot.Vec3i) []items.Stack {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		info, err := r.world.RequestContainer(r.ctx, pos)
		if err != nil {
			t.Fatalf("container query: %v", err)
		}
		if len(info.Slots) > 0 {
			return info.Slots
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("loot never landed in the container")
	return nil
}

func TestOpenGeneratesLootIntoContainer(t *testing.T) {
	r := newTestRig(t, coinCatalog())
	pos := loot.Vec3i{X: 1, Y: 64, Z: 2}

	if err := r.world.RequestSeed(r.ctx, "chest", pos, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := r.world.RequestConvert(r.ctx, pos); err != nil {
		t.Fatalf("convert: %v", err)
	}

	outcome, err := r.world.RequestOpen(r.ctx, world.OpenRequest{ActorID: "actor1", Pos: pos})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if outcome != coordinator.OutcomeScheduled {
		t.Fatalf("outcome %v, want scheduled", outcome)
	}

	slots := r.waitForLoot(t, pos)
	if len(slots) != 1 || slots[0].Kind != "coin" || slots[0].Count != 3 {
		t.Fatalf("unexpected loot %v", slots)
	}
	if r.coord.Stats().Applied != 1 {
		t.Fatal("apply not counted")
	}
}

func TestOpenRejectsUnconvertedAndPlayerPlaced(t *testing.T) {
	r := newTestRig(t, coinCatalog())

	seeded := loot.Vec3i{X: 1, Y: 64, Z: 1}
	if err := r.world.RequestSeed(r.ctx, "chest", seeded, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := r.world.RequestOpen(r.ctx, world.OpenRequest{ActorID: "a", Pos: seeded}); !errors.Is(err, world.ErrNotConverted) {
		t.Fatalf("err %v, want not-converted", err)
	}

	placed := loot.Vec3i{X: 2, Y: 64, Z: 2}
	if err := r.world.RequestPlace(r.ctx, "chest", placed, "actor1"); err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := r.world.RequestOpen(r.ctx, world.OpenRequest{ActorID: "a", Pos: placed}); !errors.Is(err, world.ErrPlayerPlaced) {
		t.Fatalf("err %v, want player-placed", err)
	}
	if err := r.world.RequestConvert(r.ctx, placed); !errors.Is(err, world.ErrPlayerPlaced) {
		t.Fatalf("convert err %v, want player-placed", err)
	}
}

func TestConvertBacksUpAndRestores(t *testing.T) {
	r := newTestRig(t, coinCatalog())
	pos := loot.Vec3i{X: 5, Y: 70, Z: 5}
	natural := []items.Stack{{Kind: "apple", Count: 2}}

	if err := r.world.RequestSeed(r.ctx, "chest", pos, natural); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := r.world.RequestConvert(r.ctx, pos); err != nil {
		t.Fatalf("convert: %v", err)
	}

	info, err := r.world.RequestContainer(r.ctx, pos)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !info.Converted || len(info.Slots) != 0 {
		t.Fatalf("conversion did not clear slots: %+v", info)
	}

	r.store.Flush()
	if !r.store.HasConvertedEntities(r.world.ScopePrefix()) {
		t.Fatal("backup not recorded")
	}
	if r.coord.Stats().BackgroundConversions != 1 {
		t.Fatal("conversion not counted")
	}

	if err := r.world.RequestRestore(r.ctx, pos); err != nil {
		t.Fatalf("restore: %v", err)
	}
	info, err = r.world.RequestContainer(r.ctx, pos)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if info.Converted {
		t.Fatal("restore left container converted")
	}
	if len(info.Slots) != 1 || info.Slots[0].Kind != "apple" || info.Slots[0].Count != 2 {
		t.Fatalf("original contents not restored: %v", info.Slots)
	}

	r.store.Flush()
	if r.store.HasConvertedEntities(r.world.ScopePrefix()) {
		t.Fatal("backup survived restore")
	}
}

func TestConvertAllSkipsIneligible(t *testing.T) {
	r := newTestRig(t, coinCatalog())

	for i := 0; i < 3; i++ {
		if err := r.world.RequestSeed(r.ctx, "chest", loot.Vec3i{X: i, Y: 64, Z: 0}, nil); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	if err := r.world.RequestPlace(r.ctx, "chest", loot.Vec3i{X: 9, Y: 64, Z: 9}, "actor1"); err != nil {
		t.Fatalf("place: %v", err)
	}

	n, err := r.world.RequestConvertAll(r.ctx)
	if err != nil {
		t.Fatalf("convert all: %v", err)
	}
	if n != 3 {
		t.Fatalf("converted %d containers, want the 3 seeded ones", n)
	}

	// Idempotent: a second sweep finds nothing eligible.
	n, err = r.world.RequestConvertAll(r.ctx)
	if err != nil || n != 0 {
		t.Fatalf("second sweep n=%d err=%v", n, err)
	}
}

func TestNightConditionSeesWorldClock(t *testing.T) {
	day := loot.NewEntry("bread", 1, 1, 1, "", nil, []loot.Condition{loot.DayOnly()}, false)
	night := loot.NewEntry("bone", 1, 1, 1, "", nil, []loot.Condition{loot.NightOnly()}, false)
	pool := loot.NewPool("main", []loot.Entry{day, night}, 1, 0)
	cat := catalogStub{"chest": loot.NewTable("chest", []loot.Pool{pool}, true, 0, 0)}
	r := newTestRig(t, cat)

	pos := loot.Vec3i{X: 0, Y: 64, Z: 0}
	if err := r.world.RequestSeed(r.ctx, "chest", pos, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := r.world.RequestConvert(r.ctx, pos); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if err := r.world.RequestSetTime(r.ctx, 15000); err != nil {
		t.Fatalf("set time: %v", err)
	}

	if _, err := r.world.RequestOpen(r.ctx, world.OpenRequest{ActorID: "actor1", Pos: pos}); err != nil {
		t.Fatalf("open: %v", err)
	}
	slots := r.waitForLoot(t, pos)
	if len(slots) != 1 || slots[0].Kind != "bone" {
		t.Fatalf("night open produced %v, want the night-only entry", slots)
	}
}
