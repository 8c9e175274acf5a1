package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "valloot.db")
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestFirstOpenMarkers(t *testing.T) {
	s, _ := openTestStore(t)

	key := "world_main:1:64:2"
	if s.IsOpened(key) {
		t.Fatal("fresh key reports opened")
	}
	s.MarkOpened(key, "actor1")
	if !s.IsOpened(key) {
		t.Fatal("marker not visible synchronously")
	}

	if s.IsOpenedByActor(key, "actor1") {
		t.Fatal("global marker must not imply per-actor marker")
	}
	s.MarkOpenedByActor(key, "actor1")
	if !s.IsOpenedByActor(key, "actor1") {
		t.Fatal("per-actor marker not visible")
	}
	if s.IsOpenedByActor(key, "actor2") {
		t.Fatal("marker leaked across actors")
	}
}

func TestMarkersSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "valloot.db")
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.MarkOpened("w:0:0:0", "a")
	s.MarkOpenedByActor("w:0:0:0", "a")
	s.Flush()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if !s2.IsOpened("w:0:0:0") {
		t.Fatal("global marker lost across restart")
	}
	if !s2.IsOpenedByActor("w:0:0:0", "a") {
		t.Fatal("per-actor marker lost across restart")
	}
}

func TestPlayerLootStaleThenHeal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "valloot.db")
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.SavePlayerLoot("w:1:1:1", "a", "payload")
	s.Flush()
	_ = s.Close()

	// Fresh store: snapshot is on disk but not in cache.
	s2, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if _, ok := s2.GetPlayerLoot("w:1:1:1", "a"); ok {
		t.Fatal("cold cache should miss first")
	}
	s2.Flush() // let the scheduled heal read run
	data, ok := s2.GetPlayerLoot("w:1:1:1", "a")
	if !ok {
		t.Fatal("cache did not heal from durable store")
	}
	if data != "payload" {
		t.Fatalf("healed %q, want %q", data, "payload")
	}
}

func TestPlayerLootOverwrite(t *testing.T) {
	s, _ := openTestStore(t)
	s.SavePlayerLoot("w:2:2:2", "a", "first")
	s.SavePlayerLoot("w:2:2:2", "a", "second")
	data, ok := s.GetPlayerLoot("w:2:2:2", "a")
	if !ok || data != "second" {
		t.Fatalf("got %q/%v, want latest snapshot", data, ok)
	}
}

func TestOriginalContentRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)

	key := "w:3:3:3"
	if _, ok := s.GetOriginalContent(key); ok {
		t.Fatal("missing backup reported present")
	}
	s.SaveOriginalContent(key, "backup-data")
	s.Flush()

	data, ok := s.GetOriginalContent(key)
	if !ok || data != "backup-data" {
		t.Fatalf("got %q/%v", data, ok)
	}

	s.RemoveOriginalContent(key)
	s.Flush()
	if _, ok := s.GetOriginalContent(key); ok {
		t.Fatal("backup survived removal")
	}
}

func TestHasConvertedEntities(t *testing.T) {
	s, _ := openTestStore(t)

	if s.HasConvertedEntities("world_main:") {
		t.Fatal("empty scope reported converted")
	}
	s.SaveOriginalContent("world_main:9:9:9", "data")
	s.Flush()
	if !s.HasConvertedEntities("world_main:") {
		t.Fatal("converted scope not detected")
	}
	if s.HasConvertedEntities("world_nether:") {
		t.Fatal("prefix check leaked across scopes")
	}
}

func TestRespawnCooldown(t *testing.T) {
	s, _ := openTestStore(t)

	key := "w:4:4:4"
	if !s.CanRespawn(key) {
		t.Fatal("absent record must default to may-respawn")
	}

	s.SetRespawnCooldown(key, "rare", time.Now().Add(time.Hour))
	s.Flush()
	if s.CanRespawn(key) {
		t.Fatal("future cooldown must block respawn")
	}

	s.SetRespawnCooldown(key, "rare", time.Now().Add(-time.Minute))
	s.Flush()
	if !s.CanRespawn(key) {
		t.Fatal("lapsed cooldown must allow respawn")
	}
}

func TestClearScope(t *testing.T) {
	s, _ := openTestStore(t)

	s.MarkOpened("world_a:1:1:1", "x")
	s.MarkOpenedByActor("world_a:1:1:1", "x")
	s.MarkOpened("world_b:1:1:1", "x")
	s.Flush()

	s.ClearScope("world_a:")
	s.Flush()

	if s.IsOpened("world_a:1:1:1") || s.IsOpenedByActor("world_a:1:1:1", "x") {
		t.Fatal("scope markers not cleared")
	}
	if !s.IsOpened("world_b:1:1:1") {
		t.Fatal("other scope affected")
	}
}

func TestClearAll(t *testing.T) {
	s, _ := openTestStore(t)

	s.MarkOpened("w:1:1:1", "x")
	s.MarkOpenedByActor("w:1:1:1", "x")
	s.SetRespawnCooldown("w:1:1:1", "common", time.Now().Add(time.Hour))
	s.Flush()

	s.ClearAll()
	s.Flush()

	if s.IsOpened("w:1:1:1") || s.IsOpenedByActor("w:1:1:1", "x") {
		t.Fatal("markers survived ClearAll")
	}
	if !s.CanRespawn("w:1:1:1") {
		t.Fatal("cooldowns survived ClearAll")
	}
}

func TestMarkOpenedAppendOnly(t *testing.T) {
	s, _ := openTestStore(t)

	s.MarkOpened("w:5:5:5", "first")
	s.Flush()
	var firstAt int64
	if err := s.db.QueryRow(`SELECT opened_at FROM first_opens WHERE entity_key = ?`, "w:5:5:5").Scan(&firstAt); err != nil {
		t.Fatalf("read marker: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	s.MarkOpened("w:5:5:5", "second")
	s.Flush()

	var at int64
	var actor string
	if err := s.db.QueryRow(`SELECT opened_at, actor_id FROM first_opens WHERE entity_key = ?`, "w:5:5:5").Scan(&at, &actor); err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if at != firstAt || actor != "first" {
		t.Fatal("first-open record was mutated by a later open")
	}
}
