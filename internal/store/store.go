// Package store is the durable persistence layer for first-open markers,
// per-actor loot snapshots, original-content backups, and respawn cooldowns.
// Every mutating call lands in an in-memory cache synchronously and is made
// durable by a single writer goroutine; callers never wait on disk, and I/O
// failures degrade to documented safe defaults instead of propagating.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultOpenedCacheSize = 100_000
	defaultLootCacheSize   = 50_000
)

type Options struct {
	// OpenedCacheSize bounds the global and per-actor first-open caches.
	OpenedCacheSize int
	// LootCacheSize bounds the per-actor loot snapshot cache. Lower than the
	// marker caches since snapshot payloads are larger.
	LootCacheSize int
	Logger        *log.Logger
}

type Store struct {
	db  *sql.DB
	log *log.Logger

	ch     chan req
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool

	dropped atomic.Uint64

	opened   *LRU[int64]  // entityKey -> opened_at (unix ms)
	openedBy *LRU[int64]  // entityKey|actorID -> opened_at
	loot     *LRU[string] // entityKey|actorID -> serialized snapshot
}

type reqKind int

const (
	reqMarkOpened reqKind = iota + 1
	reqMarkOpenedByActor
	reqSaveLoot
	reqHealLoot
	reqSaveOriginal
	reqRemoveOriginal
	reqSetCooldown
	reqClearScope
	reqClearAll
	reqCleanup
	reqFlush
)

type req struct {
	kind  reqKind
	key   string
	actor string
	table string
	data  string
	at    int64
	at2   int64
	ack   chan struct{}
}

// Open opens (creating if needed) the durable store at path and bulk-loads
// existing first-open markers into the caches. Loot snapshots and backups
// populate lazily.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	openedCap := opts.OpenedCacheSize
	if openedCap <= 0 {
		openedCap = defaultOpenedCacheSize
	}
	lootCap := opts.LootCacheSize
	if lootCap <= 0 {
		lootCap = defaultLootCacheSize
	}

	s := &Store{
		db:       db,
		log:      opts.Logger,
		ch:       make(chan req, 8192),
		opened:   NewLRU[int64](openedCap),
		openedBy: NewLRU[int64](openedCap),
		loot:     NewLRU[string](lootCap),
	}
	s.loadMarkers()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the fire-and-forget upsert workload; NORMAL is acceptable
	// because the caches stay authoritative until restart anyway.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS first_opens (
			entity_key TEXT PRIMARY KEY,
			actor_id TEXT NOT NULL,
			opened_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS first_opens_by_actor (
			entity_key TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			opened_at INTEGER NOT NULL,
			PRIMARY KEY (entity_key, actor_id)
		);`,
		`CREATE TABLE IF NOT EXISTS actor_loot (
			entity_key TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			loot_data TEXT NOT NULL,
			generated_at INTEGER NOT NULL,
			PRIMARY KEY (entity_key, actor_id)
		);`,
		`CREATE TABLE IF NOT EXISTS original_contents (
			entity_key TEXT PRIMARY KEY,
			data TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS respawn_cooldowns (
			entity_key TEXT PRIMARY KEY,
			table_name TEXT NOT NULL,
			next_respawn_at INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadMarkers() {
	rows, err := s.db.Query(`SELECT entity_key, opened_at FROM first_opens`)
	if err != nil {
		s.logf("load first-open markers: %v", err)
	} else {
		for rows.Next() {
			var key string
			var at int64
			if err := rows.Scan(&key, &at); err == nil {
				s.opened.Put(key, at)
			}
		}
		_ = rows.Close()
	}

	rows, err = s.db.Query(`SELECT entity_key, actor_id, opened_at FROM first_opens_by_actor`)
	if err != nil {
		s.logf("load per-actor first-open markers: %v", err)
		return
	}
	for rows.Next() {
		var key, actor string
		var at int64
		if err := rows.Scan(&key, &actor, &at); err == nil {
			s.openedBy.Put(actorKey(key, actor), at)
		}
	}
	_ = rows.Close()
}

// Close flushes pending durable writes and closes the database.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped reports how many durable writes were shed because the write queue
// was full. The caches remained authoritative for those entries.
func (s *Store) Dropped() uint64 { return s.dropped.Load() }

// Flush blocks until every previously enqueued durable write has executed.
// For shutdown and tests only; never call it from the world goroutine.
func (s *Store) Flush() {
	if s.closed.Load() {
		return
	}
	ack := make(chan struct{})
	s.ch <- req{kind: reqFlush, ack: ack}
	<-ack
}

// --- first-open markers (cache-synchronous reads, async durability) ---

// IsOpened reports whether any actor has ever opened the entity. Cache only;
// absence legitimately means "not opened".
func (s *Store) IsOpened(entityKey string) bool {
	return s.opened.Contains(entityKey)
}

func (s *Store) IsOpenedByActor(entityKey, actorID string) bool {
	return s.openedBy.Contains(actorKey(entityKey, actorID))
}

// MarkOpened records the global first open. Append-only per key: later calls
// for an already-marked entity are ignored.
func (s *Store) MarkOpened(entityKey, actorID string) {
	if s.opened.Contains(entityKey) {
		return
	}
	now := time.Now().UnixMilli()
	s.opened.Put(entityKey, now)
	s.enqueue(req{kind: reqMarkOpened, key: entityKey, actor: actorID, at: now})
}

// MarkOpenedByActor records an actor's first open. Append-only per
// (key, actor) pair.
func (s *Store) MarkOpenedByActor(entityKey, actorID string) {
	ck := actorKey(entityKey, actorID)
	if s.openedBy.Contains(ck) {
		return
	}
	now := time.Now().UnixMilli()
	s.openedBy.Put(ck, now)
	s.enqueue(req{kind: reqMarkOpenedByActor, key: entityKey, actor: actorID, at: now})
}

// --- per-actor loot snapshots ---

// SavePlayerLoot stores the serialized loot an actor saw, overwriting any
// previous snapshot for the pair. Cache first, durable async.
func (s *Store) SavePlayerLoot(entityKey, actorID, data string) {
	s.loot.Put(actorKey(entityKey, actorID), data)
	s.enqueue(req{kind: reqSaveLoot, key: entityKey, actor: actorID, data: data, at: time.Now().UnixMilli()})
}

// GetPlayerLoot returns the cached snapshot for the pair. On a cache miss it
// returns not-found immediately and schedules a background durable lookup
// that heals the cache for the next open. The one wrongly re-rolled open in
// that window is an accepted eventual-consistency outcome.
func (s *Store) GetPlayerLoot(entityKey, actorID string) (string, bool) {
	if data, ok := s.loot.Get(actorKey(entityKey, actorID)); ok {
		return data, true
	}
	s.enqueue(req{kind: reqHealLoot, key: entityKey, actor: actorID})
	return "", false
}

// --- original-content backups ---

func (s *Store) SaveOriginalContent(entityKey, data string) {
	s.enqueue(req{kind: reqSaveOriginal, key: entityKey, data: data})
}

// GetOriginalContent reads the backup synchronously. It is an
// administrative-restore path, rare enough that no cache fronts it.
func (s *Store) GetOriginalContent(entityKey string) (string, bool) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM original_contents WHERE entity_key = ?`, entityKey).Scan(&data)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		s.logf("fetch original content %s: %v", entityKey, err)
		return "", false
	}
	return data, true
}

func (s *Store) RemoveOriginalContent(entityKey string) {
	s.enqueue(req{kind: reqRemoveOriginal, key: entityKey})
}

// HasConvertedEntities reports whether any backup exists under the scope
// prefix. Gates opportunistic background conversion of a whole scope.
// Defaults to false on I/O error so conversion never runs on bad data.
func (s *Store) HasConvertedEntities(scopePrefix string) bool {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM original_contents WHERE entity_key LIKE ? LIMIT 1`, scopePrefix+"%").Scan(&one)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		s.logf("scope conversion check %s: %v", scopePrefix, err)
		return false
	}
	return true
}

// --- respawn cooldowns ---

// CanRespawn reports whether the entity's cooldown has lapsed. Absence of a
// record and I/O errors both default to "may respawn".
func (s *Store) CanRespawn(entityKey string) bool {
	var next int64
	err := s.db.QueryRow(`SELECT next_respawn_at FROM respawn_cooldowns WHERE entity_key = ?`, entityKey).Scan(&next)
	if err == sql.ErrNoRows {
		return true
	}
	if err != nil {
		s.logf("respawn check %s: %v", entityKey, err)
		return true
	}
	return time.Now().UnixMilli() >= next
}

func (s *Store) SetRespawnCooldown(entityKey, tableName string, until time.Time) {
	s.enqueue(req{kind: reqSetCooldown, key: entityKey, table: tableName, at: until.UnixMilli()})
}

// --- administrative resets & hygiene ---

// ClearScope drops first-open markers for every entity in a scope, cache and
// durable store both. Snapshots and backups are left alone.
func (s *Store) ClearScope(scopePrefix string) {
	n := s.opened.DeletePrefix(scopePrefix)
	n += s.openedBy.DeletePrefix(scopePrefix)
	s.logf("cleared %d cached first-open markers for scope %s", n, scopePrefix)
	s.enqueue(req{kind: reqClearScope, key: scopePrefix})
}

// ClearAll resets every first-open marker and respawn cooldown.
func (s *Store) ClearAll() {
	s.opened.Clear()
	s.openedBy.Clear()
	s.enqueue(req{kind: reqClearAll})
}

// Cleanup purges first-open markers older than maxAge and lapsed cooldowns.
func (s *Store) Cleanup(maxAge time.Duration) {
	now := time.Now().UnixMilli()
	s.enqueue(req{kind: reqCleanup, at: now - maxAge.Milliseconds(), at2: now})
}

// --- writer goroutine ---

func (s *Store) enqueue(r req) {
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Shed rather than stall an interactive caller; the cache keeps the
		// value until restart.
		s.dropped.Add(1)
	}
}

func (s *Store) loop() {
	exec := func(query string, args ...any) {
		if _, err := s.db.Exec(query, args...); err != nil {
			s.logf("durable write: %v", err)
		}
	}

	for r := range s.ch {
		switch r.kind {
		case reqMarkOpened:
			exec(`INSERT OR IGNORE INTO first_opens(entity_key, actor_id, opened_at) VALUES(?,?,?)`,
				r.key, r.actor, r.at)
		case reqMarkOpenedByActor:
			exec(`INSERT OR IGNORE INTO first_opens_by_actor(entity_key, actor_id, opened_at) VALUES(?,?,?)`,
				r.key, r.actor, r.at)
		case reqSaveLoot:
			exec(`INSERT OR REPLACE INTO actor_loot(entity_key, actor_id, loot_data, generated_at) VALUES(?,?,?,?)`,
				r.key, r.actor, r.data, r.at)
		case reqHealLoot:
			s.healLoot(r.key, r.actor)
		case reqSaveOriginal:
			exec(`INSERT OR REPLACE INTO original_contents(entity_key, data) VALUES(?,?)`, r.key, r.data)
		case reqRemoveOriginal:
			exec(`DELETE FROM original_contents WHERE entity_key = ?`, r.key)
		case reqSetCooldown:
			exec(`INSERT OR REPLACE INTO respawn_cooldowns(entity_key, table_name, next_respawn_at) VALUES(?,?,?)`,
				r.key, r.table, r.at)
		case reqClearScope:
			exec(`DELETE FROM first_opens WHERE entity_key LIKE ?`, r.key+"%")
			exec(`DELETE FROM first_opens_by_actor WHERE entity_key LIKE ?`, r.key+"%")
		case reqClearAll:
			exec(`DELETE FROM first_opens`)
			exec(`DELETE FROM first_opens_by_actor`)
			exec(`DELETE FROM respawn_cooldowns`)
		case reqCleanup:
			exec(`DELETE FROM first_opens WHERE opened_at < ?`, r.at)
			exec(`DELETE FROM respawn_cooldowns WHERE next_respawn_at < ?`, r.at2)
		case reqFlush:
			close(r.ack)
		}
	}
}

// healLoot populates the snapshot cache from disk after a miss, so the next
// open for the pair sees the stored loot instead of re-rolling.
func (s *Store) healLoot(entityKey, actorID string) {
	ck := actorKey(entityKey, actorID)
	if _, ok := s.loot.Get(ck); ok {
		return
	}
	var data string
	err := s.db.QueryRow(`SELECT loot_data FROM actor_loot WHERE entity_key = ? AND actor_id = ?`,
		entityKey, actorID).Scan(&data)
	if err == sql.ErrNoRows {
		return
	}
	if err != nil {
		s.logf("heal loot cache %s/%s: %v", entityKey, actorID, err)
		return
	}
	s.loot.Put(ck, data)
}

func actorKey(entityKey, actorID string) string {
	return entityKey + "|" + actorID
}

func (s *Store) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
