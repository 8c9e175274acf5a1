package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"valloot.dev/internal/coordinator"
	"valloot.dev/internal/sched"
	"valloot.dev/internal/store"
	"valloot.dev/internal/tables"
	"valloot.dev/internal/transport/obs"
	"valloot.dev/internal/world"
)

// envConfig carries operator defaults; flags override per invocation.
type envConfig struct {
	Addr         string        `env:"VALLOOT_ADDR" envDefault:":8080"`
	DataDir      string        `env:"VALLOOT_DATA_DIR" envDefault:"./data"`
	TablesDir    string        `env:"VALLOOT_TABLES_DIR" envDefault:"./configs/tables"`
	WorldID      string        `env:"VALLOOT_WORLD_ID" envDefault:"world_main"`
	WorldName    string        `env:"VALLOOT_WORLD_NAME" envDefault:"main"`
	Biome        string        `env:"VALLOOT_BIOME" envDefault:"plains"`
	PerActorLoot bool          `env:"VALLOOT_PER_ACTOR_LOOT" envDefault:"false"`
	OpenInterval time.Duration `env:"VALLOOT_OPEN_INTERVAL" envDefault:"0s"`
	Modifier     string        `env:"VALLOOT_MODIFIER"`
	OpenedCache  int           `env:"VALLOOT_OPENED_CACHE" envDefault:"100000"`
	LootCache    int           `env:"VALLOOT_LOOT_CACHE" envDefault:"50000"`
	CleanupAge   time.Duration `env:"VALLOOT_CLEANUP_AGE" envDefault:"720h"`
}

func main() {
	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "parse env:", err)
		os.Exit(2)
	}

	var (
		addr         = flag.String("addr", cfg.Addr, "http listen address")
		dataDir      = flag.String("data", cfg.DataDir, "runtime data directory")
		tablesDir    = flag.String("tables", cfg.TablesDir, "loot table definitions directory")
		worldID      = flag.String("world", cfg.WorldID, "world id")
		worldName    = flag.String("world_name", cfg.WorldName, "world display name")
		biome        = flag.String("biome", cfg.Biome, "biome reported in roll contexts")
		perActorLoot = flag.Bool("per_actor_loot", cfg.PerActorLoot, "give each actor an own loot roll per entity")
		openInterval = flag.Duration("open_interval", cfg.OpenInterval, "minimum interval between opens per actor (0 disables)")
		modifierName = flag.String("modifier", cfg.Modifier, "result modifier to apply after each roll")
		openedCache  = flag.Int("opened_cache", cfg.OpenedCache, "first-open marker cache capacity")
		lootCache    = flag.Int("loot_cache", cfg.LootCache, "loot snapshot cache capacity")
		cleanupAge   = flag.Duration("cleanup_age", cfg.CleanupAge, "first-open markers older than this are purged")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[valloot] ", log.LstdFlags|log.Lmicroseconds)

	cat, err := tables.Load(*tablesDir, logger)
	if err != nil {
		logger.Fatalf("load tables: %v", err)
	}
	if cat.Len() == 0 {
		logger.Printf("warning: no loot tables in %s", *tablesDir)
	}

	st, err := store.Open(filepath.Join(*dataDir, "valloot.db"), store.Options{
		OpenedCacheSize: *openedCache,
		LootCacheSize:   *lootCache,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	loop := sched.NewLoop(logger)
	obsSrv := obs.NewServer(logger)

	coord := coordinator.New(st, cat, loop, coordinator.Config{
		PerActorLoot: *perActorLoot,
		OpenInterval: *openInterval,
		Logger:       logger,
		Modifier:     coordinator.ResolveModifier(*modifierName),
		Events:       func(ev coordinator.Event) { obsSrv.Broadcast(ev) },
	})

	w := world.New(world.Config{
		ID:    *worldID,
		Name:  *worldName,
		Biome: *biome,
		Classify: func(kind string) string {
			if cat.Table(kind) != nil {
				return kind
			}
			return "default"
		},
		Logger: logger,
	}, loop, coord, st)

	go func() {
		if err := loop.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world loop stopped: %v", err)
		}
	}()

	// Periodic hygiene: stale markers and lapsed cooldowns.
	go func() {
		t := time.NewTicker(6 * time.Hour)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				st.Cleanup(*cleanupAge)
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s := coord.Stats()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP valloot_rolls_total Loot rolls handed to workers.\n")
		fmt.Fprintf(rw, "# TYPE valloot_rolls_total counter\n")
		fmt.Fprintf(rw, "valloot_rolls_total{world=%q} %d\n", *worldID, s.RollsStarted)

		fmt.Fprintf(rw, "# HELP valloot_applied_total Roll results applied to the world.\n")
		fmt.Fprintf(rw, "# TYPE valloot_applied_total counter\n")
		fmt.Fprintf(rw, "valloot_applied_total{world=%q} %d\n", *worldID, s.Applied)

		fmt.Fprintf(rw, "# HELP valloot_dropped_total Requests dropped before reaching a worker.\n")
		fmt.Fprintf(rw, "# TYPE valloot_dropped_total counter\n")
		fmt.Fprintf(rw, "valloot_dropped_total{world=%q,reason=%q} %d\n", *worldID, "coalesced", s.Coalesced)
		fmt.Fprintf(rw, "valloot_dropped_total{world=%q,reason=%q} %d\n", *worldID, "gated", s.GateDrops)
		fmt.Fprintf(rw, "valloot_dropped_total{world=%q,reason=%q} %d\n", *worldID, "throttled", s.Throttled)
		fmt.Fprintf(rw, "valloot_dropped_total{world=%q,reason=%q} %d\n", *worldID, "invalid_target", s.InvalidTargets)

		fmt.Fprintf(rw, "# HELP valloot_snapshot_restores_total Opens answered from stored snapshots.\n")
		fmt.Fprintf(rw, "# TYPE valloot_snapshot_restores_total counter\n")
		fmt.Fprintf(rw, "valloot_snapshot_restores_total{world=%q} %d\n", *worldID, s.SnapshotRestores)

		fmt.Fprintf(rw, "# HELP valloot_roll_failures_total Rolls that failed or could not be applied.\n")
		fmt.Fprintf(rw, "# TYPE valloot_roll_failures_total counter\n")
		fmt.Fprintf(rw, "valloot_roll_failures_total{world=%q} %d\n", *worldID, s.RollFailures)

		fmt.Fprintf(rw, "# HELP valloot_conversions_total Containers converted into loot containers.\n")
		fmt.Fprintf(rw, "# TYPE valloot_conversions_total counter\n")
		fmt.Fprintf(rw, "valloot_conversions_total{world=%q} %d\n", *worldID, s.BackgroundConversions)

		fmt.Fprintf(rw, "# HELP valloot_store_writes_shed_total Durable writes shed because the write queue was full.\n")
		fmt.Fprintf(rw, "# TYPE valloot_store_writes_shed_total counter\n")
		fmt.Fprintf(rw, "valloot_store_writes_shed_total %d\n", st.Dropped())

		fmt.Fprintf(rw, "# HELP valloot_observers Connected observer feed clients.\n")
		fmt.Fprintf(rw, "# TYPE valloot_observers gauge\n")
		fmt.Fprintf(rw, "valloot_observers %d\n", obsSrv.Subscribers())

		fmt.Fprintf(rw, "# HELP valloot_tables Loaded loot table count.\n")
		fmt.Fprintf(rw, "# TYPE valloot_tables gauge\n")
		fmt.Fprintf(rw, "valloot_tables %d\n", cat.Len())
	})

	registerAdmin(mux, logger, st, coord, w, cat)
	mux.HandleFunc("/v1/obs/ws", obsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (%d tables: %s)", *addr, cat.Len(), strings.Join(cat.Names(), ", "))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	loop.Stop()
	st.Cleanup(*cleanupAge)
	st.Flush()
	if err := st.Close(); err != nil {
		logger.Printf("close store: %v", err)
	}
	logger.Printf("shutdown complete")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
