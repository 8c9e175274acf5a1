package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"valloot.dev/internal/coordinator"
	"valloot.dev/internal/loot"
	"valloot.dev/internal/store"
	"valloot.dev/internal/tables"
	"valloot.dev/internal/world"
)

// registerAdmin wires the loopback-only admin surface. These endpoints touch
// live state and are meant for operators and the admin CLI, not players.
func registerAdmin(mux *http.ServeMux, logger *log.Logger, st *store.Store, coord *coordinator.Coordinator, w *world.World, cat *tables.Catalog) {
	guard := func(method string, h http.HandlerFunc) http.HandlerFunc {
		return func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if method != "" && r.Method != method {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h(rw, r)
		}
	}

	mux.HandleFunc("/admin/v1/stats", guard("", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, struct {
			WorldID string            `json:"world_id"`
			Tables  []string          `json:"tables"`
			Stats   coordinator.Stats `json:"stats"`
			Shed    uint64            `json:"store_writes_shed"`
		}{w.ID(), cat.Names(), coord.Stats(), st.Dropped()})
	}))

	mux.HandleFunc("/admin/v1/seed", guard(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
		var req struct {
			Kind string `json:"kind"`
			X    int    `json:"x"`
			Y    int    `json:"y"`
			Z    int    `json:"z"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeJSON(rw, http.StatusBadRequest, errResp(err))
			return
		}
		pos := loot.Vec3i{X: req.X, Y: req.Y, Z: req.Z}
		if err := w.RequestSeed(r.Context(), req.Kind, pos, nil); err != nil {
			writeJSON(rw, http.StatusConflict, errResp(err))
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
	}))

	mux.HandleFunc("/admin/v1/convert_all", guard(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
		n, err := w.RequestConvertAll(r.Context())
		if err != nil {
			writeJSON(rw, http.StatusServiceUnavailable, errResp(err))
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "converted": n})
	}))

	mux.HandleFunc("/admin/v1/restore", guard(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
		var req struct {
			X int `json:"x"`
			Y int `json:"y"`
			Z int `json:"z"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeJSON(rw, http.StatusBadRequest, errResp(err))
			return
		}
		if err := w.RequestRestore(r.Context(), loot.Vec3i{X: req.X, Y: req.Y, Z: req.Z}); err != nil {
			writeJSON(rw, http.StatusConflict, errResp(err))
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
	}))

	mux.HandleFunc("/admin/v1/open", guard(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
		var req struct {
			Actor  string `json:"actor"`
			X      int    `json:"x"`
			Y      int    `json:"y"`
			Z      int    `json:"z"`
			Bypass bool   `json:"bypass"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeJSON(rw, http.StatusBadRequest, errResp(err))
			return
		}
		outcome, err := w.RequestOpen(r.Context(), world.OpenRequest{
			ActorID: req.Actor,
			Pos:     loot.Vec3i{X: req.X, Y: req.Y, Z: req.Z},
			Bypass:  req.Bypass,
		})
		if err != nil {
			writeJSON(rw, http.StatusConflict, errResp(err))
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "outcome": int(outcome)})
	}))

	mux.HandleFunc("/admin/v1/clear_scope", guard(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
		scope := strings.TrimSpace(r.URL.Query().Get("scope"))
		if scope == "" {
			writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing scope"})
			return
		}
		st.ClearScope(loot.ScopePrefix(scope))
		logger.Printf("admin: cleared first-open markers for scope %s", scope)
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
	}))

	mux.HandleFunc("/admin/v1/clear_all", guard(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
		st.ClearAll()
		logger.Printf("admin: cleared all first-open markers and cooldowns")
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
	}))

	mux.HandleFunc("/admin/v1/cleanup", guard(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
		maxAge := 30 * 24 * time.Hour
		if v := r.URL.Query().Get("max_age"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				writeJSON(rw, http.StatusBadRequest, errResp(err))
				return
			}
			maxAge = d
		}
		st.Cleanup(maxAge)
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
	}))
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func errResp(err error) map[string]any {
	return map[string]any{"ok": false, "error": err.Error()}
}
