package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/ernie/scout-tools/internal/cache"
	"github.com/ernie/scout-tools/internal/domain"
	"github.com/ernie/scout-tools/internal/similarity"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseLimit reads a limit query parameter with default and max bounds
func parseLimit(req *http.Request, def, max int) int {
	limitStr := req.URL.Query().Get("limit")
	if limitStr == "" {
		return def
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// handleSimilarPlayers runs a similarity search for the named player.
// Alias-detection mode exposes ping and per-map fingerprints, so it requires
// an authenticated caller.
func (r *Router) handleSimilarPlayers(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "player name required")
		return
	}

	mode, err := domain.ParseMode(req.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if mode == domain.ModeAliasDetection && r.getAuthClaims(req) == nil {
		writeError(w, http.StatusUnauthorized, "authentication required for alias detection")
		return
	}

	limit := parseLimit(req, similarity.DefaultLimit, similarity.MaxLimit)

	key := cache.SimilarKey(name, mode, limit)
	if r.results != nil {
		var cached domain.SimilarResponse
		hit, err := r.results.Get(req.Context(), key, &cached)
		if err != nil {
			log.Printf("Cache read error for %s: %v", key, err)
		} else if hit {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	resp, err := r.engine.FindSimilarPlayers(req.Context(), name, limit, mode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if r.results != nil {
		if err := r.results.Set(req.Context(), key, resp); err != nil {
			log.Printf("Cache write error for %s: %v", key, err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePlayerActivity returns one player's aggregated activity
func (r *Router) handlePlayerActivity(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "player name required")
		return
	}

	stats, err := r.engine.PlayerActivity(req.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats == nil {
		writeError(w, http.StatusNotFound, "player has no recorded activity")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleCompareHours returns hour-of-day playtime for two players
func (r *Router) handleCompareHours(w http.ResponseWriter, req *http.Request) {
	player1 := req.URL.Query().Get("player1")
	player2 := req.URL.Query().Get("player2")
	if player1 == "" || player2 == "" {
		writeError(w, http.StatusBadRequest, "player1 and player2 are required")
		return
	}
	if player1 == player2 {
		writeError(w, http.StatusBadRequest, "player1 and player2 must differ")
		return
	}

	cmp, err := r.engine.CompareActivityHours(req.Context(), player1, player2)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// handleGetServers returns all registered servers
func (r *Router) handleGetServers(w http.ResponseWriter, req *http.Request) {
	servers, err := r.store.GetServers(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if servers == nil {
		servers = []domain.Server{}
	}
	writeJSON(w, http.StatusOK, servers)
}

// handleHealth is a basic liveness check
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
