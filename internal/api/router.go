package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ernie/scout-tools/internal/auth"
	"github.com/ernie/scout-tools/internal/cache"
	"github.com/ernie/scout-tools/internal/domain"
	"github.com/ernie/scout-tools/internal/similarity"
	"github.com/ernie/scout-tools/internal/storage"
)

// Router holds the HTTP routes and dependencies
type Router struct {
	mux       *http.ServeMux
	store     *storage.Store
	engine    *similarity.Engine
	results   *cache.Cache // nil when caching is disabled
	hub       *Hub
	auth      *auth.Service
	staticDir string
}

// NewRouter creates a new HTTP router. results may be nil to run without a
// result cache.
func NewRouter(store *storage.Store, engine *similarity.Engine, results *cache.Cache, authService *auth.Service, staticDir string) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		store:     store,
		engine:    engine,
		results:   results,
		hub:       NewHub(),
		auth:      authService,
		staticDir: staticDir,
	}

	// Similarity API
	r.mux.HandleFunc("GET /api/players/{name}/similar", r.handleSimilarPlayers)
	r.mux.HandleFunc("GET /api/players/{name}/activity", r.handlePlayerActivity)
	r.mux.HandleFunc("GET /api/players/compare-hours", r.handleCompareHours)

	r.mux.HandleFunc("GET /api/servers", r.handleGetServers)

	// Auth routes
	r.mux.HandleFunc("POST /api/auth/login", r.handleLogin)
	r.mux.HandleFunc("POST /api/auth/logout", r.handleLogout)
	r.mux.HandleFunc("GET /api/auth/check", r.handleAuthCheck)
	r.mux.HandleFunc("POST /api/auth/change-password", r.requireAuth(r.handleChangePassword))

	// WebSocket activity feed
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	// Static files - only serve if staticDir is configured
	if staticDir != "" {
		r.mux.HandleFunc("GET /", r.handleStatic)
	}

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// StartHub starts broadcasting events to WebSocket clients
func (r *Router) StartHub() {
	go r.hub.Run()
}

// Broadcast forwards an event to all connected WebSocket clients. Safe to
// call from ingest and poller goroutines.
func (r *Router) Broadcast(event domain.Event) {
	r.hub.Broadcast(event)
}

// handleStatic serves static files from the configured directory
// For SPA support, serves index.html for any path that doesn't match a file
func (r *Router) handleStatic(w http.ResponseWriter, req *http.Request) {
	path := filepath.Clean(req.URL.Path)
	if path == "/" {
		path = "/index.html"
	}

	fullPath := filepath.Join(r.staticDir, path)

	// Security: ensure the path is within staticDir
	absStaticDir, _ := filepath.Abs(r.staticDir)
	absPath, _ := filepath.Abs(fullPath)
	if !strings.HasPrefix(absPath, absStaticDir) {
		http.NotFound(w, req)
		return
	}

	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		// SPA fallback: serve index.html for unknown paths
		fullPath = filepath.Join(r.staticDir, "index.html")
		if _, err := os.Stat(fullPath); err != nil {
			http.NotFound(w, req)
			return
		}
	}

	http.ServeFile(w, req, fullPath)
}
