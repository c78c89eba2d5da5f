package artifact

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server exposes the artifact tree read-only over HTTP plus a health probe.
type Server struct {
	store            *Store
	connectedClients func() int
	logger           zerolog.Logger
}

// NewServer wires the store to an HTTP surface. connectedClients reports the
// gateway's live connection count for the health probe; nil means 0.
func NewServer(store *Store, connectedClients func() int, logger zerolog.Logger) *Server {
	if connectedClients == nil {
		connectedClients = func() int { return 0 }
	}
	return &Server{store: store, connectedClients: connectedClients, logger: logger}
}

// Register mounts the health and artifact routes on the router. Artifacts
// are reachable under the URL prefix's path and under /reports as a
// compatibility alias.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	prefix := s.servePath()
	r.PathPrefix(prefix + "/").HandlerFunc(s.handleArtifact(prefix)).Methods(http.MethodGet)
	if prefix != "/reports" {
		r.PathPrefix("/reports/").HandlerFunc(s.handleArtifact("/reports")).Methods(http.MethodGet)
	}
}

// servePath extracts the path component of the configured URL prefix.
func (s *Server) servePath() string {
	u, err := url.Parse(s.store.URLPrefix())
	if err != nil || u.Path == "" || u.Path == "/" {
		return "/reports"
	}
	return strings.TrimRight(u.Path, "/")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":            "healthy",
		"connected_clients": s.connectedClients(),
		"timestamp":         time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleArtifact(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel := strings.TrimPrefix(r.URL.Path, prefix+"/")

		// Reject traversal before touching the filesystem. The cleaned
		// path must stay inside the artifact root.
		if strings.Contains(rel, "..") {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		full := filepath.Join(s.store.Root(), filepath.FromSlash(rel))
		if !strings.HasPrefix(full, filepath.Clean(s.store.Root())+string(os.PathSeparator)) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		info, err := os.Stat(full)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if info.IsDir() {
			full = filepath.Join(full, "index.html")
			if _, err := os.Stat(full); err != nil {
				http.NotFound(w, r)
				return
			}
		}
		http.ServeFile(w, r, full)
	}
}
