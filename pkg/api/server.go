package api

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/datapages/splitsearch/pkg/catalog"
	"github.com/datapages/splitsearch/pkg/config"
	"github.com/datapages/splitsearch/pkg/fetch"
	"github.com/datapages/splitsearch/pkg/log"
	"github.com/datapages/splitsearch/pkg/pager"
)

// Server wires the catalog, fetcher and pagination engine behind the HTTP
// surface. The catalog pointer is swappable so the manifest can be reloaded
// without restarting.
type Server struct {
	cfg     *config.Config
	engine  *pager.Engine
	fetcher *fetch.Fetcher
	catalog atomic.Pointer[catalog.Catalog]
	logger  *log.Logger
}

func NewServer(cfg *config.Config, cat *catalog.Catalog, fetcher *fetch.Fetcher, engine *pager.Engine) *Server {
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		fetcher: fetcher,
		logger:  log.ForService("api"),
	}
	if cat == nil {
		cat = catalog.Empty()
	}
	s.catalog.Store(cat)
	return s
}

// SetCatalog atomically replaces the catalog snapshot.
func (s *Server) SetCatalog(cat *catalog.Catalog) {
	if cat == nil {
		return
	}
	s.catalog.Store(cat)
}

// Catalog returns the current catalog snapshot.
func (s *Server) Catalog() *catalog.Catalog {
	return s.catalog.Load()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}
	s.writeJSON(w, status, response)
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestLogMiddleware tags each request with an id and logs its outcome.
func RequestLogMiddleware(next http.Handler) http.Handler {
	logger := log.ForService("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)

		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debugf("%s %s %s (%v)", id, r.Method, r.URL.Path, time.Since(start))
	})
}
