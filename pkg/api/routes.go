package api

import (
	"net/http"
)

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// API routes with method-specific routing
	mux.HandleFunc("GET /search", s.HandleSearch)
	mux.HandleFunc("GET /catalog", s.HandleCatalog)
	mux.HandleFunc("GET /health", s.HandleHealth)
}
