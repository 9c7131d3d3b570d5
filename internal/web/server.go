// Package web is the HTTP surface: collection metadata and feature
// items endpoints with spatial, temporal, and attribute filtering.
package web

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ogcapi/featureserv/internal/config"
	"github.com/ogcapi/featureserv/internal/provider"
)

// Collection pairs a configured collection with its opened provider
// and the field types introspected at startup.
type Collection struct {
	Meta     config.Collection
	Provider provider.Provider
	Fields   map[string]provider.FieldType
}

// Server is the HTTP server for the feature API.
type Server struct {
	cfg         *config.Config
	mux         *http.ServeMux
	server      *http.Server
	markdown    goldmark.Markdown
	collections map[string]*Collection
	order       []string // collection ids in config order
}

// New creates the server and registers all routes.
func New(cfg *config.Config, collections []*Collection) *Server {
	s := &Server{
		cfg:         cfg,
		mux:         http.NewServeMux(),
		markdown:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		collections: make(map[string]*Collection, len(collections)),
	}
	for _, c := range collections {
		s.collections[c.Meta.ID] = c
		s.order = append(s.order, c.Meta.ID)
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /collections", s.handleListCollections)
	s.mux.HandleFunc("GET /collections/{id}", s.handleGetCollection)
	s.mux.HandleFunc("GET /collections/{id}/items", s.handleQueryItems)
	s.mux.HandleFunc("GET /collections/{id}/items/{fid}", s.handleGetItem)
	s.mux.HandleFunc("POST /collections/{id}/items", s.requireAuth(s.handleCreateItem))
	s.mux.HandleFunc("PUT /collections/{id}/items/{fid}", s.requireAuth(s.handleUpdateItem))
	s.mux.HandleFunc("DELETE /collections/{id}/items/{fid}", s.requireAuth(s.handleDeleteItem))
}

// Start begins serving HTTP requests. It blocks until the server is
// shut down.
func (s *Server) Start() error {
	log.Printf("feature API listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// collection resolves the path's collection id, writing a 404 when the
// collection is not configured.
func (s *Server) collection(w http.ResponseWriter, r *http.Request) (*Collection, bool) {
	id := r.PathValue("id")
	c, ok := s.collections[id]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("collection %q not found", id))
		return nil, false
	}
	return c, true
}

// renderMarkdown converts a collection description to HTML. On render
// failure the raw text is returned rather than failing the request.
func (s *Server) renderMarkdown(src string) string {
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(src), &buf); err != nil {
		log.Printf("render description: %v", err)
		return src
	}
	return buf.String()
}
