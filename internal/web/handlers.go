package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/ogcapi/featureserv/internal/provider"
)

// --- JSON Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeProviderError maps provider errors onto HTTP statuses. Internal
// failures are logged with detail but never leaked to the client.
func writeProviderError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, provider.ErrNotFound):
		writeError(w, http.StatusNotFound, "feature not found")
	case errors.Is(err, provider.ErrInvalidIdentifier),
		errors.Is(err, provider.ErrInvalidQuery),
		errors.Is(err, provider.ErrInvalidFeature):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("%s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// requireJSON checks the Content-Type header and returns false (with a
// 415 response) if it is not application/json.
func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	return true
}

// decodeFeature reads a GeoJSON feature body and checks it carries a
// geometry; stores require one for spatial indexing.
func decodeFeature(w http.ResponseWriter, r *http.Request) (*provider.Feature, bool) {
	var f provider.Feature
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid GeoJSON feature: %v", err))
		return nil, false
	}
	if f.Geometry == nil {
		writeError(w, http.StatusBadRequest, "feature requires a geometry")
		return nil, false
	}
	return &f, true
}

// --- Handlers ---

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) apiCollection(c *Collection) APICollection {
	return APICollection{
		ID:          c.Meta.ID,
		Title:       c.Meta.Title,
		Description: s.renderMarkdown(c.Meta.Description),
		Keywords:    c.Meta.Keywords,
		ItemType:    "feature",
	}
}

// handleListCollections returns metadata for every configured
// collection, in config order.
func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	out := APICollectionsResponse{Collections: make([]APICollection, 0, len(s.order))}
	for _, id := range s.order {
		out.Collections = append(out.Collections, s.apiCollection(s.collections[id]))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetCollection returns metadata for one collection.
func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.apiCollection(c))
}

// handleQueryItems runs a filtered, sorted, paged query and returns a
// GeoJSON feature collection.
func (s *Server) handleQueryItems(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r)
	if !ok {
		return
	}

	q, err := s.parseItemsQuery(r, c)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fc, err := c.Provider.Query(r.Context(), q)
	if err != nil {
		writeProviderError(w, "handleQueryItems", err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

// handleGetItem returns a single feature by identifier.
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r)
	if !ok {
		return
	}

	f, err := c.Provider.Get(r.Context(), r.PathValue("fid"))
	if err != nil {
		writeProviderError(w, "handleGetItem", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// handleCreateItem stores a new feature and reports its location.
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r)
	if !ok {
		return
	}
	if !requireJSON(w, r) {
		return
	}
	f, ok := decodeFeature(w, r)
	if !ok {
		return
	}

	id, err := c.Provider.Create(r.Context(), f)
	if err != nil {
		writeProviderError(w, "handleCreateItem", err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/collections/%s/items/%s", c.Meta.ID, id))
	writeJSON(w, http.StatusCreated, APICreatedResponse{ID: id})
}

// handleUpdateItem replaces an existing feature's geometry and
// properties.
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r)
	if !ok {
		return
	}
	if !requireJSON(w, r) {
		return
	}
	f, ok := decodeFeature(w, r)
	if !ok {
		return
	}

	if err := c.Provider.Update(r.Context(), r.PathValue("fid"), f); err != nil {
		writeProviderError(w, "handleUpdateItem", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteItem removes a feature.
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r)
	if !ok {
		return
	}

	if err := c.Provider.Delete(r.Context(), r.PathValue("fid")); err != nil {
		writeProviderError(w, "handleDeleteItem", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
