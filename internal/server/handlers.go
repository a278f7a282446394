package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/mdvdb/internal/links"
	"github.com/hyperjump/mdvdb/internal/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request",
		zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.store.Status())
}

// handleLinks returns outgoing and incoming links for ?file=, or the orphan
// list when no file is given.
func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	graph := s.store.Links()
	known := make(map[string]struct{})
	for _, p := range s.store.FilePaths() {
		known[p] = struct{}{}
	}

	file := r.URL.Query().Get("file")
	if file == "" {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"orphans": links.Orphans(graph, known),
		})
		return
	}
	if _, ok := known[file]; !ok {
		s.respondError(w, http.StatusNotFound, "file not indexed")
		return
	}
	s.respondJSON(w, http.StatusOK, links.Query(graph, file, known))
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	sch := s.store.Schema()
	if sch == nil {
		sch = &models.Schema{}
	}
	s.respondJSON(w, http.StatusOK, sch)
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	state := s.store.Clusters()
	if state == nil {
		state = &models.ClusterState{}
	}
	s.respondJSON(w, http.StatusOK, state)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
