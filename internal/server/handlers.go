package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/storyfind/internal/hydrate"
	"github.com/hyperjump/storyfind/internal/models"
	"github.com/hyperjump/storyfind/internal/search"
	"github.com/hyperjump/storyfind/internal/store"
	"github.com/hyperjump/storyfind/internal/vector"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	requestID := RequestIDFrom(r.Context())
	s.logger.Debug("search request",
		zap.String("request_id", requestID),
		zap.String("query", query.Query),
		zap.Int("k", query.K))

	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("search failed", zap.String("request_id", requestID), zap.Error(err))
		}
		s.respondError(w, status, err.Error())
		return
	}
	response.RequestID = requestID
	s.respondJSON(w, http.StatusOK, response)
}

// statusFor maps the retrieval error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, search.ErrInvalidArgument),
		errors.Is(err, vector.ErrDimensionMismatch):
		return http.StatusBadRequest
	case errors.Is(err, search.ErrEmbeddingFailed):
		return http.StatusBadGateway
	case errors.Is(err, hydrate.ErrHydrationFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	resp := map[string]any{
		"fingerprint":          st.Fingerprint,
		"hydrated":             st.Hydrated,
		"entries":              st.Entries,
		"dimensions":           st.Dimensions,
		"metric":               st.Metric,
		"embedding_dimensions": st.EmbeddingDimensions,
		"refiner_enabled":      st.RefinerEnabled,
		"default_k":            st.DefaultK,
		"max_k":                st.MaxK,
	}
	if s.index != nil && s.index.Source == "local" {
		if info, err := store.Inspect(s.index.Path); err == nil {
			resp["disk_usage_bytes"] = info.SizeBytes
			resp["compression"] = info.Compression
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
