package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/quill/internal/audit"
	"github.com/dativo-io/quill/internal/pipeline"
	"github.com/dativo-io/quill/internal/score"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if r.URL.Query().Get("detail") == "true" {
		components := map[string]string{"pipeline": "ok"}
		if s.auditStore == nil {
			components["audit_store"] = "disabled"
		} else {
			components["audit_store"] = "ok"
		}
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}

	result, err := s.pipeline.Process(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, pipeline.ErrAllDetectorsUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "detectors_unavailable", err.Error())
			return
		}
		log.Error().Err(err).Msg("anonymize failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "anonymization failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSpans(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}

	spans, err := s.pipeline.Resolve(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, pipeline.ErrAllDetectorsUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "detectors_unavailable", err.Error())
			return
		}
		log.Error().Err(err).Msg("span resolution failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "span resolution failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"spans": spans})
}

type scoreRequest struct {
	Candidates []score.Ref `json:"candidates"`
	Truth      []score.Ref `json:"truth"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	report := score.Score(req.Candidates, req.Truth, score.WithMinOverlap(s.minOverlap))
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.auditStore == nil {
		writeError(w, http.StatusNotFound, "audit_disabled", "run audit store is not configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.auditStore.List(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("listing runs failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "listing runs failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": records})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.auditStore == nil {
		writeError(w, http.StatusNotFound, "audit_disabled", "run audit store is not configured")
		return
	}
	id := chi.URLParam(r, "id")

	rec, err := s.auditStore.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no run with that id")
			return
		}
		log.Error().Err(err).Msg("fetching run failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "fetching run failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
