package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yaap/hardware-google-pixel/internal/domain"
	"github.com/yaap/hardware-google-pixel/internal/infra/sqlite"
)

// ─── Profiles ───────────────────────────────────────────────────────────────

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles": s.profiles.Profiles(),
		"tags":     s.profiles.TagProfiles(),
	})
}

type setProfileRequest struct {
	Profile string `json:"profile"`
}

func (s *Server) handleSetProfile(w http.ResponseWriter, r *http.Request) {
	tag, err := domain.ParseSessionTag(chi.URLParam(r, "tag"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req setProfileRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.profiles.SetProfile(tag, req.Profile); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": s.profiles.TagProfiles()})
}

// ─── History ────────────────────────────────────────────────────────────────

// handleHistory serves closed sessions. Query: tag, limit, since (RFC 3339).
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := sqlite.HistoryQuery{Limit: 100}
	if tag := r.URL.Query().Get("tag"); tag != "" {
		t, err := domain.ParseSessionTag(tag)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		q.Tag = t.String()
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := queryInt(r, "limit")
		if err != nil || n < 0 {
			writeBadRequest(w, fmt.Errorf("limit: invalid value %q", v))
			return
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, fmt.Errorf("since: %w", err))
			return
		}
		q.Since = since
	}

	rows, err := s.history.SessionHistory(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if rows == nil {
		rows = []domain.SessionHistory{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": rows})
}

func (s *Server) handleHistorySummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.history.SummarizeHistory(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if sum == nil {
		sum = []sqlite.TagSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": sum})
}
