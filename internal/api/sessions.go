package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yaap/hardware-google-pixel/internal/app/session"
	"github.com/yaap/hardware-google-pixel/internal/domain"
)

// ─── Session Calls ──────────────────────────────────────────────────────────

type createSessionRequest struct {
	TGID        int32   `json:"tgid"`
	UID         int32   `json:"uid"`
	Threads     []int32 `json:"threads"`
	TargetNanos int64   `json:"target_ns"`
	Tag         string  `json:"tag"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	tag, err := domain.ParseSessionTag(req.Tag)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sess, err := s.sessions.CreateSession(req.TGID, req.UID, req.Threads, time.Duration(req.TargetNanos), tag)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Config())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.Sessions()
	out := make([]session.Config, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Config())
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Config())
}

type targetRequest struct {
	TargetNanos int64 `json:"target_ns"`
}

func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req targetRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	s.reply(w, sess, sess.UpdateTargetWorkDuration(time.Duration(req.TargetNanos)))
}

type reportRequest struct {
	Durations []domain.WorkDuration `json:"durations"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req reportRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	s.reply(w, sess, sess.ReportActualWorkDuration(req.Durations))
}

type hintRequest struct {
	Hint string `json:"hint"`
}

func (s *Server) handleSendHint(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req hintRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	hint, err := domain.ParseSessionHint(req.Hint)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.reply(w, sess, sess.SendHint(hint))
}

type modeRequest struct {
	Mode    string `json:"mode"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req modeRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	mode, err := domain.ParseSessionMode(req.Mode)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.reply(w, sess, sess.SetMode(mode, req.Enabled))
}

type threadsRequest struct {
	Threads []int32 `json:"threads"`
}

func (s *Server) handleSetThreads(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req threadsRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	s.reply(w, sess, sess.SetThreads(req.Threads))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.reply(w, sess, sess.Pause())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.reply(w, sess, sess.Resume())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := sess.Close(); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreferredRate(w http.ResponseWriter, r *http.Request) {
	rate, err := s.sessions.PreferredRate()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"rate_ns": rate.Nanoseconds()})
}

// lookup resolves the {id} path parameter to a live session. It writes the
// error response itself when it returns false.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("session id: %w", err))
		return nil, false
	}
	sess, err := s.sessions.Session(id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return sess, true
}

// reply writes the session's state on success and the mapped error otherwise.
func (s *Server) reply(w http.ResponseWriter, sess *session.Session, err error) {
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Config())
}
