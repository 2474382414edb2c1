package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/p-n-ai/studyflow/internal/catalog"
	"github.com/p-n-ai/studyflow/internal/events"
	"github.com/p-n-ai/studyflow/internal/leaderboard"
	"github.com/p-n-ai/studyflow/internal/learning"
	"github.com/p-n-ai/studyflow/internal/pathgen"
	"github.com/p-n-ai/studyflow/internal/progression"
)

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.ready))
	status := http.StatusOK
	for name, check := range s.ready {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	view, err := s.learning.Profile(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	update, err := s.learning.RecordActivity(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.learning.Stats(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.learning.Courses(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": courses})
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	var req learning.NewCourse
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.learning.CreateCourse(r.Context(), UserID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	view, err := s.learning.Course(r.Context(), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCompleteTopic(w http.ResponseWriter, r *http.Request) {
	out, err := s.learning.CompleteTopic(r.Context(), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGeneratePath(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "learning path generation is not configured"})
		return
	}
	var req pathgen.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	topics, err := s.generator.Generate(r.Context(), UserID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	if s.tutor == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "tutor is not configured"})
		return
	}
	notes, err := s.tutor.Notes(r.Context(), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.tutor == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "tutor is not configured"})
		return
	}
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	reply, err := s.tutor.Chat(r.Context(), UserID(r.Context()), r.PathValue("id"), req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if s.tutor == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "tutor is not configured"})
		return
	}
	conv, err := s.tutor.History(r.Context(), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleChatReset(w http.ResponseWriter, r *http.Request) {
	if s.tutor == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "tutor is not configured"})
		return
	}
	if err := s.tutor.Reset(r.Context(), UserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type leaderboardResponse struct {
	Entries []leaderboard.Entry `json:"entries"`
	Me      *leaderboard.Entry  `json:"me,omitempty"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.board == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "leaderboard is not configured"})
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, err := s.board.Top(r.Context(), leaderboard.ClampLimit(limit))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", progression.ErrTransient, err))
		return
	}
	resp := leaderboardResponse{Entries: entries}
	me, err := s.board.Rank(r.Context(), UserID(r.Context()))
	switch {
	case err == nil:
		resp.Me = &me
	case !errors.Is(err, progression.ErrNotFound):
		writeError(w, r, fmt.Errorf("%w: %w", progression.ErrTransient, err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type catalogEntry struct {
	catalog.Template
	TotalXP int64 `json:"total_xp"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	var out []catalogEntry
	if s.catalog != nil {
		for _, t := range s.catalog.All() {
			out = append(out, catalogEntry{Template: t, TotalXP: t.TotalXP()})
		}
	}
	if out == nil {
		out = []catalogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (s *Server) handleCatalogCourse(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, r, fmt.Errorf("catalog: %w", progression.ErrNotFound))
		return
	}
	tmpl, ok := s.catalog.Get(r.PathValue("id"))
	if !ok {
		writeError(w, r, fmt.Errorf("template %s: %w", r.PathValue("id"), progression.ErrNotFound))
		return
	}
	view, err := s.learning.CreateCourse(r.Context(), UserID(r.Context()), tmpl.Course())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "realtime events are not configured"})
		return
	}
	s.hub.ServeWS(w, r, UserID(r.Context()))
}

func (s *Server) handleActivityLog(w http.ResponseWriter, r *http.Request) {
	if s.eventLog == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "event log is not configured"})
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	list, err := s.eventLog.Recent(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", progression.ErrTransient, err))
		return
	}
	if list == nil {
		list = []events.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": list})
}

func queryLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: limit must be a number", progression.ErrValidation)
	}
	return n, nil
}
