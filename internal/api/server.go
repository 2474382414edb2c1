// Package api exposes the learning service over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/p-n-ai/studyflow/internal/agent"
	"github.com/p-n-ai/studyflow/internal/catalog"
	"github.com/p-n-ai/studyflow/internal/events"
	"github.com/p-n-ai/studyflow/internal/leaderboard"
	"github.com/p-n-ai/studyflow/internal/learning"
	"github.com/p-n-ai/studyflow/internal/pathgen"
	"github.com/p-n-ai/studyflow/internal/realtime"
)

const maxBodyBytes = 1 << 20

// PathGenerator produces topic drafts for a subject.
type PathGenerator interface {
	Generate(ctx context.Context, userID string, req pathgen.Request) ([]learning.NewTopic, error)
}

// Tutor answers questions about one of a learner's topics.
type Tutor interface {
	Notes(ctx context.Context, userID, topicID string) (agent.Notes, error)
	Chat(ctx context.Context, userID, topicID, message string) (agent.Reply, error)
	History(ctx context.Context, userID, topicID string) (agent.Conversation, error)
	Reset(ctx context.Context, userID, topicID string) error
}

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

// Config wires a Server. Generator, Tutor, Board, Catalog, Hub and EventLog
// are optional; the matching endpoints answer 404 when they are missing.
type Config struct {
	Learning  *learning.Service
	Auth      *Authenticator
	Generator PathGenerator
	Tutor     Tutor
	Board     leaderboard.Board
	Catalog   *catalog.Loader
	Hub       *realtime.Hub
	EventLog  events.Log
	Ready     map[string]ReadyCheck
}

// Server holds the HTTP handlers.
type Server struct {
	learning  *learning.Service
	auth      *Authenticator
	generator PathGenerator
	tutor     Tutor
	board     leaderboard.Board
	catalog   *catalog.Loader
	hub       *realtime.Hub
	eventLog  events.Log
	ready     map[string]ReadyCheck
}

func NewServer(cfg Config) *Server {
	return &Server{
		learning:  cfg.Learning,
		auth:      cfg.Auth,
		generator: cfg.Generator,
		tutor:     cfg.Tutor,
		board:     cfg.Board,
		catalog:   cfg.Catalog,
		hub:       cfg.Hub,
		eventLog:  cfg.EventLog,
		ready:     cfg.Ready,
	}
}

// Handler returns the routed handler with request id, logging and panic
// recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /v1/profile", s.requireAuth(s.handleProfile))
	mux.HandleFunc("POST /v1/profile/activity", s.requireAuth(s.handleActivity))
	mux.HandleFunc("GET /v1/stats", s.requireAuth(s.handleStats))

	mux.HandleFunc("GET /v1/courses", s.requireAuth(s.handleListCourses))
	mux.HandleFunc("POST /v1/courses", s.requireAuth(s.handleCreateCourse))
	mux.HandleFunc("GET /v1/courses/{id}", s.requireAuth(s.handleGetCourse))
	mux.HandleFunc("POST /v1/topics/{id}/complete", s.requireAuth(s.handleCompleteTopic))
	mux.HandleFunc("POST /v1/topics/{id}/notes", s.requireAuth(s.handleNotes))
	mux.HandleFunc("GET /v1/topics/{id}/chat", s.requireAuth(s.handleChatHistory))
	mux.HandleFunc("POST /v1/topics/{id}/chat", s.requireAuth(s.handleChat))
	mux.HandleFunc("DELETE /v1/topics/{id}/chat", s.requireAuth(s.handleChatReset))

	mux.HandleFunc("POST /v1/learning-paths", s.requireAuth(s.handleGeneratePath))
	mux.HandleFunc("GET /v1/leaderboard", s.requireAuth(s.handleLeaderboard))
	mux.HandleFunc("GET /v1/catalog", s.requireAuth(s.handleCatalog))
	mux.HandleFunc("POST /v1/catalog/{id}/courses", s.requireAuth(s.handleCatalogCourse))
	mux.HandleFunc("GET /v1/events", s.requireAuth(s.handleEvents))
	mux.HandleFunc("GET /v1/activity", s.requireAuth(s.handleActivityLog))

	return withRequestID(withLogging(withRecover(mux)))
}
