// internal/server/router.go

// Package server is the HTTP surface: application CRUD, pipeline runs,
// clarifications and the applicant chat. Handlers stay thin and delegate to
// the stores, the orchestrator and the chat service.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"eligibility-workers/internal/chat"
	"eligibility-workers/internal/clarify"
	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/models"
)

// ClarificationReader exposes the read side of the clarification queue.
type ClarificationReader interface {
	PendingCount(ctx context.Context, eid string) (int64, error)
	ListPending(ctx context.Context, eid string, limit int64) ([]clarify.Item, error)
	ListAudit(ctx context.Context, eid string, limit int64) ([]models.AnswerAudit, error)
}

type Server struct {
	apps      ApplicationStore
	applicant *ApplicantService
	chat      *chat.Service
	clar      ClarificationReader
	logger    logger.Logger
}

func NewServer(apps ApplicationStore, applicant *ApplicantService, chatSvc *chat.Service, clar ClarificationReader, log logger.Logger) *Server {
	return &Server{
		apps:      apps,
		applicant: applicant,
		chat:      chatSvc,
		clar:      clar,
		logger:    log.WithFields(map[string]interface{}{"component": "http"}),
	}
}

// Router mounts all endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", s.handleHealth)

	r.Route("/applications", func(r chi.Router) {
		r.Post("/", s.handleUpsertApplication)
		r.Route("/{eid}", func(r chi.Router) {
			r.Get("/", s.handleGetApplication)
			r.Post("/run", s.handleRun)
			r.Get("/clarifications", s.handleListClarifications)
			r.Post("/clarifications/{qid}/answer", s.handleAnswerClarification)
			r.Route("/chat", func(r chi.Router) {
				r.Post("/", s.handleChatMessage)
				r.Get("/", s.handleChatHistory)
				r.Delete("/", s.handleChatReset)
			})
		})
	})

	return r
}
