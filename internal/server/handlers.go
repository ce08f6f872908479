// internal/server/handlers.go
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"eligibility-workers/internal/chat"
	commonerrors "eligibility-workers/internal/common/errors"
	"eligibility-workers/internal/models"
)

type chatRequest struct {
	Message string `json:"message"`
	Reset   bool   `json:"reset,omitempty"`
}

type runRequest struct {
	Documents []models.DocumentRef `json:"documents,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpsertApplication creates or replaces the application keyed by
// applicant EID.
func (s *Server) handleUpsertApplication(w http.ResponseWriter, r *http.Request) {
	var app models.Application
	if err := json.NewDecoder(r.Body).Decode(&app); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "INVALID_BODY", Message: err.Error()})
		return
	}
	if app.ApplicantEID() == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "MISSING_APPLICANT_EID", Message: "an applicant Emirates ID is required"})
		return
	}

	if err := s.apps.Upsert(r.Context(), &app); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("application upserted", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"applicantEid":  app.ApplicantEID(),
	})
	writeJSON(w, http.StatusOK, &app)
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.apps.GetByEID(r.Context(), chi.URLParam(r, "eid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// handleRun starts a pipeline run. Documents in the body are extracted
// fresh; with an empty body the run reuses stored extracts.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	eid := chi.URLParam(r, "eid")

	var req runRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "INVALID_BODY", Message: err.Error()})
			return
		}
	}

	result, err := s.applicant.RunWithDocuments(r.Context(), eid, req.Documents)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListClarifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eid := chi.URLParam(r, "eid")

	pending, err := s.clar.ListPending(ctx, eid, 50)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	answered, err := s.clar.ListAudit(ctx, eid, 50)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending":  pending,
		"answered": answered,
	})
}

// handleAnswerClarification answers the surfaced question by qid. The answer
// flows through the same consumption path as a chat reply, so the audit
// trail and re-run behavior are identical.
func (s *Server) handleAnswerClarification(w http.ResponseWriter, r *http.Request) {
	eid := chi.URLParam(r, "eid")
	qid := chi.URLParam(r, "qid")

	var req struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "INVALID_BODY", Message: err.Error()})
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "EMPTY_ANSWER", Message: "an answer is required"})
		return
	}

	resp, err := s.chat.AnswerClarification(r.Context(), eid, qid, req.Answer)
	if err != nil {
		if errors.Is(err, chat.ErrClarificationNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "CLARIFICATION_NOT_FOUND", Message: err.Error()})
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	eid := chi.URLParam(r, "eid")

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "INVALID_BODY", Message: err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "EMPTY_MESSAGE", Message: "a message is required"})
		return
	}

	resp, err := s.chat.HandleMessage(r.Context(), eid, req.Message, req.Reset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.chat.History(r.Context(), chi.URLParam(r, "eid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

func (s *Server) handleChatReset(w http.ResponseWriter, r *http.Request) {
	resp, err := s.chat.ResetConversation(r.Context(), chi.URLParam(r, "eid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeError maps internal error codes to HTTP statuses. The response body
// carries the code and message only, never internals.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := commonerrors.CodeOf(err)
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	status := statusFor(code)

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", map[string]interface{}{
			"path":  r.URL.Path,
			"code":  string(code),
			"error": err.Error(),
		})
	}

	msg := err.Error()
	var stdErr *commonerrors.StandardError
	if errors.As(err, &stdErr) {
		msg = stdErr.Message
	}
	writeJSON(w, status, errorResponse{Error: string(code), Message: msg})
}

func statusFor(code commonerrors.ErrorCode) int {
	switch code {
	case commonerrors.ErrCodeApplicationNotFound:
		return http.StatusNotFound
	case commonerrors.ErrCodeApplicantMismatch, commonerrors.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case commonerrors.ErrCodeStoreUnavailable, commonerrors.ErrCodeQueueUnavailable:
		return http.StatusServiceUnavailable
	case commonerrors.ErrCodeExtractionFailed, commonerrors.ErrCodeScoreServiceUnavailable, commonerrors.ErrCodeLLMParseError:
		return http.StatusBadGateway
	case commonerrors.ErrCodeScoreTimeout, commonerrors.ErrCodeLLMTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
