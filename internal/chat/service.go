// internal/chat/service.go
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"eligibility-workers/internal/clarify"
	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/pipeline"
)

// ErrClarificationNotFound is returned when an answer targets a qid that is
// not the currently surfaced question.
var ErrClarificationNotFound = errors.New("clarification not found")

// Phrases that start a fresh pipeline run from chat.
var runTriggers = map[string]bool{
	"run pipeline":             true,
	"run eligibility pipeline": true,
	"analyze application":      true,
}

// ClarificationQueue is the slice of the clarification store the chat flow
// drives.
type ClarificationQueue interface {
	Peek(ctx context.Context, eid string) (*clarify.Item, error)
	Pop(ctx context.Context, eid string) (*clarify.Item, error)
	MarkAnswered(ctx context.Context, eid, qid string, ts time.Time) error
	AppendAudit(ctx context.Context, eid, qid, question, answer string, ts time.Time) error
	RecordAnswer(ctx context.Context, eid, question, answer string) error
	PendingCount(ctx context.Context, eid string) (int64, error)
	Reset(ctx context.Context, eid string) error
}

// Runner starts a pipeline run for an applicant's stored application.
type Runner interface {
	RunForApplicant(ctx context.Context, eid string) (*pipeline.RunResult, error)
}

// ContextBuilder assembles the application context handed to the assistant
// for free-form questions.
type ContextBuilder interface {
	BuildChatContext(ctx context.Context, eid string) (map[string]interface{}, error)
}

// LLMClient generates a free-form assistant reply.
type LLMClient interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Response is what the chat endpoint returns.
type Response struct {
	OK      bool      `json:"ok"`
	Reply   string    `json:"reply"`
	History []Message `json:"history"`
}

type Service struct {
	store   *Store
	queue   ClarificationQueue
	runner  Runner
	builder ContextBuilder
	llm     LLMClient
	logger  logger.Logger
	now     func() time.Time
}

func NewService(store *Store, queue ClarificationQueue, runner Runner, builder ContextBuilder, llm LLMClient, log logger.Logger) *Service {
	return &Service{
		store:   store,
		queue:   queue,
		runner:  runner,
		builder: builder,
		llm:     llm,
		logger:  log.WithFields(map[string]interface{}{"component": "chat.service"}),
		now:     time.Now,
	}
}

// HandleMessage processes one inbound applicant message. When a clarification
// is pending, the message is consumed as its answer: recorded durably,
// popped, marked answered and audited, and only then is the pipeline re-run.
func (s *Service) HandleMessage(ctx context.Context, eid, message string, reset bool) (*Response, error) {
	message = strings.TrimSpace(message)

	if reset {
		if err := s.store.SaveHistory(ctx, eid, []Message{}); err != nil {
			return nil, err
		}
	}

	if _, err := s.store.AppendMessage(ctx, eid, RoleUser, message); err != nil {
		return nil, err
	}

	pending, err := s.queue.Peek(ctx, eid)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return s.consumeAnswer(ctx, eid, pending, message)
	}

	if runTriggers[strings.ToLower(message)] {
		return s.startRun(ctx, eid)
	}

	return s.freeChat(ctx, eid, message)
}

// consumeAnswer treats the inbound message as the answer to the peeked
// question. The re-run strictly happens-after the answer is durable and the
// item is popped, so the same question is never surfaced again.
func (s *Service) consumeAnswer(ctx context.Context, eid string, pending *clarify.Item, answer string) (*Response, error) {
	if err := s.queue.RecordAnswer(ctx, eid, pending.Question, answer); err != nil {
		return nil, err
	}
	if _, err := s.queue.Pop(ctx, eid); err != nil {
		return nil, err
	}
	ts := s.now()
	if pending.QID != "" {
		if err := s.queue.MarkAnswered(ctx, eid, pending.QID, ts); err != nil {
			return nil, err
		}
	}
	if err := s.queue.AppendAudit(ctx, eid, pending.QID, pending.Question, answer, ts); err != nil {
		return nil, err
	}

	if _, err := s.store.AppendMessage(ctx, eid, RoleAssistant,
		"Thanks for clarifying. Re-running the eligibility checks now."); err != nil {
		return nil, err
	}

	return s.runAndSummarize(ctx, eid)
}

// AnswerClarification answers a surfaced question directly, outside the chat
// box. Only the newest pending question is answerable; the qid guards
// against racing a just-popped question.
func (s *Service) AnswerClarification(ctx context.Context, eid, qid, answer string) (*Response, error) {
	pending, err := s.queue.Peek(ctx, eid)
	if err != nil {
		return nil, err
	}
	if pending == nil || (qid != "" && pending.QID != qid) {
		return nil, ErrClarificationNotFound
	}

	if _, err := s.store.AppendMessage(ctx, eid, RoleUser, answer); err != nil {
		return nil, err
	}
	return s.consumeAnswer(ctx, eid, pending, answer)
}

// startRun handles an explicit pipeline trigger phrase.
func (s *Service) startRun(ctx context.Context, eid string) (*Response, error) {
	if n, err := s.queue.PendingCount(ctx, eid); err == nil && n > 0 {
		if _, err := s.store.AppendMessage(ctx, eid, RoleAssistant,
			"There is a pending clarification question. I will run the checks, but the decision may stay in REVIEW until you answer it."); err != nil {
			return nil, err
		}
	}
	if _, err := s.store.AppendMessage(ctx, eid, RoleAssistant,
		"Running the eligibility pipeline, please wait."); err != nil {
		return nil, err
	}
	return s.runAndSummarize(ctx, eid)
}

func (s *Service) runAndSummarize(ctx context.Context, eid string) (*Response, error) {
	result, err := s.runner.RunForApplicant(ctx, eid)
	if err != nil {
		s.logger.Error("pipeline run from chat failed", map[string]interface{}{
			"applicantEid": eid,
			"error":        err.Error(),
		})
		reply := "Sorry, something went wrong while processing your application. A caseworker has been notified; please try again later."
		history, herr := s.store.AppendMessage(ctx, eid, RoleAssistant, reply)
		if herr != nil {
			return nil, herr
		}
		return &Response{OK: false, Reply: reply, History: history}, nil
	}

	summary := summarize(result)
	history, err := s.store.AppendMessage(ctx, eid, RoleAssistant, summary)
	if err != nil {
		return nil, err
	}

	// Questions raised this run were already queued by the pipeline; here
	// they are surfaced in the conversation.
	for _, q := range result.Reconciliation.PendingQuestions {
		if q.Question == "" {
			continue
		}
		history, err = s.store.AppendMessage(ctx, eid, RoleAssistant,
			fmt.Sprintf("Clarification needed: %s\nPlease reply here with the answer so we can continue processing.", q.Question))
		if err != nil {
			return nil, err
		}
	}

	return &Response{OK: true, Reply: summary, History: history}, nil
}

func summarize(result *pipeline.RunResult) string {
	return fmt.Sprintf(
		"Pipeline completed.\n- Extracted docs: %d\n- Validation issues: %d\n- Decision: %s\n\nRationale: %s",
		len(result.Extracts),
		len(result.Report.Issues),
		result.Decision.FinalDecision,
		result.Decision.Rationale,
	)
}

const chatSystemPrompt = "You are an assistant helping with government social-support applications. " +
	"Base your answers strictly on the provided application context (form data and document extracts). " +
	"If something is not in the context, say you don't know. " +
	"Do not invent eligibility decisions; explain using the given facts only."

// freeChat answers a non-pipeline question from the stored application
// context.
func (s *Service) freeChat(ctx context.Context, eid, message string) (*Response, error) {
	history, err := s.store.LoadHistory(ctx, eid)
	if err != nil {
		return nil, err
	}

	reply := ""
	ok := true
	if s.llm == nil || s.builder == nil {
		reply = "I can run your eligibility checks if you say \"run pipeline\", or answer a pending clarification. Free-form questions are not available right now."
	} else {
		appContext, err := s.builder.BuildChatContext(ctx, eid)
		if err != nil {
			return nil, err
		}
		raw, err := s.llm.Generate(ctx, chatSystemPrompt, buildChatPrompt(appContext, history))
		if err != nil {
			s.logger.Warn("chat generation failed", map[string]interface{}{
				"applicantEid": eid,
				"error":        err.Error(),
			})
			reply = "Sorry, I could not generate a response right now. Please try again in a moment."
			ok = false
		} else {
			reply = strings.TrimSpace(raw)
			if reply == "" {
				reply = "Sorry, I could not generate a response right now. Please try again in a moment."
			}
		}
	}

	history, err = s.store.AppendMessage(ctx, eid, RoleAssistant, reply)
	if err != nil {
		return nil, err
	}
	return &Response{OK: ok, Reply: reply, History: history}, nil
}

func buildChatPrompt(appContext map[string]interface{}, history []Message) string {
	var b strings.Builder
	b.WriteString("You are chatting with an applicant or case worker about a social support application.\n")
	b.WriteString("Below is the application context as JSON (form + document extracts):\n\n")
	if raw, err := json.Marshal(appContext); err == nil {
		b.Write(raw)
	} else {
		b.WriteString("{}")
	}
	b.WriteString("\n\nConversation so far:\n")
	for _, msg := range history {
		prefix := "Assistant"
		if msg.Role == RoleUser {
			prefix = "User"
		}
		b.WriteString(prefix)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nNow answer the user's last message as the Assistant. Be concise and clear.\n")
	return b.String()
}

// ResetConversation clears both the chat history and all clarification
// state for an applicant.
func (s *Service) ResetConversation(ctx context.Context, eid string) (*Response, error) {
	if err := s.store.Reset(ctx, eid); err != nil {
		return nil, err
	}
	if err := s.queue.Reset(ctx, eid); err != nil {
		return nil, err
	}
	reply := "Chat history and clarifications have been reset."
	history, err := s.store.AppendMessage(ctx, eid, RoleAssistant, reply)
	if err != nil {
		return nil, err
	}
	return &Response{OK: true, Reply: reply, History: history}, nil
}

// History returns the stored conversation.
func (s *Service) History(ctx context.Context, eid string) ([]Message, error) {
	return s.store.LoadHistory(ctx, eid)
}
