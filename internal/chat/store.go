// internal/chat/store.go

// Package chat keeps the per-applicant conversation and drives the
// answer-consumption flow between the applicant and the pipeline.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	commonerrors "eligibility-workers/internal/common/errors"
	"eligibility-workers/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	TS      int64  `json:"ts"`
}

func keyHistory(eid string) string { return fmt.Sprintf("chat:%s:history", eid) }

// Store holds chat history in Redis as one JSON list per applicant, trimmed
// to MaxMessages and expiring after TTL of inactivity.
type Store struct {
	rdb         *redis.Client
	ttl         time.Duration
	maxMessages int
	logger      logger.Logger
	now         func() time.Time
}

func NewStore(rdb *redis.Client, ttl time.Duration, maxMessages int, log logger.Logger) *Store {
	if maxMessages < 1 {
		maxMessages = 40
	}
	return &Store{
		rdb:         rdb,
		ttl:         ttl,
		maxMessages: maxMessages,
		logger:      log.WithFields(map[string]interface{}{"component": "chat.store"}),
		now:         time.Now,
	}
}

// LoadHistory returns the conversation, oldest first. Missing or corrupt
// history reads as empty.
func (s *Store) LoadHistory(ctx context.Context, eid string) ([]Message, error) {
	raw, err := s.rdb.Get(ctx, keyHistory(eid)).Result()
	if err == redis.Nil {
		return []Message{}, nil
	}
	if err != nil {
		return nil, commonerrors.NewQueueUnavailableError(err)
	}

	var history []Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		s.logger.Warn("discarding corrupt chat history", map[string]interface{}{
			"applicantEid": eid,
		})
		return []Message{}, nil
	}
	return history, nil
}

// SaveHistory overwrites the conversation, keeping only the newest
// maxMessages entries.
func (s *Store) SaveHistory(ctx context.Context, eid string, history []Message) error {
	if len(history) > s.maxMessages {
		history = history[len(history)-s.maxMessages:]
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return commonerrors.NewQueueUnavailableError(err)
	}
	if err := s.rdb.Set(ctx, keyHistory(eid), raw, s.ttl).Err(); err != nil {
		return commonerrors.NewQueueUnavailableError(err)
	}
	return nil
}

// AppendMessage adds one turn and returns the updated history.
func (s *Store) AppendMessage(ctx context.Context, eid, role, content string) ([]Message, error) {
	if role != RoleUser && role != RoleAssistant {
		role = RoleAssistant
	}

	history, err := s.LoadHistory(ctx, eid)
	if err != nil {
		return nil, err
	}
	history = append(history, Message{Role: role, Content: content, TS: s.now().Unix()})
	if err := s.SaveHistory(ctx, eid, history); err != nil {
		return nil, err
	}
	return history, nil
}

// Reset deletes the conversation.
func (s *Store) Reset(ctx context.Context, eid string) error {
	if err := s.rdb.Del(ctx, keyHistory(eid)).Err(); err != nil {
		return commonerrors.NewQueueUnavailableError(err)
	}
	return nil
}
