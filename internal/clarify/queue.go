// internal/clarify/queue.go

// Package clarify persists per-applicant clarification questions in Redis.
// The pending list is a stack: the newest question is the only one ever
// surfaced to the applicant, older entries stay buried until it is popped.
package clarify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	commonerrors "eligibility-workers/internal/common/errors"
	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Item is one queued clarification as stored on the wire.
type Item struct {
	QID      string                 `json:"qid"`
	Question string                 `json:"question"`
	Meta     map[string]interface{} `json:"meta"`
}

// Field returns the profile field this question disputes, "" when unknown.
func (it *Item) Field() string {
	if it.Meta == nil {
		return ""
	}
	if f, ok := it.Meta["field"].(string); ok {
		return f
	}
	return ""
}

func keyPending(eid string) string     { return fmt.Sprintf("chat:%s:pending_clarifications", eid) }
func keyAnswerKV(eid string) string    { return fmt.Sprintf("chat:%s:clar_kv", eid) }
func keyAnsweredIdx(eid string) string { return fmt.Sprintf("chat:%s:answered_idx", eid) }
func keyAnsweredLog(eid string) string { return fmt.Sprintf("chat:%s:answered_log", eid) }

// Queue is the Redis-backed clarification store.
type Queue struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time
}

func NewQueue(rdb *redis.Client, ttl time.Duration, log logger.Logger) *Queue {
	return &Queue{
		rdb:    rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "clarify"}),
		now:    time.Now,
	}
}

// Push queues a question with an explicit qid. Newest first.
func (q *Queue) Push(ctx context.Context, eid, qid, question string, meta map[string]interface{}) error {
	if meta == nil {
		meta = map[string]interface{}{}
	}
	payload, err := json.Marshal(Item{QID: qid, Question: question, Meta: meta})
	if err != nil {
		return commonerrors.NewQueueUnavailableError(err)
	}

	key := keyPending(eid)
	if err := q.rdb.LPush(ctx, key, payload).Err(); err != nil {
		return commonerrors.NewQueueUnavailableError(err)
	}
	if err := q.rdb.Expire(ctx, key, q.ttl).Err(); err != nil {
		return commonerrors.NewQueueUnavailableError(err)
	}

	q.logger.Info("clarification queued", map[string]interface{}{
		"applicantEid": eid,
		"qid":          qid,
	})
	return nil
}

// Queue adapts Push to the reconciliation stage's question sink: a fresh qid
// is minted and the disputed field travels in the item meta.
func (q *Queue) Queue(ctx context.Context, eid string, question models.PendingQuestion) error {
	return q.Push(ctx, eid, uuid.NewString(), question.Question, map[string]interface{}{
		"field": question.Field,
	})
}

// Peek returns the newest pending item without removing it, nil when empty.
func (q *Queue) Peek(ctx context.Context, eid string) (*Item, error) {
	raw, err := q.rdb.LIndex(ctx, keyPending(eid), 0).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, commonerrors.NewQueueUnavailableError(err)
	}
	return decodeItem(raw)
}

// Pop removes and returns the newest pending item, nil when empty.
func (q *Queue) Pop(ctx context.Context, eid string) (*Item, error) {
	raw, err := q.rdb.LPop(ctx, keyPending(eid)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, commonerrors.NewQueueUnavailableError(err)
	}
	return decodeItem(raw)
}

// MarkAnswered records the answer timestamp for a qid. Writing the same qid
// twice is harmless; the index keeps the last timestamp.
func (q *Queue) MarkAnswered(ctx context.Context, eid, qid string, ts time.Time) error {
	key := keyAnsweredIdx(eid)
	if err := q.rdb.HSet(ctx, key, qid, ts.Unix()).Err(); err != nil {
		return commonerrors.NewQueueUnavailableError(err)
	}
	if err := q.rdb.Expire(ctx, key, q.ttl).Err(); err != nil {
		return commonerrors.NewQueueUnavailableError(err)
	}
	return nil
}

// AppendAudit appends an immutable answered record, newest first.
func (q *Queue) AppendAudit(ctx context.Context, eid, qid, question, answer string, ts time.Time) error {
	rec := models.AnswerAudit{
		ClarificationID: qid,
		Question:        question,
		Answer:          answer,
		AnsweredAt:      ts,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return commonerrors.NewQueueUnavailableError(err)
	}

	key := keyAnsweredLog(eid)
	if err := q.rdb.LPush(ctx, key, payload).Err(); err != nil {
		return commonerrors.NewQueueUnavailableError(err)
	}
	if err := q.rdb.Expire(ctx, key, q.ttl).Err(); err != nil {
		return commonerrors.NewQueueUnavailableError(err)
	}
	return nil
}

// RecordAnswer stores the durable question to answer mapping that later
// pipeline runs consume as evidence, independent of queue state.
func (q *Queue) RecordAnswer(ctx context.Context, eid, question, answer string) error {
	key := keyAnswerKV(eid)
	if err := q.rdb.HSet(ctx, key, question, answer).Err(); err != nil {
		return commonerrors.NewQueueUnavailableError(err)
	}
	if err := q.rdb.Expire(ctx, key, q.ttl).Err(); err != nil {
		return commonerrors.NewQueueUnavailableError(err)
	}
	return nil
}

// Answers returns all recorded question to answer pairs for an applicant.
func (q *Queue) Answers(ctx context.Context, eid string) (map[string]string, error) {
	out, err := q.rdb.HGetAll(ctx, keyAnswerKV(eid)).Result()
	if err != nil {
		return nil, commonerrors.NewQueueUnavailableError(err)
	}
	return out, nil
}

// PendingCount returns how many questions are still queued.
func (q *Queue) PendingCount(ctx context.Context, eid string) (int64, error) {
	n, err := q.rdb.LLen(ctx, keyPending(eid)).Result()
	if err != nil {
		return 0, commonerrors.NewQueueUnavailableError(err)
	}
	return n, nil
}

// ListPending returns up to limit queued items, newest first.
func (q *Queue) ListPending(ctx context.Context, eid string, limit int64) ([]Item, error) {
	if limit < 1 {
		limit = 1
	}
	raws, err := q.rdb.LRange(ctx, keyPending(eid), 0, limit-1).Result()
	if err != nil {
		return nil, commonerrors.NewQueueUnavailableError(err)
	}
	items := make([]Item, 0, len(raws))
	for _, raw := range raws {
		it, err := decodeItem(raw)
		if err != nil {
			continue
		}
		items = append(items, *it)
	}
	return items, nil
}

// ListAudit returns up to limit answered records, newest first.
func (q *Queue) ListAudit(ctx context.Context, eid string, limit int64) ([]models.AnswerAudit, error) {
	if limit < 1 {
		limit = 1
	}
	raws, err := q.rdb.LRange(ctx, keyAnsweredLog(eid), 0, limit-1).Result()
	if err != nil {
		return nil, commonerrors.NewQueueUnavailableError(err)
	}
	out := make([]models.AnswerAudit, 0, len(raws))
	for _, raw := range raws {
		var rec models.AnswerAudit
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Reset deletes every clarification key for an applicant.
func (q *Queue) Reset(ctx context.Context, eid string) error {
	keys := []string{
		keyPending(eid),
		keyAnswerKV(eid),
		keyAnsweredIdx(eid),
		keyAnsweredLog(eid),
	}
	if err := q.rdb.Del(ctx, keys...).Err(); err != nil {
		return commonerrors.NewQueueUnavailableError(err)
	}
	return nil
}

func decodeItem(raw string) (*Item, error) {
	var it Item
	if err := json.Unmarshal([]byte(raw), &it); err != nil {
		return nil, commonerrors.NewQueueUnavailableError(err)
	}
	return &it, nil
}
