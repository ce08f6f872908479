// internal/clarify/queue_test.go
package clarify

import (
	"context"
	"testing"
	"time"

	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEID = "784-1990-1234567-9"

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewQueue(rdb, 12*time.Hour, logger.NewTestLogger(t)), mr
}

func TestQueue_LIFOOrder(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, testEID, "q1", "What is your income?", nil))
	require.NoError(t, q.Push(ctx, testEID, "q2", "What is your address?", nil))

	// The later question is the only one surfaced.
	top, err := q.Peek(ctx, testEID)
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, "q2", top.QID)

	popped, err := q.Pop(ctx, testEID)
	require.NoError(t, err)
	assert.Equal(t, "q2", popped.QID)

	// Only now does the earlier question surface.
	top, err = q.Peek(ctx, testEID)
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, "q1", top.QID)
}

func TestQueue_PeekDoesNotMutate(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, testEID, "q1", "Question?", nil))

	for i := 0; i < 3; i++ {
		top, err := q.Peek(ctx, testEID)
		require.NoError(t, err)
		require.NotNil(t, top)
		assert.Equal(t, "q1", top.QID)
	}

	n, err := q.PendingCount(ctx, testEID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestQueue_EmptyPeekAndPop(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	top, err := q.Peek(ctx, testEID)
	require.NoError(t, err)
	assert.Nil(t, top)

	popped, err := q.Pop(ctx, testEID)
	require.NoError(t, err)
	assert.Nil(t, popped)

	n, err := q.PendingCount(ctx, testEID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestQueue_SinkAdapterCarriesField(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Queue(ctx, testEID, models.PendingQuestion{
		Field:    "declared_monthly_income",
		Question: "What is your actual monthly income?",
	}))

	top, err := q.Peek(ctx, testEID)
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.NotEmpty(t, top.QID)
	assert.Equal(t, "declared_monthly_income", top.Field())
}

func TestQueue_AnswersSurviveQueueState(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.RecordAnswer(ctx, testEID, "What is your income?", "9500"))
	require.NoError(t, q.RecordAnswer(ctx, testEID, "What is your address?", "12 Marina Walk"))

	answers, err := q.Answers(ctx, testEID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"What is your income?":  "9500",
		"What is your address?": "12 Marina Walk",
	}, answers)
}

func TestQueue_MarkAnsweredIsIdempotent(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	ts := time.Now()

	require.NoError(t, q.MarkAnswered(ctx, testEID, "q1", ts))
	require.NoError(t, q.MarkAnswered(ctx, testEID, "q1", ts))
}

func TestQueue_AuditTrail(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, q.AppendAudit(ctx, testEID, "q1", "Income?", "9500", ts))
	require.NoError(t, q.AppendAudit(ctx, testEID, "q2", "Address?", "Dubai", ts.Add(time.Minute)))

	audit, err := q.ListAudit(ctx, testEID, 10)
	require.NoError(t, err)
	require.Len(t, audit, 2)
	// Newest first.
	assert.Equal(t, "q2", audit[0].ClarificationID)
	assert.Equal(t, "q1", audit[1].ClarificationID)
	assert.Equal(t, "9500", audit[1].Answer)
}

func TestQueue_ListPending(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, testEID, "q1", "first", nil))
	require.NoError(t, q.Push(ctx, testEID, "q2", "second", nil))
	require.NoError(t, q.Push(ctx, testEID, "q3", "third", nil))

	items, err := q.ListPending(ctx, testEID, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "q3", items[0].QID)
	assert.Equal(t, "q2", items[1].QID)
}

func TestQueue_KeysExpire(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, testEID, "q1", "Question?", nil))
	require.NoError(t, q.RecordAnswer(ctx, testEID, "Question?", "Answer"))

	mr.FastForward(13 * time.Hour)

	n, err := q.PendingCount(ctx, testEID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	answers, err := q.Answers(ctx, testEID)
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestQueue_Reset(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, testEID, "q1", "Question?", nil))
	require.NoError(t, q.RecordAnswer(ctx, testEID, "Question?", "Answer"))
	require.NoError(t, q.AppendAudit(ctx, testEID, "q1", "Question?", "Answer", time.Now()))

	require.NoError(t, q.Reset(ctx, testEID))

	n, err := q.PendingCount(ctx, testEID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	answers, err := q.Answers(ctx, testEID)
	require.NoError(t, err)
	assert.Empty(t, answers)
	audit, err := q.ListAudit(ctx, testEID, 10)
	require.NoError(t, err)
	assert.Empty(t, audit)
}
