package main

import (
	"context"
	"fmt"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/codemate/internal/ai"
	"github.com/suPer8Hu/codemate/internal/chat"
	"github.com/suPer8Hu/codemate/internal/db"
	"go.uber.org/zap"
)

type replyProvider struct{ reply string }

func (p replyProvider) Chat(context.Context, []ai.Message) (string, error) { return p.reply, nil }

type acker struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
}

func (a *acker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *acker) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		panic("jobs are never requeued")
	}
	a.nacked = append(a.nacked, tag)
	return nil
}

func (a *acker) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

func newTestWorker(t *testing.T) (*worker, *chat.Service) {
	t.Helper()
	gdb, err := db.Connect(db.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo := chat.NewRepo(gdb)
	svc := chat.NewService(repo, replyProvider{reply: "use a map"}, nil, zap.NewNop())
	return &worker{svc: svc, repo: repo, log: zap.NewNop()}, svc
}

func enqueue(t *testing.T, svc *chat.Service, userID uint64) (*chat.Job, uint64) {
	t.Helper()
	ctx := context.Background()
	conv, err := svc.CreateConversation(ctx, userID, "jobs")
	require.NoError(t, err)
	j, created, err := svc.EnqueueJob(ctx, chat.StreamRequest{
		UserID:         userID,
		SessionID:      "s1",
		ConversationID: conv.ID,
		Message:        "how do I dedupe an array?",
	}, "")
	require.NoError(t, err)
	require.True(t, created)
	return j, conv.ID
}

func runDeliveries(t *testing.T, w *worker, bodies ...string) *acker {
	t.Helper()
	a := &acker{}
	msgs := make(chan amqp.Delivery, len(bodies))
	for i, b := range bodies {
		msgs <- amqp.Delivery{Acknowledger: a, DeliveryTag: uint64(i + 1), Body: []byte(b)}
	}
	close(msgs)
	err := w.consume(context.Background(), msgs, 2)
	assert.EqualError(t, err, "delivery channel closed")
	return a
}

func TestWorker_CompletesJob(t *testing.T) {
	w, svc := newTestWorker(t)
	j, convID := enqueue(t, svc, 7)

	a := runDeliveries(t, w, fmt.Sprintf(`{"job_id":%q}`, j.ID))
	assert.Equal(t, []uint64{1}, a.acked)
	assert.Empty(t, a.nacked)

	got, err := svc.GetJob(context.Background(), 7, j.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.JobSucceeded, got.Status)
	require.NotNil(t, got.ResultMessageID)

	msgs, err := svc.ConversationMessages(context.Background(), 7, convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "use a map", msgs[1].Content)
	assert.Equal(t, *got.ResultMessageID, msgs[1].ID)

	// a redelivery does not produce a second reply
	a = runDeliveries(t, w, fmt.Sprintf(`{"job_id":%q}`, j.ID))
	assert.Equal(t, []uint64{1}, a.acked)
	msgs, _ = svc.ConversationMessages(context.Background(), 7, convID)
	assert.Len(t, msgs, 2)
}

func TestWorker_BadMessagesAreDeadLettered(t *testing.T) {
	w, _ := newTestWorker(t)

	a := runDeliveries(t, w, `not json`, `{}`, `{"job_id":"missing"}`)
	assert.Empty(t, a.acked)
	assert.ElementsMatch(t, []uint64{1, 2, 3}, a.nacked)
}

func TestWorker_DeletedConversationFailsJob(t *testing.T) {
	w, svc := newTestWorker(t)
	j, convID := enqueue(t, svc, 9)
	_, err := svc.DeleteConversation(context.Background(), 9, convID)
	require.NoError(t, err)

	a := runDeliveries(t, w, fmt.Sprintf(`{"job_id":%q}`, j.ID))
	assert.Equal(t, []uint64{1}, a.nacked)

	got, err := svc.GetJob(context.Background(), 9, j.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "conversation not found")
}

func TestWorker_FailedJobIsNotRerun(t *testing.T) {
	w, svc := newTestWorker(t)
	j, convID := enqueue(t, svc, 11)
	// publish error after the broker already accepted the message
	require.NoError(t, svc.FailJob(context.Background(), j.ID, "enqueue failed"))

	a := runDeliveries(t, w, fmt.Sprintf(`{"job_id":%q}`, j.ID))
	assert.Equal(t, []uint64{1}, a.acked)
	assert.Empty(t, a.nacked)

	got, err := svc.GetJob(context.Background(), 11, j.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "enqueue failed", *got.Error)
	assert.Nil(t, got.ResultMessageID)

	msgs, err := svc.ConversationMessages(context.Background(), 11, convID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
