package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueJob_StoresUserMessageAndPrompt(t *testing.T) {
	svc, repo := newTestService(t, &scriptedProvider{})
	ctx := context.Background()
	conv, _ := repo.CreateConversation(ctx, 1, "c")

	j, created, err := svc.EnqueueJob(ctx, StreamRequest{UserID: 1, SessionID: "s", ConversationID: conv.ID, Mode: "debug", Message: "segfault in my loop"}, "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, j.ID, 26)
	assert.Equal(t, JobQueued, j.Status)
	assert.Contains(t, j.SystemPrompt, "debugging expert")

	msgs, _ := repo.ListMessages(ctx, conv.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, "segfault in my loop", msgs[0].Content)
}

func TestEnqueueJob_IdempotentKeyStoresOnce(t *testing.T) {
	svc, repo := newTestService(t, &scriptedProvider{})
	ctx := context.Background()
	conv, _ := repo.CreateConversation(ctx, 1, "c")
	req := StreamRequest{UserID: 1, SessionID: "s", ConversationID: conv.ID, Message: "hi"}

	first, created, err := svc.EnqueueJob(ctx, req, "key-1")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := svc.EnqueueJob(ctx, req, "key-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	msgs, _ := repo.ListMessages(ctx, conv.ID)
	assert.Len(t, msgs, 1)
}

func TestEnqueueJob_ForeignConversation(t *testing.T) {
	svc, repo := newTestService(t, &scriptedProvider{})
	ctx := context.Background()
	conv, _ := repo.CreateConversation(ctx, 1, "c")

	_, _, err := svc.EnqueueJob(ctx, StreamRequest{UserID: 2, ConversationID: conv.ID, Message: "hi"}, "")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestGenerateJobReply(t *testing.T) {
	prov := &scriptedProvider{reply: "done"}
	svc, repo := newTestService(t, prov)
	ctx := context.Background()
	conv, _ := repo.CreateConversation(ctx, 1, "c")
	j, _, err := svc.EnqueueJob(ctx, StreamRequest{UserID: 1, SessionID: "s", ConversationID: conv.ID, Message: "q"}, "")
	require.NoError(t, err)

	id, err := svc.GenerateJobReply(ctx, j)
	require.NoError(t, err)
	assert.NotZero(t, id)

	call := prov.lastCall()
	require.Len(t, call, 2)
	assert.Equal(t, j.SystemPrompt, call[0].Content)
	assert.Equal(t, "q", call[1].Content)

	msgs, _ := repo.ListMessages(ctx, conv.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "done", msgs[1].Content)
}

func TestGenerateJobReply_UpstreamFailureIsReplyText(t *testing.T) {
	svc, repo := newTestService(t, &scriptedProvider{err: errors.New("timeout")})
	ctx := context.Background()
	conv, _ := repo.CreateConversation(ctx, 1, "c")
	j, _, _ := svc.EnqueueJob(ctx, StreamRequest{UserID: 1, ConversationID: conv.ID, Message: "q"}, "")

	_, err := svc.GenerateJobReply(ctx, j)
	require.NoError(t, err)
	msgs, _ := repo.ListMessages(ctx, conv.ID)
	assert.Equal(t, "Server Error: timeout", msgs[1].Content)
}

func TestGenerateJobReply_DeletedConversation(t *testing.T) {
	svc, repo := newTestService(t, &scriptedProvider{reply: "x"})
	ctx := context.Background()
	conv, _ := repo.CreateConversation(ctx, 1, "c")
	j, _, _ := svc.EnqueueJob(ctx, StreamRequest{UserID: 1, ConversationID: conv.ID, Message: "q"}, "")
	_, err := repo.DeleteConversation(ctx, conv.ID, 1)
	require.NoError(t, err)

	_, err = svc.GenerateJobReply(ctx, j)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestGetJob_HidesOtherUsers(t *testing.T) {
	svc, repo := newTestService(t, &scriptedProvider{})
	ctx := context.Background()
	conv, _ := repo.CreateConversation(ctx, 1, "c")
	j, _, _ := svc.EnqueueJob(ctx, StreamRequest{UserID: 1, ConversationID: conv.ID, Message: "q"}, "")

	_, err := svc.GetJob(ctx, 2, j.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	got, err := svc.GetJob(ctx, 1, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
}

func TestConversationMessages_ForeignReadsEmpty(t *testing.T) {
	svc, repo := newTestService(t, &scriptedProvider{})
	ctx := context.Background()
	conv, _ := svc.CreateConversation(ctx, 1, "  ")
	assert.Equal(t, "New Chat", conv.Title)
	_, _ = repo.AppendMessage(ctx, conv.ID, RoleUser, "secret")

	msgs, err := svc.ConversationMessages(ctx, 2, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = svc.ConversationMessages(ctx, 1, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
