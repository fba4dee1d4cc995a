package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/suPer8Hu/codemate/internal/ai"
	"github.com/suPer8Hu/codemate/internal/common"
	"github.com/suPer8Hu/codemate/internal/prompt"
	"go.uber.org/zap"
)

// Fixed replies of the batch endpoint.
const (
	ReplyNoMessage     = "No message received."
	ReplyRefusal       = "❌ I only answer programming and development questions."
	ReplyMissingAPIKey = "❌ API key not found. Check your .env file."
	ReplySelectChat    = "⚠️ Please select or create a chat first."
)

type Service struct {
	repo     *Repo
	provider ai.Provider
	topics   TopicStore
	log      *zap.Logger
}

func NewService(repo *Repo, provider ai.Provider, topics TopicStore, log *zap.Logger) *Service {
	if topics == nil {
		topics = NewMemoryTopicStore()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, provider: provider, topics: topics, log: log}
}

// diagnostic turns an upstream failure into reply text.
func diagnostic(err error) string {
	if errors.Is(err, ai.ErrMissingAPIKey) {
		return ReplyMissingAPIKey
	}
	var respErr *ai.ResponseError
	if errors.As(err, &respErr) {
		return "API Error: " + respErr.Raw
	}
	return "Server Error: " + err.Error()
}

// Ask is the batch relay: gate, one system + one user message, one reply.
// It never fails; every problem comes back as reply text.
func (s *Service) Ask(ctx context.Context, message string) string {
	if strings.TrimSpace(message) == "" {
		return ReplyNoMessage
	}
	if !IsCodingQuestion(message) {
		return ReplyRefusal
	}

	reply, err := s.provider.Chat(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: prompt.Strict},
		{Role: ai.RoleUser, Content: message},
	})
	if err != nil {
		s.log.Warn("upstream chat failed", zap.Error(err))
		return diagnostic(err)
	}
	return reply
}

// resolvePrompt applies the mode router. Interview mode reads the session
// topic and stores it the first time; if another request stored one in the
// meantime, that topic wins.
func (s *Service) resolvePrompt(ctx context.Context, sessionID, mode, message string) (string, error) {
	if !prompt.IsInterview(mode) {
		p, _ := prompt.Resolve(mode, message, "")
		return p, nil
	}

	topic, err := s.topics.GetTopic(ctx, sessionID)
	if err != nil {
		return "", storageErr("get interview topic", err)
	}
	p, next := prompt.Resolve(mode, message, topic)
	if topic != "" {
		return p, nil
	}

	stored, err := s.topics.SetTopicNX(ctx, sessionID, next)
	if err != nil {
		return "", storageErr("set interview topic", err)
	}
	if stored {
		return p, nil
	}
	if topic, err = s.topics.GetTopic(ctx, sessionID); err != nil {
		return "", storageErr("get interview topic", err)
	}
	p, _ = prompt.Resolve(mode, message, topic)
	return p, nil
}

// EndInterview clears the session's interview topic; the next interview
// message starts a new one.
func (s *Service) EndInterview(ctx context.Context, sessionID string) error {
	return storageErr("clear interview topic", s.topics.ClearTopic(ctx, sessionID))
}

type StreamRequest struct {
	UserID         uint64
	SessionID      string
	ConversationID uint64
	Mode           string
	Message        string
}

// Stream is one in-flight streamed reply. Read Chunks until it is closed,
// then Wait for the persisted assistant message.
type Stream struct {
	chunks    chan string
	done      chan struct{}
	messageID uint64
	err       error
}

func (st *Stream) Chunks() <-chan string { return st.chunks }

// Wait blocks until the assistant message is stored.
func (st *Stream) Wait() (uint64, error) {
	<-st.done
	return st.messageID, st.err
}

// StartStream validates the conversation, stores the user message and starts
// relaying. Errors returned here happen before any chunk is produced.
func (s *Service) StartStream(ctx context.Context, req StreamRequest) (*Stream, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if _, err := s.repo.GetConversation(ctx, req.ConversationID, req.UserID); err != nil {
		return nil, err
	}

	systemPrompt, err := s.resolvePrompt(ctx, req.SessionID, req.Mode, req.Message)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.AppendMessage(ctx, req.ConversationID, RoleUser, req.Message); err != nil {
		return nil, err
	}

	st := &Stream{
		chunks: make(chan string, 16),
		done:   make(chan struct{}),
	}
	msgs := []ai.Message{
		{Role: ai.RoleSystem, Content: systemPrompt},
		{Role: ai.RoleUser, Content: req.Message},
	}
	go s.relay(ctx, req.ConversationID, msgs, st)
	return st, nil
}

func (s *Service) relay(ctx context.Context, conversationID uint64, msgs []ai.Message, st *Stream) {
	defer close(st.done)
	defer close(st.chunks)

	forward := func(c string) bool {
		select {
		case st.chunks <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var b strings.Builder
	var upstreamErr error

	if sp, ok := s.provider.(ai.StreamProvider); ok {
		pChunks, pErrs := sp.StreamChat(ctx, msgs)
		for c := range pChunks {
			b.WriteString(c)
			if !forward(c) {
				break
			}
		}
		// provider goroutine stops on ctx; drain so it can close
		for range pChunks {
		}
		upstreamErr = <-pErrs
	} else {
		reply, err := s.provider.Chat(ctx, msgs)
		if err == nil && reply != "" {
			b.WriteString(reply)
			forward(reply)
		}
		upstreamErr = err
	}

	if upstreamErr != nil && ctx.Err() == nil {
		s.log.Warn("upstream stream failed",
			zap.Uint64("conversation_id", conversationID),
			zap.Error(upstreamErr),
		)
		d := diagnostic(upstreamErr)
		if b.Len() > 0 {
			d = "\n\n" + d
		}
		b.WriteString(d)
		forward(d)
	}

	// the client may be gone; the transcript is still written once
	m, err := s.repo.AppendMessage(context.WithoutCancel(ctx), conversationID, RoleAssistant, b.String())
	if err != nil {
		s.log.Error("persist assistant message failed",
			zap.Uint64("conversation_id", conversationID),
			zap.Error(err),
		)
		st.err = err
		return
	}
	st.messageID = m.ID
	if ctx.Err() != nil {
		s.log.Info("stream cancelled by client, partial reply stored",
			zap.Uint64("conversation_id", conversationID),
			zap.Uint64("message_id", m.ID),
			zap.Int("bytes", b.Len()),
		)
	}
}

// Conversation management. Ownership mismatches return zero affected rows.

func (s *Service) CreateConversation(ctx context.Context, userID uint64, title string) (*Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New Chat"
	}
	return s.repo.CreateConversation(ctx, userID, title)
}

func (s *Service) ListConversations(ctx context.Context, userID uint64) ([]Conversation, error) {
	return s.repo.ListConversations(ctx, userID)
}

func (s *Service) RenameConversation(ctx context.Context, userID, conversationID uint64, title string) (bool, error) {
	n, err := s.repo.RenameConversation(ctx, conversationID, userID, strings.TrimSpace(title))
	return n > 0, err
}

func (s *Service) DeleteConversation(ctx context.Context, userID, conversationID uint64) (bool, error) {
	n, err := s.repo.DeleteConversation(ctx, conversationID, userID)
	return n > 0, err
}

// ShareConversation returns the share token, or "" when the caller does not
// own the conversation.
func (s *Service) ShareConversation(ctx context.Context, userID, conversationID uint64) (string, error) {
	token, _, err := s.repo.ShareConversation(ctx, conversationID, userID)
	return token, err
}

// ConversationMessages lists the messages of an owned conversation. A
// conversation the caller does not own reads as empty.
func (s *Service) ConversationMessages(ctx context.Context, userID, conversationID uint64) ([]Message, error) {
	if _, err := s.repo.GetConversation(ctx, conversationID, userID); err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return []Message{}, nil
		}
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID)
}

func (s *Service) SharedConversation(ctx context.Context, token string) (*Conversation, []Message, error) {
	c, err := s.repo.GetSharedConversation(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return c, msgs, nil
}

// Async jobs

// EnqueueJob stores the user message and a queued job. With an idempotency
// key, a repeated request returns the first job and stores nothing; created
// tells the caller whether the job still has to be published.
func (s *Service) EnqueueJob(ctx context.Context, req StreamRequest, idempotencyKey string) (*Job, bool, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, false, ErrEmptyMessage
	}
	if idempotencyKey != "" {
		j, err := s.repo.GetJobByUserAndIdempotencyKey(ctx, req.UserID, idempotencyKey)
		if err == nil {
			return j, false, nil
		}
		if !errors.Is(err, ErrJobNotFound) {
			return nil, false, err
		}
	}

	if _, err := s.repo.GetConversation(ctx, req.ConversationID, req.UserID); err != nil {
		return nil, false, err
	}
	systemPrompt, err := s.resolvePrompt(ctx, req.SessionID, req.Mode, req.Message)
	if err != nil {
		return nil, false, err
	}
	if _, err := s.repo.AppendMessage(ctx, req.ConversationID, RoleUser, req.Message); err != nil {
		return nil, false, err
	}

	jobID, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}
	j := &Job{
		ID:             jobID,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		SystemPrompt:   systemPrompt,
		Prompt:         req.Message,
		Status:         JobQueued,
	}
	if idempotencyKey != "" {
		j.IdempotencyKey = &idempotencyKey
	}
	return s.repo.CreateJobOrGetExisting(ctx, j)
}

// GetJob hides jobs of other users.
func (s *Service) GetJob(ctx context.Context, userID uint64, jobID string) (*Job, error) {
	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.UserID != userID {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// FailJob records a job that could not be handed to the queue.
func (s *Service) FailJob(ctx context.Context, jobID, reason string) error {
	return s.repo.MarkJobFailed(ctx, jobID, reason)
}

// GenerateJobReply runs the batch relay for a job and stores the reply.
// Upstream failures become the reply text, like Ask.
func (s *Service) GenerateJobReply(ctx context.Context, j *Job) (uint64, error) {
	if _, err := s.repo.GetConversation(ctx, j.ConversationID, j.UserID); err != nil {
		return 0, err
	}

	reply, err := s.provider.Chat(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: j.SystemPrompt},
		{Role: ai.RoleUser, Content: j.Prompt},
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		s.log.Warn("upstream chat failed", zap.String("job_id", j.ID), zap.Error(err))
		reply = diagnostic(err)
	}

	m, err := s.repo.AppendMessage(ctx, j.ConversationID, RoleAssistant, reply)
	if err != nil {
		return 0, err
	}
	return m.ID, nil
}
