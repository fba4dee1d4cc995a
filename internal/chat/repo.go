package chat

import (
	"context"
	"errors"

	"github.com/suPer8Hu/codemate/internal/common"
	"gorm.io/gorm"
)

// Repo is the conversation store. Every method that targets a conversation
// on behalf of a user filters by owner; a mismatch affects zero rows and is
// not an error.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateConversation(ctx context.Context, ownerID uint64, title string) (*Conversation, error) {
	c := &Conversation{
		UserID:     ownerID,
		Title:      title,
		ShareToken: common.NewToken(),
	}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, storageErr("create conversation", err)
	}
	return c, nil
}

// ListConversations returns the owner's conversations, newest first.
func (r *Repo) ListConversations(ctx context.Context, ownerID uint64) ([]Conversation, error) {
	var out []Conversation
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error; err != nil {
		return nil, storageErr("list conversations", err)
	}
	return out, nil
}

func (r *Repo) GetConversation(ctx context.Context, id, ownerID uint64) (*Conversation, error) {
	var c Conversation
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, storageErr("get conversation", err)
	}
	return &c, nil
}

// GetSharedConversation finds a public conversation by its share token.
func (r *Repo) GetSharedConversation(ctx context.Context, token string) (*Conversation, error) {
	var c Conversation
	err := r.db.WithContext(ctx).
		Where("share_token = ? AND is_public = ?", token, true).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, storageErr("get shared conversation", err)
	}
	return &c, nil
}

// ownedTx runs fn inside a transaction only when the conversation belongs
// to ownerID. It returns 1 when fn ran, 0 on an ownership mismatch.
func (r *Repo) ownedTx(ctx context.Context, op string, id, ownerID uint64, fn func(tx *gorm.DB, c *Conversation) error) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c Conversation
		err := tx.Where("id = ? AND user_id = ?", id, ownerID).First(&c).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(tx, &c); err != nil {
			return err
		}
		affected = 1
		return nil
	})
	if err != nil {
		return 0, storageErr(op, err)
	}
	return affected, nil
}

func (r *Repo) RenameConversation(ctx context.Context, id, ownerID uint64, title string) (int64, error) {
	return r.ownedTx(ctx, "rename conversation", id, ownerID, func(tx *gorm.DB, c *Conversation) error {
		return tx.Model(c).Update("title", title).Error
	})
}

// DeleteConversation removes the conversation and all of its messages in one
// transaction.
func (r *Repo) DeleteConversation(ctx context.Context, id, ownerID uint64) (int64, error) {
	return r.ownedTx(ctx, "delete conversation", id, ownerID, func(tx *gorm.DB, c *Conversation) error {
		if err := tx.Where("conversation_id = ?", c.ID).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(c).Error
	})
}

// ShareConversation makes the conversation public and returns its share
// token. The token is fixed at creation, so repeated shares return the same
// locator.
func (r *Repo) ShareConversation(ctx context.Context, id, ownerID uint64) (string, int64, error) {
	var token string
	n, err := r.ownedTx(ctx, "share conversation", id, ownerID, func(tx *gorm.DB, c *Conversation) error {
		token = c.ShareToken
		return tx.Model(c).Update("is_public", true).Error
	})
	if err != nil {
		return "", 0, err
	}
	return token, n, nil
}

func (r *Repo) AppendMessage(ctx context.Context, conversationID uint64, role, content string) (*Message, error) {
	m := &Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, storageErr("append message", err)
	}
	return m, nil
}

// ListMessages returns messages in ASC id order (oldest -> newest).
func (r *Repo) ListMessages(ctx context.Context, conversationID uint64) ([]Message, error) {
	msgs := make([]Message, 0)
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, storageErr("list messages", err)
	}
	return msgs, nil
}

// Job CRUD
func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return storageErr("create job", r.db.WithContext(ctx).Create(job).Error)
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, storageErr("get job", err)
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return storageErr("mark job running", r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error)
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, assistantMsgID uint64) error {
	return storageErr("mark job succeeded", r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_message_id": assistantMsgID,
			"error":             nil,
		}).Error)
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return storageErr("mark job failed", r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error)
}

func (r *Repo) GetJobByUserAndIdempotencyKey(ctx context.Context, userID uint64, key string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, storageErr("get job by idempotency key", err)
	}
	return &job, nil
}

// CreateJobOrGetExisting tries to create a job, but if (user_id, idempotency_key) already exists,
// it returns the existing job instead.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.CreateJob(ctx, job); err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	createErr := r.db.WithContext(ctx).Create(job).Error
	if createErr == nil {
		return job, true, nil
	}

	existing, err := r.GetJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if err == nil {
		return existing, false, nil
	}
	if errors.Is(err, ErrJobNotFound) {
		return nil, false, storageErr("create job", createErr)
	}
	return nil, false, err
}
