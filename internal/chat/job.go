package chat

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is one async reply generation. The system prompt is resolved when the
// job is enqueued so the worker never needs session state.
type Job struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	UserID         uint64 `gorm:"index;not null;index:uniq_user_idempo,unique,priority:1"`
	ConversationID uint64 `gorm:"index;not null"`

	SystemPrompt string `gorm:"type:text;not null"`
	Prompt       string `gorm:"type:text;not null"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_user_idempo,unique,priority:2"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when succeeded
	ResultMessageID *uint64 `gorm:"index"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Job) TableName() string { return "chat_jobs" }
