package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Conversation struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uint64    `gorm:"index;not null" json:"-"`
	Title      string    `gorm:"type:varchar(200);not null" json:"title"`
	IsPublic   bool      `gorm:"not null;default:false" json:"is_public"`
	ShareToken string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"-"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (Conversation) TableName() string { return "conversations" }

// Message rows are append-only; ID order is conversation order.
type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64    `gorm:"index;not null" json:"conversation_id"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Timestamp      time.Time `gorm:"autoCreateTime" json:"timestamp"`
}

func (Message) TableName() string { return "messages" }
