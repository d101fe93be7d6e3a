package models

import "time"

const (
	DefaultChatTitle  = "New Chat"
	DefaultChatWidth  = 700
	DefaultChatHeight = 500
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ChatWindow is a positioned panel on a workspace canvas.
type ChatWindow struct {
	ID          string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	WorkspaceID string    `gorm:"type:varchar(26);index;not null" json:"workspace_id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	X           float64   `gorm:"column:x_pos;not null;default:0" json:"x_pos"`
	Y           float64   `gorm:"column:y_pos;not null;default:0" json:"y_pos"`
	Width       float64   `gorm:"not null" json:"width"`
	Height      float64   `gorm:"not null" json:"height"`
	ZIndex      int       `gorm:"not null;default:0" json:"z_index"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

func (ChatWindow) TableName() string { return "chats" }

// Message rows are ordered per chat by OrderIndex. Hidden rows are branch
// context seeds: they feed the model but never show in the transcript.
type Message struct {
	ID         string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	ChatID     string    `gorm:"type:varchar(26);not null;uniqueIndex:uniq_msg_chat_order,priority:1" json:"chat_id"`
	Role       string    `gorm:"type:varchar(16);not null" json:"role"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	OrderIndex int       `gorm:"not null;uniqueIndex:uniq_msg_chat_order,priority:2" json:"order_index"`
	IsHidden   bool      `gorm:"not null;default:false" json:"is_hidden"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// Link is the canvas arrow from a highlighted span to the branch it spawned.
type Link struct {
	ID              string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	SourceMessageID string    `gorm:"type:varchar(26);index;not null" json:"source_message_id"`
	StartOffset     int       `gorm:"not null" json:"start_offset"`
	EndOffset       int       `gorm:"not null" json:"end_offset"`
	FromChatID      string    `gorm:"type:varchar(26);index;not null" json:"from_chat_id"`
	ToChatID        string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"to_chat_id"`
	CreatedAt       time.Time `json:"created_at"`
}

func (Link) TableName() string { return "message_links" }
