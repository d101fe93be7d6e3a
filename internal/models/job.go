package models

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// TurnJob tracks a model reply generated off the request path.
type TurnJob struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	UserID        uint64 `gorm:"index;not null;uniqueIndex:uniq_turn_user_idempo,priority:1" json:"-"`
	ChatID        string `gorm:"size:26;index;not null" json:"chat_id"`
	UserMessageID string `gorm:"size:26;not null" json:"user_message_id"`

	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex:uniq_turn_user_idempo,priority:2" json:"-"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	ResultMessageID *string `gorm:"size:26" json:"result_message_id"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TurnJob) TableName() string { return "turn_jobs" }

// All lists every table in migration order.
func All() []any {
	return []any{&User{}, &Workspace{}, &ChatWindow{}, &Message{}, &Link{}, &TurnJob{}}
}
