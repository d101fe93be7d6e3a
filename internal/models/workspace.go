package models

import "time"

const DefaultWorkspaceName = "New Workspace"

type Workspace struct {
	ID        string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	UserID    uint64    `gorm:"index;not null" json:"user_id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (Workspace) TableName() string { return "workspaces" }
