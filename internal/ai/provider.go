package ai

import "context"

// Roles as stored on messages. Providers translate them to their own wire names.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a stateless chat completion backend. messages are oldest first.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// chatCompletionRole maps stored roles onto OpenAI-style role names.
func chatCompletionRole(role string) string {
	if role == RoleModel {
		return "assistant"
	}
	return role
}
