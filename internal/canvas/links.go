package canvas

import (
	"context"

	"github.com/suPer8Hu/canvas-platform/internal/models"
)

// ListLinks returns the arrows drawn from chats of an owned workspace.
// A workspace the caller does not own yields an empty list.
func (s *Service) ListLinks(ctx context.Context, ownerID uint64, workspaceID string) ([]models.Link, error) {
	if err := requireID("workspace_id", workspaceID); err != nil {
		return nil, err
	}
	return s.repo.ListLinks(ctx, nil, ownerID, workspaceID)
}
