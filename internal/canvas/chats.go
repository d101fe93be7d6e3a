package canvas

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/models"
)

// LayoutPatch carries the window fields a client may change. Nil fields are left alone.
type LayoutPatch struct {
	X      *float64 `json:"x_pos"`
	Y      *float64 `json:"y_pos"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
	ZIndex *int     `json:"z_index"`
	Title  *string  `json:"title"`
}

func (p LayoutPatch) Empty() bool {
	return p.X == nil && p.Y == nil && p.Width == nil && p.Height == nil && p.ZIndex == nil && p.Title == nil
}

func (p LayoutPatch) fields() (map[string]any, error) {
	if p.Empty() {
		return nil, apperr.Validation("no valid fields provided")
	}
	f := make(map[string]any, 6)
	if p.X != nil {
		f["x_pos"] = *p.X
	}
	if p.Y != nil {
		f["y_pos"] = *p.Y
	}
	if p.Width != nil {
		if *p.Width <= 0 {
			return nil, apperr.Validation("width must be positive")
		}
		f["width"] = *p.Width
	}
	if p.Height != nil {
		if *p.Height <= 0 {
			return nil, apperr.Validation("height must be positive")
		}
		f["height"] = *p.Height
	}
	if p.ZIndex != nil {
		f["z_index"] = *p.ZIndex
	}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return nil, apperr.Validation("title must not be empty")
		}
		f["title"] = t
	}
	return f, nil
}

func (s *Service) ListChats(ctx context.Context, ownerID uint64, workspaceID string) ([]models.ChatWindow, error) {
	if err := requireID("workspace_id", workspaceID); err != nil {
		return nil, err
	}
	owned, err := s.repo.WorkspaceOwned(ctx, nil, ownerID, workspaceID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, apperr.Forbidden("workspace access denied")
	}
	return s.repo.ListChats(ctx, nil, workspaceID)
}

// UpdateLayout writes only the fields present in patch and returns the updated chat.
func (s *Service) UpdateLayout(ctx context.Context, ownerID uint64, chatID string, patch LayoutPatch) (*models.ChatWindow, error) {
	if err := requireID("chat id", chatID); err != nil {
		return nil, err
	}
	fields, err := patch.fields()
	if err != nil {
		return nil, err
	}

	var out *models.ChatWindow
	err = s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.GetOwnedChat(ctx, tx, ownerID, chatID); err != nil {
			if isNotFound(err) {
				return apperr.Forbidden("chat access denied")
			}
			return err
		}
		if err := s.repo.UpdateChat(ctx, tx, chatID, fields); err != nil {
			return err
		}
		c, err := s.repo.GetChat(ctx, tx, chatID)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteChat removes the chat with its messages, links and jobs.
func (s *Service) DeleteChat(ctx context.Context, ownerID uint64, chatID string) error {
	if err := requireID("chat id", chatID); err != nil {
		return err
	}
	return s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.GetOwnedChat(ctx, tx, ownerID, chatID); err != nil {
			if isNotFound(err) {
				return apperr.NotFound("chat not found or access denied")
			}
			return err
		}
		return s.repo.PurgeChats(ctx, tx, []string{chatID})
	})
}
