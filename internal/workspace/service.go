package workspace

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/canvas"
	"github.com/suPer8Hu/canvas-platform/internal/common"
	"github.com/suPer8Hu/canvas-platform/internal/models"
)

var errNotFound = apperr.NotFound("workspace not found or access denied")

// Service owns workspace lifecycle. Deletes cascade through the canvas tables.
type Service struct {
	db    *gorm.DB
	repo  *Repo
	chats *canvas.Repo
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, repo: NewRepo(db), chats: canvas.NewRepo(db)}
}

func (s *Service) List(ctx context.Context, ownerID uint64) ([]models.Workspace, error) {
	return s.repo.List(ctx, nil, ownerID)
}

// Create uses the default name when name is blank.
func (s *Service) Create(ctx context.Context, ownerID uint64, name string) (*models.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = models.DefaultWorkspaceName
	}
	ws := &models.Workspace{ID: common.NewULID(), UserID: ownerID, Name: name}
	if err := s.repo.Create(ctx, nil, ws); err != nil {
		return nil, err
	}
	return ws, nil
}

func (s *Service) Get(ctx context.Context, ownerID uint64, id string) (*models.Workspace, error) {
	ws, err := s.repo.GetOwned(ctx, nil, ownerID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNotFound
	}
	return ws, err
}

// Rename is idempotent: renaming to the current name succeeds.
func (s *Service) Rename(ctx context.Context, ownerID uint64, id, name string) (*models.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name field is required for renaming")
	}
	var out *models.Workspace
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ws, err := s.repo.GetOwned(ctx, tx, ownerID, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errNotFound
		}
		if err != nil {
			return err
		}
		if ws.Name != name {
			if err := s.repo.UpdateName(ctx, tx, ownerID, id, name); err != nil {
				return err
			}
			ws.Name = name
		}
		out = ws
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, ownerID uint64, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.GetOwned(ctx, tx, ownerID, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errNotFound
			}
			return err
		}
		return s.purge(ctx, tx, []string{id})
	})
}

// PurgeOwner deletes every workspace of ownerID with all of its content.
// It runs on tx so account deletion can share one transaction.
func (s *Service) PurgeOwner(ctx context.Context, tx *gorm.DB, ownerID uint64) error {
	ids, err := s.repo.IDsByOwner(ctx, tx, ownerID)
	if err != nil {
		return err
	}
	return s.purge(ctx, tx, ids)
}

func (s *Service) purge(ctx context.Context, tx *gorm.DB, workspaceIDs []string) error {
	chatIDs, err := s.repo.ChatIDs(ctx, tx, workspaceIDs)
	if err != nil {
		return err
	}
	if err := s.chats.PurgeChats(ctx, tx, chatIDs); err != nil {
		return err
	}
	return s.repo.Delete(ctx, tx, workspaceIDs)
}
