package workspace

import (
	"context"

	"gorm.io/gorm"

	"github.com/suPer8Hu/canvas-platform/internal/models"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx)
}

func (r *Repo) List(ctx context.Context, tx *gorm.DB, ownerID uint64) ([]models.Workspace, error) {
	var out []models.Workspace
	err := r.conn(ctx, tx).
		Where("user_id = ?", ownerID).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error
	return out, err
}

func (r *Repo) Create(ctx context.Context, tx *gorm.DB, ws *models.Workspace) error {
	return r.conn(ctx, tx).Create(ws).Error
}

// GetOwned filters by id and owner together, so a foreign id looks missing.
func (r *Repo) GetOwned(ctx context.Context, tx *gorm.DB, ownerID uint64, id string) (*models.Workspace, error) {
	var ws models.Workspace
	err := r.conn(ctx, tx).
		Where("id = ? AND user_id = ?", id, ownerID).
		Take(&ws).Error
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *Repo) UpdateName(ctx context.Context, tx *gorm.DB, ownerID uint64, id, name string) error {
	return r.conn(ctx, tx).Model(&models.Workspace{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Update("name", name).Error
}

func (r *Repo) IDsByOwner(ctx context.Context, tx *gorm.DB, ownerID uint64) ([]string, error) {
	var ids []string
	err := r.conn(ctx, tx).Model(&models.Workspace{}).
		Where("user_id = ?", ownerID).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *Repo) ChatIDs(ctx context.Context, tx *gorm.DB, workspaceIDs []string) ([]string, error) {
	if len(workspaceIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := r.conn(ctx, tx).Model(&models.ChatWindow{}).
		Where("workspace_id IN ?", workspaceIDs).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *Repo) Delete(ctx context.Context, tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.conn(ctx, tx).Where("id IN ?", ids).Delete(&models.Workspace{}).Error
}
