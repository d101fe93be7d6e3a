package canvas

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/suPer8Hu/canvas-platform/internal/models"
)

// Repo is the gorm access layer for chats, messages, links and turn jobs.
// Methods taking a tx run on it when non-nil, so callers compose them inside
// one transaction; nil means the base handle.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) DB() *gorm.DB { return r.db }

func (r *Repo) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx)
}

func (r *Repo) WorkspaceOwned(ctx context.Context, tx *gorm.DB, ownerID uint64, workspaceID string) (bool, error) {
	var n int64
	err := r.conn(ctx, tx).Model(&models.Workspace{}).
		Where("id = ? AND user_id = ?", workspaceID, ownerID).
		Count(&n).Error
	return n > 0, err
}

// ---- chats ----

func (r *Repo) CreateChat(ctx context.Context, tx *gorm.DB, c *models.ChatWindow) error {
	return r.conn(ctx, tx).Create(c).Error
}

func (r *Repo) ListChats(ctx context.Context, tx *gorm.DB, workspaceID string) ([]models.ChatWindow, error) {
	var out []models.ChatWindow
	err := r.conn(ctx, tx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error
	return out, err
}

// GetOwnedChat returns gorm.ErrRecordNotFound when the chat is missing or
// its workspace belongs to someone else.
func (r *Repo) GetOwnedChat(ctx context.Context, tx *gorm.DB, ownerID uint64, chatID string) (*models.ChatWindow, error) {
	var c models.ChatWindow
	err := r.conn(ctx, tx).
		Joins("JOIN workspaces ON workspaces.id = chats.workspace_id").
		Where("chats.id = ? AND workspaces.user_id = ?", chatID, ownerID).
		Take(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// LockChat takes the per-chat row lock that serializes order_index allocation.
// SQLite has no row locks and serializes writers instead.
func (r *Repo) LockChat(ctx context.Context, tx *gorm.DB, chatID string) error {
	var c models.ChatWindow
	return r.conn(ctx, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", chatID).
		Take(&c).Error
}

func (r *Repo) UpdateChat(ctx context.Context, tx *gorm.DB, chatID string, fields map[string]any) error {
	return r.conn(ctx, tx).Model(&models.ChatWindow{}).
		Where("id = ?", chatID).
		Updates(fields).Error
}

func (r *Repo) GetChat(ctx context.Context, tx *gorm.DB, chatID string) (*models.ChatWindow, error) {
	var c models.ChatWindow
	if err := r.conn(ctx, tx).Take(&c, "id = ?", chatID).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// PurgeChats removes chats with their messages, every link touching them and
// their turn jobs. Run it inside a transaction.
func (r *Repo) PurgeChats(ctx context.Context, tx *gorm.DB, chatIDs []string) error {
	if len(chatIDs) == 0 {
		return nil
	}
	db := r.conn(ctx, tx)
	steps := []struct {
		model any
		where string
		args  []any
	}{
		{&models.Link{}, "from_chat_id IN ? OR to_chat_id IN ?", []any{chatIDs, chatIDs}},
		{&models.TurnJob{}, "chat_id IN ?", []any{chatIDs}},
		{&models.Message{}, "chat_id IN ?", []any{chatIDs}},
		{&models.ChatWindow{}, "id IN ?", []any{chatIDs}},
	}
	for _, s := range steps {
		if err := db.Where(s.where, s.args...).Delete(s.model).Error; err != nil {
			return err
		}
	}
	return nil
}

// ---- messages ----

// MaxOrderIndex returns -1 for an empty chat.
func (r *Repo) MaxOrderIndex(ctx context.Context, tx *gorm.DB, chatID string) (int, error) {
	var last int
	err := r.conn(ctx, tx).Model(&models.Message{}).
		Where("chat_id = ?", chatID).
		Select("COALESCE(MAX(order_index), -1)").
		Row().Scan(&last)
	if err != nil {
		return 0, err
	}
	return last, nil
}

// RecentMessages returns up to limit messages (hidden included) in ascending
// order. With beforeIndex >= 0 only rows below that index are considered.
func (r *Repo) RecentMessages(ctx context.Context, tx *gorm.DB, chatID string, limit, beforeIndex int) ([]models.Message, error) {
	q := r.conn(ctx, tx).
		Where("chat_id = ?", chatID).
		Order("order_index DESC").
		Limit(limit)
	if beforeIndex >= 0 {
		q = q.Where("order_index < ?", beforeIndex)
	}
	var desc []models.Message
	if err := q.Find(&desc).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(desc)-1; i < j; i, j = i+1, j-1 {
		desc[i], desc[j] = desc[j], desc[i]
	}
	return desc, nil
}

func (r *Repo) InsertMessages(ctx context.Context, tx *gorm.DB, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return r.conn(ctx, tx).Create(&msgs).Error
}

func (r *Repo) InsertMessage(ctx context.Context, tx *gorm.DB, m *models.Message) error {
	return r.conn(ctx, tx).Create(m).Error
}

func (r *Repo) GetMessage(ctx context.Context, tx *gorm.DB, id string) (*models.Message, error) {
	var m models.Message
	if err := r.conn(ctx, tx).Take(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) ListVisibleMessages(ctx context.Context, tx *gorm.DB, chatID string) ([]models.Message, error) {
	var out []models.Message
	err := r.conn(ctx, tx).
		Where("chat_id = ? AND is_hidden = ?", chatID, false).
		Order("order_index ASC").
		Find(&out).Error
	return out, err
}

// FindMessageInWorkspace resolves a branch source. Messages of chats in other
// workspaces are reported as not found.
func (r *Repo) FindMessageInWorkspace(ctx context.Context, tx *gorm.DB, messageID, workspaceID string) (*models.Message, error) {
	var m models.Message
	err := r.conn(ctx, tx).
		Joins("JOIN chats ON chats.id = messages.chat_id").
		Where("messages.id = ? AND chats.workspace_id = ?", messageID, workspaceID).
		Take(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ---- links ----

func (r *Repo) CreateLink(ctx context.Context, tx *gorm.DB, l *models.Link) error {
	return r.conn(ctx, tx).Create(l).Error
}

func (r *Repo) ListLinks(ctx context.Context, tx *gorm.DB, ownerID uint64, workspaceID string) ([]models.Link, error) {
	var out []models.Link
	err := r.conn(ctx, tx).
		Joins("JOIN chats ON chats.id = message_links.from_chat_id").
		Joins("JOIN workspaces ON workspaces.id = chats.workspace_id").
		Where("workspaces.id = ? AND workspaces.user_id = ?", workspaceID, ownerID).
		Order("message_links.created_at ASC").Order("message_links.id ASC").
		Find(&out).Error
	return out, err
}

// ---- turn jobs ----

func (r *Repo) GetJob(ctx context.Context, tx *gorm.DB, id string) (*models.TurnJob, error) {
	var j models.TurnJob
	if err := r.conn(ctx, tx).Take(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) GetJobByIdempotencyKey(ctx context.Context, tx *gorm.DB, userID uint64, key string) (*models.TurnJob, error) {
	var j models.TurnJob
	err := r.conn(ctx, tx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		Take(&j).Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) CreateJob(ctx context.Context, tx *gorm.DB, j *models.TurnJob) error {
	return r.conn(ctx, tx).Create(j).Error
}

// MarkJobRunning claims a job for one run. Queued jobs are claimed, and so
// are running jobs not touched since staleBefore, whose worker is presumed
// dead. It reports false otherwise, so a redelivered message does not run a
// turn twice.
func (r *Repo) MarkJobRunning(ctx context.Context, tx *gorm.DB, id string, staleBefore time.Time) (bool, error) {
	res := r.conn(ctx, tx).Model(&models.TurnJob{}).
		Where("id = ?", id).
		Where("status = ? OR (status = ? AND updated_at < ?)", models.JobQueued, models.JobRunning, staleBefore).
		Update("status", models.JobRunning)
	return res.RowsAffected > 0, res.Error
}

// MarkJobQueued hands a job back for another attempt after a transient failure.
func (r *Repo) MarkJobQueued(ctx context.Context, tx *gorm.DB, id, errMsg string) error {
	return r.conn(ctx, tx).Model(&models.TurnJob{}).
		Where("id = ? AND status = ?", id, models.JobRunning).
		Updates(map[string]any{
			"status": models.JobQueued,
			"error":  errMsg,
		}).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, tx *gorm.DB, id, resultMessageID string) error {
	return r.conn(ctx, tx).Model(&models.TurnJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            models.JobSucceeded,
			"result_message_id": resultMessageID,
			"error":             nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, tx *gorm.DB, id, errMsg string) error {
	return r.conn(ctx, tx).Model(&models.TurnJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            models.JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error
}

func isNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }
