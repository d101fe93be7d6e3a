package canvas

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/suPer8Hu/canvas-platform/internal/ai"
	"github.com/suPer8Hu/canvas-platform/internal/common"
	"github.com/suPer8Hu/canvas-platform/internal/db"
	"github.com/suPer8Hu/canvas-platform/internal/models"
)

type fakeGateway struct {
	mu          sync.Mutex
	calls       int
	lastHistory []ai.Message
	lastPrompt  string
	reply       string
	err         error
	chunks      []string // nil means streaming unsupported
}

func (g *fakeGateway) record(history []ai.Message, prompt string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastHistory = append([]ai.Message(nil), history...)
	g.lastPrompt = prompt
}

func (g *fakeGateway) Reply(ctx context.Context, history []ai.Message, prompt string) (string, error) {
	g.record(history, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *fakeGateway) Stream(ctx context.Context, history []ai.Message, prompt string) (<-chan string, <-chan error, error) {
	if g.chunks == nil {
		return nil, nil, ai.ErrStreamingUnsupported
	}
	g.record(history, prompt)
	out := make(chan string, len(g.chunks))
	errs := make(chan error, 1)
	for _, c := range g.chunks {
		out <- c
	}
	if g.err != nil {
		errs <- g.err
	}
	close(out)
	close(errs)
	return out, errs, nil
}

type fakePublisher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (p *fakePublisher) PublishTurn(ctx context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, jobID)
	return nil
}

func newTestService(t *testing.T, opts ...Option) (*Service, *gorm.DB, *fakeGateway) {
	t.Helper()
	gdb := db.OpenTestDB(t)
	gw := &fakeGateway{reply: "ok"}
	return NewService(NewRepo(gdb), gw, opts...), gdb, gw
}

func seedWorkspace(t *testing.T, gdb *gorm.DB, ownerID uint64) string {
	t.Helper()
	ws := models.Workspace{ID: common.NewULID(), UserID: ownerID, Name: "ws"}
	if err := gdb.Create(&ws).Error; err != nil {
		t.Fatalf("seed workspace: %v", err)
	}
	return ws.ID
}

func seedChat(t *testing.T, gdb *gorm.DB, workspaceID string) string {
	t.Helper()
	c := models.ChatWindow{
		ID:          common.NewULID(),
		WorkspaceID: workspaceID,
		Title:       models.DefaultChatTitle,
		Width:       models.DefaultChatWidth,
		Height:      models.DefaultChatHeight,
	}
	if err := gdb.Create(&c).Error; err != nil {
		t.Fatalf("seed chat: %v", err)
	}
	return c.ID
}

// seedMessages writes m1..mn at order_index 0..n-1, alternating user/model.
func seedMessages(t *testing.T, gdb *gorm.DB, chatID string, n int) []models.Message {
	t.Helper()
	msgs := make([]models.Message, 0, n)
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleModel
		}
		msgs = append(msgs, models.Message{
			ID:         common.NewULID(),
			ChatID:     chatID,
			Role:       role,
			Content:    fmt.Sprintf("m%d", i+1),
			OrderIndex: i,
		})
	}
	if err := gdb.Create(&msgs).Error; err != nil {
		t.Fatalf("seed messages: %v", err)
	}
	return msgs
}

func allMessages(t *testing.T, gdb *gorm.DB, chatID string) []models.Message {
	t.Helper()
	var msgs []models.Message
	if err := gdb.Where("chat_id = ?", chatID).Order("order_index ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	return msgs
}

func count(t *testing.T, gdb *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := gdb.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func ptr[T any](v T) *T { return &v }
