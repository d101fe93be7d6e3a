package canvas

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"

	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/models"
)

func TestCreateChat_Defaults(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	wsID := seedWorkspace(t, gdb, 1)

	res, err := svc.CreateChat(context.Background(), 1, CreateChatInput{WorkspaceID: wsID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c := res.Chat
	if c.Title != models.DefaultChatTitle || c.Width != 700 || c.Height != 500 || c.X != 0 || c.Y != 0 || c.ZIndex != 0 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if res.Outcome != BranchNone || res.LinkID != nil {
		t.Fatalf("plain chat reported a branch: %+v", res)
	}
}

func TestCreateChat_ForeignWorkspaceForbidden(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	wsID := seedWorkspace(t, gdb, 1)

	_, err := svc.CreateChat(context.Background(), 2, CreateChatInput{WorkspaceID: wsID})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if n := count(t, gdb, &models.ChatWindow{}, ""); n != 0 {
		t.Fatalf("chat persisted for foreign workspace")
	}
}

// A chat with 12 messages branches into a chat seeded with messages 3..12.
func TestCreateChat_BranchSeedsLastTenMessages(t *testing.T) {
	svc, gdb, gw := newTestService(t)
	wsID := seedWorkspace(t, gdb, 1)
	parentID := seedChat(t, gdb, wsID)
	parent := seedMessages(t, gdb, parentID, 12)
	source := parent[11]

	res, err := svc.CreateChat(context.Background(), 1, CreateChatInput{
		WorkspaceID: wsID,
		Title:       ptr("Branch"),
		X:           ptr(40.0),
		Y:           ptr(80.0),
		Branch:      &BranchSpec{SourceMessageID: source.ID, StartOffset: 0, EndOffset: 2},
	})
	if err != nil {
		t.Fatalf("branch: %v", err)
	}
	if res.Outcome != BranchCreated || res.LinkID == nil || res.SeedCount != BranchSeedLimit {
		t.Fatalf("unexpected result: %+v", res)
	}

	var link models.Link
	if err := gdb.Take(&link, "id = ?", *res.LinkID).Error; err != nil {
		t.Fatalf("load link: %v", err)
	}
	if link.FromChatID != parentID || link.ToChatID != res.Chat.ID || link.SourceMessageID != source.ID ||
		link.StartOffset != 0 || link.EndOffset != 2 {
		t.Fatalf("unexpected link: %+v", link)
	}

	seed := allMessages(t, gdb, res.Chat.ID)
	if len(seed) != 10 {
		t.Fatalf("expected 10 seed messages, got %d", len(seed))
	}
	for i, m := range seed {
		if !m.IsHidden || m.OrderIndex != i {
			t.Fatalf("seed[%d] hidden=%v index=%d", i, m.IsHidden, m.OrderIndex)
		}
		if want := fmt.Sprintf("m%d", i+3); m.Content != want || m.Role != parent[i+2].Role {
			t.Fatalf("seed[%d] = %s/%q, want %s/%q", i, m.Role, m.Content, parent[i+2].Role, want)
		}
	}

	visible, err := svc.ListMessages(context.Background(), 1, res.Chat.ID)
	if err != nil || len(visible) != 0 {
		t.Fatalf("seed leaked into transcript: %v %+v", err, visible)
	}

	// the first turn in the branch sees the seed and lands after it
	turn, err := svc.PostMessage(context.Background(), 1, res.Chat.ID, "why?")
	if err != nil {
		t.Fatalf("post in branch: %v", err)
	}
	if turn.UserMessage.OrderIndex != 10 || turn.ModelMessage.OrderIndex != 11 {
		t.Fatalf("branch turn indices %d/%d", turn.UserMessage.OrderIndex, turn.ModelMessage.OrderIndex)
	}
	if len(gw.lastHistory) != 10 || gw.lastHistory[0].Content != "m3" {
		t.Fatalf("branch history: %+v", gw.lastHistory)
	}
}

func TestCreateChat_ShortParentSeedsEverything(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	wsID := seedWorkspace(t, gdb, 1)
	parentID := seedChat(t, gdb, wsID)
	parent := seedMessages(t, gdb, parentID, 3)

	res, err := svc.CreateChat(context.Background(), 1, CreateChatInput{
		WorkspaceID: wsID,
		Branch:      &BranchSpec{SourceMessageID: parent[0].ID, StartOffset: 1, EndOffset: 2},
	})
	if err != nil {
		t.Fatalf("branch: %v", err)
	}
	if res.SeedCount != 3 {
		t.Fatalf("expected 3 seed messages, got %d", res.SeedCount)
	}
}

func TestCreateChat_SourceInOtherWorkspaceDegrades(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	wsA := seedWorkspace(t, gdb, 1)
	wsB := seedWorkspace(t, gdb, 1)
	other := seedMessages(t, gdb, seedChat(t, gdb, wsB), 2)

	res, err := svc.CreateChat(context.Background(), 1, CreateChatInput{
		WorkspaceID: wsA,
		Branch:      &BranchSpec{SourceMessageID: other[0].ID, StartOffset: 0, EndOffset: 1},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Outcome != BranchSourceMissing || res.LinkID != nil || res.SeedCount != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if n := count(t, gdb, &models.Link{}, ""); n != 0 {
		t.Fatalf("link created across workspaces")
	}
	if n := count(t, gdb, &models.ChatWindow{}, "id = ?", res.Chat.ID); n != 1 {
		t.Fatalf("plain chat not persisted")
	}
}

func TestCreateChat_OffsetBeyondSourceRollsBack(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	wsID := seedWorkspace(t, gdb, 1)
	parent := seedMessages(t, gdb, seedChat(t, gdb, wsID), 1) // "m1": 2 code units

	_, err := svc.CreateChat(context.Background(), 1, CreateChatInput{
		WorkspaceID: wsID,
		Branch:      &BranchSpec{SourceMessageID: parent[0].ID, StartOffset: 0, EndOffset: 3},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
	if n := count(t, gdb, &models.ChatWindow{}, ""); n != 1 {
		t.Fatalf("expected only the parent chat, got %d", n)
	}
}

func TestCreateChat_OffsetsCountUTF16(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	wsID := seedWorkspace(t, gdb, 1)
	chatID := seedChat(t, gdb, wsID)
	src := models.Message{ID: "01SRC000000000000000000000", ChatID: chatID, Role: models.RoleModel, Content: "a😀b"}
	if err := gdb.Create(&src).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	// "a😀b" is 4 UTF-16 code units
	res, err := svc.CreateChat(context.Background(), 1, CreateChatInput{
		WorkspaceID: wsID,
		Branch:      &BranchSpec{SourceMessageID: src.ID, StartOffset: 1, EndOffset: 4},
	})
	if err != nil || res.Outcome != BranchCreated {
		t.Fatalf("branch on full span: res=%+v err=%v", res, err)
	}
}

func TestCreateChat_AllOrNothing(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	wsID := seedWorkspace(t, gdb, 1)
	parent := seedMessages(t, gdb, seedChat(t, gdb, wsID), 4)

	boom := errors.New("injected failure")
	if err := gdb.Callback().Create().Before("gorm:create").Register("test:fail_seed", func(tx *gorm.DB) {
		if tx.Statement.Table == "messages" {
			_ = tx.AddError(boom)
		}
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	_, err := svc.CreateChat(context.Background(), 1, CreateChatInput{
		WorkspaceID: wsID,
		Branch:      &BranchSpec{SourceMessageID: parent[3].ID, StartOffset: 0, EndOffset: 1},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if n := count(t, gdb, &models.ChatWindow{}, ""); n != 1 {
		t.Fatalf("branch chat survived rollback: %d chats", n)
	}
	if n := count(t, gdb, &models.Link{}, ""); n != 0 {
		t.Fatalf("link survived rollback")
	}
}

func TestParseBranch(t *testing.T) {
	cases := []struct {
		name    string
		src     *string
		start   *int
		end     *int
		wantNil bool
		wantErr bool
	}{
		{name: "absent", wantNil: true},
		{name: "complete", src: ptr("m"), start: ptr(0), end: ptr(3)},
		{name: "empty span", src: ptr("m"), start: ptr(2), end: ptr(2)},
		{name: "missing end", src: ptr("m"), start: ptr(0), wantErr: true},
		{name: "offsets only", start: ptr(0), end: ptr(1), wantErr: true},
		{name: "blank source", src: ptr("  "), start: ptr(0), end: ptr(1), wantErr: true},
		{name: "negative start", src: ptr("m"), start: ptr(-1), end: ptr(1), wantErr: true},
		{name: "start after end", src: ptr("m"), start: ptr(3), end: ptr(1), wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := ParseBranch(tc.src, tc.start, tc.end)
			if tc.wantErr {
				if !apperr.Is(err, apperr.KindValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantNil != (b == nil) {
				t.Fatalf("branch = %+v", b)
			}
		})
	}
}
