package canvas

import (
	"context"
	"strings"
	"unicode/utf16"

	"gorm.io/gorm"

	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/common"
	"github.com/suPer8Hu/canvas-platform/internal/models"
)

type BranchOutcome string

const (
	BranchNone          BranchOutcome = "none"
	BranchCreated       BranchOutcome = "created"
	BranchSourceMissing BranchOutcome = "source_missing"
)

// BranchSpec is the highlighted span a new chat branches from. Offsets count
// UTF-16 code units, the way browsers report selections.
type BranchSpec struct {
	SourceMessageID string
	StartOffset     int
	EndOffset       int
}

func (b BranchSpec) validate() error {
	if strings.TrimSpace(b.SourceMessageID) == "" {
		return apperr.Validation("source_message_id is required")
	}
	if b.StartOffset < 0 || b.StartOffset > b.EndOffset {
		return apperr.Validation("invalid offsets: need 0 <= start_offset <= end_offset")
	}
	return nil
}

// ParseBranch builds a BranchSpec from optional request fields. All three
// absent means a plain chat; some but not all is a validation error.
func ParseBranch(sourceMessageID *string, start, end *int) (*BranchSpec, error) {
	hasSource := sourceMessageID != nil && strings.TrimSpace(*sourceMessageID) != ""
	switch {
	case !hasSource && start == nil && end == nil:
		return nil, nil
	case !hasSource || start == nil || end == nil:
		return nil, apperr.Validation("source_message_id, start_offset and end_offset must be given together")
	}
	b := &BranchSpec{SourceMessageID: strings.TrimSpace(*sourceMessageID), StartOffset: *start, EndOffset: *end}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return b, nil
}

type CreateChatInput struct {
	WorkspaceID string
	Title       *string
	X, Y        *float64
	Width       *float64
	Height      *float64
	Branch      *BranchSpec
}

type CreateChatResult struct {
	Chat    models.ChatWindow
	LinkID  *string
	Outcome BranchOutcome
	// SeedCount is the number of hidden messages copied from the parent.
	SeedCount int
}

func (in CreateChatInput) newChat() (*models.ChatWindow, error) {
	c := &models.ChatWindow{
		ID:          common.NewULID(),
		WorkspaceID: in.WorkspaceID,
		Title:       models.DefaultChatTitle,
		Width:       models.DefaultChatWidth,
		Height:      models.DefaultChatHeight,
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) != "" {
		c.Title = strings.TrimSpace(*in.Title)
	}
	if in.X != nil {
		c.X = *in.X
	}
	if in.Y != nil {
		c.Y = *in.Y
	}
	if in.Width != nil {
		if *in.Width <= 0 {
			return nil, apperr.Validation("width must be positive")
		}
		c.Width = *in.Width
	}
	if in.Height != nil {
		if *in.Height <= 0 {
			return nil, apperr.Validation("height must be positive")
		}
		c.Height = *in.Height
	}
	return c, nil
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if utf16.RuneLen(r) == 2 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// CreateChat creates a chat window and, for a branch, the link and the hidden
// context seed, all in one transaction. A branch source that cannot be found
// in the same workspace degrades to a plain chat (Outcome BranchSourceMissing).
func (s *Service) CreateChat(ctx context.Context, ownerID uint64, in CreateChatInput) (*CreateChatResult, error) {
	if err := requireID("workspace_id", in.WorkspaceID); err != nil {
		return nil, err
	}
	if in.Branch != nil {
		if err := in.Branch.validate(); err != nil {
			return nil, err
		}
	}
	chat, err := in.newChat()
	if err != nil {
		return nil, err
	}

	res := &CreateChatResult{Outcome: BranchNone}
	err = s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned, err := s.repo.WorkspaceOwned(ctx, tx, ownerID, in.WorkspaceID)
		if err != nil {
			return err
		}
		if !owned {
			return apperr.Forbidden("workspace access denied")
		}
		if err := s.repo.CreateChat(ctx, tx, chat); err != nil {
			return err
		}
		if in.Branch == nil {
			return nil
		}

		src, err := s.repo.FindMessageInWorkspace(ctx, tx, in.Branch.SourceMessageID, in.WorkspaceID)
		if isNotFound(err) {
			res.Outcome = BranchSourceMissing
			return nil
		}
		if err != nil {
			return err
		}
		if in.Branch.EndOffset > utf16Len(src.Content) {
			return apperr.Validation("end_offset is beyond the source message")
		}

		link := &models.Link{
			ID:              common.NewULID(),
			SourceMessageID: src.ID,
			StartOffset:     in.Branch.StartOffset,
			EndOffset:       in.Branch.EndOffset,
			FromChatID:      src.ChatID,
			ToChatID:        chat.ID,
		}
		if err := s.repo.CreateLink(ctx, tx, link); err != nil {
			return err
		}

		parent, err := s.repo.RecentMessages(ctx, tx, src.ChatID, BranchSeedLimit, -1)
		if err != nil {
			return err
		}
		seed := make([]models.Message, 0, len(parent))
		for i, m := range parent {
			seed = append(seed, models.Message{
				ID:         common.NewULID(),
				ChatID:     chat.ID,
				Role:       m.Role,
				Content:    m.Content,
				OrderIndex: i,
				IsHidden:   true,
			})
		}
		if err := s.repo.InsertMessages(ctx, tx, seed); err != nil {
			return err
		}

		res.LinkID = &link.ID
		res.Outcome = BranchCreated
		res.SeedCount = len(seed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Chat = *chat
	s.metrics.ObserveChatCreated(string(res.Outcome))
	if res.Outcome != BranchNone {
		s.log.Info("chat branched",
			"chat_id", chat.ID,
			"workspace_id", chat.WorkspaceID,
			"outcome", res.Outcome,
			"seed", res.SeedCount,
		)
	}
	return res, nil
}
