package canvas

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/suPer8Hu/canvas-platform/internal/ai"
	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/common"
	"github.com/suPer8Hu/canvas-platform/internal/models"
)

type TurnResult struct {
	UserMessage  models.Message
	ModelMessage models.Message
}

// TurnError is returned when the user message was stored but no reply was.
// Err carries the kind (Gateway, Timeout, ...).
type TurnError struct {
	UserMessage models.Message
	Err         *apperr.Error
}

func (e *TurnError) Error() string { return e.Err.Error() }
func (e *TurnError) Unwrap() error { return e.Err }

// ListMessages returns the visible transcript in order_index order.
func (s *Service) ListMessages(ctx context.Context, ownerID uint64, chatID string) ([]models.Message, error) {
	if err := requireID("chat_id", chatID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetOwnedChat(ctx, nil, ownerID, chatID); err != nil {
		if isNotFound(err) {
			return nil, apperr.Forbidden("chat access denied")
		}
		return nil, err
	}
	return s.repo.ListVisibleMessages(ctx, nil, chatID)
}

func validateTurn(chatID, content string) error {
	if strings.TrimSpace(chatID) == "" || strings.TrimSpace(content) == "" {
		return apperr.Validation("chat_id and content are required")
	}
	return nil
}

// insertUserTurn locks the chat, reads the history preceding the new message
// and stores the user message at max+1. Run it inside a transaction.
func (s *Service) insertUserTurn(ctx context.Context, tx *gorm.DB, ownerID uint64, chatID, content string) (*models.Message, []ai.Message, error) {
	if _, err := s.repo.GetOwnedChat(ctx, tx, ownerID, chatID); err != nil {
		if isNotFound(err) {
			return nil, nil, apperr.Forbidden("chat access denied")
		}
		return nil, nil, err
	}
	if err := s.repo.LockChat(ctx, tx, chatID); err != nil {
		return nil, nil, err
	}
	last, err := s.repo.MaxOrderIndex(ctx, tx, chatID)
	if err != nil {
		return nil, nil, err
	}
	history, err := s.repo.RecentMessages(ctx, tx, chatID, s.historySize, -1)
	if err != nil {
		return nil, nil, err
	}
	msg := &models.Message{
		ID:         common.NewULID(),
		ChatID:     chatID,
		Role:       models.RoleUser,
		Content:    content,
		OrderIndex: last + 1,
	}
	if err := s.repo.InsertMessage(ctx, tx, msg); err != nil {
		return nil, nil, err
	}
	return msg, toAIMessages(history), nil
}

func (s *Service) beginTurn(ctx context.Context, ownerID uint64, chatID, content string) (*models.Message, []ai.Message, error) {
	var (
		msg     *models.Message
		history []ai.Message
	)
	err := s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		msg, history, err = s.insertUserTurn(ctx, tx, ownerID, chatID, content)
		return err
	})
	return msg, history, err
}

// appendModelMessage stores a reply at the chat's current max+1.
func (s *Service) appendModelMessage(ctx context.Context, chatID, content string) (*models.Message, error) {
	var msg *models.Message
	err := s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		msg, err = s.appendModelMessageTx(ctx, tx, chatID, content)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Service) appendModelMessageTx(ctx context.Context, tx *gorm.DB, chatID, content string) (*models.Message, error) {
	if err := s.repo.LockChat(ctx, tx, chatID); err != nil {
		return nil, err
	}
	last, err := s.repo.MaxOrderIndex(ctx, tx, chatID)
	if err != nil {
		return nil, err
	}
	msg := &models.Message{
		ID:         common.NewULID(),
		ChatID:     chatID,
		Role:       models.RoleModel,
		Content:    content,
		OrderIndex: last + 1,
	}
	if err := s.repo.InsertMessage(ctx, tx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func gatewayError(err error) *apperr.Error {
	if errors.Is(err, ai.ErrTimeout) {
		return apperr.Wrap(apperr.KindTimeout, "the language model did not answer in time", err)
	}
	return apperr.Wrap(apperr.KindGateway, "the language model request failed", err)
}

func (s *Service) turnFailed(userMsg *models.Message, err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.From(err)
	}
	s.log.Warn("turn failed",
		"chat_id", userMsg.ChatID,
		"user_message_id", userMsg.ID,
		"kind", ae.Kind,
		"error", err,
	)
	return &TurnError{UserMessage: *userMsg, Err: ae}
}

// PostMessage stores the user message, asks the model outside any
// transaction and stores the reply. On a model failure the user message
// stays and a *TurnError is returned; no placeholder row is written.
func (s *Service) PostMessage(ctx context.Context, ownerID uint64, chatID, content string) (*TurnResult, error) {
	if err := validateTurn(chatID, content); err != nil {
		return nil, err
	}
	userMsg, history, err := s.beginTurn(ctx, ownerID, chatID, content)
	if err != nil {
		return nil, err
	}

	reply, err := s.gateway.Reply(ctx, history, content)
	if err != nil {
		return nil, s.turnFailed(userMsg, gatewayError(err))
	}

	modelMsg, err := s.appendModelMessage(ctx, chatID, reply)
	if err != nil {
		return nil, s.turnFailed(userMsg, err)
	}
	return &TurnResult{UserMessage: *userMsg, ModelMessage: *modelMsg}, nil
}

// StreamTurn is a turn whose reply arrives in chunks. Read Chunks until it is
// closed, then read the single value from Done.
type StreamTurn struct {
	UserMessage models.Message
	Chunks      <-chan string
	Done        <-chan StreamResult
}

type StreamResult struct {
	ModelMessage *models.Message
	Err          error
}

// PostMessageStream is PostMessage with a streamed reply. Validation and
// ownership errors are returned before anything is streamed. Providers
// without streaming are answered as one chunk.
func (s *Service) PostMessageStream(ctx context.Context, ownerID uint64, chatID, content string) (*StreamTurn, error) {
	if err := validateTurn(chatID, content); err != nil {
		return nil, err
	}
	userMsg, history, err := s.beginTurn(ctx, ownerID, chatID, content)
	if err != nil {
		return nil, err
	}

	in, inErrs, err := s.gateway.Stream(ctx, history, content)
	if errors.Is(err, ai.ErrStreamingUnsupported) {
		in, inErrs = s.replyAsStream(ctx, history, content)
	} else if err != nil {
		return nil, s.turnFailed(userMsg, gatewayError(err))
	}

	out := make(chan string, 16)
	done := make(chan StreamResult, 1)
	go func() {
		defer close(done)
		defer close(out)

		var b strings.Builder
		for c := range in {
			b.WriteString(c)
			select {
			case out <- c:
			case <-ctx.Done():
			}
		}
		if err := <-inErrs; err != nil {
			done <- StreamResult{Err: s.turnFailed(userMsg, gatewayError(err))}
			return
		}
		msg, err := s.appendModelMessage(ctx, chatID, b.String())
		if err != nil {
			done <- StreamResult{Err: s.turnFailed(userMsg, err)}
			return
		}
		done <- StreamResult{ModelMessage: msg}
	}()

	return &StreamTurn{UserMessage: *userMsg, Chunks: out, Done: done}, nil
}

func (s *Service) replyAsStream(ctx context.Context, history []ai.Message, prompt string) (<-chan string, <-chan error) {
	chunks := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		reply, err := s.gateway.Reply(ctx, history, prompt)
		if err != nil {
			errs <- err
			return
		}
		chunks <- reply
	}()
	return chunks, errs
}
