package canvas

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/suPer8Hu/canvas-platform/internal/ai"
	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/models"
)

func TestPostMessage_EmptyChatGetsZeroAndOne(t *testing.T) {
	svc, gdb, gw := newTestService(t)
	chatID := seedChat(t, gdb, seedWorkspace(t, gdb, 1))

	res, err := svc.PostMessage(context.Background(), 1, chatID, "Hello")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if res.UserMessage.OrderIndex != 0 || res.ModelMessage.OrderIndex != 1 {
		t.Fatalf("unexpected indices user=%d model=%d", res.UserMessage.OrderIndex, res.ModelMessage.OrderIndex)
	}
	if res.ModelMessage.Role != models.RoleModel || res.ModelMessage.Content != "ok" {
		t.Fatalf("unexpected model message: %+v", res.ModelMessage)
	}
	if len(gw.lastHistory) != 0 || gw.lastPrompt != "Hello" {
		t.Fatalf("gateway got history=%v prompt=%q", gw.lastHistory, gw.lastPrompt)
	}

	msgs := allMessages(t, gdb, chatID)
	if len(msgs) != 2 || msgs[0].Role != models.RoleUser || msgs[0].Content != "Hello" {
		t.Fatalf("unexpected stored messages: %+v", msgs)
	}
}

func TestPostMessage_HistoryIsTenPrecedingMessages(t *testing.T) {
	svc, gdb, gw := newTestService(t)
	chatID := seedChat(t, gdb, seedWorkspace(t, gdb, 1))
	seedMessages(t, gdb, chatID, 12)

	res, err := svc.PostMessage(context.Background(), 1, chatID, "new")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if res.UserMessage.OrderIndex != 12 || res.ModelMessage.OrderIndex != 13 {
		t.Fatalf("unexpected indices user=%d model=%d", res.UserMessage.OrderIndex, res.ModelMessage.OrderIndex)
	}
	if len(gw.lastHistory) != MaxHistory {
		t.Fatalf("expected %d history messages, got %d", MaxHistory, len(gw.lastHistory))
	}
	for i, m := range gw.lastHistory {
		if want := fmt.Sprintf("m%d", i+3); m.Content != want {
			t.Fatalf("history[%d] = %q, want %q", i, m.Content, want)
		}
	}
}

func TestPostMessage_ContextWindowOption(t *testing.T) {
	svc, gdb, gw := newTestService(t, WithHistorySize(3))
	chatID := seedChat(t, gdb, seedWorkspace(t, gdb, 1))
	seedMessages(t, gdb, chatID, 5)

	if _, err := svc.PostMessage(context.Background(), 1, chatID, "new"); err != nil {
		t.Fatalf("post: %v", err)
	}
	if len(gw.lastHistory) != 3 || gw.lastHistory[2].Content != "m5" {
		t.Fatalf("unexpected history: %+v", gw.lastHistory)
	}
}

func TestPostMessage_GatewayFailureKeepsUserMessageWithoutGap(t *testing.T) {
	svc, gdb, gw := newTestService(t)
	chatID := seedChat(t, gdb, seedWorkspace(t, gdb, 1))

	gw.err = &ai.GatewayError{Provider: "fake", Err: errors.New("quota")}
	_, err := svc.PostMessage(context.Background(), 1, chatID, "first")
	var turnErr *TurnError
	if !errors.As(err, &turnErr) {
		t.Fatalf("expected TurnError, got %v", err)
	}
	if !apperr.Is(err, apperr.KindGateway) {
		t.Fatalf("expected gateway kind, got %s", apperr.KindOf(err))
	}
	if turnErr.UserMessage.OrderIndex != 0 {
		t.Fatalf("user message index = %d", turnErr.UserMessage.OrderIndex)
	}
	if msgs := allMessages(t, gdb, chatID); len(msgs) != 1 {
		t.Fatalf("expected only the user message, got %d rows", len(msgs))
	}

	gw.err = nil
	res, err := svc.PostMessage(context.Background(), 1, chatID, "second")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if res.UserMessage.OrderIndex != 1 || res.ModelMessage.OrderIndex != 2 {
		t.Fatalf("indices after failure user=%d model=%d", res.UserMessage.OrderIndex, res.ModelMessage.OrderIndex)
	}
	// the earlier unanswered message is part of the context
	if len(gw.lastHistory) != 1 || gw.lastHistory[0].Content != "first" {
		t.Fatalf("unexpected history: %+v", gw.lastHistory)
	}
}

func TestPostMessage_TimeoutIsRetriable(t *testing.T) {
	svc, gdb, gw := newTestService(t)
	chatID := seedChat(t, gdb, seedWorkspace(t, gdb, 1))

	gw.err = fmt.Errorf("%w after 1s", ai.ErrTimeout)
	_, err := svc.PostMessage(context.Background(), 1, chatID, "hi")
	kind := apperr.KindOf(err)
	if kind != apperr.KindTimeout || !apperr.Retriable(kind) {
		t.Fatalf("expected retriable timeout, got %s", kind)
	}
}

func TestPostMessage_Validation(t *testing.T) {
	svc, gdb, gw := newTestService(t)
	chatID := seedChat(t, gdb, seedWorkspace(t, gdb, 1))

	if _, err := svc.PostMessage(context.Background(), 1, "", "hi"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("empty chat id: %v", err)
	}
	if _, err := svc.PostMessage(context.Background(), 1, chatID, "   "); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("empty content: %v", err)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway called on invalid input")
	}
}

func TestPostMessage_OtherOwnerForbidden(t *testing.T) {
	svc, gdb, gw := newTestService(t)
	chatID := seedChat(t, gdb, seedWorkspace(t, gdb, 1))

	if _, err := svc.PostMessage(context.Background(), 2, chatID, "hi"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if gw.calls != 0 || len(allMessages(t, gdb, chatID)) != 0 {
		t.Fatalf("foreign post left traces")
	}
}

func TestListMessages_HidesHiddenAndOrders(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	chatID := seedChat(t, gdb, seedWorkspace(t, gdb, 1))
	msgs := seedMessages(t, gdb, chatID, 4)
	if err := gdb.Model(&models.Message{}).Where("id IN ?", []string{msgs[0].ID, msgs[1].ID}).
		Update("is_hidden", true).Error; err != nil {
		t.Fatalf("hide: %v", err)
	}

	got, err := svc.ListMessages(context.Background(), 1, chatID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Content != "m3" || got[1].Content != "m4" {
		t.Fatalf("unexpected visible messages: %+v", got)
	}

	if _, err := svc.ListMessages(context.Background(), 2, chatID); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.ListMessages(context.Background(), 1, ""); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
}

func TestOrderIndexStaysUniqueAndIncreasing(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	chatID := seedChat(t, gdb, seedWorkspace(t, gdb, 1))

	for i := 0; i < 5; i++ {
		if _, err := svc.PostMessage(context.Background(), 1, chatID, fmt.Sprintf("q%d", i)); err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
	}
	msgs := allMessages(t, gdb, chatID)
	if len(msgs) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.OrderIndex != i {
			t.Fatalf("message %d has order_index %d", i, m.OrderIndex)
		}
	}
}

func TestOrderIndexUnderConcurrentPosts(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	chatID := seedChat(t, gdb, seedWorkspace(t, gdb, 1))

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.PostMessage(context.Background(), 1, chatID, fmt.Sprintf("q%d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent post: %v", err)
	}

	msgs := allMessages(t, gdb, chatID)
	if len(msgs) != 2*n {
		t.Fatalf("expected %d messages, got %d", 2*n, len(msgs))
	}
	for i, m := range msgs {
		if m.OrderIndex != i {
			t.Fatalf("message %d has order_index %d", i, m.OrderIndex)
		}
	}
}

func TestPostMessageStream(t *testing.T) {
	svc, gdb, gw := newTestService(t)
	chatID := seedChat(t, gdb, seedWorkspace(t, gdb, 1))
	gw.chunks = []string{"hel", "lo"}

	turn, err := svc.PostMessageStream(context.Background(), 1, chatID, "hi")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	var got string
	for c := range turn.Chunks {
		got += c
	}
	res := <-turn.Done
	if res.Err != nil {
		t.Fatalf("stream result: %v", res.Err)
	}
	if got != "hello" || res.ModelMessage.Content != "hello" || res.ModelMessage.OrderIndex != 1 {
		t.Fatalf("got=%q model=%+v", got, res.ModelMessage)
	}
}

func TestPostMessageStream_FallsBackToReply(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	chatID := seedChat(t, gdb, seedWorkspace(t, gdb, 1))

	turn, err := svc.PostMessageStream(context.Background(), 1, chatID, "hi")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	var chunks []string
	for c := range turn.Chunks {
		chunks = append(chunks, c)
	}
	res := <-turn.Done
	if res.Err != nil || len(chunks) != 1 || chunks[0] != "ok" {
		t.Fatalf("chunks=%v err=%v", chunks, res.Err)
	}
}

func TestPostMessageStream_ErrorKeepsUserMessage(t *testing.T) {
	svc, gdb, gw := newTestService(t)
	chatID := seedChat(t, gdb, seedWorkspace(t, gdb, 1))
	gw.chunks = []string{"par"}
	gw.err = &ai.GatewayError{Provider: "fake", Err: errors.New("reset")}

	turn, err := svc.PostMessageStream(context.Background(), 1, chatID, "hi")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	for range turn.Chunks {
	}
	res := <-turn.Done
	if !apperr.Is(res.Err, apperr.KindGateway) {
		t.Fatalf("expected gateway error, got %v", res.Err)
	}
	if msgs := allMessages(t, gdb, chatID); len(msgs) != 1 {
		t.Fatalf("partial reply was stored: %+v", msgs)
	}
}
