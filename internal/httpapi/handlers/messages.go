package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/canvas"
	"github.com/suPer8Hu/canvas-platform/internal/common"
	"github.com/suPer8Hu/canvas-platform/internal/models"
)

type postMessageReq struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

func modelMessageBody(m models.Message) gin.H {
	return gin.H{
		"id":         m.ID,
		"role":       m.Role,
		"content":    m.Content,
		"created_at": m.CreatedAt,
	}
}

func (h *Handler) ListMessages(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	msgs, err := h.Canvas.ListMessages(c.Request.Context(), uid, c.Query("chat_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, msgs)
}

func (h *Handler) PostMessage(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req postMessageReq
	if !bindJSON(c, &req, false) {
		return
	}
	res, err := h.Canvas.PostMessage(c.Request.Context(), uid, req.ChatID, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"user_message_id": res.UserMessage.ID,
		"model_message":   modelMessageBody(res.ModelMessage),
	})
}

// PostMessageStream answers over SSE. Errors found before the user message is
// stored are plain JSON responses; later ones arrive as an "error" event.
func (h *Handler) PostMessageStream(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req postMessageReq
	if !bindJSON(c, &req, false) {
		return
	}

	ctx := c.Request.Context()
	turn, err := h.Canvas.PostMessageStream(ctx, uid, req.ChatID, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		common.Fail(c, http.StatusInternalServerError, string(apperr.KindInternal), "streaming not supported")
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	writeEvent := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			// keep SSE framing intact
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"error\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b)
		flusher.Flush()
	}

	writeEvent("user_message", gin.H{"type": "user_message", "user_message_id": turn.UserMessage.ID})

	ping := h.StreamPing
	if ping <= 0 {
		ping = defaultStreamPing
	}
	ticker := time.NewTicker(ping)
	defer ticker.Stop()

	chunks := turn.Chunks
	// Done can win the select while chunks are still buffered
	drain := func() {
		if chunks == nil {
			return
		}
		for ch := range chunks {
			writeEvent("chunk", gin.H{"type": "chunk", "delta": ch})
		}
		chunks = nil
	}
	for {
		select {
		case ch, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			writeEvent("chunk", gin.H{"type": "chunk", "delta": ch})

		case <-ticker.C:
			writeEvent("ping", gin.H{"type": "ping", "ts": time.Now().Unix()})

		case res, ok := <-turn.Done:
			if !ok {
				return
			}
			drain()
			if res.Err != nil {
				e := apperr.From(res.Err)
				msg := e.Msg
				if e.Kind == apperr.KindInternal {
					h.Log.Error("stream turn failed", "chat_id", req.ChatID, "error", res.Err)
					msg = "internal error"
				}
				writeEvent("error", gin.H{
					"type":            "error",
					"error":           msg,
					"code":            string(e.Kind),
					"user_message_id": turn.UserMessage.ID,
					"retriable":       apperr.Retriable(e.Kind),
				})
				return
			}
			writeEvent("done", gin.H{
				"type":            "done",
				"user_message_id": turn.UserMessage.ID,
				"model_message":   modelMessageBody(*res.ModelMessage),
			})
			return

		case <-ctx.Done():
			return
		}
	}
}

// PostMessageAsync stores the user message and queues the reply. The
// Idempotency-Key header makes retries return the original job.
func (h *Handler) PostMessageAsync(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req postMessageReq
	if !bindJSON(c, &req, false) {
		return
	}
	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))

	job, created, err := h.Canvas.PostMessageAsync(c.Request.Context(), uid, req.ChatID, req.Content, key)
	if errors.Is(err, canvas.ErrAsyncDisabled) {
		common.Fail(c, http.StatusServiceUnavailable, "unavailable", "async turns are disabled")
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"job_id":          job.ID,
		"user_message_id": job.UserMessageID,
		"status":          job.Status,
	})
}

func (h *Handler) GetJob(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	job, err := h.Canvas.GetJob(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}
