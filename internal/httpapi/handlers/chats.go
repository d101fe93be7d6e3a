package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/canvas-platform/internal/canvas"
	"github.com/suPer8Hu/canvas-platform/internal/common"
)

type createChatReq struct {
	WorkspaceID     string   `json:"workspace_id"`
	Title           *string  `json:"title"`
	X               *float64 `json:"x_pos"`
	Y               *float64 `json:"y_pos"`
	Width           *float64 `json:"width"`
	Height          *float64 `json:"height"`
	SourceMessageID *string  `json:"source_message_id"`
	StartOffset     *int     `json:"start_offset"`
	EndOffset       *int     `json:"end_offset"`
}

func (h *Handler) ListChats(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	chats, err := h.Canvas.ListChats(c.Request.Context(), uid, c.Query("workspace_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, chats)
}

func (h *Handler) CreateChat(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req createChatReq
	if !bindJSON(c, &req, false) {
		return
	}
	branch, err := canvas.ParseBranch(req.SourceMessageID, req.StartOffset, req.EndOffset)
	if err != nil {
		h.writeError(c, err)
		return
	}

	res, err := h.Canvas.CreateChat(c.Request.Context(), uid, canvas.CreateChatInput{
		WorkspaceID: req.WorkspaceID,
		Title:       req.Title,
		X:           req.X,
		Y:           req.Y,
		Width:       req.Width,
		Height:      req.Height,
		Branch:      branch,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	msg := "Chat created"
	if res.LinkID != nil {
		msg = "Chat branched successfully"
	}
	c.JSON(http.StatusCreated, gin.H{
		"chat_id":        res.Chat.ID,
		"link_id":        res.LinkID,
		"message":        msg,
		"branch_outcome": res.Outcome,
		"seeded":         res.SeedCount,
		"chat":           res.Chat,
	})
}

func (h *Handler) UpdateChatLayout(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var patch canvas.LayoutPatch
	if !bindJSON(c, &patch, true) {
		return
	}
	chat, err := h.Canvas.UpdateLayout(c.Request.Context(), uid, c.Param("id"), patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Layout saved", "chat": chat})
}

func (h *Handler) DeleteChat(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.Canvas.DeleteChat(c.Request.Context(), uid, id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat id: " + id + " has been deleted"})
}

func (h *Handler) ListLinks(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	links, err := h.Canvas.ListLinks(c.Request.Context(), uid, c.Query("workspace_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, links)
}
