package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/canvas-platform/internal/common"
)

type workspaceReq struct {
	Name string `json:"name"`
}

func (h *Handler) ListWorkspaces(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	list, err := h.Workspaces.List(c.Request.Context(), uid)
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, list)
}

func (h *Handler) CreateWorkspace(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req workspaceReq
	if !bindJSON(c, &req, true) {
		return
	}
	ws, err := h.Workspaces.Create(c.Request.Context(), uid, req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ws)
}

func (h *Handler) GetWorkspace(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	ws, err := h.Workspaces.Get(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

func (h *Handler) RenameWorkspace(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req workspaceReq
	if !bindJSON(c, &req, true) {
		return
	}
	ws, err := h.Workspaces.Rename(c.Request.Context(), uid, c.Param("id"), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Workspace renamed successfully",
		"new_name":  ws.Name,
		"workspace": ws,
	})
}

func (h *Handler) DeleteWorkspace(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	if err := h.Workspaces.Delete(c.Request.Context(), uid, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
