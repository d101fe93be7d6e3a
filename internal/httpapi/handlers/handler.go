package handlers

import (
	"time"

	"github.com/suPer8Hu/canvas-platform/internal/canvas"
	"github.com/suPer8Hu/canvas-platform/internal/logger"
	"github.com/suPer8Hu/canvas-platform/internal/users"
	"github.com/suPer8Hu/canvas-platform/internal/workspace"
)

const defaultStreamPing = 15 * time.Second

type Handler struct {
	Canvas     *canvas.Service
	Workspaces *workspace.Service
	Users      *users.Service
	Log        *logger.Logger

	// StreamPing is the SSE heartbeat interval.
	StreamPing time.Duration
}

func NewHandler(cv *canvas.Service, ws *workspace.Service, us *users.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{Canvas: cv, Workspaces: ws, Users: us, Log: log, StreamPing: defaultStreamPing}
}
