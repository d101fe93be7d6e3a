package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/canvas"
	"github.com/suPer8Hu/canvas-platform/internal/common"
	"github.com/suPer8Hu/canvas-platform/internal/httpapi/middleware"
)

func callerID(c *gin.Context) (uint64, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, string(apperr.KindUnauthorized), "unauthorized")
		return 0, false
	}
	return id.UserID, true
}

// bindJSON decodes the body into dst. An empty body is accepted when
// optional is set.
func bindJSON(c *gin.Context, dst any, optional bool) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		common.Fail(c, http.StatusBadRequest, string(apperr.KindValidation), "invalid json")
		return false
	}
	return true
}

func pathUserID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, string(apperr.KindValidation), "invalid user id")
		return 0, false
	}
	return id, true
}

// writeError maps err onto a status and the {"error", "code"} body.
// Internal errors are logged and never echoed.
func (h *Handler) writeError(c *gin.Context, err error) {
	e := apperr.From(err)
	msg := e.Msg
	if e.Kind == apperr.KindInternal {
		h.Log.Error("request failed",
			"path", c.FullPath(),
			"request_id", c.GetString(middleware.RequestIDKey),
			"error", err,
		)
		msg = "internal error"
	}

	body := gin.H{"error": msg, "code": string(e.Kind)}
	var te *canvas.TurnError
	if errors.As(err, &te) {
		body["user_message_id"] = te.UserMessage.ID
		body["retriable"] = apperr.Retriable(e.Kind)
	}
	c.JSON(apperr.HTTPStatus(e.Kind), body)
}
