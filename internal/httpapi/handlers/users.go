package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/models"
)

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	Refresh string `json:"refresh"`
}

func userBody(u *models.User) gin.H {
	return gin.H{
		"id":         u.ID,
		"email":      u.Email,
		"created_at": u.CreatedAt,
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsReq
	if !bindJSON(c, &req, false) {
		return
	}
	sess, err := h.Users.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	body := userBody(sess.User)
	body["tokens"] = sess.Tokens
	c.JSON(http.StatusCreated, body)
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsReq
	if !bindJSON(c, &req, false) {
		return
	}
	sess, err := h.Users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":     sess.User.ID,
		"email":  sess.User.Email,
		"tokens": sess.Tokens,
	})
}

func (h *Handler) RefreshToken(c *gin.Context) {
	var req refreshReq
	if !bindJSON(c, &req, false) {
		return
	}
	pair, err := h.Users.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Me lists the caller as a one-element collection.
func (h *Handler) Me(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	u, err := h.Users.Get(c.Request.Context(), uid, uid)
	if apperr.Is(err, apperr.KindNotFound) {
		c.JSON(http.StatusOK, gin.H{"data": []gin.H{}})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": []gin.H{userBody(u)}})
}

func (h *Handler) GetUser(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	target, ok := pathUserID(c)
	if !ok {
		return
	}
	u, err := h.Users.Get(c.Request.Context(), uid, target)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userBody(u))
}

func (h *Handler) UpdateUser(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	target, ok := pathUserID(c)
	if !ok {
		return
	}
	var req credentialsReq
	if !bindJSON(c, &req, false) {
		return
	}
	if _, err := h.Users.Update(c.Request.Context(), uid, target, req.Email, req.Password); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User updated successfully"})
}

func (h *Handler) DeleteUser(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	target, ok := pathUserID(c)
	if !ok {
		return
	}
	if err := h.Users.Delete(c.Request.Context(), uid, target); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
