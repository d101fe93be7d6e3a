package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/auth"
	"github.com/suPer8Hu/canvas-platform/internal/common"
)

const IdentityKey = "identity"

// AuthRequired accepts "Authorization: Bearer <access>" and puts the caller's
// auth.Identity on both the gin context and the request context.
func AuthRequired(iss *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			common.AbortFail(c, http.StatusUnauthorized, string(apperr.KindUnauthorized), "authentication credentials were not provided")
			return
		}
		id, err := iss.ParseAccess(token)
		if err != nil {
			common.AbortFail(c, http.StatusUnauthorized, string(apperr.KindUnauthorized), "invalid or expired token")
			return
		}
		c.Set(IdentityKey, id)
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func bearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok && id.UserID != 0
}
