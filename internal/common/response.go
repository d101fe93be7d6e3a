package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OK wraps list-like payloads as {"data": ...}.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func Fail(c *gin.Context, httpStatus int, code string, msg string) {
	c.JSON(httpStatus, gin.H{
		"error": msg,
		"code":  code,
	})
}

func AbortFail(c *gin.Context, httpStatus int, code string, msg string) {
	c.AbortWithStatusJSON(httpStatus, gin.H{
		"error": msg,
		"code":  code,
	})
}
