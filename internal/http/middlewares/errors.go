package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/hospivibe/clinic/internal/observability"
)

func abortWithError(c *gin.Context, status int, code, message string) {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if id, ok := c.Get(CtxRequestID); ok {
		if s, ok := id.(string); ok && s != "" {
			body["requestId"] = s
		}
	}
	c.Set(observability.ErrorCodeKey, code)
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}
