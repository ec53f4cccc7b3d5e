package middleware

import (
	"github.com/gin-gonic/gin"
)

// abortWithError stops the chain with the gateway's {"error": message} body.
func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
