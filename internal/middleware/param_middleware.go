package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ExtractUintParam достает числовой ID комнаты или соревнования из пути
// и кладет его в контекст под contextKey. Ноль и нечисловые значения дают 400.
func ExtractUintParam(paramName, contextKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param(paramName)
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid %s: %q", paramName, raw)})
			return
		}
		c.Set(contextKey, uint(id))
		c.Next()
	}
}
