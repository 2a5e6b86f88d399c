package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/polegion-api/pkg/auth"
)

const (
	// ContextUserID - ключ gin.Context с uuid.UUID пользователя
	ContextUserID = "user_id"
	// ContextEmail - ключ gin.Context с email пользователя
	ContextEmail = "email"
)

// AuthMiddleware обеспечивает аутентификацию для защищенных маршрутов
type AuthMiddleware struct {
	jwtService *auth.JWTService
}

// NewAuthMiddleware создает новый middleware
func NewAuthMiddleware(jwtService *auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// RequireAuth проверяет access-токен из заголовка Authorization
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return m.authenticate(false)
}

// RequireAuthWS дополнительно принимает токен из query-параметра token:
// браузер не может выставить заголовок при открытии WebSocket.
func (m *AuthMiddleware) RequireAuthWS() gin.HandlerFunc {
	return m.authenticate(true)
}

func (m *AuthMiddleware) authenticate(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, errorType, message := bearerToken(c)
		if token == "" && allowQuery {
			token = c.Query("token")
		}
		if token == "" {
			if errorType == "" {
				errorType, message = "token_missing", "Authorization header is required"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message, "error_type": errorType})
			return
		}

		claims, err := m.jwtService.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "error_type": "token_invalid"})
			return
		}
		userID, _ := claims.UserID()

		c.Set(ContextUserID, userID)
		c.Set(ContextEmail, claims.Email)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (token, errorType, message string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", "", ""
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "token_format", "Authorization header format must be Bearer {token}"
	}
	return parts[1], "", ""
}

// UserIDFromContext возвращает ID пользователя, установленный RequireAuth
func UserIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get(ContextUserID)
	if !exists {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok && userID != uuid.Nil
}
