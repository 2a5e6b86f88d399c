package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/yourusername/polegion-api/internal/websocket"
)

// WSHandler обрабатывает WebSocket соединения
type WSHandler struct {
	manager    *websocket.Manager
	upgrader   gorillaws.Upgrader
	sendBuffer int
}

// NewWSHandler создает обработчик WebSocket.
// allowedOrigins синхронизирован с CORS; пустой Origin (не браузер) разрешен.
func NewWSHandler(manager *websocket.Manager, allowedOrigins []string, sendBuffer int) *WSHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return &WSHandler{
		manager:    manager,
		sendBuffer: sendBuffer,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if _, ok := allowed[origin]; ok {
					return true
				}
				log.Printf("WebSocket: rejected unauthorized origin: %s", origin)
				return false
			},
			EnableCompression: true,
		},
	}
}

// HandleConnection открывает WebSocket для аутентифицированного пользователя
// GET /ws
func (h *WSHandler) HandleConnection(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade сам пишет ответ с ошибкой
		log.Printf("WebSocket: error upgrading connection for %s: %v", userID, err)
		return
	}

	client := websocket.NewClient(h.manager.Hub(), conn, userID, h.sendBuffer)
	client.StartPumps(h.manager.HandleMessage)
}
