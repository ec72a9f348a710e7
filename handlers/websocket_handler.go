package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/egor/ticklegramserver/database"
	"github.com/egor/ticklegramserver/middleware"
	websocketpkg "github.com/egor/ticklegramserver/websocket"
)

// wsUpgrader апгрейдит HTTP→WebSocket с проверкой Origin
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// checkOrigin проверяет, разрешен ли Origin для подключения
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Разрешаем локальные подключения без Origin
		host := r.Host
		return strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:")
	}

	allowedOrigins := []string{}
	if Cfg != nil {
		if Cfg.FrontendURL != "" {
			allowedOrigins = append(allowedOrigins, Cfg.FrontendURL)
		}
		for _, url := range strings.Split(Cfg.AdditionalOrigins, ",") {
			url = strings.TrimSpace(url)
			if url != "" {
				allowedOrigins = append(allowedOrigins, url)
			}
		}
	}

	for _, allowed := range allowedOrigins {
		if allowed == origin {
			return true
		}
	}

	// Для разработки можно разрешить все origins
	if Cfg != nil && Cfg.AllowAllOrigins {
		logrus.Warnf("checkOrigin: разрешен origin %s (ALLOW_ALL_ORIGINS=true)", origin)
		return true
	}

	logrus.Warnf("checkOrigin: отклонен origin %s", origin)
	return false
}

// ServeWs обрабатывает WebSocket соединение агента
func ServeWs(c *gin.Context) {
	logrus.Debugf("ServeWs: новое соединение от %s, origin: %s",
		c.ClientIP(), c.Request.Header.Get("Origin"))

	// Браузерный WebSocket не умеет ставить заголовки, токен идёт в query
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Отсутствует токен"})
		return
	}

	claims, err := middleware.ValidateToken(token)
	if err != nil {
		logrus.Warnf("ServeWs: ошибка валидации токена: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Неверный токен"})
		return
	}

	agentID, err := uuid.Parse(claims.AgentID)
	if err != nil {
		logrus.Warnf("ServeWs: ошибка парсинга agentID: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный agentID"})
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Errorf("ServeWs: ошибка апгрейда соединения: %v", err)
		return
	}

	client := websocketpkg.NewClient(WebSocketHub, conn, agentID, claims.Role)

	WebSocketHub.Register <- client

	go client.WritePump()
	go client.ReadPump(processWebSocketMessage)

	client.SendJSON(gin.H{
		"type":    "connected",
		"payload": gin.H{"agentId": agentID},
	})

	logrus.Infof("ServeWs: агент %s подключен", agentID)
}

// processWebSocketMessage обрабатывает входящие WebSocket кадры агента
func processWebSocketMessage(client *websocketpkg.Client, raw []byte) {
	var msg websocketpkg.WebSocketMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		client.SendError("invalid_json", "Некорректный формат JSON")
		return
	}

	switch msg.Type {
	case "markAsRead":
		processMarkAsRead(client, msg.Payload)
	case "ping":
		client.SendJSON(gin.H{"type": "pong"})
	default:
		client.SendError("unknown_type", "Неизвестный тип сообщения: "+msg.Type)
	}
}

// processMarkAsRead помечает сообщения чата прочитанными и рассылает
// обновление остальным соединениям агента.
func processMarkAsRead(client *websocketpkg.Client, payload json.RawMessage) {
	var p struct {
		ChatID string `json:"chatID"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		client.SendError("invalid_payload", "Некорректный формат данных для markAsRead")
		return
	}

	chatID, err := uuid.Parse(p.ChatID)
	if err != nil {
		client.SendError("invalid_uuid", "Некорректный формат chatID")
		return
	}

	chat, err := database.GetChatByID(chatID)
	if err != nil || chat == nil {
		client.SendError("not_found", "Чат не найден")
		return
	}

	store, err := database.MessageStoreFor(chat.Platform)
	if err != nil {
		client.SendError("db_error", "Неизвестная платформа чата")
		return
	}

	if err := database.MarkChatRead(chat.ID, store); err != nil {
		logrus.Errorf("processMarkAsRead: %v", err)
		client.SendError("db_error", "Ошибка при обновлении статуса сообщений")
		return
	}
	chat.UnreadCount = 0

	// Синхронизируем остальные устройства агента
	if frame, err := websocketpkg.NewChatUpdatedMessage(chat); err == nil {
		WebSocketHub.SendFrameToUsers([]uuid.UUID{client.AgentID}, frame)
	}

	client.SendJSON(gin.H{
		"type": "markAsReadConfirmed",
		"payload": gin.H{
			"chatID": chat.ID.String(),
			"status": "success",
		},
	})
}
