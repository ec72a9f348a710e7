package websocket

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/egor/ticklegramserver/models"
)

// WebSocketMessage представляет кадр WebSocket в обе стороны
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Notification — уведомление подписчикам о событии в чате.
// Формат фиксирован: type, chat_id, platform, message.
type Notification struct {
	Type     string          `json:"type"`
	ChatID   uuid.UUID       `json:"chat_id"`
	Platform models.Platform `json:"platform"`
	Message  *models.Message `json:"message"`
}

// NewMessageNotification создает уведомление о новом сообщении в чате
func NewMessageNotification(chat *models.Chat, message *models.Message) Notification {
	return Notification{
		Type:     "new_message",
		ChatID:   chat.ID,
		Platform: chat.Platform,
		Message:  message,
	}
}

// NewMessage создает кадр с указанным типом и данными
func NewMessage(messageType string, payload interface{}) ([]byte, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	message := WebSocketMessage{
		Type:    messageType,
		Payload: payloadJSON,
	}

	return json.Marshal(message)
}

// NewChatUpdatedMessage создает кадр об обновлении чата
func NewChatUpdatedMessage(chat *models.Chat) ([]byte, error) {
	return NewMessage("chat_updated", chat)
}

// NewErrorMessage создает кадр об ошибке
func NewErrorMessage(code, message string) ([]byte, error) {
	payload := struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}{
		Code:  code,
		Error: message,
	}

	return NewMessage("error", payload)
}
