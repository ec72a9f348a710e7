package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SenderKind — закрытый набор типов отправителя сообщения.
type SenderKind string

const (
	SenderUser  SenderKind = "user"  // внешний собеседник
	SenderAgent SenderKind = "agent" // агент, ответивший из приложения
	SenderPage  SenderKind = "page"  // страница: эхо отправки, пришедшее от платформы
)

// NormalizeSender приводит произвольное сырое значение к SenderKind.
// Всё нераспознанное считается сообщением собеседника.
func NormalizeSender(raw string) SenderKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "agent", "admin", "operator":
		return SenderAgent
	case "page", "echo":
		return SenderPage
	case "user", "client", "customer":
		return SenderUser
	default:
		return SenderUser
	}
}

// SenderBucket — грубая сторона отправителя для сопоставления между хранилищами.
type SenderBucket string

const (
	BucketUser  SenderBucket = "user"
	BucketAgent SenderBucket = "agent" // агент и страница считаются одной стороной
)

// Bucket возвращает сторону отправителя.
func (s SenderKind) Bucket() SenderBucket {
	if s == SenderAgent || s == SenderPage {
		return BucketAgent
	}
	return BucketUser
}

// Типы сообщений.
const (
	MessageText  = "text"
	MessageImage = "image"
)

// Message представляет собой сообщение в ленте чата.
type Message struct {
	ID           uuid.UUID              `json:"id"`
	ChatID       uuid.UUID              `json:"chatId"`
	Sender       SenderKind             `json:"sender"`
	Content      string                 `json:"content"`
	Type         string                 `json:"type"` // "text" или "image"
	Timestamp    time.Time              `json:"timestamp"`
	Attachments  string                 `json:"attachments,omitempty"` // сериализованный JSON вложений
	IsLeadForm   bool                   `json:"isLeadForm,omitempty"`  // автоматическая заявка из рекламной формы
	IsTicklegram bool                   `json:"isTicklegram,omitempty"` // отправлено из Ticklegram
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Read         bool                   `json:"read"`
	Synthetic    bool                   `json:"synthetic,omitempty"` // восстановлено из сырого журнала при чтении
}
