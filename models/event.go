package models

import (
	"encoding/json"
	"time"
)

// Attachment — вложение нормализованного события вебхука.
type Attachment struct {
	Type    string                 `json:"type"` // "image", "template", ...
	URL     string                 `json:"url,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// IncomingEvent — нормализованное событие вебхука Meta.
type IncomingEvent struct {
	Platform          Platform     `json:"platform"`
	CounterpartyID    string       `json:"counterparty_id"`
	PlatformAccountID string       `json:"platform_account_id"`
	DirectionHint     string       `json:"direction_hint,omitempty"` // "incoming" / "outgoing"
	ExternalMessageID string       `json:"external_message_id,omitempty"`
	Text              string       `json:"text,omitempty"`
	Attachments       []Attachment `json:"attachments,omitempty"`
	TimestampMS       int64        `json:"timestamp_ms"`
	IsEcho            bool         `json:"is_echo,omitempty"`
	AppID             string       `json:"app_id,omitempty"`
	SenderID          string       `json:"sender_id,omitempty"`
	UserName          string       `json:"user_name,omitempty"`
	UserAvatar        string       `json:"user_avatar,omitempty"`
	Referral          string       `json:"referral,omitempty"` // метаданные рекламного перехода
}

// EventTime возвращает время события. Нулевая метка времени означает "сейчас".
func (e *IncomingEvent) EventTime() time.Time {
	if e.TimestampMS <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(e.TimestampMS).UTC()
}

// Direction определяет направление события с учётом признака эха.
func (e *IncomingEvent) Direction() Direction {
	if e.IsEcho || e.DirectionHint == string(DirectionOutgoing) {
		return DirectionOutgoing
	}
	return DirectionIncoming
}

// SerializeAttachments сериализует вложения в JSON-строку для хранения.
func SerializeAttachments(atts []Attachment) string {
	if len(atts) == 0 {
		return ""
	}
	raw, err := json.Marshal(atts)
	if err != nil {
		return ""
	}
	return string(raw)
}
