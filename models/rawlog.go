package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Direction — направление события в журнале.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Bucket возвращает сторону отправителя, соответствующую направлению.
func (d Direction) Bucket() SenderBucket {
	if d == DirectionOutgoing {
		return BucketAgent
	}
	return BucketUser
}

// RawLogEntry — запись сырого журнала платформенных событий.
// Журнал append-only: записи не изменяются, кроме обогащения referral.
type RawLogEntry struct {
	ID                uuid.UUID `json:"id"`
	Platform          Platform  `json:"platform"`
	CounterpartyID    string    `json:"counterpartyId"`
	AccountID         string    `json:"accountId"`
	ExternalMessageID *string   `json:"externalMessageId,omitempty"` // уникален; длинные значения хэшируются
	Direction         Direction `json:"direction"`
	Text              string    `json:"text,omitempty"`
	Attachments       string    `json:"attachments,omitempty"` // сериализованный JSON вложений
	EventTS           int64     `json:"eventTs"`               // unix-время события, секунды
	FromTicklegram    bool      `json:"fromTicklegram"`        // событие порождено нашей отправкой
	Referral          *string   `json:"referral,omitempty"`
	Payload           string    `json:"payload,omitempty"` // исходное событие целиком
	CreatedAt         time.Time `json:"createdAt"`
}

// Внешние идентификаторы длиннее этого хэшируются, чтобы помещаться в индекс.
const maxExternalIDLen = 200

// NewRawLogEntry собирает запись журнала из нормализованного события.
func NewRawLogEntry(ev *IncomingEvent) *RawLogEntry {
	entry := &RawLogEntry{
		ID:             uuid.New(),
		Platform:       ev.Platform,
		CounterpartyID: ev.CounterpartyID,
		AccountID:      ev.PlatformAccountID,
		Direction:      ev.Direction(),
		Text:           ev.Text,
		Attachments:    SerializeAttachments(ev.Attachments),
		EventTS:        ev.EventTime().Unix(),
		CreatedAt:      time.Now().UTC(),
	}
	if ev.ExternalMessageID != "" {
		id := TruncateExternalID(ev.ExternalMessageID)
		entry.ExternalMessageID = &id
	}
	if ev.Referral != "" {
		r := ev.Referral
		entry.Referral = &r
	}
	if raw, err := json.Marshal(ev); err == nil {
		entry.Payload = string(raw)
	}
	return entry
}

// TruncateExternalID хэширует слишком длинные внешние идентификаторы.
func TruncateExternalID(id string) string {
	if len(id) <= maxExternalIDLen {
		return id
	}
	sum := sha256.Sum256([]byte(id))
	return "sha256:" + hex.EncodeToString(sum[:])
}
