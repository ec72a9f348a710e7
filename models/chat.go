package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform — мессенджер, из которого пришёл чат.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
)

// ParsePlatform приводит сырое значение к Platform.
func ParsePlatform(raw string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(raw))) {
	case PlatformInstagram:
		return PlatformInstagram, nil
	case PlatformFacebook:
		return PlatformFacebook, nil
	default:
		return "", fmt.Errorf("неизвестная платформа: %q", raw)
	}
}

// ChatStatus — состояние назначения чата.
type ChatStatus string

const (
	StatusAssigned   ChatStatus = "assigned"
	StatusUnassigned ChatStatus = "unassigned"
)

// Chat представляет собой диалог с одним собеседником на одной платформе.
// На пару (платформа, собеседник, аккаунт) существует ровно один чат.
type Chat struct {
	ID             uuid.UUID  `json:"id"`
	Platform       Platform   `json:"platform"`
	CounterpartyID string     `json:"counterpartyId"` // ID собеседника на платформе
	AccountID      string     `json:"accountId"`      // ID нашей страницы/аккаунта
	UserName       string     `json:"userName"`
	UserAvatar     *string    `json:"userAvatar,omitempty"`
	Status         ChatStatus `json:"status"`
	AssignedTo     *uuid.UUID `json:"assignedTo,omitempty"` // агент, которому назначен чат
	UnreadCount    int        `json:"unreadCount"`
	LastMessage    *string    `json:"lastMessage,omitempty"` // превью последнего сообщения
	LastIncomingAt *time.Time `json:"lastIncomingAt,omitempty"`
	LastOutgoingAt *time.Time `json:"lastOutgoingAt,omitempty"`
	Messages       []Message  `json:"messages,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}
