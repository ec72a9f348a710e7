package models

import (
	"time"

	"github.com/google/uuid"
)

// Роли учётных записей.
const (
	RoleAgent = "agent"
	RoleAdmin = "admin"
)

// Agent представляет собой учётную запись сотрудника.
type Agent struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"password_hash,omitempty"`
	Avatar             *string   `json:"avatar,omitempty"`
	Role               string    `json:"role"` // "agent" или "admin"
	Active             bool      `json:"active"`
	CanReceiveNewChats bool      `json:"canReceiveNewChats"` // готов принимать новые чаты
	CreatedAt          time.Time `json:"createdAt"`          // стабильный ключ порядка round-robin
}
