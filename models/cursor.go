package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultPool — имя пула назначения по умолчанию.
const DefaultPool = "default"

// AssignmentCursor — указатель round-robin: последний агент, получивший чат
// в данном пуле. Читается и обновляется только под блокировкой строки.
type AssignmentCursor struct {
	Pool      string     `json:"pool"`
	AgentID   *uuid.UUID `json:"agentId,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
