// database/assign.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/egor/ticklegramserver/assignment"
	"github.com/egor/ticklegramserver/models"
)

// AssignChatRoundRobin назначает чату следующего агента карусели. Все шаги —
// выбор подходящих, чтение курсора под блокировкой, назначение чата, сдвиг
// курсора — идут одной транзакцией: падение посередине не оставит курсор
// сдвинутым без назначенного чата или наоборот.
// Возвращает (nil, nil), когда подходящих агентов нет: чат остаётся без
// назначения, это штатное состояние пустой смены, а не ошибка.
func AssignChatRoundRobin(ctx context.Context, chatID uuid.UUID) (*models.Agent, error) {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("AssignChatRoundRobin: %w", err)
	}
	defer tx.Rollback()

	agent, err := assignChatTx(ctx, tx, chatID)
	if err != nil {
		return nil, fmt.Errorf("AssignChatRoundRobin: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("AssignChatRoundRobin: commit: %w", err)
	}
	return agent, nil
}

// assignChatTx — шаги карусели внутри уже открытой транзакции.
func assignChatTx(ctx context.Context, tx *sql.Tx, chatID uuid.UUID) (*models.Agent, error) {
	eligible, err := eligibleAgentsTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		const q = `UPDATE chats SET status = $2, assigned_to = NULL, updated_at = now() WHERE id = $1`
		if _, err := tx.ExecContext(ctx, q, chatID, models.StatusUnassigned); err != nil {
			return nil, fmt.Errorf("сброс назначения: %w", err)
		}
		logrus.Infof("assignChatTx: подходящих агентов нет, чат %s остаётся без назначения", chatID)
		return nil, nil
	}

	cursor, err := AcquireAssignmentCursor(ctx, tx, models.DefaultPool)
	if err != nil {
		return nil, err
	}

	next := assignment.NextAgent(eligible, cursor.AgentID)

	const q = `UPDATE chats SET status = $2, assigned_to = $3, updated_at = now() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, q, chatID, models.StatusAssigned, next.ID); err != nil {
		return nil, fmt.Errorf("назначение чата: %w", err)
	}
	if err := advanceCursorTx(ctx, tx, models.DefaultPool, next.ID); err != nil {
		return nil, err
	}

	// Прежнее значение курсора в логе отличает "агент выбыл из ротации"
	// от испорченного курсора при разборе инцидентов.
	prev := "<пусто>"
	if cursor.AgentID != nil {
		prev = cursor.AgentID.String()
	}
	logrus.Infof("assignChatTx: чат %s назначен агенту %s (%s), курсор был %s",
		chatID, next.ID, next.Name, prev)
	return next, nil
}

// ReassignFromInactiveAgents забирает чаты у выбывших агентов и прогоняет
// каждый через карусель заново. Вся пачка коммитится разом. Возвращает число
// чатов, получивших нового агента; ноль — нормальный результат.
func ReassignFromInactiveAgents(ctx context.Context) (int, error) {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ReassignFromInactiveAgents: %w", err)
	}
	defer tx.Rollback()

	chatIDs, err := chatsOfInactiveAgentsTx(ctx, tx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range chatIDs {
		agent, err := assignChatTx(ctx, tx, id)
		if err != nil {
			return 0, fmt.Errorf("ReassignFromInactiveAgents: чат %s: %w", id, err)
		}
		if agent != nil {
			count++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ReassignFromInactiveAgents: commit: %w", err)
	}
	return count, nil
}

func chatsOfInactiveAgentsTx(ctx context.Context, tx *sql.Tx) ([]uuid.UUID, error) {
	const q = `
		SELECT c.id
		FROM chats c
		JOIN agents a ON a.id = c.assigned_to
		WHERE c.status = 'assigned' AND a.active = false
		ORDER BY c.updated_at ASC`
	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("chatsOfInactiveAgentsTx: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("chatsOfInactiveAgentsTx: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
