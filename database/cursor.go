// database/cursor.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/egor/ticklegramserver/models"
)

// AcquireAssignmentCursor читает курсор пула под блокировкой строки на время
// транзакции; отсутствующий курсор лениво создаётся пустым. Блокировка
// строки курсора — единственная точка сериализации назначения: никто не
// увидит курсор, сдвинутый наполовину.
func AcquireAssignmentCursor(ctx context.Context, tx *sql.Tx, pool string) (*models.AssignmentCursor, error) {
	const selectQ = `
		SELECT pool, agent_id, updated_at
		FROM assignment_cursors
		WHERE pool = $1
		FOR UPDATE`

	cur, err := scanCursor(tx.QueryRowContext(ctx, selectQ, pool))
	if err == nil {
		return cur, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("AcquireAssignmentCursor: %w", err)
	}

	// Курсора ещё нет: создаём нулевой. ON CONFLICT прикрывает гонку двух
	// первых назначений, повторный SELECT берёт блокировку.
	const insertQ = `
		INSERT INTO assignment_cursors (pool, agent_id, updated_at)
		VALUES ($1, NULL, $2)
		ON CONFLICT (pool) DO NOTHING`
	if _, err := tx.ExecContext(ctx, insertQ, pool, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("AcquireAssignmentCursor: создание: %w", err)
	}
	cur, err = scanCursor(tx.QueryRowContext(ctx, selectQ, pool))
	if err != nil {
		return nil, fmt.Errorf("AcquireAssignmentCursor: чтение после создания: %w", err)
	}
	return cur, nil
}

func scanCursor(row rowScanner) (*models.AssignmentCursor, error) {
	var cur models.AssignmentCursor
	var agentNull sql.NullString
	if err := row.Scan(&cur.Pool, &agentNull, &cur.UpdatedAt); err != nil {
		return nil, err
	}
	cur.AgentID = nullUUIDToPointer(agentNull)
	return &cur, nil
}

// advanceCursorTx записывает нового последнего агента пула.
func advanceCursorTx(ctx context.Context, tx *sql.Tx, pool string, agentID uuid.UUID) error {
	const q = `UPDATE assignment_cursors SET agent_id = $2, updated_at = $3 WHERE pool = $1`
	if _, err := tx.ExecContext(ctx, q, pool, agentID, time.Now().UTC()); err != nil {
		return fmt.Errorf("advanceCursorTx: %w", err)
	}
	return nil
}
