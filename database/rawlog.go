// database/rawlog.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/egor/ticklegramserver/models"
)

// ErrDuplicateDelivery означает повторную доставку: внешний идентификатор
// сообщения уже есть в журнале. Это не ошибка обработки, а сигнал пропустить
// событие целиком.
var ErrDuplicateDelivery = errors.New("повторная доставка: внешний идентификатор уже в журнале")

// InsertRawLogEntry добавляет запись в сырой журнал. Уникальность внешнего
// идентификатора обеспечивает индекс в базе, а не память процесса:
// параллельные доставки одного события соревнуются за индекс.
func InsertRawLogEntry(ctx context.Context, e *models.RawLogEntry) error {
	const q = `
		INSERT INTO message_log
		    (id, platform, counterparty_id, account_id, external_message_id,
		     direction, text, attachments, event_ts, from_ticklegram, referral,
		     payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	if _, err := DB.ExecContext(ctx, q,
		e.ID, e.Platform, e.CounterpartyID, e.AccountID, pointerToNull(e.ExternalMessageID),
		e.Direction, e.Text, stringToNull(e.Attachments), e.EventTS, e.FromTicklegram,
		pointerToNull(e.Referral), e.Payload, e.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateDelivery
		}
		return fmt.Errorf("InsertRawLogEntry: %w", err)
	}
	return nil
}

// RawLogForCounterparty возвращает журнал собеседника в детерминированном
// порядке: время события, затем порядок появления записей.
func RawLogForCounterparty(ctx context.Context, platform models.Platform, counterpartyID, accountID string) ([]models.RawLogEntry, error) {
	const q = `
		SELECT id, platform, counterparty_id, account_id, external_message_id,
		       direction, text, attachments, event_ts, from_ticklegram, referral,
		       payload, created_at
		FROM message_log
		WHERE platform = $1 AND counterparty_id = $2 AND account_id = $3
		ORDER BY event_ts ASC, created_at ASC, id ASC`
	rows, err := DB.QueryContext(ctx, q, platform, counterpartyID, accountID)
	if err != nil {
		return nil, fmt.Errorf("RawLogForCounterparty: %w", err)
	}
	defer rows.Close()

	var entries []models.RawLogEntry
	for rows.Next() {
		var (
			e       models.RawLogEntry
			extNull sql.NullString
			attNull sql.NullString
			refNull sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &e.Platform, &e.CounterpartyID, &e.AccountID, &extNull,
			&e.Direction, &e.Text, &attNull, &e.EventTS, &e.FromTicklegram, &refNull,
			&e.Payload, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("RawLogForCounterparty: %w", err)
		}
		e.ExternalMessageID = nullStringToPointer(extNull)
		if attNull.Valid {
			e.Attachments = attNull.String
		}
		e.Referral = nullStringToPointer(refNull)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdateRawLogReferral дописывает рекламные метаданные в существующую
// запись — единственное разрешённое изменение журнала после вставки.
func UpdateRawLogReferral(ctx context.Context, externalMessageID, referral string) error {
	const q = `
		UPDATE message_log SET referral = $2
		WHERE external_message_id = $1 AND referral IS NULL`
	if _, err := DB.ExecContext(ctx, q, externalMessageID, referral); err != nil {
		return fmt.Errorf("UpdateRawLogReferral: %w", err)
	}
	return nil
}
