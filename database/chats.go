// database/chats.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/egor/ticklegramserver/models"
)

const chatColumns = `id, platform, counterparty_id, account_id, user_name, user_avatar,
	status, assigned_to, unread_count, last_message, last_incoming_at, last_outgoing_at,
	created_at, updated_at`

func scanChat(row rowScanner) (*models.Chat, error) {
	var (
		c            models.Chat
		avatarNull   sql.NullString
		assignedNull sql.NullString
		lastMsgNull  sql.NullString
		inNull       sql.NullTime
		outNull      sql.NullTime
	)
	if err := row.Scan(
		&c.ID, &c.Platform, &c.CounterpartyID, &c.AccountID, &c.UserName, &avatarNull,
		&c.Status, &assignedNull, &c.UnreadCount, &lastMsgNull, &inNull, &outNull,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.UserAvatar = nullStringToPointer(avatarNull)
	c.AssignedTo = nullUUIDToPointer(assignedNull)
	c.LastMessage = nullStringToPointer(lastMsgNull)
	c.LastIncomingAt = nullTimeToPointer(inNull)
	c.LastOutgoingAt = nullTimeToPointer(outNull)
	return &c, nil
}

// ─────────────────────────── GetOrCreateChat

// GetOrCreateChat находит чат пары (платформа, собеседник, аккаунт) или
// лениво создаёт его на первом входящем событии. Возвращает чат и признак
// "создан сейчас".
func GetOrCreateChat(ctx context.Context, platform models.Platform, counterpartyID, accountID, userName, userAvatar string) (*models.Chat, bool, error) {
	selectQ := `SELECT ` + chatColumns + ` FROM chats
		WHERE platform = $1 AND counterparty_id = $2 AND account_id = $3`

	chat, err := scanChat(DB.QueryRowContext(ctx, selectQ, platform, counterpartyID, accountID))
	if err == nil {
		refreshCounterparty(ctx, chat, userName, userAvatar)
		return chat, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("GetOrCreateChat: %w", err)
	}

	now := time.Now().UTC()
	newChat := &models.Chat{
		ID:             uuid.New(),
		Platform:       platform,
		CounterpartyID: counterpartyID,
		AccountID:      accountID,
		UserName:       userName,
		Status:         models.StatusUnassigned,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if userAvatar != "" {
		newChat.UserAvatar = &userAvatar
	}

	const insertQ = `
		INSERT INTO chats
		    (id, platform, counterparty_id, account_id, user_name, user_avatar,
		     status, unread_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,$8)`
	if _, err := DB.ExecContext(ctx, insertQ,
		newChat.ID, platform, counterpartyID, accountID, userName, stringToNull(userAvatar),
		models.StatusUnassigned, now,
	); err != nil {
		// Гонка двух вебхуков: чат уже вставлен параллельной доставкой.
		if isUniqueViolation(err) {
			chat, err2 := scanChat(DB.QueryRowContext(ctx, selectQ, platform, counterpartyID, accountID))
			if err2 != nil {
				return nil, false, fmt.Errorf("GetOrCreateChat: повторное чтение: %w", err2)
			}
			return chat, false, nil
		}
		return nil, false, fmt.Errorf("GetOrCreateChat: вставка: %w", err)
	}

	logrus.Infof("GetOrCreateChat: создан чат %s (%s, собеседник %s)", newChat.ID, platform, counterpartyID)
	return newChat, true, nil
}

// refreshCounterparty обновляет имя и аватар собеседника, если платформа
// прислала новые значения. Неудача не мешает обработке события.
func refreshCounterparty(ctx context.Context, chat *models.Chat, name, avatar string) {
	nameChanged := name != "" && name != chat.UserName
	avatarChanged := avatar != "" && (chat.UserAvatar == nil || *chat.UserAvatar != avatar)
	if !nameChanged && !avatarChanged {
		return
	}

	const q = `
		UPDATE chats SET
			user_name   = COALESCE(NULLIF($2, ''), user_name),
			user_avatar = COALESCE(NULLIF($3, ''), user_avatar)
		WHERE id = $1`
	if _, err := DB.ExecContext(ctx, q, chat.ID, name, avatar); err != nil {
		logrus.WithError(err).Warn("refreshCounterparty: не удалось обновить данные собеседника")
		return
	}
	if nameChanged {
		chat.UserName = name
	}
	if avatarChanged {
		chat.UserAvatar = &avatar
	}
}

// ─────────────────────────── GetChatByID

func GetChatByID(chatID uuid.UUID) (*models.Chat, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbQueryTimeout)
	defer cancel()

	q := `SELECT ` + chatColumns + ` FROM chats WHERE id = $1`
	chat, err := scanChat(DB.QueryRowContext(ctx, q, chatID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("GetChatByID: %w", err)
	}
	return chat, nil
}

// ─────────────────────────── GetChats

// GetChats возвращает страницу чатов: администратор видит все, агент —
// назначенные ему и свободные. Непустой status дополнительно фильтрует
// по состоянию назначения.
func GetChats(agentID uuid.UUID, isAdmin bool, status models.ChatStatus, page, size int) ([]models.Chat, int, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > MaxPageSize {
		size = DefaultPageSize
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbQueryTimeout)
	defer cancel()

	// 1) общее количество
	var total int
	const countQ = `
		SELECT COUNT(*) FROM chats
		WHERE ($1 OR assigned_to = $2 OR assigned_to IS NULL)
		  AND ($3 = '' OR status = $3)`
	if err := DB.QueryRowContext(ctx, countQ, isAdmin, agentID, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("GetChats: %w", err)
	}

	// 2) сами чаты
	q := `SELECT ` + chatColumns + ` FROM chats
		WHERE ($1 OR assigned_to = $2 OR assigned_to IS NULL)
		  AND ($3 = '' OR status = $3)
		ORDER BY updated_at DESC
		LIMIT $4 OFFSET $5`
	rows, err := DB.QueryContext(ctx, q, isAdmin, agentID, status, size, (page-1)*size)
	if err != nil {
		return nil, 0, fmt.Errorf("GetChats: %w", err)
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("GetChats: %w", err)
		}
		chats = append(chats, *chat)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return chats, total, nil
}

// ─────────────────────────── MarkChatRead

// MarkChatRead помечает сообщения собеседника прочитанными и сбрасывает
// счётчик непрочитанного.
func MarkChatRead(chatID uuid.UUID, store MessageStore) error {
	ctx, cancel := context.WithTimeout(context.Background(), dbQueryTimeout)
	defer cancel()

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("MarkChatRead: %w", err)
	}
	defer tx.Rollback()

	if err := store.MarkReadTx(ctx, tx, chatID); err != nil {
		return fmt.Errorf("MarkChatRead: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chats SET unread_count = 0 WHERE id = $1`, chatID); err != nil {
		return fmt.Errorf("MarkChatRead: %w", err)
	}
	return tx.Commit()
}
