// database/messages.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/egor/ticklegramserver/models"
)

// MessageStore — хранилище канонических сообщений одной платформы.
// Таблицы физически разделены по платформам, поэтому выбор делается
// фабрикой MessageStoreFor, а не if/else по всему коду.
type MessageStore interface {
	InsertTx(ctx context.Context, tx *sql.Tx, m *models.Message) error
	MessagesByChat(ctx context.Context, chatID uuid.UUID) ([]models.Message, error)
	RecentAgentMessages(ctx context.Context, chatID uuid.UUID, since time.Time) ([]models.Message, error)
	UpdateAttachments(ctx context.Context, id uuid.UUID, attachments string, metadata map[string]interface{}) error
	MarkReadTx(ctx context.Context, tx *sql.Tx, chatID uuid.UUID) error
}

// messageStore — общая реализация поверх одной физической таблицы.
type messageStore struct {
	table string

	insertQ   string
	byChatQ   string
	recentQ   string
	updateQ   string
	markReadQ string
}

func newMessageStore(table string) messageStore {
	return messageStore{
		table: table,
		insertQ: fmt.Sprintf(`
			INSERT INTO %s
			    (id, chat_id, sender, content, type, timestamp, attachments,
			     is_lead_form, is_ticklegram, metadata, read, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`, table),
		byChatQ: fmt.Sprintf(`
			SELECT id, chat_id, sender, content, type, timestamp, attachments,
			       is_lead_form, is_ticklegram, metadata, read
			FROM %s
			WHERE chat_id = $1
			ORDER BY timestamp ASC, id ASC`, table),
		recentQ: fmt.Sprintf(`
			SELECT id, chat_id, sender, content, type, timestamp, attachments,
			       is_lead_form, is_ticklegram, metadata, read
			FROM %s
			WHERE chat_id = $1 AND sender IN ('agent', 'page') AND timestamp >= $2
			ORDER BY timestamp DESC
			LIMIT 20`, table),
		updateQ: fmt.Sprintf(`
			UPDATE %s SET attachments = $2, metadata = $3 WHERE id = $1`, table),
		markReadQ: fmt.Sprintf(`
			UPDATE %s SET read = true WHERE chat_id = $1 AND sender = 'user' AND read = false`, table),
	}
}

// InstagramMessageStore и FacebookMessageStore — варианты хранилища,
// по одной физической таблице на платформу.
type InstagramMessageStore struct{ messageStore }

type FacebookMessageStore struct{ messageStore }

var (
	instagramMessages = &InstagramMessageStore{newMessageStore("instagram_messages")}
	facebookMessages  = &FacebookMessageStore{newMessageStore("facebook_messages")}
)

// MessageStoreFor выбирает хранилище сообщений по платформе.
func MessageStoreFor(platform models.Platform) (MessageStore, error) {
	switch platform {
	case models.PlatformInstagram:
		return instagramMessages, nil
	case models.PlatformFacebook:
		return facebookMessages, nil
	default:
		return nil, fmt.Errorf("MessageStoreFor: неизвестная платформа %q", platform)
	}
}

func (s *messageStore) InsertTx(ctx context.Context, tx *sql.Tx, m *models.Message) error {
	if _, err := tx.ExecContext(ctx, s.insertQ,
		m.ID, m.ChatID, m.Sender, m.Content, m.Type, m.Timestamp,
		stringToNull(m.Attachments), m.IsLeadForm, m.IsTicklegram,
		marshalMetadata(m.Metadata), m.Read, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("InsertTx(%s): %w", s.table, err)
	}
	return nil
}

func (s *messageStore) MessagesByChat(ctx context.Context, chatID uuid.UUID) ([]models.Message, error) {
	rows, err := DB.QueryContext(ctx, s.byChatQ, chatID)
	if err != nil {
		return nil, fmt.Errorf("MessagesByChat(%s): %w", s.table, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentAgentMessages возвращает недавние сообщения стороны агента,
// свежие сверху. Используется для сопоставления эха с отправкой.
func (s *messageStore) RecentAgentMessages(ctx context.Context, chatID uuid.UUID, since time.Time) ([]models.Message, error) {
	rows, err := DB.QueryContext(ctx, s.recentQ, chatID, since)
	if err != nil {
		return nil, fmt.Errorf("RecentAgentMessages(%s): %w", s.table, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// UpdateAttachments дозаписывает вложения и метаданные в существующее
// сообщение (слияние эха с синхронной отправкой).
func (s *messageStore) UpdateAttachments(ctx context.Context, id uuid.UUID, attachments string, metadata map[string]interface{}) error {
	if _, err := DB.ExecContext(ctx, s.updateQ, id, stringToNull(attachments), marshalMetadata(metadata)); err != nil {
		return fmt.Errorf("UpdateAttachments(%s): %w", s.table, err)
	}
	return nil
}

func (s *messageStore) MarkReadTx(ctx context.Context, tx *sql.Tx, chatID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, s.markReadQ, chatID); err != nil {
		return fmt.Errorf("MarkReadTx(%s): %w", s.table, err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		var (
			m       models.Message
			attNull sql.NullString
			metaRaw []byte
		)
		if err := rows.Scan(
			&m.ID, &m.ChatID, &m.Sender, &m.Content, &m.Type, &m.Timestamp,
			&attNull, &m.IsLeadForm, &m.IsTicklegram, &metaRaw, &m.Read,
		); err != nil {
			return nil, err
		}
		if attNull.Valid {
			m.Attachments = attNull.String
		}
		m.Metadata = unmarshalMetadata(metaRaw)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ─────────────────────────── AddCanonicalMessage

// AddCanonicalMessage вставляет сообщение в таблицу платформы и обновляет
// агрегаты чата одним коммитом: превью, счётчик непрочитанного, метки
// последнего входящего/исходящего. forceUnassign дополнительно снимает
// назначение: лид-формы не должны занимать очередь агента, даже если чат
// уже был назначен раньше.
func AddCanonicalMessage(ctx context.Context, store MessageStore, chat *models.Chat, m *models.Message, forceUnassign bool) error {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("AddCanonicalMessage: %w", err)
	}
	defer tx.Rollback()

	if err := store.InsertTx(ctx, tx, m); err != nil {
		return fmt.Errorf("AddCanonicalMessage: %w", err)
	}

	preview := previewText(m)
	now := time.Now().UTC()
	ts := m.Timestamp

	if m.Sender.Bucket() == models.BucketUser {
		const q = `
			UPDATE chats SET
				last_message = $2, last_incoming_at = $3, updated_at = $4,
				unread_count = unread_count + 1
			WHERE id = $1`
		if _, err := tx.ExecContext(ctx, q, chat.ID, preview, ts, now); err != nil {
			return fmt.Errorf("AddCanonicalMessage: обновление чата: %w", err)
		}
		chat.UnreadCount++
		chat.LastIncomingAt = &ts
	} else {
		const q = `
			UPDATE chats SET
				last_message = $2, last_outgoing_at = $3, updated_at = $4
			WHERE id = $1`
		if _, err := tx.ExecContext(ctx, q, chat.ID, preview, ts, now); err != nil {
			return fmt.Errorf("AddCanonicalMessage: обновление чата: %w", err)
		}
		chat.LastOutgoingAt = &ts
	}
	chat.LastMessage = &preview
	chat.UpdatedAt = now

	if forceUnassign {
		const q = `UPDATE chats SET status = $2, assigned_to = NULL WHERE id = $1`
		if _, err := tx.ExecContext(ctx, q, chat.ID, models.StatusUnassigned); err != nil {
			return fmt.Errorf("AddCanonicalMessage: сброс назначения: %w", err)
		}
		chat.Status = models.StatusUnassigned
		chat.AssignedTo = nil
	}

	return tx.Commit()
}

// previewText строит превью сообщения для списка чатов.
func previewText(m *models.Message) string {
	content := strings.TrimSpace(m.Content)
	if content == "" {
		if m.Attachments != "" {
			return "[вложение]"
		}
		return ""
	}
	const maxPreview = 200
	if len(content) <= maxPreview {
		return content
	}
	cut := maxPreview
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}
