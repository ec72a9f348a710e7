// Package dedup классифицирует платформенные события: новое сообщение,
// повторная доставка или эхо собственной отправки. Платформа пересылает
// вебхуки повторно и дублирует наши же отправки эхом, поэтому без этой
// классификации каждый ответ агента появлялся бы в ленте дважды.
//
// Порядок правил: повторная доставка определяется уникальным индексом журнала
// (см. database.InsertRawLogEntry и ErrDuplicateDelivery), затем проверяется
// эхо, всё остальное принимается как новое сообщение.
package dedup

import (
	"strings"
	"time"

	"github.com/egor/ticklegramserver/models"
)

// Decision — результат классификации события.
type Decision string

const (
	AdmitNew   Decision = "admit_new"
	Duplicate  Decision = "duplicate"
	EchoOfSelf Decision = "echo_of_self"
)

// IsEmptyTemplateShell сообщает, является ли событие пустой оболочкой
// шаблона: единственное вложение типа "template" без содержимого и без
// текста. Такие доставки — артефакт вебхука, они отбрасываются до
// классификации.
func IsEmptyTemplateShell(ev *models.IncomingEvent) bool {
	if strings.TrimSpace(ev.Text) != "" || len(ev.Attachments) != 1 {
		return false
	}
	att := ev.Attachments[0]
	return att.Type == "template" && att.URL == "" && len(att.Payload) == 0
}

// IsEchoOfSelf сообщает, является ли событие эхом нашей отправки: платформа
// пометила его признаком эха либо отправитель совпадает с нашим аккаунтом,
// и при этом идентификатор приложения — наш собственный.
func IsEchoOfSelf(ev *models.IncomingEvent, ownAppID string) bool {
	echo := ev.IsEcho || (ev.SenderID != "" && ev.SenderID == ev.PlatformAccountID)
	return echo && ownAppID != "" && ev.AppID == ownAppID
}

// MatchEcho ищет среди недавних сообщений агента то, которому соответствует
// эхо: та же сторона отправителя, тот же текст после обрезки пробелов,
// разница во времени не больше окна. Возвращает nil, если соответствия нет.
func MatchEcho(recent []models.Message, text string, eventTime time.Time, window time.Duration) *models.Message {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	for i := range recent {
		m := &recent[i]
		if m.Sender.Bucket() != models.BucketAgent {
			continue
		}
		if strings.TrimSpace(m.Content) != trimmed {
			continue
		}
		diff := eventTime.Sub(m.Timestamp)
		if diff < 0 {
			diff = -diff
		}
		if diff <= window {
			return m
		}
	}
	return nil
}

// MergeEchoContent переносит вложения и метаданные эха в существующее
// сообщение. Вложения заполняются только если их ещё не было, метаданные
// эха перекрывают прежние ключи. Возвращает true, если сообщение изменилось.
func MergeEchoContent(m *models.Message, attachments string, metadata map[string]interface{}) bool {
	changed := false
	if attachments != "" && m.Attachments == "" {
		m.Attachments = attachments
		changed = true
	}
	if len(metadata) > 0 {
		if m.Metadata == nil {
			m.Metadata = make(map[string]interface{}, len(metadata))
		}
		for k, v := range metadata {
			m.Metadata[k] = v
		}
		changed = true
	}
	return changed
}
