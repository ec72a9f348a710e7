// Package reconcile сливает два независимых хранилища истории чата —
// канонические сообщения и сырой журнал платформенных событий — в одну
// упорядоченную ленту без дубликатов. Журнал пишется вебхуком, сообщения —
// синхронным путём отправки, поэтому одна и та же реплика может жить в обоих
// хранилищах с расхождением меток времени до секунды, а содержимое вложений
// бывает известно только одному из них.
package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/egor/ticklegramserver/models"
)

// Options — параметры сверки.
type Options struct {
	// DriftTolerance — допуск расхождения времени (часовые пояса, сдвиг
	// часов) при защите от синтетических дубликатов канонического
	// содержимого. Ноль означает DefaultDriftTolerance.
	DriftTolerance time.Duration
}

// DefaultDriftTolerance — допуск по умолчанию. Ширина унаследована от
// наблюдавшегося расхождения часов между источниками; сужается через
// конфигурацию RECONCILE_DRIFT_HOURS.
const DefaultDriftTolerance = 72 * time.Hour

// Пространство имён детерминированных ID синтетических сообщений.
var syntheticNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("ticklegram.raw_log"))

// Плейсхолдеры, которые записывает синхронный путь, пока содержимое
// вложения ещё неизвестно.
var placeholders = map[string]bool{
	"":             true,
	"[attachment]": true,
	"[вложение]":   true,
}

// source указывает происхождение записи ленты.
type source int

const (
	sourceCanonical source = iota
	sourceSynthesized
)

// record — запись ленты до сортировки: каноническое сообщение либо
// синтезированная из журнала запись. Происхождение — вопрос уровня типа,
// а не префикса в идентификаторе.
type record struct {
	msg    models.Message
	source source
	order  int // порядок появления, для стабильной сортировки
}

func (r *record) unix() int64 {
	return r.msg.Timestamp.Unix()
}

type bucketKey struct {
	ts     int64
	bucket models.SenderBucket
}

type contentKey struct {
	bucket  models.SenderBucket
	content string
}

// Reconcile строит ленту чата из канонических сообщений и записей журнала.
// Вызывается на каждом чтении чата. Детерминирован и идемпотентен: повторный
// вызов на неизменных данных возвращает ту же последовательность. Ошибок не
// возвращает: кривые данные дают неполную ленту, а не отказ.
func Reconcile(chatID uuid.UUID, canonical []models.Message, raw []models.RawLogEntry, opts Options) []models.Message {
	drift := opts.DriftTolerance
	if drift <= 0 {
		drift = DefaultDriftTolerance
	}

	// Журнал по unix-секунде события. Кандидаты для секунды ts — группы
	// ts-1, ts, ts+1: независимые пути записи расходятся до секунды.
	byTS := make(map[int64][]*models.RawLogEntry, len(raw))
	for i := range raw {
		e := &raw[i]
		byTS[e.EventTS] = append(byTS[e.EventTS], e)
	}

	records := make([]record, 0, len(canonical)+len(raw))
	canonicalBuckets := make(map[bucketKey]bool, len(canonical))
	canonicalContent := make(map[contentKey][]int64, len(canonical))

	for i := range canonical {
		m := canonical[i] // копия: гидратация не трогает входные данные
		hydrate(&m, byTS)
		records = append(records, record{msg: m, source: sourceCanonical, order: i})
		canonicalBuckets[bucketKey{m.Timestamp.Unix(), m.Sender.Bucket()}] = true
		ck := contentKey{m.Sender.Bucket(), strings.TrimSpace(m.Content)}
		canonicalContent[ck] = append(canonicalContent[ck], m.Timestamp.Unix())
	}

	// Синтез: записи журнала без канонического соответствия по секунде и
	// стороне попадают в ленту сами, иначе история выглядела бы дырявой.
	for i := range raw {
		e := &raw[i]
		if hasCanonicalNeighbor(canonicalBuckets, e) {
			continue
		}
		if hasContentWithinDrift(canonicalContent, e, drift) {
			continue
		}
		records = append(records, record{
			msg:    synthesize(chatID, e),
			source: sourceSynthesized,
			order:  len(records),
		})
	}

	// Дубликаты по (секунда, сторона, текст). Канонические записи идут в
	// records первыми, поэтому при совпадении ключа канон всегда побеждает.
	type dedupKey struct {
		ts      int64
		bucket  models.SenderBucket
		content string
	}
	seen := make(map[dedupKey]bool, len(records))
	kept := records[:0]
	for _, r := range records {
		k := dedupKey{r.unix(), r.msg.Sender.Bucket(), strings.TrimSpace(r.msg.Content)}
		if seen[k] {
			continue
		}
		seen[k] = true
		kept = append(kept, r)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := &kept[i], &kept[j]
		if !a.msg.Timestamp.Equal(b.msg.Timestamp) {
			return a.msg.Timestamp.Before(b.msg.Timestamp)
		}
		if a.source != b.source {
			return a.source == sourceCanonical
		}
		return a.order < b.order
	})

	// Приоритет собственных отправок: запись с флагом is_ticklegram вытесняет
	// непомеченную с тем же (секунда, текст в нижнем регистре) — иначе рядом
	// висели бы и наша отправка, и её обезличенное эхо.
	type prioKey struct {
		ts      int64
		content string
	}
	flagged := make(map[prioKey]bool)
	for i := range kept {
		if kept[i].msg.IsTicklegram {
			flagged[prioKey{kept[i].unix(), strings.ToLower(kept[i].msg.Content)}] = true
		}
	}

	out := make([]models.Message, 0, len(kept))
	for i := range kept {
		r := &kept[i]
		if !r.msg.IsTicklegram && flagged[prioKey{r.unix(), strings.ToLower(r.msg.Content)}] {
			continue
		}
		out = append(out, r.msg)
	}
	return out
}

// hydrate заполняет пустое или плейсхолдерное содержимое канонического
// сообщения из записи журнала той же стороны в секундах ts-1, ts, ts+1.
// Синхронный путь записывает сообщение раньше, чем платформа отдаёт
// содержимое вложений, — здесь это содержимое подтягивается при чтении.
func hydrate(m *models.Message, byTS map[int64][]*models.RawLogEntry) {
	if !isPlaceholder(m.Content) {
		return
	}
	cand := findCandidate(byTS, m.Timestamp.Unix(), m.Sender.Bucket())
	if cand == nil {
		return
	}
	if strings.TrimSpace(cand.Text) != "" {
		m.Content = cand.Text
	}
	if cand.Attachments != "" && m.Attachments == "" {
		m.Attachments = cand.Attachments
	}
}

func isPlaceholder(content string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(content))]
}

// findCandidate ищет запись журнала с совпадающей стороной в секундах
// ts, ts-1, ts+1. При нескольких кандидатах берётся первый в порядке строк.
func findCandidate(byTS map[int64][]*models.RawLogEntry, ts int64, bucket models.SenderBucket) *models.RawLogEntry {
	for _, delta := range []int64{0, -1, 1} {
		for _, e := range byTS[ts+delta] {
			if e.Direction.Bucket() == bucket {
				return e
			}
		}
	}
	return nil
}

func hasCanonicalNeighbor(buckets map[bucketKey]bool, e *models.RawLogEntry) bool {
	for _, delta := range []int64{-1, 0, 1} {
		if buckets[bucketKey{e.EventTS + delta, e.Direction.Bucket()}] {
			return true
		}
	}
	return false
}

// hasContentWithinDrift сообщает, есть ли в каноне то же содержимое той же
// стороны в пределах допуска. Защита от дубликатов при большом расхождении
// часов между журналом и сообщениями.
func hasContentWithinDrift(content map[contentKey][]int64, e *models.RawLogEntry, drift time.Duration) bool {
	tolerance := int64(drift / time.Second)
	for _, ts := range content[contentKey{e.Direction.Bucket(), strings.TrimSpace(e.Text)}] {
		diff := ts - e.EventTS
		if diff < 0 {
			diff = -diff
		}
		if diff <= tolerance {
			return true
		}
	}
	return false
}

// synthesize строит каноническое по форме сообщение из записи журнала.
// ID детерминированный: повторная сверка тех же данных даёт те же ID.
func synthesize(chatID uuid.UUID, e *models.RawLogEntry) models.Message {
	sender := models.SenderUser
	if e.Direction == models.DirectionOutgoing {
		sender = models.SenderAgent
	}
	mtype := models.MessageText
	if strings.TrimSpace(e.Text) == "" && e.Attachments != "" {
		mtype = models.MessageImage
	}
	return models.Message{
		ID:           uuid.NewSHA1(syntheticNamespace, e.ID[:]),
		ChatID:       chatID,
		Sender:       sender,
		Content:      e.Text,
		Type:         mtype,
		Timestamp:    time.Unix(e.EventTS, 0).UTC(),
		Attachments:  e.Attachments,
		IsTicklegram: e.FromTicklegram,
		Read:         true,
		Synthetic:    true,
	}
}
