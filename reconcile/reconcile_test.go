package reconcile

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egor/ticklegramserver/models"
)

var (
	chatID = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	base   = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
)

func canonicalMsg(sender models.SenderKind, content string, at time.Time) models.Message {
	return models.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		Sender:    sender,
		Content:   content,
		Type:      models.MessageText,
		Timestamp: at,
	}
}

func rawEntry(dir models.Direction, text string, at time.Time) models.RawLogEntry {
	return models.RawLogEntry{
		ID:             uuid.New(),
		Platform:       models.PlatformInstagram,
		CounterpartyID: "u1",
		AccountID:      "acc",
		Direction:      dir,
		Text:           text,
		EventTS:        at.Unix(),
		CreatedAt:      at,
	}
}

func TestReconcileEmpty(t *testing.T) {
	out := Reconcile(chatID, nil, nil, Options{})
	assert.Empty(t, out)
}

func TestReconcileCanonicalOnly(t *testing.T) {
	canonical := []models.Message{
		canonicalMsg(models.SenderUser, "Привет", base),
		canonicalMsg(models.SenderAgent, "Здравствуйте", base.Add(time.Minute)),
	}
	out := Reconcile(chatID, canonical, nil, Options{})
	require.Len(t, out, 2)
	assert.Equal(t, canonical[0].ID, out[0].ID)
	assert.Equal(t, canonical[1].ID, out[1].ID)
}

// Записи журнала без канонического соответствия синтезируются в ленту.
func TestReconcileSynthesizesOrphanRaw(t *testing.T) {
	canonical := []models.Message{
		canonicalMsg(models.SenderUser, "Привет", base),
	}
	raw := []models.RawLogEntry{
		rawEntry(models.DirectionIncoming, "Привет", base),                       // есть каноническая пара
		rawEntry(models.DirectionIncoming, "А это потерялось", base.Add(time.Hour)), // пары нет
	}

	out := Reconcile(chatID, canonical, raw, Options{})
	require.Len(t, out, 2)

	assert.Equal(t, canonical[0].ID, out[0].ID)
	assert.False(t, out[0].Synthetic)

	assert.True(t, out[1].Synthetic)
	assert.Equal(t, "А это потерялось", out[1].Content)
	assert.Equal(t, models.SenderUser, out[1].Sender)
	assert.True(t, out[1].Read)
}

// Направление записи журнала определяет отправителя синтетики.
func TestReconcileSyntheticSender(t *testing.T) {
	raw := []models.RawLogEntry{
		rawEntry(models.DirectionIncoming, "от собеседника", base),
		rawEntry(models.DirectionOutgoing, "от агента", base.Add(time.Minute)),
	}

	out := Reconcile(chatID, nil, raw, Options{})
	require.Len(t, out, 2)
	assert.Equal(t, models.SenderUser, out[0].Sender)
	assert.Equal(t, models.SenderAgent, out[1].Sender)
}

// Соседство по секунде: расхождение путей записи до секунды не плодит дублей.
func TestReconcileNeighborSecondSuppression(t *testing.T) {
	canonical := []models.Message{
		canonicalMsg(models.SenderAgent, "Ответ", base),
	}
	for _, delta := range []time.Duration{-time.Second, 0, time.Second} {
		raw := []models.RawLogEntry{
			rawEntry(models.DirectionOutgoing, "Ответ", base.Add(delta)),
		}
		out := Reconcile(chatID, canonical, raw, Options{})
		assert.Len(t, out, 1, "смещение %s", delta)
		assert.Equal(t, canonical[0].ID, out[0].ID)
	}

	// Другая сторона тем же текстом — не соседство
	raw := []models.RawLogEntry{
		rawEntry(models.DirectionIncoming, "Другой текст", base),
	}
	out := Reconcile(chatID, canonical, raw, Options{})
	assert.Len(t, out, 2)
}

// Защита от дублей при расхождении часов: одинаковое содержимое той же
// стороны в пределах допуска не синтезируется.
func TestReconcileContentDriftGuard(t *testing.T) {
	canonical := []models.Message{
		canonicalMsg(models.SenderAgent, "Добрый день!", base),
	}
	raw := []models.RawLogEntry{
		rawEntry(models.DirectionOutgoing, "Добрый день!", base.Add(50*time.Hour)),
	}

	t.Run("внутри допуска запись подавляется", func(t *testing.T) {
		out := Reconcile(chatID, canonical, raw, Options{})
		assert.Len(t, out, 1)
	})

	t.Run("вне допуска запись синтезируется", func(t *testing.T) {
		out := Reconcile(chatID, canonical, raw, Options{DriftTolerance: time.Hour})
		assert.Len(t, out, 2)
	})

	t.Run("другая сторона не подавляется", func(t *testing.T) {
		mirror := []models.RawLogEntry{
			rawEntry(models.DirectionIncoming, "Добрый день!", base.Add(50*time.Hour)),
		}
		out := Reconcile(chatID, canonical, mirror, Options{})
		assert.Len(t, out, 2)
	})
}

// Гидратация: плейсхолдер канонического сообщения заполняется содержимым
// журнала той же стороны из соседней секунды.
func TestReconcileHydration(t *testing.T) {
	atts := `[{"type":"image","url":"http://x/1.jpg"}]`

	for _, placeholder := range []string{"", "[attachment]", "[вложение]", " [Attachment] "} {
		m := canonicalMsg(models.SenderAgent, placeholder, base)
		e := rawEntry(models.DirectionOutgoing, "Вот фото", base.Add(time.Second))
		e.Attachments = atts

		out := Reconcile(chatID, []models.Message{m}, []models.RawLogEntry{e}, Options{})
		require.Len(t, out, 1, "плейсхолдер %q", placeholder)
		assert.Equal(t, "Вот фото", out[0].Content)
		assert.Equal(t, atts, out[0].Attachments)
		assert.Equal(t, m.ID, out[0].ID)
		assert.False(t, out[0].Synthetic)
	}

	t.Run("непустое содержимое не трогается", func(t *testing.T) {
		m := canonicalMsg(models.SenderAgent, "Уже есть текст", base)
		e := rawEntry(models.DirectionOutgoing, "Другой текст", base)

		out := Reconcile(chatID, []models.Message{m}, []models.RawLogEntry{e}, Options{})
		require.Len(t, out, 1) // запись журнала подавлена соседством по секунде
		assert.Equal(t, "Уже есть текст", out[0].Content)
	})

	t.Run("чужая сторона не гидратирует", func(t *testing.T) {
		m := canonicalMsg(models.SenderAgent, "", base)
		e := rawEntry(models.DirectionIncoming, "Текст собеседника", base)

		out := Reconcile(chatID, []models.Message{m}, []models.RawLogEntry{e}, Options{})
		require.Len(t, out, 2)
		assert.Equal(t, "", out[0].Content)
	})
}

// Гидратация не изменяет входной срез: сверка выполняется при каждом чтении
// и не должна иметь побочных эффектов.
func TestReconcileDoesNotMutateInput(t *testing.T) {
	canonical := []models.Message{
		canonicalMsg(models.SenderAgent, "", base),
	}
	raw := []models.RawLogEntry{
		rawEntry(models.DirectionOutgoing, "Содержимое", base),
	}

	out := Reconcile(chatID, canonical, raw, Options{})
	require.Len(t, out, 1)
	assert.Equal(t, "Содержимое", out[0].Content)
	assert.Equal(t, "", canonical[0].Content)
}

// Повторная сверка неизменных данных даёт идентичную последовательность,
// включая идентификаторы синтетических сообщений.
func TestReconcileIdempotent(t *testing.T) {
	canonical := []models.Message{
		canonicalMsg(models.SenderUser, "Привет", base),
		canonicalMsg(models.SenderAgent, "", base.Add(time.Minute)),
	}
	raw := []models.RawLogEntry{
		rawEntry(models.DirectionOutgoing, "Здравствуйте", base.Add(time.Minute)),
		rawEntry(models.DirectionIncoming, "Потерянное", base.Add(2*time.Minute)),
		rawEntry(models.DirectionOutgoing, "Ещё потерянное", base.Add(3*time.Minute)),
	}

	first := Reconcile(chatID, canonical, raw, Options{})
	second := Reconcile(chatID, canonical, raw, Options{})
	assert.Equal(t, first, second)
}

// Соседство считается по усечённой unix-секунде: субсекундное смещение
// канонической метки не спасает дубль из журнала.
func TestReconcileCanonicalWinsSameSecond(t *testing.T) {
	m := canonicalMsg(models.SenderUser, "Привет", base.Add(500*time.Millisecond))
	e := rawEntry(models.DirectionIncoming, "Привет", base)

	out := Reconcile(chatID, []models.Message{m}, []models.RawLogEntry{e}, Options{})
	require.Len(t, out, 1)
	assert.Equal(t, m.ID, out[0].ID)
	assert.False(t, out[0].Synthetic)
}

// Дубли по (секунда, сторона, текст) схлопываются: выживает первая запись.
func TestReconcileDedup(t *testing.T) {
	t.Run("двойная каноническая вставка", func(t *testing.T) {
		first := canonicalMsg(models.SenderUser, "Привет", base)
		second := canonicalMsg(models.SenderUser, " Привет ", base)

		out := Reconcile(chatID, []models.Message{first, second}, nil, Options{})
		require.Len(t, out, 1)
		assert.Equal(t, first.ID, out[0].ID)
	})

	t.Run("двойная запись журнала", func(t *testing.T) {
		raw := []models.RawLogEntry{
			rawEntry(models.DirectionIncoming, "Привет", base),
			rawEntry(models.DirectionIncoming, "Привет", base),
		}

		out := Reconcile(chatID, nil, raw, Options{})
		require.Len(t, out, 1)
		assert.True(t, out[0].Synthetic)
	})
}

// Лента упорядочена по времени; при равном времени канон идёт раньше синтетики.
func TestReconcileOrdering(t *testing.T) {
	canonical := []models.Message{
		canonicalMsg(models.SenderAgent, "Второе", base.Add(2*time.Second)),
		canonicalMsg(models.SenderUser, "Первое", base),
	}
	raw := []models.RawLogEntry{
		rawEntry(models.DirectionIncoming, "Тоже второе", base.Add(2*time.Second)),
	}

	out := Reconcile(chatID, canonical, raw, Options{})
	require.Len(t, out, 3)
	assert.Equal(t, "Первое", out[0].Content)
	assert.Equal(t, "Второе", out[1].Content)
	assert.Equal(t, "Тоже второе", out[2].Content)
	assert.True(t, out[2].Synthetic)
}

// Помеченная is_ticklegram запись вытесняет непомеченную с тем же текстом
// в той же секунде: наша отправка и её обезличенное эхо не висят рядом.
func TestReconcileTicklegramPriority(t *testing.T) {
	ours := canonicalMsg(models.SenderAgent, "Спасибо!", base)
	ours.IsTicklegram = true
	echo := canonicalMsg(models.SenderPage, "СПАСИБО!", base)

	out := Reconcile(chatID, []models.Message{ours, echo}, nil, Options{})
	require.Len(t, out, 1)
	assert.Equal(t, ours.ID, out[0].ID)
	assert.True(t, out[0].IsTicklegram)
}

// Синтетика из вложения без текста получает тип image.
func TestReconcileSyntheticAttachmentType(t *testing.T) {
	e := rawEntry(models.DirectionIncoming, "", base)
	e.Attachments = `[{"type":"image","url":"http://x/1.jpg"}]`

	out := Reconcile(chatID, nil, []models.RawLogEntry{e}, Options{})
	require.Len(t, out, 1)
	assert.Equal(t, models.MessageImage, out[0].Type)
	assert.Equal(t, e.Attachments, out[0].Attachments)
}

// Синтетика наследует флаг собственной отправки из журнала.
func TestReconcileSyntheticKeepsTicklegramFlag(t *testing.T) {
	e := rawEntry(models.DirectionOutgoing, "Отправлено нами", base)
	e.FromTicklegram = true

	out := Reconcile(chatID, nil, []models.RawLogEntry{e}, Options{})
	require.Len(t, out, 1)
	assert.True(t, out[0].IsTicklegram)
	assert.Equal(t, models.SenderAgent, out[0].Sender)
}
