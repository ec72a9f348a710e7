package dedup

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egor/ticklegramserver/models"
)

func TestIsEmptyTemplateShell(t *testing.T) {
	t.Run("пустая оболочка шаблона", func(t *testing.T) {
		ev := &models.IncomingEvent{
			Attachments: []models.Attachment{{Type: "template"}},
		}
		assert.True(t, IsEmptyTemplateShell(ev))
	})

	t.Run("шаблон с содержимым не оболочка", func(t *testing.T) {
		ev := &models.IncomingEvent{
			Attachments: []models.Attachment{{
				Type:    "template",
				Payload: map[string]interface{}{"title": "Акция"},
			}},
		}
		assert.False(t, IsEmptyTemplateShell(ev))
	})

	t.Run("текст рядом с шаблоном не оболочка", func(t *testing.T) {
		ev := &models.IncomingEvent{
			Text:        "Привет",
			Attachments: []models.Attachment{{Type: "template"}},
		}
		assert.False(t, IsEmptyTemplateShell(ev))
	})

	t.Run("несколько вложений не оболочка", func(t *testing.T) {
		ev := &models.IncomingEvent{
			Attachments: []models.Attachment{{Type: "template"}, {Type: "image", URL: "http://x/1.jpg"}},
		}
		assert.False(t, IsEmptyTemplateShell(ev))
	})

	t.Run("обычное изображение не оболочка", func(t *testing.T) {
		ev := &models.IncomingEvent{
			Attachments: []models.Attachment{{Type: "image", URL: "http://x/1.jpg"}},
		}
		assert.False(t, IsEmptyTemplateShell(ev))
	})
}

func TestIsEchoOfSelf(t *testing.T) {
	const ownApp = "app-1"

	t.Run("флаг эха с нашим приложением", func(t *testing.T) {
		ev := &models.IncomingEvent{IsEcho: true, AppID: ownApp}
		assert.True(t, IsEchoOfSelf(ev, ownApp))
	})

	t.Run("отправитель совпадает с аккаунтом", func(t *testing.T) {
		ev := &models.IncomingEvent{
			SenderID:          "acc-9",
			PlatformAccountID: "acc-9",
			AppID:             ownApp,
		}
		assert.True(t, IsEchoOfSelf(ev, ownApp))
	})

	t.Run("чужое приложение не эхо", func(t *testing.T) {
		// Эхо от стороннего инструмента рассылки: считается новым сообщением
		ev := &models.IncomingEvent{IsEcho: true, AppID: "other-app"}
		assert.False(t, IsEchoOfSelf(ev, ownApp))
	})

	t.Run("без собственного app id эхо не распознаётся", func(t *testing.T) {
		ev := &models.IncomingEvent{IsEcho: true, AppID: ownApp}
		assert.False(t, IsEchoOfSelf(ev, ""))
	})

	t.Run("обычное входящее не эхо", func(t *testing.T) {
		ev := &models.IncomingEvent{
			SenderID:          "user-1",
			PlatformAccountID: "acc-9",
			AppID:             ownApp,
		}
		assert.False(t, IsEchoOfSelf(ev, ownApp))
	})
}

func TestMatchEcho(t *testing.T) {
	window := 30 * time.Second
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	agentMsg := func(content string, ts time.Time) models.Message {
		return models.Message{
			ID:        uuid.New(),
			Sender:    models.SenderAgent,
			Content:   content,
			Timestamp: ts,
		}
	}

	t.Run("совпадение внутри окна", func(t *testing.T) {
		recent := []models.Message{agentMsg("Добрый день!", now.Add(-10*time.Second))}
		m := MatchEcho(recent, "Добрый день!", now, window)
		require.NotNil(t, m)
		assert.Equal(t, recent[0].ID, m.ID)
	})

	t.Run("пробелы по краям не мешают", func(t *testing.T) {
		recent := []models.Message{agentMsg("Добрый день!", now.Add(-5*time.Second))}
		m := MatchEcho(recent, "  Добрый день!  \n", now, window)
		require.NotNil(t, m)
	})

	t.Run("вне окна совпадения нет", func(t *testing.T) {
		recent := []models.Message{agentMsg("Добрый день!", now.Add(-45*time.Second))}
		assert.Nil(t, MatchEcho(recent, "Добрый день!", now, window))
	})

	t.Run("другой текст не совпадает", func(t *testing.T) {
		recent := []models.Message{agentMsg("Добрый день!", now.Add(-5*time.Second))}
		assert.Nil(t, MatchEcho(recent, "До свидания!", now, window))
	})

	t.Run("сообщения собеседника не участвуют", func(t *testing.T) {
		recent := []models.Message{{
			ID:        uuid.New(),
			Sender:    models.SenderUser,
			Content:   "Добрый день!",
			Timestamp: now.Add(-5 * time.Second),
		}}
		assert.Nil(t, MatchEcho(recent, "Добрый день!", now, window))
	})

	t.Run("сообщение страницы считается стороной агента", func(t *testing.T) {
		recent := []models.Message{{
			ID:        uuid.New(),
			Sender:    models.SenderPage,
			Content:   "Добрый день!",
			Timestamp: now.Add(-5 * time.Second),
		}}
		require.NotNil(t, MatchEcho(recent, "Добрый день!", now, window))
	})

	t.Run("эхо раньше сообщения тоже в окне", func(t *testing.T) {
		// Часы расходятся: событие эха датировано раньше сохранённого сообщения
		recent := []models.Message{agentMsg("Добрый день!", now.Add(10*time.Second))}
		require.NotNil(t, MatchEcho(recent, "Добрый день!", now, window))
	})

	t.Run("пустой текст не сопоставляется", func(t *testing.T) {
		recent := []models.Message{agentMsg("", now)}
		assert.Nil(t, MatchEcho(recent, "   ", now, window))
	})
}

func TestMergeEchoContent(t *testing.T) {
	t.Run("вложения заполняются если пусто", func(t *testing.T) {
		m := &models.Message{Content: "Привет"}
		changed := MergeEchoContent(m, `[{"type":"image","url":"http://x/1.jpg"}]`, nil)
		assert.True(t, changed)
		assert.Contains(t, m.Attachments, "http://x/1.jpg")
	})

	t.Run("существующие вложения не затираются", func(t *testing.T) {
		m := &models.Message{Attachments: `[{"type":"image","url":"http://x/old.jpg"}]`}
		changed := MergeEchoContent(m, `[{"type":"image","url":"http://x/new.jpg"}]`, nil)
		assert.False(t, changed)
		assert.Contains(t, m.Attachments, "old.jpg")
	})

	t.Run("метаданные эха перекрывают прежние", func(t *testing.T) {
		m := &models.Message{Metadata: map[string]interface{}{"a": 1, "b": 2}}
		changed := MergeEchoContent(m, "", map[string]interface{}{"b": 3, "c": 4})
		assert.True(t, changed)
		assert.Equal(t, 1, m.Metadata["a"])
		assert.Equal(t, 3, m.Metadata["b"])
		assert.Equal(t, 4, m.Metadata["c"])
	})

	t.Run("нечего сливать", func(t *testing.T) {
		m := &models.Message{Content: "Привет"}
		assert.False(t, MergeEchoContent(m, "", nil))
	})
}
