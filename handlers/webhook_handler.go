package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/egor/ticklegramserver/database"
	"github.com/egor/ticklegramserver/dedup"
	"github.com/egor/ticklegramserver/leadform"
	"github.com/egor/ticklegramserver/models"
)

// VerifyWebhook отвечает на проверочный запрос платформы при подписке
func VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == Cfg.WebhookVerifyToken {
		logrus.Info("VerifyWebhook: подписка подтверждена")
		c.String(http.StatusOK, challenge)
		return
	}

	logrus.Warnf("VerifyWebhook: отклонена проверка (mode=%s)", mode)
	c.JSON(http.StatusForbidden, gin.H{"error": "неверный verify token"})
}

// ReceiveWebhook принимает нормализованное событие платформы.
// Платформа повторяет доставку при любом не-2xx ответе, поэтому все
// прикладные исходы отвечают 200; 5xx остаются за инфраструктурными сбоями.
func ReceiveWebhook(c *gin.Context) {
	var ev models.IncomingEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		logrus.Warnf("ReceiveWebhook: некорректное тело события: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "bad_payload"})
		return
	}

	platform, err := models.ParsePlatform(string(ev.Platform))
	if err != nil {
		logrus.Warnf("ReceiveWebhook: неизвестная платформа %q", ev.Platform)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "unknown_platform"})
		return
	}
	ev.Platform = platform

	if ev.CounterpartyID == "" || ev.PlatformAccountID == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "missing_ids"})
		return
	}

	// Пустая оболочка шаблона — артефакт вебхука, отбрасывается до классификации
	if dedup.IsEmptyTemplateShell(&ev) {
		logrus.Debugf("ReceiveWebhook: пустая оболочка шаблона от %s", ev.CounterpartyID)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "template_shell"})
		return
	}

	ctx := c.Request.Context()

	// Журналируем событие; уникальный индекс журнала отсекает повторные доставки
	entry := models.NewRawLogEntry(&ev)
	if err := database.InsertRawLogEntry(ctx, entry); err != nil {
		if errors.Is(err, database.ErrDuplicateDelivery) {
			// Повтор может нести referral, которого не было в первой доставке
			if ev.Referral != "" && ev.ExternalMessageID != "" {
				extID := models.TruncateExternalID(ev.ExternalMessageID)
				if err := database.UpdateRawLogReferral(ctx, extID, ev.Referral); err != nil {
					logrus.WithError(err).Warn("ReceiveWebhook: обогащение referral")
				}
			}
			logrus.Debugf("ReceiveWebhook: повторная доставка %s", ev.ExternalMessageID)
			c.JSON(http.StatusOK, gin.H{"status": string(dedup.Duplicate)})
			return
		}
		logrus.WithError(err).Error("ReceiveWebhook: запись в журнал")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ошибка записи журнала"})
		return
	}

	store, err := database.MessageStoreFor(ev.Platform)
	if err != nil {
		logrus.Errorf("ReceiveWebhook: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "unknown_platform"})
		return
	}

	if dedup.IsEchoOfSelf(&ev, Cfg.MetaAppID) {
		handleEcho(c, store, &ev)
		return
	}

	handleInbound(c, store, &ev)
}

// handleEcho обрабатывает эхо собственной отправки: сливает его с уже
// сохранённым сообщением агента либо, если пары нет, принимает как
// сообщение страницы.
func handleEcho(c *gin.Context, store database.MessageStore, ev *models.IncomingEvent) {
	ctx := c.Request.Context()

	chat, _, err := database.GetOrCreateChat(ctx, ev.Platform, ev.CounterpartyID, ev.PlatformAccountID, ev.UserName, ev.UserAvatar)
	if err != nil {
		logrus.WithError(err).Error("handleEcho: получение чата")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ошибка обработки события"})
		return
	}

	eventTime := ev.EventTime()
	window := Cfg.EchoWindow()

	recent, err := store.RecentAgentMessages(ctx, chat.ID, eventTime.Add(-window))
	if err != nil {
		logrus.WithError(err).Warn("handleEcho: чтение недавних сообщений агента")
		recent = nil
	}

	if m := dedup.MatchEcho(recent, ev.Text, eventTime, window); m != nil {
		var meta map[string]interface{}
		if ev.Referral != "" {
			meta = map[string]interface{}{"referral": ev.Referral}
		}
		if dedup.MergeEchoContent(m, models.SerializeAttachments(ev.Attachments), meta) {
			if err := store.UpdateAttachments(ctx, m.ID, m.Attachments, m.Metadata); err != nil {
				logrus.WithError(err).Warn("handleEcho: слияние содержимого эха")
			}
		}
		logrus.Debugf("handleEcho: эхо слито с сообщением %s", m.ID)
		c.JSON(http.StatusOK, gin.H{"status": string(dedup.EchoOfSelf), "merged_into": m.ID})
		return
	}

	// Эхо без пары: отправка из внешнего инструмента. Принимаем как сообщение
	// страницы; назначение и счётчик непрочитанного не трогаем.
	msg := &models.Message{
		ID:          uuid.New(),
		ChatID:      chat.ID,
		Sender:      models.SenderPage,
		Content:     ev.Text,
		Type:        eventMessageType(ev),
		Timestamp:   eventTime,
		Attachments: models.SerializeAttachments(ev.Attachments),
		Read:        true,
	}
	if err := database.AddCanonicalMessage(ctx, store, chat, msg, false); err != nil {
		logrus.WithError(err).Error("handleEcho: сохранение сообщения страницы")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ошибка сохранения сообщения"})
		return
	}

	notifyNewMessage(ctx, chat, msg)

	logrus.Infof("handleEcho: эхо без пары принято как сообщение страницы в чат %s", chat.ID)
	c.JSON(http.StatusOK, gin.H{"status": string(dedup.AdmitNew), "sender": string(models.SenderPage)})
}

// handleInbound принимает входящее сообщение собеседника: сохраняет его,
// распознаёт лид-форму и назначает свободный чат по кругу.
func handleInbound(c *gin.Context, store database.MessageStore, ev *models.IncomingEvent) {
	ctx := c.Request.Context()

	chat, created, err := database.GetOrCreateChat(ctx, ev.Platform, ev.CounterpartyID, ev.PlatformAccountID, ev.UserName, ev.UserAvatar)
	if err != nil {
		logrus.WithError(err).Error("handleInbound: получение чата")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ошибка обработки события"})
		return
	}

	isLeadForm := leadform.IsLeadForm(ev.Text)

	msg := &models.Message{
		ID:          uuid.New(),
		ChatID:      chat.ID,
		Sender:      models.SenderUser,
		Content:     ev.Text,
		Type:        eventMessageType(ev),
		Timestamp:   ev.EventTime(),
		Attachments: models.SerializeAttachments(ev.Attachments),
		IsLeadForm:  isLeadForm,
	}
	if ev.Referral != "" {
		msg.Metadata = map[string]interface{}{"referral": ev.Referral}
	}

	// Лид-форма снимает назначение: заявки ждут в общей очереди
	if err := database.AddCanonicalMessage(ctx, store, chat, msg, isLeadForm); err != nil {
		logrus.WithError(err).Error("handleInbound: сохранение сообщения")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ошибка сохранения сообщения"})
		return
	}

	if isLeadForm {
		logrus.Infof("handleInbound: лид-форма в чате %s, чат оставлен без назначения", chat.ID)
	} else if chat.Status == models.StatusUnassigned {
		agent, err := database.AssignChatRoundRobin(ctx, chat.ID)
		if err != nil {
			logrus.WithError(err).Errorf("handleInbound: назначение чата %s", chat.ID)
		} else if agent != nil {
			chat.Status = models.StatusAssigned
			chat.AssignedTo = &agent.ID
		}
	}

	notifyNewMessage(ctx, chat, msg)

	c.JSON(http.StatusOK, gin.H{
		"status":    string(dedup.AdmitNew),
		"chat_id":   chat.ID,
		"created":   created,
		"lead_form": isLeadForm,
	})
}

// eventMessageType выбирает тип канонического сообщения по содержимому события.
func eventMessageType(ev *models.IncomingEvent) string {
	if strings.TrimSpace(ev.Text) != "" || len(ev.Attachments) == 0 {
		return models.MessageText
	}
	for _, att := range ev.Attachments {
		if att.Type == "image" {
			return models.MessageImage
		}
	}
	return models.MessageText
}
