package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/egor/ticklegramserver/database"
	"github.com/egor/ticklegramserver/models"
	"github.com/egor/ticklegramserver/reconcile"
)

// Окно платформы для исходящих сообщений: отвечать можно только в течение
// суток после последнего входящего.
const outboundWindow = 24 * time.Hour

// PaginationResponse стандартная структура ответа с пагинацией
type PaginationResponse struct {
	Items      interface{} `json:"items"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalItems int         `json:"totalItems"`
	TotalPages int         `json:"totalPages"`
}

// agentFromContext достаёт идентификатор и роль агента из токена.
func agentFromContext(c *gin.Context) (uuid.UUID, bool, bool) {
	agentIDStr := c.GetString("agentID")
	if agentIDStr == "" {
		return uuid.Nil, false, false
	}
	agentID, err := uuid.Parse(agentIDStr)
	if err != nil {
		return uuid.Nil, false, false
	}
	return agentID, c.GetString("role") == models.RoleAdmin, true
}

// GetChats возвращает список чатов: администратор видит все, агент —
// назначенные ему и свободные
func GetChats(c *gin.Context) {
	agentID, isAdmin, ok := agentFromContext(c)
	if !ok {
		logrus.Warn("GetChats: agentID отсутствует в контексте")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Необходима авторизация"})
		return
	}

	// Получаем параметры пагинации
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(database.DefaultPageSize)))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > database.MaxPageSize {
		pageSize = database.DefaultPageSize
	}

	// Необязательный фильтр по состоянию назначения
	var status models.ChatStatus
	switch s := c.Query("status"); s {
	case "":
	case string(models.StatusAssigned), string(models.StatusUnassigned):
		status = models.ChatStatus(s)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неизвестный статус: " + s})
		return
	}

	logrus.Debugf("GetChats: запрос чатов от агента %s (admin=%v, страница: %d, размер: %d)",
		agentID, isAdmin, page, pageSize)

	chats, totalItems, err := database.GetChats(agentID, isAdmin, status, page, pageSize)
	if err != nil {
		logrus.Errorf("GetChats: ошибка получения чатов для агента %s: %v", agentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка получения чатов: " + err.Error()})
		return
	}

	totalPages := (totalItems + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	c.JSON(http.StatusOK, PaginationResponse{
		Items:      chats,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	})
}

// GetChatByID возвращает чат и согласованную ленту его сообщений.
// Лента собирается из канонических сообщений и сырого журнала, поэтому
// доставки, не получившие канонической записи, всё равно видны агенту.
func GetChatByID(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный формат chatID"})
		return
	}
	agentID, isAdmin, ok := agentFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Необходима авторизация"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(database.DefaultPageSize)))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > database.MaxPageSize {
		pageSize = database.DefaultPageSize
	}

	chat, err := database.GetChatByID(chatID)
	if err != nil {
		logrus.Errorf("GetChatByID: ошибка получения чата %s: %v", chatID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка получения чата"})
		return
	}
	if chat == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Чат не найден"})
		return
	}
	if !isAdmin && chat.AssignedTo != nil && *chat.AssignedTo != agentID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Чат назначен другому агенту"})
		return
	}

	store, err := database.MessageStoreFor(chat.Platform)
	if err != nil {
		logrus.Errorf("GetChatByID: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Неизвестная платформа чата"})
		return
	}

	ctx := c.Request.Context()

	canonical, err := store.MessagesByChat(ctx, chat.ID)
	if err != nil {
		logrus.Errorf("GetChatByID: ошибка чтения сообщений чата %s: %v", chatID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка получения сообщений"})
		return
	}

	rawEntries, err := database.RawLogForCounterparty(ctx, chat.Platform, chat.CounterpartyID, chat.AccountID)
	if err != nil {
		// Журнал недоступен: отдаём хотя бы канонические сообщения
		logrus.WithError(err).Warnf("GetChatByID: сырой журнал чата %s недоступен", chatID)
		rawEntries = nil
	}

	timeline := reconcile.Reconcile(chat.ID, canonical, rawEntries, reconcile.Options{
		DriftTolerance: Cfg.ReconcileDrift(),
	})

	// Страница 1 — самые свежие сообщения; внутри страницы порядок хронологический
	totalMessages := len(timeline)
	start := totalMessages - page*pageSize
	end := totalMessages - (page-1)*pageSize
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}
	chat.Messages = timeline[start:end]

	// Отмечаем сообщения как прочитанные
	if err := database.MarkChatRead(chat.ID, store); err != nil {
		logrus.Warnf("GetChatByID: ошибка при отметке сообщений как прочитанные: %v", err)
	} else {
		chat.UnreadCount = 0
	}

	totalPages := (totalMessages + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	c.JSON(http.StatusOK, struct {
		Chat       *models.Chat `json:"chat"`
		Page       int          `json:"page"`
		PageSize   int          `json:"pageSize"`
		TotalItems int          `json:"totalMessages"`
		TotalPages int          `json:"totalPages"`
	}{
		Chat:       chat,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalMessages,
		TotalPages: totalPages,
	})
}

// SendMessage отправляет ответ агента собеседнику через Graph API
func SendMessage(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный формат chatID"})
		return
	}
	agentID, _, ok := agentFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Необходима авторизация"})
		return
	}

	var messageData struct {
		Content string `json:"content" binding:"required"`
		Type    string `json:"type"`
	}
	if err := c.ShouldBindJSON(&messageData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}
	if strings.TrimSpace(messageData.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Пустое сообщение"})
		return
	}
	messageType := models.MessageText
	if messageData.Type != "" {
		messageType = messageData.Type
	}

	chat, err := database.GetChatByID(chatID)
	if err != nil {
		logrus.Errorf("SendMessage: ошибка получения чата %s: %v", chatID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка получения чата"})
		return
	}
	if chat == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Чат не найден"})
		return
	}

	// Платформа принимает исходящие только в течение суток после
	// последнего входящего
	if chat.LastIncomingAt == nil || time.Since(*chat.LastIncomingAt) > outboundWindow {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Окно ответа 24 часа закрыто"})
		return
	}

	store, err := database.MessageStoreFor(chat.Platform)
	if err != nil {
		logrus.Errorf("SendMessage: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Неизвестная платформа чата"})
		return
	}

	if Graph == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Отправка сообщений не настроена"})
		return
	}

	ctx := c.Request.Context()

	externalID, err := Graph.SendText(ctx, chat.CounterpartyID, messageData.Content)
	if err != nil {
		logrus.Errorf("SendMessage: ошибка Graph API для чата %s: %v", chatID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Ошибка отправки сообщения: " + err.Error()})
		return
	}

	now := time.Now().UTC()

	// Регистрируем отправку в журнале до канонической записи: уникальный
	// индекс по внешнему идентификатору отсечёт эхо этой же отправки
	if externalID != "" {
		extID := models.TruncateExternalID(externalID)
		entry := &models.RawLogEntry{
			ID:                uuid.New(),
			Platform:          chat.Platform,
			CounterpartyID:    chat.CounterpartyID,
			AccountID:         chat.AccountID,
			ExternalMessageID: &extID,
			Direction:         models.DirectionOutgoing,
			Text:              messageData.Content,
			EventTS:           now.Unix(),
			FromTicklegram:    true,
			CreatedAt:         now,
		}
		if err := database.InsertRawLogEntry(ctx, entry); err != nil {
			if errors.Is(err, database.ErrDuplicateDelivery) {
				// Эхо платформы успело раньше нашей записи
				logrus.Debugf("SendMessage: отправка %s уже в журнале", extID)
			} else {
				logrus.WithError(err).Warn("SendMessage: не удалось зарегистрировать отправку в журнале")
			}
		}
	}

	message := &models.Message{
		ID:           uuid.New(),
		ChatID:       chat.ID,
		Sender:       models.SenderAgent,
		Content:      messageData.Content,
		Type:         messageType,
		Timestamp:    now,
		IsTicklegram: true,
		Read:         true,
	}
	if err := database.AddCanonicalMessage(ctx, store, chat, message, false); err != nil {
		logrus.Errorf("SendMessage: ошибка сохранения сообщения: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка сохранения сообщения"})
		return
	}

	notifyNewMessage(ctx, chat, message)

	logrus.Infof("SendMessage: агент %s ответил в чат %s (внешний ID: %s)", agentID, chat.ID, externalID)
	c.JSON(http.StatusOK, message)
}
