package handlers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/egor/ticklegramserver/config"
	"github.com/egor/ticklegramserver/database"
	"github.com/egor/ticklegramserver/graph"
	"github.com/egor/ticklegramserver/models"
	"github.com/egor/ticklegramserver/websocket"
)

// WebSocketHub - глобальная переменная для доступа к WebSocket хабу из всех обработчиков
var WebSocketHub *websocket.Hub

// Cfg - конфигурация процесса, устанавливается при старте
var Cfg *config.Config

// Graph - клиент Graph API для исходящих отправок
var Graph *graph.Client

// SetWebSocketHub устанавливает WebSocket хаб для обработчиков
func SetWebSocketHub(hub *websocket.Hub) {
	WebSocketHub = hub
	logrus.Info("WebSocket hub установлен в обработчиках")
}

// SetConfig устанавливает конфигурацию для обработчиков
func SetConfig(cfg *config.Config) {
	Cfg = cfg
}

// SetGraphClient устанавливает клиента Graph API для обработчиков
func SetGraphClient(client *graph.Client) {
	Graph = client
}

// notifyNewMessage уведомляет адресатов чата о новом сообщении:
// назначенного агента и активных администраторов.
func notifyNewMessage(ctx context.Context, chat *models.Chat, message *models.Message) {
	if WebSocketHub == nil {
		return
	}
	targets, err := database.NotifyTargets(ctx, chat)
	if err != nil {
		logrus.WithError(err).Warn("notifyNewMessage: не удалось определить адресатов")
		return
	}
	WebSocketHub.SendToUsers(targets, websocket.NewMessageNotification(chat, message))
}
