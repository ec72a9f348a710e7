package main

import (
	"context"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/egor/ticklegramserver/assignment"
	"github.com/egor/ticklegramserver/config"
	"github.com/egor/ticklegramserver/database"
	"github.com/egor/ticklegramserver/graph"
	"github.com/egor/ticklegramserver/handlers"
	"github.com/egor/ticklegramserver/middleware"
	"github.com/egor/ticklegramserver/websocket"
)

func main() {
	// Загрузка конфигурации из окружения и .env
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// Настройка логирования
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Инициализация базы данных
	if err := database.Init(cfg); err != nil {
		logrus.Fatalf("Ошибка подключения к базе данных: %v", err)
	}
	defer database.Close()

	// Инициализация WebSocket хаба
	hub := websocket.NewHub(cfg.WSPendingQueueSize)
	go hub.Run()

	handlers.SetConfig(cfg)
	handlers.SetWebSocketHub(hub)

	// Клиент Graph API для исходящих отправок
	if cfg.GraphAccessToken != "" {
		handlers.SetGraphClient(graph.NewClient(cfg.GraphAPIURL, cfg.GraphAccessToken, cfg.GraphTimeout()))
	} else {
		logrus.Warn("GRAPH_ACCESS_TOKEN не задан, отправка сообщений отключена")
	}

	// Фоновое переназначение чатов неактивных агентов
	sweeper := &assignment.Sweeper{
		Interval: cfg.SweepInterval(),
		Reassign: database.ReassignFromInactiveAgents,
	}
	go sweeper.Run(context.Background())

	// Инициализация роутера Gin
	r := gin.Default()

	// Middleware для логирования
	r.Use(middleware.Logger())

	// Настройка CORS для взаимодействия с фронтендом
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}
	if cfg.AllowAllOrigins {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
		logrus.Warn("CORS: разрешены все origins (ALLOW_ALL_ORIGINS=true)")
	} else {
		origins := []string{cfg.FrontendURL}
		for _, o := range strings.Split(cfg.AdditionalOrigins, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				origins = append(origins, o)
			}
		}
		corsConfig.AllowOrigins = origins
	}
	r.Use(cors.New(corsConfig))

	// API эндпоинты
	api := r.Group("/api")
	{
		// Авторизация агентов (публичный)
		api.POST("/auth/login", handlers.Login)

		// Вебхук платформы: GET — проверка подписки, POST — события
		api.GET("/webhook", handlers.VerifyWebhook)
		api.POST("/webhook", handlers.ReceiveWebhook)

		// Защищенные маршруты
		authorized := api.Group("/")
		authorized.Use(middleware.AuthMiddleware())
		{
			chats := authorized.Group("/chats")
			{
				chats.GET("", handlers.GetChats)
				chats.GET("/:id", handlers.GetChatByID)
				chats.POST("/:id/messages", handlers.SendMessage)
			}

			// Управление агентами доступно только администраторам
			agents := authorized.Group("/agents")
			agents.Use(middleware.RequireAdmin())
			{
				agents.GET("", handlers.GetAgents)
				agents.POST("", handlers.CreateAgent)
				agents.PATCH("/:id", handlers.UpdateAgent)
				agents.POST("/reassign", handlers.ReassignChats)
			}
		}
	}

	// WebSocket эндпоинт
	r.GET("/ws", handlers.ServeWs)

	// Запуск сервера
	logrus.Infof("Сервер запущен на %s", cfg.Address)
	if err := r.Run(cfg.Address); err != nil {
		logrus.Fatalf("Ошибка запуска сервера: %v", err)
	}
}
