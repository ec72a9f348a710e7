package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config — статическая конфигурация сервера, читается из переменных окружения.
type Config struct {
	Address string `env:"ADDRESS" envDefault:":8080"` // адрес HTTP-сервера

	// PostgreSQL
	PGHost     string `env:"PG_HOST" envDefault:"localhost"`
	PGPort     string `env:"PG_PORT" envDefault:"5432"`
	PGUser     string `env:"PG_USER" envDefault:"postgres"`
	PGPassword string `env:"PG_PASSWORD" envDefault:"postgres"`
	PGDatabase string `env:"PG_DATABASE" envDefault:"ticklegram"`
	PGSSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`

	// CORS / фронтенд
	FrontendURL       string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	AdditionalOrigins string `env:"ADDITIONAL_ALLOWED_ORIGINS"` // дополнительные origin через запятую
	AllowAllOrigins   bool   `env:"ALLOW_ALL_ORIGINS" envDefault:"false"`

	// Meta Graph API
	MetaAppID          string `env:"META_APP_ID"` // идентификатор нашего приложения: по нему распознаём эхо собственных отправок
	WebhookVerifyToken string `env:"WEBHOOK_VERIFY_TOKEN"`
	GraphAPIURL        string `env:"GRAPH_API_URL" envDefault:"https://graph.facebook.com/v19.0"`
	GraphAccessToken   string `env:"GRAPH_ACCESS_TOKEN"`
	GraphTimeoutSec    int    `env:"GRAPH_TIMEOUT_SECONDS" envDefault:"30"` // таймаут исходящих вызовов Graph API

	// Назначение и сверка
	SweepIntervalSec  int `env:"SWEEP_INTERVAL_SECONDS" envDefault:"60"` // период фонового переназначения чатов
	EchoWindowSec     int `env:"ECHO_WINDOW_SECONDS" envDefault:"30"`    // окно сопоставления эха с отправленным сообщением
	ReconcileDriftHrs int `env:"RECONCILE_DRIFT_HOURS" envDefault:"72"`  // допуск расхождения часов между журналом и сообщениями

	WSPendingQueueSize int `env:"WS_PENDING_QUEUE_SIZE" envDefault:"100"` // буфер уведомлений на отключённого агента

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load читает .env (если файл есть) и собирает конфигурацию из окружения.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info("Load: файл .env не найден, используются переменные окружения")
	}

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("Load: разбор конфигурации: %w", err)
	}
	return &cfg, nil
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

func (c *Config) EchoWindow() time.Duration {
	return time.Duration(c.EchoWindowSec) * time.Second
}

func (c *Config) ReconcileDrift() time.Duration {
	return time.Duration(c.ReconcileDriftHrs) * time.Hour
}

func (c *Config) GraphTimeout() time.Duration {
	return time.Duration(c.GraphTimeoutSec) * time.Second
}
