package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/egor/ticklegramserver/config"
)

func main() {
	// Загружаем переменные окружения из .env файла
	if err := godotenv.Load(); err != nil {
		log.Println("Файл .env не найден, используем переменные окружения")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.PGHost, cfg.PGPort, cfg.PGUser, cfg.PGPassword, cfg.PGDatabase, cfg.PGSSLMode)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("Ошибка подключения к базе данных: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Ошибка проверки соединения с БД: %v", err)
	}
	log.Println("Успешное подключение к базе данных")

	createTables(db)
	seedAgents(db)
	seedDemoChat(db)

	log.Println("База данных успешно инициализирована")
}

// Создание таблиц базы данных
func createTables(db *sql.DB) {
	// Таблица агентов
	mustExec(db, "agents", `
		CREATE TABLE IF NOT EXISTS agents (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			avatar TEXT,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			can_receive_new_chats BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)

	// Таблица чатов: одна строка на пару (платформа, собеседник, аккаунт)
	mustExec(db, "chats", `
		CREATE TABLE IF NOT EXISTS chats (
			id UUID PRIMARY KEY,
			platform TEXT NOT NULL,
			counterparty_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			user_name TEXT NOT NULL DEFAULT '',
			user_avatar TEXT,
			status TEXT NOT NULL,
			assigned_to UUID REFERENCES agents (id),
			unread_count INTEGER NOT NULL DEFAULT 0,
			last_message TEXT,
			last_incoming_at TIMESTAMPTZ,
			last_outgoing_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (platform, counterparty_id, account_id)
		)
	`)

	// Сырой журнал платформенных событий, append-only
	mustExec(db, "message_log", `
		CREATE TABLE IF NOT EXISTS message_log (
			id UUID PRIMARY KEY,
			platform TEXT NOT NULL,
			counterparty_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			external_message_id TEXT,
			direction TEXT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			attachments TEXT,
			event_ts BIGINT NOT NULL,
			from_ticklegram BOOLEAN NOT NULL DEFAULT FALSE,
			referral TEXT,
			payload TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)

	// Уникальность внешнего идентификатора отсекает повторные доставки;
	// частичный индекс пропускает события без идентификатора
	mustExec(db, "message_log_external_id_key", `
		CREATE UNIQUE INDEX IF NOT EXISTS message_log_external_id_key
		ON message_log (external_message_id)
		WHERE external_message_id IS NOT NULL
	`)
	mustExec(db, "message_log_counterparty_idx", `
		CREATE INDEX IF NOT EXISTS message_log_counterparty_idx
		ON message_log (platform, counterparty_id, account_id, event_ts)
	`)

	// Канонические сообщения, по таблице на платформу
	for _, table := range []string{"instagram_messages", "facebook_messages"} {
		mustExec(db, table, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY,
				chat_id UUID NOT NULL REFERENCES chats (id),
				sender TEXT NOT NULL,
				content TEXT NOT NULL DEFAULT '',
				type TEXT NOT NULL DEFAULT 'text',
				timestamp TIMESTAMPTZ NOT NULL,
				attachments TEXT,
				is_lead_form BOOLEAN NOT NULL DEFAULT FALSE,
				is_ticklegram BOOLEAN NOT NULL DEFAULT FALSE,
				metadata JSONB,
				read BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)
		`, table))
		mustExec(db, table+"_chat_idx", fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s_chat_idx ON %s (chat_id, timestamp)
		`, table, table))
	}

	// Курсор карусели назначения, одна строка на пул
	mustExec(db, "assignment_cursors", `
		CREATE TABLE IF NOT EXISTS assignment_cursors (
			pool TEXT PRIMARY KEY,
			agent_id UUID REFERENCES agents (id),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)

	log.Println("Все таблицы успешно созданы")
}

func mustExec(db *sql.DB, name, query string) {
	if _, err := db.Exec(query); err != nil {
		log.Fatalf("Ошибка создания %s: %v", name, err)
	}
}

// seedAgents создает тестового администратора и двух агентов.
func seedAgents(db *sql.DB) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Ошибка хеширования пароля: %v", err)
	}

	now := time.Now().UTC()

	seed := []struct {
		id                 uuid.UUID
		name               string
		email              string
		role               string
		canReceiveNewChats bool
		createdAt          time.Time
	}{
		{uuid.New(), "Администратор", "admin@example.com", "admin", false, now},
		{uuid.New(), "Анна Агентова", "anna@example.com", "agent", true, now.Add(time.Second)},
		{uuid.New(), "Борис Агентов", "boris@example.com", "agent", true, now.Add(2 * time.Second)},
	}

	for _, a := range seed {
		_, err := db.Exec(`
			INSERT INTO agents (id, name, email, password_hash, role, active, can_receive_new_chats, created_at)
			VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)
			ON CONFLICT (email) DO NOTHING
		`, a.id, a.name, a.email, string(passwordHash), a.role, a.canReceiveNewChats, a.createdAt)
		if err != nil {
			log.Fatalf("Ошибка создания агента %s: %v", a.name, err)
		}
		log.Printf("Создан %s %s с ID: %s", a.role, a.name, a.id)
	}
}

// seedDemoChat создает демонстрационный Instagram-чат с парой сообщений,
// чтобы фронтенд было на чем проверять.
func seedDemoChat(db *sql.DB) {
	chatID := uuid.New()
	now := time.Now().UTC()
	incomingAt := now.Add(-10 * time.Minute)
	outgoingAt := now.Add(-8 * time.Minute)

	res, err := db.Exec(`
		INSERT INTO chats
		    (id, platform, counterparty_id, account_id, user_name,
		     status, unread_count, last_message, last_incoming_at, last_outgoing_at,
		     created_at, updated_at)
		VALUES ($1, 'instagram', 'demo-user-1', 'demo-account', 'Демо Собеседник',
		        'unassigned', 0, $2, $3, $4, $5, $5)
		ON CONFLICT (platform, counterparty_id, account_id) DO NOTHING
	`, chatID, "Добрый день! Чем можем помочь?", incomingAt, outgoingAt, now)
	if err != nil {
		log.Fatalf("Ошибка создания демонстрационного чата: %v", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Println("Демонстрационный чат уже существует, пропускаем")
		return
	}

	messages := []struct {
		sender    string
		content   string
		timestamp time.Time
		read      bool
	}{
		{"user", "Здравствуйте! Расскажите про ваши занятия.", incomingAt, true},
		{"agent", "Добрый день! Чем можем помочь?", outgoingAt, true},
	}

	for _, m := range messages {
		_, err := db.Exec(`
			INSERT INTO instagram_messages
			    (id, chat_id, sender, content, type, timestamp, is_ticklegram, read, created_at)
			VALUES ($1, $2, $3, $4, 'text', $5, $6, $7, $8)
		`, uuid.New(), chatID, m.sender, m.content, m.timestamp, m.sender == "agent", m.read, now)
		if err != nil {
			log.Fatalf("Ошибка добавления демонстрационного сообщения: %v", err)
		}

		direction := "incoming"
		if m.sender == "agent" {
			direction = "outgoing"
		}
		extID := "demo-" + uuid.New().String()
		_, err = db.Exec(`
			INSERT INTO message_log
			    (id, platform, counterparty_id, account_id, external_message_id,
			     direction, text, event_ts, from_ticklegram, created_at)
			VALUES ($1, 'instagram', 'demo-user-1', 'demo-account', $2, $3, $4, $5, $6, $7)
		`, uuid.New(), extID, direction, m.content, m.timestamp.Unix(), m.sender == "agent", now)
		if err != nil {
			log.Fatalf("Ошибка добавления записи журнала: %v", err)
		}
	}

	log.Printf("Создан демонстрационный чат с ID: %s (%d сообщений)", chatID, len(messages))
}
