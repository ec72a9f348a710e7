// database/agents.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/egor/ticklegramserver/models"
)

const agentColumns = `id, name, email, password_hash, avatar, role, active, can_receive_new_chats, created_at`

// rowScanner покрывает и *sql.Row, и *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*models.Agent, error) {
	var a models.Agent
	var avatarNull sql.NullString
	if err := row.Scan(
		&a.ID, &a.Name, &a.Email, &a.PasswordHash,
		&avatarNull, &a.Role, &a.Active, &a.CanReceiveNewChats, &a.CreatedAt,
	); err != nil {
		return nil, err
	}
	a.Avatar = nullStringToPointer(avatarNull)
	return &a, nil
}

// ─────────────────────────── GetAgentByEmail

func GetAgentByEmail(email string) (*models.Agent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbQueryTimeout)
	defer cancel()

	q := `SELECT ` + agentColumns + ` FROM agents WHERE email = $1`
	agent, err := scanAgent(DB.QueryRowContext(ctx, q, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("GetAgentByEmail: %w", err)
	}
	return agent, nil
}

func GetAgentByID(id uuid.UUID) (*models.Agent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbQueryTimeout)
	defer cancel()

	q := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`
	agent, err := scanAgent(DB.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("GetAgentByID: %w", err)
	}
	return agent, nil
}

func VerifyPassword(pw, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
}

// ─────────────────────────── EligibleAgents

// Подходящие для назначения агенты в стабильном порядке (created_at, id):
// порядок не зависит от порядка строк в таблице, иначе семантика
// "следующий после X" у курсора плыла бы от вызова к вызову.
const eligibleQ = `
	SELECT ` + agentColumns + `
	FROM agents
	WHERE role = 'agent' AND active = true AND can_receive_new_chats = true
	ORDER BY created_at ASC, id ASC`

// EligibleAgents возвращает агентов, которым можно назначать новые чаты.
// Пустой список — не ошибка: валидное состояние, когда никого нет на смене.
func EligibleAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := DB.QueryContext(ctx, eligibleQ)
	if err != nil {
		return nil, fmt.Errorf("EligibleAgents: %w", err)
	}
	defer rows.Close()
	return collectAgents(rows)
}

// eligibleAgentsTx — то же самое внутри транзакции назначения.
func eligibleAgentsTx(ctx context.Context, tx *sql.Tx) ([]models.Agent, error) {
	rows, err := tx.QueryContext(ctx, eligibleQ)
	if err != nil {
		return nil, fmt.Errorf("eligibleAgentsTx: %w", err)
	}
	defer rows.Close()
	return collectAgents(rows)
}

func collectAgents(rows *sql.Rows) ([]models.Agent, error) {
	var agents []models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// ─────────────────────────── ListAgents / CreateAgent / UpdateAgent

func ListAgents() ([]models.Agent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbQueryTimeout)
	defer cancel()

	q := `SELECT ` + agentColumns + ` FROM agents ORDER BY created_at ASC, id ASC`
	rows, err := DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListAgents: %w", err)
	}
	defer rows.Close()
	return collectAgents(rows)
}

func CreateAgent(name, email, password, role string) (*models.Agent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbQueryTimeout)
	defer cancel()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("CreateAgent: хэширование пароля: %w", err)
	}

	agent := &models.Agent{
		ID:                 uuid.New(),
		Name:               name,
		Email:              email,
		Role:               role,
		Active:             true,
		CanReceiveNewChats: role == models.RoleAgent,
		CreatedAt:          time.Now().UTC(),
	}

	const q = `
		INSERT INTO agents (id, name, email, password_hash, role, active, can_receive_new_chats, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := DB.ExecContext(ctx, q,
		agent.ID, agent.Name, agent.Email, string(hash),
		agent.Role, agent.Active, agent.CanReceiveNewChats, agent.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("CreateAgent: email %s уже занят", email)
		}
		return nil, fmt.Errorf("CreateAgent: %w", err)
	}
	return agent, nil
}

// AgentUpdate — частичное обновление агента: nil-поля не трогаются.
type AgentUpdate struct {
	Name               *string `json:"name,omitempty"`
	Active             *bool   `json:"active,omitempty"`
	CanReceiveNewChats *bool   `json:"canReceiveNewChats,omitempty"`
	Role               *string `json:"role,omitempty"`
}

func UpdateAgent(id uuid.UUID, upd AgentUpdate) (*models.Agent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbQueryTimeout)
	defer cancel()

	const q = `
		UPDATE agents SET
			name                  = COALESCE($2, name),
			active                = COALESCE($3, active),
			can_receive_new_chats = COALESCE($4, can_receive_new_chats),
			role                  = COALESCE($5, role)
		WHERE id = $1
		RETURNING ` + agentColumns
	agent, err := scanAgent(DB.QueryRowContext(ctx, q, id,
		pointerToNull(upd.Name), upd.Active, upd.CanReceiveNewChats, pointerToNull(upd.Role),
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("UpdateAgent: %w", err)
	}
	return agent, nil
}

// ─────────────────────────── NotifyTargets

// NotifyTargets возвращает получателей уведомления по чату: назначенный
// агент плюс все активные администраторы, без повторов.
func NotifyTargets(ctx context.Context, chat *models.Chat) ([]uuid.UUID, error) {
	const q = `SELECT id FROM agents WHERE role = 'admin' AND active = true`
	rows, err := DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("NotifyTargets: %w", err)
	}
	defer rows.Close()

	seen := make(map[uuid.UUID]bool)
	var targets []uuid.UUID
	if chat.AssignedTo != nil {
		seen[*chat.AssignedTo] = true
		targets = append(targets, *chat.AssignedTo)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("NotifyTargets: %w", err)
		}
		if !seen[id] {
			seen[id] = true
			targets = append(targets, id)
		}
	}
	return targets, rows.Err()
}
