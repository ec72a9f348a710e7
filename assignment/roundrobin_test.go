package assignment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egor/ticklegramserver/models"
)

// makeAgents строит упорядоченный список подходящих агентов.
func makeAgents(n int) []models.Agent {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	agents := make([]models.Agent, n)
	for i := range agents {
		agents[i] = models.Agent{
			ID:                 uuid.New(),
			Name:               "agent-" + string(rune('A'+i)),
			Role:               models.RoleAgent,
			Active:             true,
			CanReceiveNewChats: true,
			CreatedAt:          base.Add(time.Duration(i) * time.Minute),
		}
	}
	return agents
}

func TestNextAgent(t *testing.T) {
	t.Run("пустой список даёт nil", func(t *testing.T) {
		assert.Nil(t, NextAgent(nil, nil))
		assert.Nil(t, NextAgent([]models.Agent{}, nil))
	})

	t.Run("пустой курсор начинает с первого", func(t *testing.T) {
		agents := makeAgents(3)
		next := NextAgent(agents, nil)
		require.NotNil(t, next)
		assert.Equal(t, agents[0].ID, next.ID)
	})

	t.Run("следующий после курсора", func(t *testing.T) {
		agents := makeAgents(3)
		next := NextAgent(agents, &agents[0].ID)
		require.NotNil(t, next)
		assert.Equal(t, agents[1].ID, next.ID)
	})

	t.Run("после последнего — снова первый", func(t *testing.T) {
		agents := makeAgents(3)
		next := NextAgent(agents, &agents[2].ID)
		require.NotNil(t, next)
		assert.Equal(t, agents[0].ID, next.ID)
	})

	t.Run("выбывший агент в курсоре не ломает ротацию", func(t *testing.T) {
		agents := makeAgents(3)
		gone := uuid.New()
		next := NextAgent(agents, &gone)
		require.NotNil(t, next)
		// Курсор указывает на выбывшего: ротация продолжается с первого
		assert.Equal(t, agents[0].ID, next.ID)
	})

	t.Run("единственный агент получает всё", func(t *testing.T) {
		agents := makeAgents(1)
		next := NextAgent(agents, &agents[0].ID)
		require.NotNil(t, next)
		assert.Equal(t, agents[0].ID, next.ID)
	})
}

// TestNextAgentFairness проверяет честность карусели: на M последовательных
// назначений при N агентах каждый получает ⌊M/N⌋ либо ⌈M/N⌉ чатов, а
// последовательность — ротация списка.
func TestNextAgentFairness(t *testing.T) {
	const n, m = 3, 10
	agents := makeAgents(n)

	counts := make(map[uuid.UUID]int, n)
	var cursor *uuid.UUID
	var sequence []uuid.UUID

	for i := 0; i < m; i++ {
		next := NextAgent(agents, cursor)
		require.NotNil(t, next)
		counts[next.ID]++
		sequence = append(sequence, next.ID)
		id := next.ID
		cursor = &id
	}

	floor, ceil := m/n, (m+n-1)/n
	for _, a := range agents {
		got := counts[a.ID]
		assert.True(t, got == floor || got == ceil,
			"агент %s получил %d чатов, ожидалось %d или %d", a.Name, got, floor, ceil)
	}

	// Последовательность — циклический обход списка начиная с первого
	for i, id := range sequence {
		assert.Equal(t, agents[i%n].ID, id, "позиция %d", i)
	}
}

// TestNextAgentEligibilityChange: агент выбывает между назначениями,
// карусель продолжает работать по оставшимся.
func TestNextAgentEligibilityChange(t *testing.T) {
	agents := makeAgents(3)

	// Первое назначение — первому агенту
	next := NextAgent(agents, nil)
	require.NotNil(t, next)
	cursor := next.ID

	// Второй агент выбывает из списка подходящих
	remaining := []models.Agent{agents[0], agents[2]}

	next = NextAgent(remaining, &cursor)
	require.NotNil(t, next)
	assert.Equal(t, agents[2].ID, next.ID)

	// Выбыл и сам агент курсора: начинаем с головы оставшихся
	cursor = agents[1].ID
	next = NextAgent(remaining, &cursor)
	require.NotNil(t, next)
	assert.Equal(t, agents[0].ID, next.ID)
}
