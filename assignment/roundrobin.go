// Package assignment реализует карусельное назначение чатов агентам:
// выбор следующего агента по курсору и фоновое переназначение чатов,
// оставшихся за выбывшими агентами.
package assignment

import (
	"github.com/google/uuid"

	"github.com/egor/ticklegramserver/models"
)

// NextAgent выбирает следующего агента после last в упорядоченном списке
// подходящих. Пустой список — nil. Если last пуст или в списке не найден
// (агент выбыл между назначениями), выбирается первый агент списка: ротация
// продолжается без ошибки, пропустив не больше одной позиции.
func NextAgent(eligible []models.Agent, last *uuid.UUID) *models.Agent {
	if len(eligible) == 0 {
		return nil
	}
	next := &eligible[0]
	if last != nil {
		for i := range eligible {
			if eligible[i].ID == *last {
				next = &eligible[(i+1)%len(eligible)]
				break
			}
		}
	}
	return next
}
