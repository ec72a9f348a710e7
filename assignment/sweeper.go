package assignment

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper периодически забирает чаты у неактивных агентов и прогоняет их
// через карусель заново. Запускается фоном при старте сервера; разовый проход
// также дергается при деактивации агента.
type Sweeper struct {
	Interval time.Duration
	Reassign func(ctx context.Context) (int, error)
}

// Run крутит цикл до отмены контекста. Ошибка одного прохода логируется,
// цикл живёт дальше и повторяет попытку на следующем тике.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	logrus.Infof("Sweeper: запущен, интервал %s", s.Interval)
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Sweeper: остановлен")
			return
		case <-ticker.C:
			n, err := s.Reassign(ctx)
			if err != nil {
				logrus.WithError(err).Error("Sweeper: проход переназначения не удался")
				continue
			}
			if n > 0 {
				logrus.Infof("Sweeper: переназначено чатов: %d", n)
			}
		}
	}
}
