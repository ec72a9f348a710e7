package assignment

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSweeperRun(t *testing.T) {
	t.Run("вызывает проход по тикам и останавливается по контексту", func(t *testing.T) {
		var calls int32
		s := &Sweeper{
			Interval: 5 * time.Millisecond,
			Reassign: func(ctx context.Context) (int, error) {
				atomic.AddInt32(&calls, 1)
				return 0, nil
			},
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			s.Run(ctx)
			close(done)
		}()

		// Ждём несколько тиков
		time.Sleep(40 * time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Sweeper не остановился после отмены контекста")
		}

		assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
	})

	t.Run("ошибка прохода не останавливает цикл", func(t *testing.T) {
		var calls int32
		s := &Sweeper{
			Interval: 5 * time.Millisecond,
			Reassign: func(ctx context.Context) (int, error) {
				n := atomic.AddInt32(&calls, 1)
				if n == 1 {
					return 0, errors.New("база недоступна")
				}
				return 1, nil
			},
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan struct{})
		go func() {
			s.Run(ctx)
			close(done)
		}()

		// Первый проход падает, последующие должны состояться
		time.Sleep(40 * time.Millisecond)
		cancel()
		<-done

		assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
	})
}
