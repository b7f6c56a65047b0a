package emulator

import (
	"context"
	"math/rand"
	"time"
)

// Ticker управляет временными интервалами эмулятора
type Ticker struct {
	interval time.Duration
	jitter   time.Duration // Случайное отклонение для реалистичности
}

func NewTicker(interval, jitter time.Duration) *Ticker {
	return &Ticker{
		interval: interval,
		jitter:   jitter,
	}
}

// Tick возвращает канал, который отправляет метки времени с заданным интервалом
func (t *Ticker) Tick(ctx context.Context) <-chan time.Time {
	tickChan := make(chan time.Time)

	go func() {
		defer close(tickChan)

		// Первый тик сразу
		select {
		case tickChan <- time.Now():
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case tickTime := <-ticker.C:
				if t.jitter > 0 {
					tickTime = tickTime.Add(time.Duration(float64(t.jitter) * (rand.Float64()*2 - 1)))
				}
				select {
				case tickChan <- tickTime:
				case <-ctx.Done():
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return tickChan
}
