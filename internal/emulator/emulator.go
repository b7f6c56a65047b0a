package emulator

import (
	"context"
	"log"
)

// Emulator связывает генератор кадров с отправителем
type Emulator struct {
	generator FrameGenerator
	sender    FrameSender
	config    RunConfig
}

func NewEmulator(generator FrameGenerator, sender FrameSender, cfg RunConfig) *Emulator {
	return &Emulator{
		generator: generator,
		sender:    sender,
		config:    cfg,
	}
}

// Run генерирует и отправляет кадры до истечения длительности или отмены контекста
func (e *Emulator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, e.config.Duration)
	defer cancel()

	ticker := NewTicker(e.config.FrameInterval, e.config.Jitter)
	ticks := ticker.Tick(runCtx)

	log.Printf("Starting emulator for %v with frame interval %v", e.config.Duration, e.config.FrameInterval)

	sent := 0
	for tickTime := range ticks {
		frame := e.generator.NextFrame(tickTime.UnixMilli())

		if err := e.sender.Send(frame); err != nil {
			log.Printf("Send error: %v", err)
			continue
		}
		sent++
	}

	log.Printf("Emulator stopped, sent %d frames", sent)
	return nil
}
