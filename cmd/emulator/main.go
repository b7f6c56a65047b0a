package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/imperfectbreath/breathsense/internal/emulator"
)

func main() {
	// Загрузка конфигурации
	cfg, err := emulator.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Инициализация компонентов
	generator := emulator.NewBreathGenerator(cfg.Breathing)

	var sender emulator.FrameSender
	if cfg.Output.ServerURL != "" {
		sender, err = emulator.NewWebSocketSender(cfg.Output.ServerURL, cfg.Run.SessionID)
	} else {
		sender, err = emulator.NewJSONLSender(cfg.Output.FilePath)
	}
	if err != nil {
		log.Fatalf("Failed to initialize sender: %v", err)
	}
	defer sender.Close()

	// Остановка по сигналу
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Создание и запуск эмулятора
	em := emulator.NewEmulator(generator, sender, cfg.Run)
	if err := em.Run(ctx); err != nil {
		log.Fatalf("Emulator failed: %v", err)
	}
}
