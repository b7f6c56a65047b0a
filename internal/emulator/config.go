package emulator

import (
	"flag"
	"time"
)

// Config содержит настройки эмулятора
type Config struct {
	Breathing BreathingConfig
	Run       RunConfig
	Output    OutputConfig
}

// BreathingConfig задает параметры синтетического дыхания
type BreathingConfig struct {
	BreathsPerMinute float64 // Частота дыхания
	BaseSpan         float64 // Базовое расстояние между плечами в нормализованных координатах
	Amplitude        float64 // Амплитуда дыхательных колебаний
	Noise            float64 // Амплитуда шума
	DropoutChance    float64 // Вероятность кадра без лица (0..1)
	Seed             int64   // Seed генератора случайных чисел, 0 = текущее время
}

// RunConfig задает режим работы
type RunConfig struct {
	Duration      time.Duration
	FrameInterval time.Duration
	Jitter        time.Duration
	SessionID     string
}

// OutputConfig задает назначение кадров
type OutputConfig struct {
	ServerURL string // ws://host:port, пустое значение = запись в файл
	FilePath  string
}

// Load загружает конфигурацию из параметров командной строки
func Load() (*Config, error) {
	var cfg Config

	serverURL := flag.String("server", "", "Адрес сервера (ws://localhost:8080), пусто - запись в файл")
	outputFile := flag.String("output", "data/frames.jsonl", "Выходной JSONL файл")
	sessionID := flag.String("session", "", "ID сессии (генерируется автоматически если не указан)")
	duration := flag.String("duration", "60s", "Длительность работы")
	frameRate := flag.String("rate", "500ms", "Интервал между кадрами")
	bpm := flag.Float64("bpm", 15.0, "Частота дыхания (вдохов в минуту)")
	amplitude := flag.Float64("amplitude", 0.05, "Амплитуда дыхательных колебаний")
	noise := flag.Float64("noise", 0.002, "Амплитуда шума")
	dropout := flag.Float64("dropout", 0.0, "Вероятность кадра без лица")

	flag.Parse()

	dur, err := time.ParseDuration(*duration)
	if err != nil {
		return nil, err
	}

	interval, err := time.ParseDuration(*frameRate)
	if err != nil {
		return nil, err
	}

	cfg.Breathing = BreathingConfig{
		BreathsPerMinute: *bpm,
		BaseSpan:         0.25,
		Amplitude:        *amplitude,
		Noise:            *noise,
		DropoutChance:    *dropout,
	}

	cfg.Run = RunConfig{
		Duration:      dur,
		FrameInterval: interval,
		Jitter:        interval / 10,
		SessionID:     *sessionID,
	}

	cfg.Output = OutputConfig{
		ServerURL: *serverURL,
		FilePath:  *outputFile,
	}

	return &cfg, nil
}
