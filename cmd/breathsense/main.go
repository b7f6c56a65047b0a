package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/imperfectbreath/breathsense/docs" // Swagger docs
	"github.com/imperfectbreath/breathsense/internal/config"
	"github.com/imperfectbreath/breathsense/internal/detect"
	"github.com/imperfectbreath/breathsense/internal/health"
	"github.com/imperfectbreath/breathsense/internal/session"
	"github.com/imperfectbreath/breathsense/internal/stream"
)

// @title BreathSense API
// @version 1.0
// @description API для потокового анализа дыхательного ритма по ориентирам лица и позы.
// @description
// @description ## Описание
// @description Сервис принимает кадры ориентиров (MediaPipe Face Mesh и Pose) по WebSocket,
// @description оценивает фазу дыхания, частоту и регулярность, и ведет сессии практик.

// @contact.name API Support
// @contact.email support@breathsense.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http

func main() {
	log.Printf("[INFO] Starting breathsense server...")

	cfg := config.Load()
	log.Printf("[INFO] Configuration loaded: http_port=%s processing_level=%s",
		cfg.HTTPPort, cfg.ProcessingLevel)

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	cache := session.NewRedisStore(redisClient)

	ctx := context.Background()
	if err := cache.Ping(ctx); err != nil {
		log.Fatalf("[FATAL] Failed to connect to Redis: %v", err)
	}
	log.Printf("[INFO] Connected to Redis at %s", cfg.RedisAddr)

	// PostgreSQL
	repository, err := session.NewPostgresRepositoryFromDSN(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("[FATAL] Failed to connect to PostgreSQL: %v", err)
	}
	defer repository.Close()
	log.Printf("[INFO] Connected to PostgreSQL")

	// Session manager
	manager := session.NewManager(cache, repository)

	// WebSocket hub
	hub := stream.NewHub()
	go hub.Run()

	ingest := stream.NewIngestHandler(hub, manager, stream.IngestDefaults{
		Level:           detect.ProcessingLevel(cfg.ProcessingLevel),
		Mobile:          cfg.MobileDefaults,
		FrameIntervalMS: cfg.TargetFrameIntervalMS,
	})

	// Health checker
	checker := health.NewChecker()
	checker.Register("redis", cache)
	checker.Register("postgres", repository)

	// HTTP routes
	router := mux.NewRouter()

	sessionHandler := session.NewHTTPHandler(manager)
	sessionHandler.RegisterRoutes(router)

	router.HandleFunc("/api/health", checker.Handler).Methods("GET")
	router.HandleFunc("/api/detector/defaults", detect.DefaultsHandler).Methods("GET")

	router.HandleFunc("/ws/ingest", ingest.HandleIngest)
	router.HandleFunc("/ws/live", hub.HandleLive)

	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	address := fmt.Sprintf(":%s", cfg.HTTPPort)
	httpServer := &http.Server{
		Addr:    address,
		Handler: router,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("[INFO] HTTP server listening on %s", address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrChan:
		log.Printf("[ERROR] Server error: %v", err)

	case sig := <-shutdownChan:
		log.Printf("[INFO] Received signal %v, starting graceful shutdown...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] Graceful shutdown failed: %v", err)
			httpServer.Close()
		}

		log.Printf("[INFO] Graceful shutdown completed")
	}

	log.Printf("[INFO] Server stopped")
}
