package health

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"
)

// Pinger проверяет доступность зависимости
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker агрегирует состояние зависимостей сервиса
type Checker struct {
	mu         sync.RWMutex
	components map[string]Pinger
}

// NewChecker создает новый Checker
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]Pinger),
	}
}

// Register добавляет зависимость под именем
func (c *Checker) Register(name string, p Pinger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = p
}

// CheckAll пингует все зависимости и возвращает статусы
func (c *Checker) CheckAll(ctx context.Context) map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	statuses := make(map[string]string, len(c.components))
	for name, p := range c.components {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := p.Ping(pingCtx); err != nil {
			statuses[name] = "unavailable: " + err.Error()
		} else {
			statuses[name] = "ok"
		}
		cancel()
	}
	return statuses
}

// Handler обрабатывает запрос проверки здоровья
// @Summary Проверка здоровья сервиса
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{} "Зависимость недоступна"
// @Router /api/health [get]
func (c *Checker) Handler(w http.ResponseWriter, r *http.Request) {
	statuses := c.CheckAll(r.Context())

	healthy := true
	for _, s := range statuses {
		if s != "ok" {
			healthy = false
			break
		}
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     overall,
		"components": statuses,
		"timestamp":  time.Now().UTC(),
	}); err != nil {
		log.Printf("[ERROR] Failed to encode health response: %v", err)
	}
}
