package session

import (
	"context"
)

// Repository определяет интерфейс для работы с хранилищем сессий (Domain Layer)
type Repository interface {
	// Управление сессиями
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	ListSessions(ctx context.Context, limit, offset int) ([]*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Работа с метриками
	SaveMetrics(ctx context.Context, metrics *SessionMetrics) error
	GetMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error)

	// Работа с событиями
	SaveEvents(ctx context.Context, events []SessionEvent) error
	GetEvents(ctx context.Context, sessionID string) ([]SessionEvent, error)

	// Сохранение полных данных сессии
	SaveSessionData(ctx context.Context, data *SessionData) error

	// Проверка доступности хранилища
	Ping(ctx context.Context) error
}

// CacheStore определяет интерфейс для работы с кэшем (Redis)
type CacheStore interface {
	// Управление сессиями в кэше
	SetSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Метрики (перезаписываются целиком)
	SetMetrics(ctx context.Context, metrics *SessionMetrics) error
	GetMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error)

	// События (append-only)
	AppendEvents(ctx context.Context, sessionID string, events []SessionEvent) error
	GetEvents(ctx context.Context, sessionID string, eventType EventType) ([]SessionEvent, error)
	GetAllEvents(ctx context.Context, sessionID string) ([]SessionEvent, error)
	EventExists(ctx context.Context, sessionID string, eventType EventType, startMS int64) (bool, error)

	// Получение всех данных сессии
	GetSessionData(ctx context.Context, sessionID string) (*SessionData, error)

	// Утилиты
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	SetSessionTTL(ctx context.Context, sessionID string, ttl int) error
	Ping(ctx context.Context) error
}
