package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imperfectbreath/breathsense/internal/detect"
)

// rollup накапливает средние значения по сессии между кадрами
type rollup struct {
	frames        int64
	stillFrames   int64
	sumConfidence float64
	sumPosture    float64
	sumBPM        float64
	sumMovement   float64
	bpmSamples    int64
}

// Manager управляет сессиями дыхательных практик (Application Layer)
type Manager struct {
	cache      CacheStore
	repository Repository

	mu             sync.RWMutex
	activeSessions map[string]*Session // Кэш активных сессий в памяти
	rollups        map[string]*rollup
}

// NewManager создает новый менеджер сессий
func NewManager(cache CacheStore, repository Repository) *Manager {
	return &Manager{
		cache:          cache,
		repository:     repository,
		activeSessions: make(map[string]*Session),
		rollups:        make(map[string]*rollup),
	}
}

// CreateSession создает новую сессию
func (m *Manager) CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error) {
	sessionID := uuid.New().String()

	session := &Session{
		ID:        sessionID,
		Status:    SessionStatusActive,
		StartedAt: time.Now(),
		Metadata: Metadata{
			UserID:      req.UserID,
			PatternName: req.PatternName,
			Notes:       req.Notes,
			CustomData:  req.CustomData,
			CreatedFrom: req.CreatedFrom,
		},
	}

	// Сохраняем в Redis
	if err := m.cache.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session to cache: %w", err)
	}

	// Добавляем в активные сессии
	m.mu.Lock()
	m.activeSessions[sessionID] = session
	m.rollups[sessionID] = &rollup{}
	m.mu.Unlock()

	log.Printf("[SESSION] Created new session: %s", sessionID)
	return session, nil
}

// GetSession получает сессию по ID
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	// Сначала проверяем в памяти
	m.mu.RLock()
	if session, ok := m.activeSessions[sessionID]; ok {
		m.mu.RUnlock()
		return session, nil
	}
	m.mu.RUnlock()

	// Проверяем в Redis
	session, err := m.cache.GetSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}

	// Проверяем в PostgreSQL
	return m.repository.GetSession(ctx, sessionID)
}

// StopSession останавливает сессию
func (m *Manager) StopSession(ctx context.Context, sessionID string) error {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session not found: %w", err)
	}

	if session.Status != SessionStatusActive {
		return fmt.Errorf("session is not active: %s", session.Status)
	}

	now := time.Now()
	session.Status = SessionStatusStopped
	session.StoppedAt = &now
	session.TotalDurationMs = now.Sub(session.StartedAt).Milliseconds()

	// Обновляем в Redis
	if err := m.cache.SetSession(ctx, session); err != nil {
		return fmt.Errorf("failed to update session in cache: %w", err)
	}

	// Удаляем из активных сессий
	m.mu.Lock()
	delete(m.activeSessions, sessionID)
	delete(m.rollups, sessionID)
	m.mu.Unlock()

	log.Printf("[SESSION] Stopped session: %s, duration: %dms", sessionID, session.TotalDurationMs)
	return nil
}

// SaveSession сохраняет сессию в PostgreSQL
func (m *Manager) SaveSession(ctx context.Context, sessionID string, notes string) error {
	// Получаем все данные из Redis
	sessionData, err := m.cache.GetSessionData(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session data from cache: %w", err)
	}

	// Обновляем метаданные
	if notes != "" {
		sessionData.Session.Metadata.Notes = notes
	}

	now := time.Now()
	sessionData.Session.Status = SessionStatusSaved
	sessionData.Session.SavedAt = &now

	// Сохраняем в PostgreSQL
	if err := m.repository.SaveSessionData(ctx, sessionData); err != nil {
		return fmt.Errorf("failed to save session to database: %w", err)
	}

	// Обновляем статус в Redis
	if err := m.cache.SetSession(ctx, sessionData.Session); err != nil {
		log.Printf("[WARN] Failed to update session status in cache: %v", err)
	}

	log.Printf("[SESSION] Saved session to database: %s", sessionID)
	return nil
}

// ListSessions возвращает список сессий
func (m *Manager) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	return m.repository.ListSessions(ctx, limit, offset)
}

// DeleteSession удаляет сессию
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	// Удаляем из памяти
	m.mu.Lock()
	delete(m.activeSessions, sessionID)
	delete(m.rollups, sessionID)
	m.mu.Unlock()

	// Удаляем из Redis
	if err := m.cache.DeleteSession(ctx, sessionID); err != nil {
		log.Printf("[WARN] Failed to delete session from cache: %v", err)
	}

	// Удаляем из PostgreSQL
	if err := m.repository.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session from database: %w", err)
	}

	log.Printf("[SESSION] Deleted session: %s", sessionID)
	return nil
}

// ProcessRhythmUpdate обрабатывает результат анализа одного кадра
func (m *Manager) ProcessRhythmUpdate(ctx context.Context, sessionID string, metrics *detect.RhythmMetrics) error {
	// Получаем или создаем сессию
	session, err := m.getOrCreateSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get or create session: %w", err)
	}

	if session.Status != SessionStatusActive {
		log.Printf("[WARN] Received update for non-active session: %s (status: %s)", sessionID, session.Status)
		return nil // Не возвращаем ошибку, просто игнорируем
	}

	// 1. Обновляем накопленные средние и агрегированные метрики
	sessionMetrics := m.accumulate(sessionID, metrics)
	if err := m.cache.SetMetrics(ctx, sessionMetrics); err != nil {
		return fmt.Errorf("failed to save metrics: %w", err)
	}

	// 2. Добавляем новые события (только если они еще не существуют)
	if err := m.processEvents(ctx, sessionID, metrics); err != nil {
		log.Printf("[WARN] Failed to process events: %v", err)
	}

	// 3. Обновляем счетчик кадров в сессии
	session.TotalFrames++
	if err := m.cache.SetSession(ctx, session); err != nil {
		log.Printf("[WARN] Failed to update session: %v", err)
	}

	log.Printf("[SESSION] Processed update for session %s: phase=%s bpm=%.1f confidence=%.2f",
		sessionID, metrics.CurrentPhase, metrics.BreathsPerMinute, metrics.Confidence)

	return nil
}

// accumulate обновляет накопительные счетчики сессии и собирает SessionMetrics
func (m *Manager) accumulate(sessionID string, metrics *detect.RhythmMetrics) *SessionMetrics {
	m.mu.Lock()
	r, ok := m.rollups[sessionID]
	if !ok {
		r = &rollup{}
		m.rollups[sessionID] = r
	}

	r.frames++
	r.sumConfidence += metrics.Confidence
	r.sumPosture += metrics.PostureScore
	if metrics.CurrentPhase == detect.PhaseHold {
		r.stillFrames++
	}
	// Частота дыхания и уровень движения учитываются в средних только
	// после калибровки, иначе оценки по умолчанию смещают средние
	if metrics.Calibrated {
		r.sumBPM += metrics.BreathsPerMinute
		r.sumMovement += metrics.MovementLevel
		r.bpmSamples++
	}

	avgConfidence := r.sumConfidence / float64(r.frames)
	avgPosture := r.sumPosture / float64(r.frames)
	avgBPM := 0.0
	avgMovement := 0.0
	if r.bpmSamples > 0 {
		avgBPM = r.sumBPM / float64(r.bpmSamples)
		avgMovement = r.sumMovement / float64(r.bpmSamples)
	}
	stillness := float64(r.stillFrames) / float64(r.frames) * 100.0
	frames := r.frames
	m.mu.Unlock()

	return &SessionMetrics{
		SessionID:           sessionID,
		CurrentPhase:        metrics.CurrentPhase,
		BreathsPerMinute:    metrics.BreathsPerMinute,
		RhythmConsistency:   metrics.RhythmConsistency,
		DepthVariation:      metrics.DepthVariation,
		Confidence:          metrics.Confidence,
		AvgConfidence:       avgConfidence,
		AvgBreathsPerMinute: avgBPM,
		AvgMovementLevel:    avgMovement,
		PostureScore:        avgPosture,
		StillnessPercentage: stillness,
		TotalCycles:         int32(len(metrics.Cycles)),
		TotalAnomalies:      int32(len(metrics.Anomalies)),
		DataPoints:          int32(frames),
		UpdatedAt:           time.Now(),
	}
}

// processEvents обрабатывает циклы и аномалии из обновления
func (m *Manager) processEvents(ctx context.Context, sessionID string, metrics *detect.RhythmMetrics) error {
	var newEvents []SessionEvent

	// Обрабатываем дыхательные циклы
	for _, cycle := range ConvertCycles(sessionID, metrics.Cycles) {
		exists, err := m.cache.EventExists(ctx, sessionID, EventTypeCycle, cycle.StartMS)
		if err != nil || exists {
			continue
		}
		newEvents = append(newEvents, cycle)
	}

	// Обрабатываем аномалии
	for _, anomaly := range ConvertAnomalies(sessionID, metrics.TimestampMS, metrics.Anomalies) {
		exists, err := m.cache.EventExists(ctx, sessionID, EventTypeAnomaly, anomaly.StartMS)
		if err != nil || exists {
			continue
		}
		newEvents = append(newEvents, anomaly)
	}

	if len(newEvents) > 0 {
		if err := m.cache.AppendEvents(ctx, sessionID, newEvents); err != nil {
			return err
		}
		log.Printf("[SESSION] Added %d new events to session %s", len(newEvents), sessionID)
	}

	return nil
}

// GetSessionMetrics получает текущие метрики сессии
func (m *Manager) GetSessionMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	return m.cache.GetMetrics(ctx, sessionID)
}

// GetSessionEvents получает события сессии, опционально по типу
func (m *Manager) GetSessionEvents(ctx context.Context, sessionID string, eventType EventType) ([]SessionEvent, error) {
	if eventType == "" {
		return m.cache.GetAllEvents(ctx, sessionID)
	}
	return m.cache.GetEvents(ctx, sessionID, eventType)
}

// GetSessionData получает все данные сессии
func (m *Manager) GetSessionData(ctx context.Context, sessionID string) (*SessionData, error) {
	return m.cache.GetSessionData(ctx, sessionID)
}

// IsSessionActive проверяет, активна ли сессия
func (m *Manager) IsSessionActive(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.activeSessions[sessionID]
	return exists
}

// getOrCreateSession получает существующую сессию или создает новую.
// Используется для автоматического создания сессий при получении кадров
func (m *Manager) getOrCreateSession(ctx context.Context, sessionID string) (*Session, error) {
	// Сначала проверяем в памяти (быстро)
	m.mu.RLock()
	if session, exists := m.activeSessions[sessionID]; exists {
		m.mu.RUnlock()
		return session, nil
	}
	m.mu.RUnlock()

	// Проверяем в кэше (Redis)
	session, err := m.cache.GetSession(ctx, sessionID)
	if err == nil {
		// Найдена в Redis, активную добавляем в память
		if session.Status == SessionStatusActive {
			m.mu.Lock()
			m.activeSessions[sessionID] = session
			if _, ok := m.rollups[sessionID]; !ok {
				m.rollups[sessionID] = &rollup{}
			}
			m.mu.Unlock()
		}
		return session, nil
	}

	// Проверяем в PostgreSQL (возможно, остановленная сессия)
	session, err = m.repository.GetSession(ctx, sessionID)
	if err == nil {
		// Найдена в БД, загружаем в кэш
		log.Printf("[SESSION] Loaded existing session from database: %s (status: %s)", sessionID, session.Status)
		if err := m.cache.SetSession(ctx, session); err != nil {
			log.Printf("[WARN] Failed to cache session: %v", err)
		}
		if session.Status == SessionStatusActive {
			m.mu.Lock()
			m.activeSessions[sessionID] = session
			if _, ok := m.rollups[sessionID]; !ok {
				m.rollups[sessionID] = &rollup{}
			}
			m.mu.Unlock()
		}
		return session, nil
	}

	// Сессия не найдена нигде - создаем новую
	log.Printf("[SESSION] Auto-creating new session from incoming data: %s", sessionID)

	session = &Session{
		ID:        sessionID,
		Status:    SessionStatusActive,
		StartedAt: time.Now(),
		Metadata: Metadata{
			CreatedFrom: "auto-created",
			Notes:       "Automatically created from incoming frames",
		},
	}

	// Сохраняем в Redis
	if err := m.cache.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save auto-created session to cache: %w", err)
	}

	// Добавляем в активные сессии
	m.mu.Lock()
	m.activeSessions[sessionID] = session
	m.rollups[sessionID] = &rollup{}
	m.mu.Unlock()

	log.Printf("[SESSION] Auto-created session: %s", sessionID)
	return session, nil
}
