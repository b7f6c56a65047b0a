package session

import (
	"time"

	"github.com/imperfectbreath/breathsense/internal/detect"
)

// SessionStatus представляет статус сессии
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "ACTIVE"
	SessionStatusStopped SessionStatus = "STOPPED"
	SessionStatusSaved   SessionStatus = "SAVED"
)

// Session представляет сессию дыхательной практики
type Session struct {
	ID              string        `json:"id"`
	Status          SessionStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	StoppedAt       *time.Time    `json:"stopped_at,omitempty"`
	SavedAt         *time.Time    `json:"saved_at,omitempty"`
	TotalDurationMs int64         `json:"total_duration_ms"`
	TotalFrames     int64         `json:"total_frames"`
	Metadata        Metadata      `json:"metadata,omitempty"`
}

// Metadata содержит дополнительную информацию о сессии
type Metadata struct {
	UserID      string                 `json:"user_id,omitempty"`
	PatternName string                 `json:"pattern_name,omitempty"` // Название дыхательной техники
	Notes       string                 `json:"notes,omitempty"`
	CustomData  map[string]interface{} `json:"custom_data,omitempty"`
	CreatedFrom string                 `json:"created_from,omitempty"` // "web", "mobile", "emulator"
}

// SessionMetrics содержит агрегированные метрики сессии
type SessionMetrics struct {
	SessionID           string       `json:"session_id"`
	CurrentPhase        detect.Phase `json:"current_phase"`
	BreathsPerMinute    float64      `json:"breaths_per_minute"`
	RhythmConsistency   float64      `json:"rhythm_consistency"`
	DepthVariation      float64      `json:"depth_variation"`
	Confidence          float64      `json:"confidence"`
	AvgConfidence       float64      `json:"avg_confidence"`
	AvgBreathsPerMinute float64      `json:"avg_breaths_per_minute"`
	AvgMovementLevel    float64      `json:"avg_movement_level"`
	PostureScore        float64      `json:"posture_score"`
	StillnessPercentage float64      `json:"stillness_percentage"`
	TotalCycles         int32        `json:"total_cycles"`
	TotalAnomalies      int32        `json:"total_anomalies"`
	DataPoints          int32        `json:"data_points"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// EventType представляет тип события
type EventType string

const (
	EventTypeCycle   EventType = "cycle"
	EventTypeAnomaly EventType = "anomaly"
)

// SessionEvent представляет событие в сессии: принятый дыхательный цикл
// или сработавший флаг аномалии
type SessionEvent struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Type      EventType `json:"type"`
	StartMS   int64     `json:"start_ms"`
	EndMS     int64     `json:"end_ms"`
	Duration  int64     `json:"duration_ms"`
	Quality   float64   `json:"quality,omitempty"`
	Label     string    `json:"label,omitempty"` // Флаг аномалии или нерегулярности цикла
	CreatedAt time.Time `json:"created_at"`
}

// SessionData представляет все данные сессии для хранения
type SessionData struct {
	Session *Session        `json:"session"`
	Metrics *SessionMetrics `json:"metrics"`
	Events  []SessionEvent  `json:"events"`
}

// CreateSessionRequest представляет запрос на создание сессии
type CreateSessionRequest struct {
	UserID      string                 `json:"user_id,omitempty"`
	PatternName string                 `json:"pattern_name,omitempty"`
	Notes       string                 `json:"notes,omitempty"`
	CustomData  map[string]interface{} `json:"custom_data,omitempty"`
	CreatedFrom string                 `json:"created_from,omitempty"`
}

// SessionResponse представляет ответ с информацией о сессии
type SessionResponse struct {
	Session *Session        `json:"session"`
	Metrics *SessionMetrics `json:"metrics,omitempty"`
}

// SaveSessionRequest представляет запрос на сохранение сессии
type SaveSessionRequest struct {
	Notes string `json:"notes,omitempty"`
}

// ConvertCycles преобразует принятые циклы детектора в события сессии
func ConvertCycles(sessionID string, cycles []detect.Cycle) []SessionEvent {
	events := make([]SessionEvent, 0, len(cycles))
	for _, c := range cycles {
		label := ""
		if len(c.Irregularities) > 0 {
			label = c.Irregularities[0]
		}
		events = append(events, SessionEvent{
			SessionID: sessionID,
			Type:      EventTypeCycle,
			StartMS:   c.StartMS,
			EndMS:     c.EndMS,
			Duration:  c.DurationMS,
			Quality:   c.Quality,
			Label:     label,
			CreatedAt: time.Now(),
		})
	}
	return events
}

// ConvertAnomalies преобразует флаги аномалий в события сессии
func ConvertAnomalies(sessionID string, tsMS int64, anomalies []string) []SessionEvent {
	events := make([]SessionEvent, 0, len(anomalies))
	for _, a := range anomalies {
		events = append(events, SessionEvent{
			SessionID: sessionID,
			Type:      EventTypeAnomaly,
			StartMS:   tsMS,
			EndMS:     tsMS,
			Label:     a,
			CreatedAt: time.Now(),
		})
	}
	return events
}
