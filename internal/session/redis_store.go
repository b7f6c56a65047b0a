package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imperfectbreath/breathsense/internal/detect"
)

// RedisStore реализует CacheStore для Redis (Infrastructure Layer)
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore создает новый экземпляр RedisStore
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
	}
}

// ===== Ключи Redis =====

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:metadata", sessionID)
}

func metricsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:rhythm:current", sessionID)
}

func eventsKey(sessionID string, eventType EventType) string {
	return fmt.Sprintf("session:%s:events:%s", sessionID, eventType)
}

// ===== Управление сессиями =====

func (r *RedisStore) SetSession(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return r.client.Set(ctx, sessionKey(session.ID), data, 0).Err()
}

func (r *RedisStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	// Удаляем все ключи, связанные с сессией
	pattern := fmt.Sprintf("session:%s:*", sessionID)

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	pipe := r.client.Pipeline()

	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	count, err := r.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RedisStore) SetSessionTTL(ctx context.Context, sessionID string, ttl int) error {
	pattern := fmt.Sprintf("session:%s:*", sessionID)
	duration := time.Duration(ttl) * time.Second

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	pipe := r.client.Pipeline()

	for iter.Next(ctx) {
		pipe.Expire(ctx, iter.Val(), duration)
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// ===== Метрики =====

// SetMetrics перезаписывает текущие метрики сессии в Hash
func (r *RedisStore) SetMetrics(ctx context.Context, metrics *SessionMetrics) error {
	fields := map[string]interface{}{
		"current_phase":          string(metrics.CurrentPhase),
		"breaths_per_minute":     metrics.BreathsPerMinute,
		"rhythm_consistency":     metrics.RhythmConsistency,
		"depth_variation":        metrics.DepthVariation,
		"confidence":             metrics.Confidence,
		"avg_confidence":         metrics.AvgConfidence,
		"avg_breaths_per_minute": metrics.AvgBreathsPerMinute,
		"avg_movement_level":     metrics.AvgMovementLevel,
		"posture_score":          metrics.PostureScore,
		"stillness_percentage":   metrics.StillnessPercentage,
		"total_cycles":           metrics.TotalCycles,
		"total_anomalies":        metrics.TotalAnomalies,
		"data_points":            metrics.DataPoints,
		"updated_at":             metrics.UpdatedAt.Unix(),
	}

	return r.client.HSet(ctx, metricsKey(metrics.SessionID), fields).Err()
}

func (r *RedisStore) GetMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	data, err := r.client.HGetAll(ctx, metricsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("metrics not found for session: %s", sessionID)
	}

	metrics := &SessionMetrics{SessionID: sessionID}

	// Парсим значения из Hash
	if val, ok := data["current_phase"]; ok {
		metrics.CurrentPhase = detect.Phase(val)
	}
	if val, ok := data["breaths_per_minute"]; ok {
		metrics.BreathsPerMinute, _ = strconv.ParseFloat(val, 64)
	}
	if val, ok := data["rhythm_consistency"]; ok {
		metrics.RhythmConsistency, _ = strconv.ParseFloat(val, 64)
	}
	if val, ok := data["depth_variation"]; ok {
		metrics.DepthVariation, _ = strconv.ParseFloat(val, 64)
	}
	if val, ok := data["confidence"]; ok {
		metrics.Confidence, _ = strconv.ParseFloat(val, 64)
	}
	if val, ok := data["avg_confidence"]; ok {
		metrics.AvgConfidence, _ = strconv.ParseFloat(val, 64)
	}
	if val, ok := data["avg_breaths_per_minute"]; ok {
		metrics.AvgBreathsPerMinute, _ = strconv.ParseFloat(val, 64)
	}
	if val, ok := data["avg_movement_level"]; ok {
		metrics.AvgMovementLevel, _ = strconv.ParseFloat(val, 64)
	}
	if val, ok := data["posture_score"]; ok {
		metrics.PostureScore, _ = strconv.ParseFloat(val, 64)
	}
	if val, ok := data["stillness_percentage"]; ok {
		metrics.StillnessPercentage, _ = strconv.ParseFloat(val, 64)
	}
	if val, ok := data["total_cycles"]; ok {
		i, _ := strconv.ParseInt(val, 10, 32)
		metrics.TotalCycles = int32(i)
	}
	if val, ok := data["total_anomalies"]; ok {
		i, _ := strconv.ParseInt(val, 10, 32)
		metrics.TotalAnomalies = int32(i)
	}
	if val, ok := data["data_points"]; ok {
		i, _ := strconv.ParseInt(val, 10, 32)
		metrics.DataPoints = int32(i)
	}
	if val, ok := data["updated_at"]; ok {
		timestamp, _ := strconv.ParseInt(val, 10, 64)
		metrics.UpdatedAt = time.Unix(timestamp, 0)
	}

	return metrics, nil
}

// ===== События =====

func (r *RedisStore) AppendEvents(ctx context.Context, sessionID string, events []SessionEvent) error {
	if len(events) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		key := eventsKey(sessionID, event.Type)
		pipe.RPush(ctx, key, data)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetEvents(ctx context.Context, sessionID string, eventType EventType) ([]SessionEvent, error) {
	key := eventsKey(sessionID, eventType)
	data, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	events := make([]SessionEvent, 0, len(data))
	for _, item := range data {
		var event SessionEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue // Пропускаем поврежденные записи
		}
		events = append(events, event)
	}

	return events, nil
}

func (r *RedisStore) GetAllEvents(ctx context.Context, sessionID string) ([]SessionEvent, error) {
	var all []SessionEvent

	for _, eventType := range []EventType{EventTypeCycle, EventTypeAnomaly} {
		events, err := r.GetEvents(ctx, sessionID, eventType)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)
	}

	return all, nil
}

// EventExists проверяет, было ли уже записано событие с таким временем начала
func (r *RedisStore) EventExists(ctx context.Context, sessionID string, eventType EventType, startMS int64) (bool, error) {
	events, err := r.GetEvents(ctx, sessionID, eventType)
	if err != nil {
		return false, err
	}

	for _, event := range events {
		if event.StartMS == startMS {
			return true, nil
		}
	}

	return false, nil
}

// GetSessionData собирает все данные сессии из кэша
func (r *RedisStore) GetSessionData(ctx context.Context, sessionID string) (*SessionData, error) {
	session, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Метрик может не быть для только что созданной сессии
	metrics, _ := r.GetMetrics(ctx, sessionID)

	events, err := r.GetAllEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &SessionData{
		Session: session,
		Metrics: metrics,
		Events:  events,
	}, nil
}
