package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRepository реализует Repository для PostgreSQL (Infrastructure Layer)
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository создает новый экземпляр PostgresRepository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// NewPostgresRepositoryFromDSN создает репозиторий из строки подключения
func NewPostgresRepositoryFromDSN(dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Настройки пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := ensureSchema(db); err != nil {
		return nil, err
	}

	return &PostgresRepository{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	createTableSQL := `
    CREATE TABLE IF NOT EXISTS sessions (
        id TEXT PRIMARY KEY,
        status TEXT NOT NULL,
        started_at TIMESTAMP NOT NULL,
        stopped_at TIMESTAMP,
        saved_at TIMESTAMP,
        total_duration_ms BIGINT NOT NULL DEFAULT 0,
        total_frames BIGINT NOT NULL DEFAULT 0,
        metadata JSONB NOT NULL DEFAULT '{}'
    );

    CREATE TABLE IF NOT EXISTS session_metrics (
        session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
        current_phase TEXT NOT NULL,
        breaths_per_minute FLOAT NOT NULL,
        rhythm_consistency FLOAT NOT NULL,
        depth_variation FLOAT NOT NULL,
        confidence FLOAT NOT NULL,
        avg_confidence FLOAT NOT NULL,
        avg_breaths_per_minute FLOAT NOT NULL,
        avg_movement_level FLOAT NOT NULL DEFAULT 0,
        posture_score FLOAT NOT NULL DEFAULT 0,
        stillness_percentage FLOAT NOT NULL,
        total_cycles INTEGER NOT NULL,
        total_anomalies INTEGER NOT NULL,
        data_points INTEGER NOT NULL,
        updated_at TIMESTAMP NOT NULL
    );

    CREATE TABLE IF NOT EXISTS session_events (
        id BIGSERIAL PRIMARY KEY,
        session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
        type TEXT NOT NULL,
        start_ms BIGINT NOT NULL,
        end_ms BIGINT NOT NULL,
        duration_ms BIGINT NOT NULL DEFAULT 0,
        quality FLOAT NOT NULL DEFAULT 0,
        label TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMP NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
    CREATE INDEX IF NOT EXISTS idx_session_events_session_id ON session_events(session_id);
    `

	if _, err := db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// Close закрывает соединение с БД
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ===== Управление сессиями =====

func (r *PostgresRepository) CreateSession(ctx context.Context, session *Session) error {
	metadataJSON, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO sessions (id, status, started_at, stopped_at, saved_at, total_duration_ms, total_frames, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.Status,
		session.StartedAt,
		session.StoppedAt,
		session.SavedAt,
		session.TotalDurationMs,
		session.TotalFrames,
		metadataJSON,
	)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	query := `
		SELECT id, status, started_at, stopped_at, saved_at, total_duration_ms, total_frames, metadata
		FROM sessions
		WHERE id = $1
	`

	var session Session
	var metadataJSON []byte

	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.Status,
		&session.StartedAt,
		&session.StoppedAt,
		&session.SavedAt,
		&session.TotalDurationMs,
		&session.TotalFrames,
		&metadataJSON,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if err := json.Unmarshal(metadataJSON, &session.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &session, nil
}

func (r *PostgresRepository) UpdateSession(ctx context.Context, session *Session) error {
	metadataJSON, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE sessions
		SET status = $2, stopped_at = $3, saved_at = $4, total_duration_ms = $5, total_frames = $6, metadata = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.Status,
		session.StoppedAt,
		session.SavedAt,
		session.TotalDurationMs,
		session.TotalFrames,
		metadataJSON,
	)

	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("session not found: %s", session.ID)
	}

	return nil
}

func (r *PostgresRepository) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	query := `
		SELECT id, status, started_at, stopped_at, saved_at, total_duration_ms, total_frames, metadata
		FROM sessions
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var session Session
		var metadataJSON []byte

		err := rows.Scan(
			&session.ID,
			&session.Status,
			&session.StartedAt,
			&session.StoppedAt,
			&session.SavedAt,
			&session.TotalDurationMs,
			&session.TotalFrames,
			&metadataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		if err := json.Unmarshal(metadataJSON, &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}

		sessions = append(sessions, &session)
	}

	return sessions, rows.Err()
}

func (r *PostgresRepository) DeleteSession(ctx context.Context, sessionID string) error {
	// События и метрики удаляются каскадно
	query := `DELETE FROM sessions WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// ===== Метрики =====

func (r *PostgresRepository) SaveMetrics(ctx context.Context, metrics *SessionMetrics) error {
	query := `
		INSERT INTO session_metrics (
			session_id, current_phase, breaths_per_minute, rhythm_consistency,
			depth_variation, confidence, avg_confidence, avg_breaths_per_minute,
			avg_movement_level, posture_score, stillness_percentage,
			total_cycles, total_anomalies, data_points, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (session_id) DO UPDATE SET
			current_phase = EXCLUDED.current_phase,
			breaths_per_minute = EXCLUDED.breaths_per_minute,
			rhythm_consistency = EXCLUDED.rhythm_consistency,
			depth_variation = EXCLUDED.depth_variation,
			confidence = EXCLUDED.confidence,
			avg_confidence = EXCLUDED.avg_confidence,
			avg_breaths_per_minute = EXCLUDED.avg_breaths_per_minute,
			avg_movement_level = EXCLUDED.avg_movement_level,
			posture_score = EXCLUDED.posture_score,
			stillness_percentage = EXCLUDED.stillness_percentage,
			total_cycles = EXCLUDED.total_cycles,
			total_anomalies = EXCLUDED.total_anomalies,
			data_points = EXCLUDED.data_points,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		metrics.SessionID,
		metrics.CurrentPhase,
		metrics.BreathsPerMinute,
		metrics.RhythmConsistency,
		metrics.DepthVariation,
		metrics.Confidence,
		metrics.AvgConfidence,
		metrics.AvgBreathsPerMinute,
		metrics.AvgMovementLevel,
		metrics.PostureScore,
		metrics.StillnessPercentage,
		metrics.TotalCycles,
		metrics.TotalAnomalies,
		metrics.DataPoints,
		metrics.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save metrics: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	query := `
		SELECT session_id, current_phase, breaths_per_minute, rhythm_consistency,
			depth_variation, confidence, avg_confidence, avg_breaths_per_minute,
			avg_movement_level, posture_score, stillness_percentage,
			total_cycles, total_anomalies, data_points, updated_at
		FROM session_metrics
		WHERE session_id = $1
	`

	var metrics SessionMetrics
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&metrics.SessionID,
		&metrics.CurrentPhase,
		&metrics.BreathsPerMinute,
		&metrics.RhythmConsistency,
		&metrics.DepthVariation,
		&metrics.Confidence,
		&metrics.AvgConfidence,
		&metrics.AvgBreathsPerMinute,
		&metrics.AvgMovementLevel,
		&metrics.PostureScore,
		&metrics.StillnessPercentage,
		&metrics.TotalCycles,
		&metrics.TotalAnomalies,
		&metrics.DataPoints,
		&metrics.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("metrics not found for session: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}

	return &metrics, nil
}

// ===== События =====

func (r *PostgresRepository) SaveEvents(ctx context.Context, events []SessionEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO session_events (session_id, type, start_ms, end_ms, duration_ms, quality, label, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, event := range events {
		_, err := tx.ExecContext(ctx, query,
			event.SessionID,
			event.Type,
			event.StartMS,
			event.EndMS,
			event.Duration,
			event.Quality,
			event.Label,
			event.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PostgresRepository) GetEvents(ctx context.Context, sessionID string) ([]SessionEvent, error) {
	query := `
		SELECT id, session_id, type, start_ms, end_ms, duration_ms, quality, label, created_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY start_ms
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []SessionEvent
	for rows.Next() {
		var event SessionEvent
		err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.Type,
			&event.StartMS,
			&event.EndMS,
			&event.Duration,
			&event.Quality,
			&event.Label,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// SaveSessionData сохраняет полный снимок сессии в одной транзакции
func (r *PostgresRepository) SaveSessionData(ctx context.Context, data *SessionData) error {
	if data.Session == nil {
		return fmt.Errorf("session data has no session")
	}

	// Upsert сессии: сессия могла быть создана раньше
	if err := r.CreateSession(ctx, data.Session); err != nil {
		if updateErr := r.UpdateSession(ctx, data.Session); updateErr != nil {
			return fmt.Errorf("failed to upsert session: %w", updateErr)
		}
	}

	if data.Metrics != nil {
		if err := r.SaveMetrics(ctx, data.Metrics); err != nil {
			return err
		}
	}

	if err := r.SaveEvents(ctx, data.Events); err != nil {
		return err
	}

	return nil
}
