package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imperfectbreath/breathsense/internal/detect"
)

// fakeCache - простая реализация CacheStore в памяти для тестов
type fakeCache struct {
	mu       sync.Mutex
	sessions map[string]*Session
	metrics  map[string]*SessionMetrics
	events   map[string][]SessionEvent
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		sessions: make(map[string]*Session),
		metrics:  make(map[string]*SessionMetrics),
		events:   make(map[string][]SessionEvent),
	}
}

func (f *fakeCache) SetSession(ctx context.Context, session *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeCache) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	return session, nil
}

func (f *fakeCache) DeleteSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
	delete(f.metrics, sessionID)
	delete(f.events, sessionID)
	return nil
}

func (f *fakeCache) SetMetrics(ctx context.Context, metrics *SessionMetrics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics[metrics.SessionID] = metrics
	return nil
}

func (f *fakeCache) GetMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.metrics[sessionID]
	if !ok {
		return nil, fmt.Errorf("metrics not found: %s", sessionID)
	}
	return m, nil
}

func (f *fakeCache) AppendEvents(ctx context.Context, sessionID string, events []SessionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[sessionID] = append(f.events[sessionID], events...)
	return nil
}

func (f *fakeCache) GetEvents(ctx context.Context, sessionID string, eventType EventType) ([]SessionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SessionEvent
	for _, e := range f.events[sessionID] {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeCache) GetAllEvents(ctx context.Context, sessionID string) ([]SessionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SessionEvent(nil), f.events[sessionID]...), nil
}

func (f *fakeCache) EventExists(ctx context.Context, sessionID string, eventType EventType, startMS int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events[sessionID] {
		if e.Type == eventType && e.StartMS == startMS {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCache) GetSessionData(ctx context.Context, sessionID string) (*SessionData, error) {
	session, err := f.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	metrics, _ := f.GetMetrics(ctx, sessionID)
	events, _ := f.GetAllEvents(ctx, sessionID)
	return &SessionData{Session: session, Metrics: metrics, Events: events}, nil
}

func (f *fakeCache) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[sessionID]
	return ok, nil
}

func (f *fakeCache) SetSessionTTL(ctx context.Context, sessionID string, ttl int) error {
	return nil
}

func (f *fakeCache) Ping(ctx context.Context) error { return nil }

// fakeRepository - реализация Repository в памяти для тестов
type fakeRepository struct {
	mu       sync.Mutex
	sessions map[string]*Session
	saved    map[string]*SessionData
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		sessions: make(map[string]*Session),
		saved:    make(map[string]*SessionData),
	}
}

func (f *fakeRepository) CreateSession(ctx context.Context, session *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[session.ID]; ok {
		return fmt.Errorf("duplicate session: %s", session.ID)
	}
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeRepository) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	return session, nil
}

func (f *fakeRepository) UpdateSession(ctx context.Context, session *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeRepository) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Session
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRepository) DeleteSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
	delete(f.saved, sessionID)
	return nil
}

func (f *fakeRepository) SaveMetrics(ctx context.Context, metrics *SessionMetrics) error { return nil }

func (f *fakeRepository) GetMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeRepository) SaveEvents(ctx context.Context, events []SessionEvent) error { return nil }

func (f *fakeRepository) GetEvents(ctx context.Context, sessionID string) ([]SessionEvent, error) {
	return nil, nil
}

func (f *fakeRepository) SaveSessionData(ctx context.Context, data *SessionData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[data.Session.ID] = data.Session
	f.saved[data.Session.ID] = data
	return nil
}

func (f *fakeRepository) Ping(ctx context.Context) error { return nil }

func newTestManager() (*Manager, *fakeCache, *fakeRepository) {
	cache := newFakeCache()
	repo := newFakeRepository()
	return NewManager(cache, repo), cache, repo
}

func TestManager_CreateSession(t *testing.T) {
	manager, cache, _ := newTestManager()
	ctx := context.Background()

	session, err := manager.CreateSession(ctx, &CreateSessionRequest{
		UserID:      "user-1",
		PatternName: "box-breathing",
		CreatedFrom: "web",
	})
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)

	assert.Equal(t, SessionStatusActive, session.Status)
	assert.Equal(t, "box-breathing", session.Metadata.PatternName)
	assert.True(t, manager.IsSessionActive(session.ID))

	cached, err := cache.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, cached.ID)
}

func TestManager_ProcessRhythmUpdateAutoCreates(t *testing.T) {
	manager, cache, _ := newTestManager()
	ctx := context.Background()

	metrics := &detect.RhythmMetrics{
		CurrentPhase:     detect.PhaseInhale,
		BreathsPerMinute: 12.0,
		Confidence:       0.8,
		Calibrated:       true,
		TimestampMS:      1000,
	}

	err := manager.ProcessRhythmUpdate(ctx, "incoming-session", metrics)
	require.NoError(t, err)

	session, err := cache.GetSession(ctx, "incoming-session")
	require.NoError(t, err)
	assert.Equal(t, SessionStatusActive, session.Status)
	assert.Equal(t, "auto-created", session.Metadata.CreatedFrom)
	assert.Equal(t, int64(1), session.TotalFrames)
}

func TestManager_RollupAverages(t *testing.T) {
	manager, cache, _ := newTestManager()
	ctx := context.Background()

	session, err := manager.CreateSession(ctx, &CreateSessionRequest{})
	require.NoError(t, err)

	updates := []*detect.RhythmMetrics{
		{CurrentPhase: detect.PhaseInhale, BreathsPerMinute: 12, Confidence: 0.6, MovementLevel: 0.2, PostureScore: 0.9, Calibrated: true, TimestampMS: 500},
		{CurrentPhase: detect.PhaseHold, BreathsPerMinute: 14, Confidence: 0.8, MovementLevel: 0.4, PostureScore: 0.7, Calibrated: true, TimestampMS: 1000},
		{CurrentPhase: detect.PhaseHold, BreathsPerMinute: 16, Confidence: 1.0, MovementLevel: 0.4, PostureScore: 0.9, Calibrated: true, TimestampMS: 1500},
		{CurrentPhase: detect.PhaseExhale, BreathsPerMinute: 14, Confidence: 0.6, MovementLevel: 0.2, PostureScore: 0.7, Calibrated: true, TimestampMS: 2000},
	}
	for _, u := range updates {
		require.NoError(t, manager.ProcessRhythmUpdate(ctx, session.ID, u))
	}

	metrics, err := cache.GetMetrics(ctx, session.ID)
	require.NoError(t, err)

	assert.InDelta(t, 0.75, metrics.AvgConfidence, 1e-9)
	assert.InDelta(t, 14.0, metrics.AvgBreathsPerMinute, 1e-9)
	assert.InDelta(t, 0.3, metrics.AvgMovementLevel, 1e-9)
	assert.InDelta(t, 0.8, metrics.PostureScore, 1e-9)
	assert.InDelta(t, 50.0, metrics.StillnessPercentage, 1e-9)
	assert.Equal(t, int32(4), metrics.DataPoints)
	assert.Equal(t, detect.PhaseExhale, metrics.CurrentPhase)
}

func TestManager_UncalibratedUpdatesExcludedFromBPMAverage(t *testing.T) {
	manager, cache, _ := newTestManager()
	ctx := context.Background()

	session, err := manager.CreateSession(ctx, &CreateSessionRequest{})
	require.NoError(t, err)

	// Оценки по умолчанию до калибровки не должны смещать средние
	require.NoError(t, manager.ProcessRhythmUpdate(ctx, session.ID, &detect.RhythmMetrics{
		CurrentPhase: detect.PhaseTransition, BreathsPerMinute: 15, Confidence: 0, Calibrated: false, TimestampMS: 500,
	}))
	require.NoError(t, manager.ProcessRhythmUpdate(ctx, session.ID, &detect.RhythmMetrics{
		CurrentPhase: detect.PhaseInhale, BreathsPerMinute: 10, Confidence: 0.9, MovementLevel: 0.5, Calibrated: true, TimestampMS: 1000,
	}))

	metrics, err := cache.GetMetrics(ctx, session.ID)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, metrics.AvgBreathsPerMinute, 1e-9)
	assert.InDelta(t, 0.5, metrics.AvgMovementLevel, 1e-9)
}

func TestManager_EventDeduplication(t *testing.T) {
	manager, cache, _ := newTestManager()
	ctx := context.Background()

	session, err := manager.CreateSession(ctx, &CreateSessionRequest{})
	require.NoError(t, err)

	cycle := detect.Cycle{StartMS: 1000, EndMS: 5000, DurationMS: 4000, Quality: 0.8}
	metrics := &detect.RhythmMetrics{
		CurrentPhase: detect.PhaseInhale,
		Cycles:       []detect.Cycle{cycle},
		Calibrated:   true,
		TimestampMS:  5000,
	}

	// Один и тот же цикл приходит в каждом обновлении скользящего окна
	require.NoError(t, manager.ProcessRhythmUpdate(ctx, session.ID, metrics))
	require.NoError(t, manager.ProcessRhythmUpdate(ctx, session.ID, metrics))

	events, err := cache.GetAllEvents(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, EventTypeCycle, events[0].Type)
	assert.Equal(t, int64(1000), events[0].StartMS)
}

func TestManager_AnomalyEvents(t *testing.T) {
	manager, cache, _ := newTestManager()
	ctx := context.Background()

	session, err := manager.CreateSession(ctx, &CreateSessionRequest{})
	require.NoError(t, err)

	metrics := &detect.RhythmMetrics{
		CurrentPhase: detect.PhaseInhale,
		Anomalies:    []string{detect.AnomalyShallowBreathing},
		Calibrated:   true,
		TimestampMS:  3000,
	}
	require.NoError(t, manager.ProcessRhythmUpdate(ctx, session.ID, metrics))

	events, err := cache.GetEvents(ctx, session.ID, EventTypeAnomaly)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, detect.AnomalyShallowBreathing, events[0].Label)
}

func TestManager_StopSession(t *testing.T) {
	manager, cache, _ := newTestManager()
	ctx := context.Background()

	session, err := manager.CreateSession(ctx, &CreateSessionRequest{})
	require.NoError(t, err)

	require.NoError(t, manager.StopSession(ctx, session.ID))

	stopped, err := cache.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusStopped, stopped.Status)
	require.NotNil(t, stopped.StoppedAt)
	assert.False(t, manager.IsSessionActive(session.ID))

	// Повторная остановка - ошибка
	assert.Error(t, manager.StopSession(ctx, session.ID))
}

func TestManager_IgnoresUpdatesForStoppedSession(t *testing.T) {
	manager, cache, _ := newTestManager()
	ctx := context.Background()

	session, err := manager.CreateSession(ctx, &CreateSessionRequest{})
	require.NoError(t, err)
	require.NoError(t, manager.StopSession(ctx, session.ID))

	err = manager.ProcessRhythmUpdate(ctx, session.ID, &detect.RhythmMetrics{
		CurrentPhase: detect.PhaseInhale, Calibrated: true, TimestampMS: 1000,
	})
	require.NoError(t, err)

	stopped, err := cache.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stopped.TotalFrames)
}

func TestManager_SaveSession(t *testing.T) {
	manager, _, repo := newTestManager()
	ctx := context.Background()

	session, err := manager.CreateSession(ctx, &CreateSessionRequest{})
	require.NoError(t, err)

	require.NoError(t, manager.ProcessRhythmUpdate(ctx, session.ID, &detect.RhythmMetrics{
		CurrentPhase: detect.PhaseInhale, Confidence: 0.9, Calibrated: true, TimestampMS: 1000,
	}))

	require.NoError(t, manager.SaveSession(ctx, session.ID, "good practice"))

	repo.mu.Lock()
	saved := repo.saved[session.ID]
	repo.mu.Unlock()

	require.NotNil(t, saved)
	assert.Equal(t, SessionStatusSaved, saved.Session.Status)
	assert.Equal(t, "good practice", saved.Session.Metadata.Notes)
	require.NotNil(t, saved.Metrics)
}

func TestManager_GetSessionEventsFiltering(t *testing.T) {
	manager, _, _ := newTestManager()
	ctx := context.Background()

	session, err := manager.CreateSession(ctx, &CreateSessionRequest{})
	require.NoError(t, err)

	require.NoError(t, manager.ProcessRhythmUpdate(ctx, session.ID, &detect.RhythmMetrics{
		CurrentPhase: detect.PhaseInhale,
		Cycles:       []detect.Cycle{{StartMS: 1000, EndMS: 5000, DurationMS: 4000}},
		Anomalies:    []string{detect.AnomalyExcessiveMovement},
		Calibrated:   true,
		TimestampMS:  5000,
	}))

	all, err := manager.GetSessionEvents(ctx, session.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	cycles, err := manager.GetSessionEvents(ctx, session.ID, EventTypeCycle)
	require.NoError(t, err)
	assert.Len(t, cycles, 1)
}
