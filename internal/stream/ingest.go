package stream

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/imperfectbreath/breathsense/internal/detect"
	"github.com/imperfectbreath/breathsense/internal/session"
)

// IngestHandler принимает кадры ориентиров по WebSocket.
// Каждое соединение владеет собственным экземпляром детектора,
// поэтому кадры обрабатываются синхронно без блокировок
type IngestHandler struct {
	hub      *Hub
	manager  *session.Manager
	defaults IngestDefaults
}

// IngestDefaults - серверные настройки детектора, применяемые
// к соединению, если клиент не передал свои в query-параметрах
type IngestDefaults struct {
	Level           detect.ProcessingLevel
	Mobile          bool
	FrameIntervalMS int64
}

// controlMessage представляет управляющее сообщение от клиента
type controlMessage struct {
	Type   string                 `json:"type"`
	Level  detect.ProcessingLevel `json:"processing_level,omitempty"`
	Mobile bool                   `json:"mobile,omitempty"`
}

// ingestGreeting отправляется источнику сразу после подключения:
// фактический ID сессии, примененные настройки детектора и
// рекомендованный интервал между кадрами
type ingestGreeting struct {
	SessionID             string                 `json:"session_id"`
	Status                string                 `json:"status"`
	Level                 detect.ProcessingLevel `json:"processing_level"`
	Mobile                bool                   `json:"is_mobile"`
	TargetFrameIntervalMS int64                  `json:"target_frame_interval_ms,omitempty"`
}

// NewIngestHandler создает новый обработчик входящих кадров
func NewIngestHandler(hub *Hub, manager *session.Manager, defaults IngestDefaults) *IngestHandler {
	return &IngestHandler{
		hub:      hub,
		manager:  manager,
		defaults: defaults,
	}
}

// HandleIngest обрабатывает WebSocket соединение источника кадров.
// GET /ws/ingest?session_id=...&level=standard&mobile=false
func (h *IngestHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ERROR] Failed to upgrade ingest connection: %v", err)
		return
	}
	defer conn.Close()

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	// Query-параметры перекрывают серверные настройки по умолчанию
	level := h.defaults.Level
	if v := r.URL.Query().Get("level"); v != "" {
		level = detect.ProcessingLevel(v)
	}
	mobile := h.defaults.Mobile
	if v := r.URL.Query().Get("mobile"); v != "" {
		mobile = v == "true"
	}

	detector := detect.New(detect.Options{Level: level, Mobile: mobile})

	log.Printf("[WEBSOCKET] Ingest connected: session=%s level=%s mobile=%v", sessionID, level, mobile)
	defer log.Printf("[WEBSOCKET] Ingest disconnected: session=%s", sessionID)

	greeting := &ingestGreeting{
		SessionID:             sessionID,
		Status:                "connected",
		Level:                 level,
		Mobile:                mobile,
		TargetFrameIntervalMS: h.defaults.FrameIntervalMS,
	}
	if err := conn.WriteJSON(greeting); err != nil {
		log.Printf("[ERROR] Failed to write ingest greeting: %v", err)
		return
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ERROR] Ingest WebSocket error: %v", err)
			}
			return
		}

		// Управляющие сообщения несут поле type, кадры - нет
		var ctrl controlMessage
		if err := json.Unmarshal(message, &ctrl); err == nil && ctrl.Type != "" {
			h.handleControl(detector, sessionID, &ctrl)
			continue
		}

		var frame detect.LandmarkFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			log.Printf("[WARN] Dropping malformed frame for session %s: %v", sessionID, err)
			continue
		}

		metrics := detector.Analyze(&frame)

		if err := h.manager.ProcessRhythmUpdate(r.Context(), sessionID, metrics); err != nil {
			log.Printf("[WARN] Failed to process rhythm update: %v", err)
		}

		status := detector.Status()
		h.hub.BroadcastRhythmUpdate(sessionID, metrics, &status)

		// Подтверждение источнику с текущими метриками
		ack := &RhythmUpdate{
			SessionID: sessionID,
			Status:    "processed",
			Metrics:   metrics,
		}
		if err := conn.WriteJSON(ack); err != nil {
			log.Printf("[ERROR] Failed to write ingest ack: %v", err)
			return
		}
	}
}

// handleControl применяет управляющее сообщение к детектору соединения
func (h *IngestHandler) handleControl(detector *detect.Detector, sessionID string, ctrl *controlMessage) {
	switch ctrl.Type {
	case "config":
		level := ctrl.Level
		if level == "" {
			level = detect.LevelStandard
		}
		detector.SetProcessingLevel(level, ctrl.Mobile)
		log.Printf("[WEBSOCKET] Reconfigured detector: session=%s level=%s mobile=%v", sessionID, level, ctrl.Mobile)
	case "reset":
		detector.Reset()
		log.Printf("[WEBSOCKET] Reset detector: session=%s", sessionID)
	default:
		log.Printf("[WARN] Unknown control message type: %s", ctrl.Type)
	}
}
