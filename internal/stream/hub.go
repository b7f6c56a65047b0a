package stream

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/imperfectbreath/breathsense/internal/detect"
)

// Hub управляет WebSocket соединениями дашбордов
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Канал для регистрации клиентов
	register chan *Client

	// Канал для отмены регистрации клиентов
	unregister chan *Client

	// Канал для исходящих сообщений
	broadcast chan broadcastMessage

	// Мютекс для безопасной работы с картой клиентов
	mu sync.RWMutex

	// Последнее обновление для каждой сессии (session_id -> JSON)
	lastUpdates map[string][]byte
	lastMu      sync.RWMutex
}

// Client представляет WebSocket клиента
type Client struct {
	hub *Hub

	// WebSocket соединение
	conn *websocket.Conn

	// Буферизованный канал исходящих сообщений
	send chan []byte

	// ID сессии для фильтрации данных. Пустая строка - клиент
	// получает обновления всех сессий
	sessionID string
}

// broadcastMessage - сериализованное обновление вместе с ID сессии,
// по которому хаб фильтрует получателей
type broadcastMessage struct {
	sessionID string
	payload   []byte
}

// RhythmUpdate представляет данные для отправки на фронтенд
type RhythmUpdate struct {
	SessionID string                `json:"session_id"`
	Status    string                `json:"status"`
	Metrics   *detect.RhythmMetrics `json:"metrics"`
	Detector  *detect.Status        `json:"detector,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// В продакшене следует проверять домен
		return true
	},
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan broadcastMessage),
		lastUpdates: make(map[string][]byte),
	}
}

// Run запускает Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[WEBSOCKET] Client registered: %p, session: %s", client, client.sessionID)

			// Новому клиенту сразу отправляем последнее состояние его
			// сессии; клиенту без фильтра - состояние всех сессий
			h.lastMu.RLock()
			var snapshots [][]byte
			if client.sessionID == "" {
				for _, snapshot := range h.lastUpdates {
					snapshots = append(snapshots, snapshot)
				}
			} else if snapshot, ok := h.lastUpdates[client.sessionID]; ok {
				snapshots = append(snapshots, snapshot)
			}
			h.lastMu.RUnlock()
			for _, snapshot := range snapshots {
				select {
				case client.send <- snapshot:
				default:
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("[WEBSOCKET] Client unregistered: %p", client)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.sessionID != "" && client.sessionID != message.sessionID {
					continue
				}
				select {
				case client.send <- message.payload:
				default:
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastRhythmUpdate отправляет обновление ритма клиентам сессии
// и клиентам без фильтра
func (h *Hub) BroadcastRhythmUpdate(sessionID string, metrics *detect.RhythmMetrics, status *detect.Status) {
	update := &RhythmUpdate{
		SessionID: sessionID,
		Status:    "processed",
		Metrics:   metrics,
		Detector:  status,
	}

	message, err := json.Marshal(update)
	if err != nil {
		log.Printf("[ERROR] Failed to marshal rhythm update: %v", err)
		return
	}

	h.lastMu.Lock()
	h.lastUpdates[sessionID] = message
	h.lastMu.Unlock()

	select {
	case h.broadcast <- broadcastMessage{sessionID: sessionID, payload: message}:
	default:
		log.Printf("[WARN] Broadcast channel full, dropping message")
	}
}

// HandleLive обрабатывает WebSocket соединения дашбордов
func (h *Hub) HandleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ERROR] Failed to upgrade connection: %v", err)
		return
	}

	// Без session_id клиент подписывается на все сессии
	sessionID := r.URL.Query().Get("session_id")

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 256),
		sessionID: sessionID,
	}

	client.hub.register <- client

	// Запускаем горутины для клиента
	go client.writePump()
	go client.readPump()
}

// readPump обрабатывает входящие сообщения от клиента
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ERROR] WebSocket error: %v", err)
			}
			break
		}
	}
}

// writePump отправляет сообщения клиенту
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("[ERROR] Failed to write message: %v", err)
			return
		}
	}

	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
