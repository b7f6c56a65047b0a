package emulator

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/imperfectbreath/breathsense/internal/detect"
)

// Ошибки отправителей
var (
	ErrSendFailed       = errors.New("failed to send frame")
	ErrConnectionFailed = errors.New("connection failed")
)

// FrameSender интерфейс для отправки кадров
type FrameSender interface {
	// Send отправляет один кадр
	Send(frame *detect.LandmarkFrame) error

	// Close освобождает ресурсы
	Close() error
}

// JSONLSender пишет кадры в JSONL файл для офлайн-прогонов
type JSONLSender struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// NewJSONLSender создает файловый отправитель, директория создается при необходимости
func NewJSONLSender(filePath string) (*JSONLSender, error) {
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return &JSONLSender{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (s *JSONLSender) Send(frame *detect.LandmarkFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("JSON marshaling failed: %w", err)
	}

	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if _, err := s.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	return nil
}

func (s *JSONLSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}

// WebSocketSender стримит кадры на ingest endpoint сервера
type WebSocketSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketSender подключается к серверу и начинает читать подтверждения
func NewWebSocketSender(serverURL, sessionID string) (*WebSocketSender, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	u.Path = "/ws/ingest"
	q := u.Query()
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &WebSocketSender{conn: conn}

	// Подтверждения сервера читаем в фоне, чтобы не переполнять буфер соединения
	go s.readAcks()

	return s, nil
}

func (s *WebSocketSender) Send(frame *detect.LandmarkFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

func (s *WebSocketSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

func (s *WebSocketSender) readAcks() {
	for {
		var ack map[string]interface{}
		if err := s.conn.ReadJSON(&ack); err != nil {
			return
		}
		if phase, ok := ack["metrics"].(map[string]interface{}); ok {
			log.Printf("Server ack: phase=%v bpm=%v", phase["current_phase"], phase["breaths_per_minute"])
		}
	}
}
