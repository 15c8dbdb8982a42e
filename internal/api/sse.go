package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pv/sensor-panel/internal/directory"
	"github.com/pv/sensor-panel/internal/logger"
	"github.com/pv/sensor-panel/internal/session"
)

// sseKeepAlive интервал комментариев keep-alive и продления сессии
const sseKeepAlive = 15 * time.Second

// SSEHub управляет SSE подключениями клиентов
type SSEHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]bool
}

type sseClient struct {
	sessionID string // клиент получает view только своей сессии
	events    chan SSEEvent
	done      chan struct{}
}

// SSEEvent представляет событие для отправки клиенту
type SSEEvent struct {
	Type      string      `json:"type"` // "connected", "view", "directory"
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewSSEHub создаёт новый SSE hub
func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[*sseClient]bool),
	}
}

// AddClient добавляет нового SSE клиента
func (h *SSEHub) AddClient(sessionID string) *sseClient {
	client := &sseClient{
		sessionID: sessionID,
		events:    make(chan SSEEvent, 10),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	logger.Debug("SSE client connected", "session", sessionID, "total_clients", total)
	return client
}

// RemoveClient удаляет SSE клиента, повторный вызов ничего не делает
func (h *SSEHub) RemoveClient(client *sseClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	total := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	close(client.done)
	logger.Debug("SSE client disconnected", "session", client.sessionID, "total_clients", total)
}

// DisconnectSession закрывает все потоки удалённой сессии
func (h *SSEHub) DisconnectSession(sessionID string) {
	h.mu.Lock()
	var gone []*sseClient
	for client := range h.clients {
		if client.sessionID == sessionID {
			delete(h.clients, client)
			gone = append(gone, client)
		}
	}
	h.mu.Unlock()

	for _, client := range gone {
		close(client.done)
	}
	if len(gone) > 0 {
		logger.Debug("SSE session streams closed", "session", sessionID, "count", len(gone))
	}
}

// Broadcast отправляет событие всем подходящим клиентам.
// События без SessionID получают все клиенты.
func (h *SSEHub) Broadcast(event SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if event.SessionID != "" && client.sessionID != event.SessionID {
			continue
		}
		select {
		case client.events <- event:
		default:
			// Буфер полон: выбрасываем самое старое событие, последнее состояние важнее
			select {
			case <-client.events:
			default:
			}
			select {
			case client.events <- event:
			default:
				logger.Warn("SSE client event buffer full, dropping event", "session", client.sessionID)
			}
		}
	}
}

// BroadcastView отправляет новое представление страницы сессии
func (h *SSEHub) BroadcastView(sessionID string, view session.View) {
	h.Broadcast(SSEEvent{
		Type:      "view",
		SessionID: sessionID,
		Data:      view,
		Timestamp: time.Now(),
	})
}

// BroadcastDirectory отправляет обновлённые списки endpoints и проектов
func (h *SSEHub) BroadcastDirectory(dir *directory.Directory) {
	h.Broadcast(SSEEvent{
		Type: "directory",
		Data: map[string]interface{}{
			"endpoints": dir.Endpoints(),
			"projects":  dir.Projects(),
		},
		Timestamp: time.Now(),
	})
}

// ClientCount возвращает количество подключённых клиентов
func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleSSE обрабатывает SSE подключение сессии
// GET /api/sessions/{id}/events
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "SSE not supported")
		return
	}

	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Для nginx

	client := h.sseHub.AddClient(s.ID())
	defer h.sseHub.RemoveClient(client)

	// Приветственное сообщение с текущим состоянием
	h.sendSSEEvent(w, SSEEvent{
		Type:      "connected",
		SessionID: s.ID(),
		Data:      s.View(),
		Timestamp: time.Now(),
	})
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.done:
			return
		case <-keepAlive.C:
			s.Touch()
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event := <-client.events:
			h.sendSSEEvent(w, event)
			flusher.Flush()
		}
	}
}

// sendSSEEvent отправляет одно SSE событие
func (h *Handlers) sendSSEEvent(w http.ResponseWriter, event SSEEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal SSE event", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event.Type)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
