package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pv/sensor-panel/internal/apperr"
	"github.com/pv/sensor-panel/internal/attredit"
	"github.com/pv/sensor-panel/internal/logger"
	"github.com/pv/sensor-panel/internal/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsCommand команда браузера
type wsCommand struct {
	Type   string         `json:"type"` // project, nav, reload, attr, save
	Name   string         `json:"name,omitempty"`
	Action session.Action `json:"action,omitempty"`
	ID     string         `json:"id,omitempty"`
	Op     string         `json:"op,omitempty"`
	Index  int            `json:"index,omitempty"`
	Field  attredit.Field `json:"field,omitempty"`
	Value  string         `json:"value,omitempty"`
}

// wsMessage сообщение сервера
type wsMessage struct {
	Type  string      `json:"type"` // view, saved, error
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// HandleWebSocket обрабатывает двунаправленное подключение сессии:
// сервер присылает view при каждом изменении, браузер присылает команды
// GET /api/sessions/{id}/ws
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", "session", s.ID(), "error", err)
		return
	}
	defer conn.Close()

	// Изменения схлопываются: писатель всегда отправляет актуальный view
	changed := make(chan struct{}, 1)
	unsubscribe := s.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	replies := make(chan wsMessage, 4)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.wsWriter(ctx, conn, s, changed, replies)

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		s.Touch()
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket read failed", "session", s.ID(), "error", err)
			}
			return
		}
		s.Touch()

		reply, err := h.applyCommand(ctx, s, cmd)
		if err != nil {
			reply = &wsMessage{Type: "error", Error: err.Error()}
		}
		if reply != nil {
			select {
			case replies <- *reply:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Handlers) applyCommand(ctx context.Context, s *session.Session, cmd wsCommand) (*wsMessage, error) {
	switch cmd.Type {
	case "project":
		return nil, s.SelectProject(cmd.Name)
	case "nav":
		return nil, s.Navigate(cmd.Action, cmd.ID)
	case "reload":
		return nil, s.Reload()
	case "attr":
		switch cmd.Op {
		case "add":
			return nil, s.AddAttribute()
		case "update":
			return nil, s.UpdateAttribute(cmd.Index, cmd.Field, cmd.Value)
		case "remove":
			return nil, s.RemoveAttribute(cmd.Index)
		}
		return nil, apperr.Validation("unknown attribute operation %q", cmd.Op)
	case "save":
		message, err := s.SaveAttributes(ctx)
		if err != nil {
			return nil, err
		}
		return &wsMessage{Type: "saved", Data: message}, nil
	default:
		return nil, apperr.Validation("unknown command %q", cmd.Type)
	}
}

// wsWriter единственный писатель в соединение
func (h *Handlers) wsWriter(ctx context.Context, conn *websocket.Conn, s *session.Session, changed <-chan struct{}, replies <-chan wsMessage) {
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	write := func(msg wsMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("WebSocket write failed", "session", s.ID(), "error", err)
			return false
		}
		return true
	}

	if !write(wsMessage{Type: "view", Data: s.View()}) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case <-changed:
			if !write(wsMessage{Type: "view", Data: s.View()}) {
				return
			}
		case msg := <-replies:
			if !write(msg) {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
