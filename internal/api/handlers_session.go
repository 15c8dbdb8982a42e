package api

import (
	"net/http"

	"github.com/pv/sensor-panel/internal/apperr"
	"github.com/pv/sensor-panel/internal/attredit"
	"github.com/pv/sensor-panel/internal/session"
)

// CreateSession создаёт сессию браузера
// POST /api/sessions
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	id := s.ID()
	s.Subscribe(func() {
		h.sseHub.BroadcastView(id, s.View())
	})
	h.writeJSONStatus(w, http.StatusCreated, map[string]interface{}{
		"id":   id,
		"view": s.View(),
	})
}

// DeleteSession закрывает сессию
// DELETE /api/sessions/{id}
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.sessions.Remove(id)
	h.sseHub.DisconnectSession(id)
	w.WriteHeader(http.StatusNoContent)
}

// GetView возвращает текущее представление страницы
// GET /api/sessions/{id}/view
func (h *Handlers) GetView(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, s.View())
}

type selectProjectRequest struct {
	Name string `json:"name"`
}

// SelectProject переключает активный проект
// POST /api/sessions/{id}/project
func (h *Handlers) SelectProject(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req selectProjectRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}
	if err := s.SelectProject(req.Name); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, s.View())
}

type navigateRequest struct {
	Action session.Action `json:"action"`
	ID     string         `json:"id,omitempty"`
}

// Navigate выполняет переход навигации
// POST /api/sessions/{id}/nav
func (h *Handlers) Navigate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req navigateRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}
	if err := s.Navigate(req.Action, req.ID); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, s.View())
}

// Reload перезапрашивает список устройств
// POST /api/sessions/{id}/reload
func (h *Handlers) Reload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	if err := s.Reload(); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, s.View())
}

type attributeRequest struct {
	Op    string         `json:"op"` // add, update, remove
	Index int            `json:"index"`
	Field attredit.Field `json:"field,omitempty"`
	Value string         `json:"value,omitempty"`
}

// EditAttributes изменяет рабочую копию атрибутов
// POST /api/sessions/{id}/attributes
func (h *Handlers) EditAttributes(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req attributeRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}

	var err error
	switch req.Op {
	case "add":
		err = s.AddAttribute()
	case "update":
		err = s.UpdateAttribute(req.Index, req.Field, req.Value)
	case "remove":
		err = s.RemoveAttribute(req.Index)
	default:
		err = apperr.Validation("unknown attribute operation %q", req.Op)
	}
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, s.View())
}

// SaveAttributes сохраняет атрибуты на бэкенде
// POST /api/sessions/{id}/attributes/save
func (h *Handlers) SaveAttributes(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	message, err := s.SaveAttributes(r.Context())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, map[string]string{"message": message})
}

// GetActive возвращает состояние активности выбранного устройства
// GET /api/sessions/{id}/active
func (h *Handlers) GetActive(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	report, err := s.Active(r.Context())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, report)
}
