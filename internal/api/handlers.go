package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pv/sensor-panel/internal/apperr"
	"github.com/pv/sensor-panel/internal/archive"
	"github.com/pv/sensor-panel/internal/directory"
	"github.com/pv/sensor-panel/internal/endpoint"
	"github.com/pv/sensor-panel/internal/logger"
	"github.com/pv/sensor-panel/internal/session"
)

// Archive архив значений датчиков
type Archive interface {
	Stats() (written, dropped int)
	History(ctx context.Context, deviceID, sensorID string, limit int) ([]archive.Row, error)
}

type Handlers struct {
	dir       *directory.Directory
	sessions  *session.Manager
	sseHub    *SSEHub
	archive   Archive // nil если архив отключён
	startedAt time.Time
}

func NewHandlers(dir *directory.Directory, sessions *session.Manager, arch Archive) *Handlers {
	return &Handlers{
		dir:       dir,
		sessions:  sessions,
		sseHub:    NewSSEHub(),
		archive:   arch,
		startedAt: time.Now(),
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeAppError выбирает HTTP статус по виду ошибки
func (h *Handlers) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	logRequestError(r, err)
	h.writeError(w, apperr.HTTPStatusFor(err), err.Error())
}

// GetStatus возвращает состояние панели
// GET /api/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"sessions":   h.sessions.Count(),
		"sseClients": h.sseHub.ClientCount(),
		"uptime":     time.Since(h.startedAt).Round(time.Second).String(),
		"kinds":      endpoint.Kinds,
	}
	if h.archive != nil {
		written, dropped := h.archive.Stats()
		status["archive"] = map[string]int{"written": written, "dropped": dropped}
	}
	h.writeJSON(w, status)
}

type createEndpointRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// GetEndpoints возвращает список endpoints
// GET /api/endpoints
func (h *Handlers) GetEndpoints(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]interface{}{
		"endpoints": h.dir.Endpoints(),
		"kinds":     endpoint.Kinds,
	})
}

// CreateEndpoint добавляет endpoint; существующее или пустое имя отклоняется
// POST /api/endpoints
func (h *Handlers) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
	var req createEndpointRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}
	if req.Kind == "" {
		req.Kind = endpoint.KindGeneral
	}

	if err := h.dir.AddEndpoint(req.Name, req.Kind, req.URL); err != nil {
		h.writeAppError(w, r, err)
		return
	}

	h.sseHub.BroadcastDirectory(h.dir)
	h.writeJSONStatus(w, http.StatusCreated, map[string]string{"name": req.Name})
}

// DeleteEndpoint удаляет endpoint (no-op если его нет)
// DELETE /api/endpoints/{name}
func (h *Handlers) DeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	name, ok := h.requireName(w, r)
	if !ok {
		return
	}
	if err := h.dir.RemoveEndpoint(name); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.sseHub.BroadcastDirectory(h.dir)
	w.WriteHeader(http.StatusNoContent)
}

type createProjectRequest struct {
	Name        string `json:"name"`
	ProjectKey  string `json:"projectKey"`
	EndpointKey string `json:"endpointKey"`
}

// GetProjects возвращает список проектов
// GET /api/projects
func (h *Handlers) GetProjects(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]interface{}{
		"projects": h.dir.Projects(),
	})
}

// CreateProject добавляет проект; существующее или пустое имя отклоняется
// POST /api/projects
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.dir.AddProject(req.Name, req.ProjectKey, req.EndpointKey); err != nil {
		h.writeAppError(w, r, err)
		return
	}

	h.sseHub.BroadcastDirectory(h.dir)
	h.writeJSONStatus(w, http.StatusCreated, map[string]string{"name": req.Name})
}

// DeleteProject удаляет проект (no-op если его нет)
// DELETE /api/projects/{name}
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	name, ok := h.requireName(w, r)
	if !ok {
		return
	}
	if err := h.dir.RemoveProject(name); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.sseHub.BroadcastDirectory(h.dir)
	w.WriteHeader(http.StatusNoContent)
}

// logRequestError пишет в лог ошибки, которые не являются ошибками ввода
func logRequestError(r *http.Request, err error) {
	if apperr.Is(err, apperr.ValidationError) {
		return
	}
	logger.Warn("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
}
