package api

import (
	"encoding/json"
	"net/http"

	"github.com/pv/sensor-panel/internal/session"
)

// requireName extracts {name} from path and writes error if missing.
// Returns empty string and false if name is missing (error already written).
func (h *Handlers) requireName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.PathValue("name")
	if name == "" {
		h.writeError(w, http.StatusBadRequest, "name required")
		return "", false
	}
	return name, true
}

// requireSession returns the session from {id} path parameter.
// Returns nil and false if session is unknown (error already written).
func (h *Handlers) requireSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, r, err)
		return nil, false
	}
	return s, true
}

// decodeJSONBody decodes request body into target struct.
// Returns false if decode failed (error already written).
func (h *Handlers) decodeJSONBody(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
