package api

import (
	"net/http"
	"strconv"

	"github.com/pv/sensor-panel/internal/apperr"
	"github.com/pv/sensor-panel/internal/archive"
)

const maxHistoryLimit = 1000

// GetHistory возвращает архив значений одного датчика
// GET /api/archive/{device}/{sensor}?limit=N
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		h.writeAppError(w, r, apperr.NotFound("archive is disabled"))
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeAppError(w, r, apperr.Validation("invalid limit %q", v))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	rows, err := h.archive.History(r.Context(), r.PathValue("device"), r.PathValue("sensor"), limit)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if rows == nil {
		rows = []archive.Row{}
	}
	h.writeJSON(w, rows)
}
