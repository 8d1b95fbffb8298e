package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/mohitnawani/taskdeck/internal/domain"
)

// writeJSON writes a JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeSuccess wraps data in the success envelope.
func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

// writeMessage sends a success envelope carrying only a message.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": true, "message": msg})
}

// writeError sends an error envelope with a single message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

// writeFieldErrors sends an error envelope with a field-level error list.
func writeFieldErrors(w http.ResponseWriter, fields []domain.FieldError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "errors": fields})
}
