package handlers

import (
	"encoding/json"
	"net/http"
)

// writeJSON marks every response uncacheable; payloads carry contact
// details.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
