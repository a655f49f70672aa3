package api

import (
	"net/http"

	"github.com/compose-network/ima-proxy/server/api/middleware"
)

// WriteError writes the standard error envelope tagged with the request id.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	middleware.WriteError(w, r, status, code, message, details)
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	middleware.WriteJSON(w, status, data)
}
