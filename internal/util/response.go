// response.go — HTTP response utilities
package util

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// JSONResponse writes a JSON response with the given status code and data.
// Encode failures are logged; the status line has already been sent.
func JSONResponse(w http.ResponseWriter, status int, data any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil && logger != nil {
		logger.Warn("error encoding JSON response", zap.Error(err))
	}
}
