package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/tabsync/pkg/api"
)

// sendJSON сериализует payload и пишет его с указанным статусом.
func sendJSON(w http.ResponseWriter, logger *slog.Logger, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// sendError пишет ErrorResponse с указанным статусом.
func sendError(w http.ResponseWriter, logger *slog.Logger, message string, status int) {
	sendJSON(w, logger, api.ErrorResponse{Error: http.StatusText(status), Message: message}, status)
}
