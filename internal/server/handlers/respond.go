package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aaronmgdr/paper-hearts/pkg/api"
)

// SendJSON пишет успешный JSON ответ
func SendJSON(logger *slog.Logger, w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// SendError пишет единый конверт ошибок {"error": "..."}
// Все не-2xx ответы API проходят через эту функцию
func SendError(logger *slog.Logger, w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(api.ErrorResponse{Error: message}); err != nil {
		logger.Error("failed to encode error response", slog.Any("error", err))
	}
}
