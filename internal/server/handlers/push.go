package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aaronmgdr/paper-hearts/internal/server/storage"
	"github.com/aaronmgdr/paper-hearts/pkg/api"
)

// PushHandler обрабатывает управление Web Push подпиской
type PushHandler struct {
	logger *slog.Logger
	users  storage.UserStorage
}

// NewPushHandler создает новый handler для push подписок
func NewPushHandler(logger *slog.Logger, users storage.UserStorage) *PushHandler {
	return &PushHandler{
		logger: logger,
		users:  users,
	}
}

// Subscribe обрабатывает POST /api/push/subscribe (с подписью)
// Сохраняет тройку {endpoint, p256dh, auth} в строке пользователя
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	publicKey, ok := GetPublicKey(ctx)
	if !ok {
		SendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		SendError(h.logger, w, "endpoint, p256dh and auth are required", http.StatusBadRequest)
		return
	}

	if err := h.users.UpdatePushSubscription(ctx, publicKey, req.Endpoint, req.P256dh, req.Auth); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			SendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.logger.Error("failed to update push subscription", "error", err)
		SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("push subscription updated")

	SendJSON(h.logger, w, api.SubscribeResponse{Status: "subscribed"}, http.StatusOK)
}
