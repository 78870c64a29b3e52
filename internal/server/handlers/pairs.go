package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aaronmgdr/paper-hearts/internal/crypto"
	"github.com/aaronmgdr/paper-hearts/internal/models"
	"github.com/aaronmgdr/paper-hearts/internal/server/storage"
	"github.com/aaronmgdr/paper-hearts/internal/validation"
	"github.com/aaronmgdr/paper-hearts/pkg/api"
)

// TokenTTL время жизни relay токена с момента создания
const TokenTTL = 10 * time.Minute

// PairedNotifier получает событие "пара собрана" после успешного join
// Реализуется сервисом handoff: уведомляет открытый watch канал инициатора
type PairedNotifier interface {
	NotifyPaired(pairID, partnerPublicKey string)
}

// PairsHandler обрабатывает запросы жизненного цикла пары
type PairsHandler struct {
	logger  *slog.Logger
	pairs   storage.PairStorage
	users   storage.UserStorage
	watcher PairedNotifier
}

// NewPairsHandler создает новый handler для пар
func NewPairsHandler(logger *slog.Logger, pairs storage.PairStorage, users storage.UserStorage, watcher PairedNotifier) *PairsHandler {
	return &PairsHandler{
		logger:  logger,
		pairs:   pairs,
		users:   users,
		watcher: watcher,
	}
}

// Initiate обрабатывает POST /api/pairs/initiate (без аутентификации)
// Создает новую пару и одноразовый relay токен
// Повторный initiate того же ключа переносит его в новую пару
func (h *PairsHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidatePublicKey(req.PublicKey); err != nil {
		h.logger.Warn("invalid public key on initiate", "error", err)
		SendError(h.logger, w, "invalid public key", http.StatusBadRequest)
		return
	}

	token, err := crypto.NewRelayToken()
	if err != nil {
		h.logger.Error("failed to mint relay token", "error", err)
		SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	pair := &models.Pair{
		ID:        uuid.New().String(),
		CreatedAt: now,
	}
	relayToken := &models.RelayToken{
		Token:        token,
		InitiatorKey: req.PublicKey,
		PairID:       pair.ID,
		ExpiresAt:    now.Add(TokenTTL),
		CreatedAt:    now,
	}

	if err := h.pairs.CreatePairWithInitiator(ctx, pair, req.PublicKey, relayToken); err != nil {
		h.logger.Error("failed to create pair", "error", err)
		SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("pair initiated", "pair_id", pair.ID)

	SendJSON(h.logger, w, api.InitiateResponse{
		PairID:     pair.ID,
		RelayToken: token,
	}, http.StatusCreated)
}

// Join обрабатывает POST /api/pairs/join (без аутентификации)
// Гасит токен ровно один раз и регистрирует последователя в паре
// Предварительные проверки consumed/expired - быстрый отказ,
// авторитетна CAS транзакция
func (h *PairsHandler) Join(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidatePublicKey(req.PublicKey); err != nil {
		h.logger.Warn("invalid public key on join", "error", err)
		SendError(h.logger, w, "invalid public key", http.StatusBadRequest)
		return
	}

	token, err := h.pairs.GetToken(ctx, req.RelayToken)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			SendError(h.logger, w, "relay token not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load relay token", "error", err)
		SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	// Инициатор не может присоединиться к собственной паре
	if req.PublicKey == token.InitiatorKey {
		SendError(h.logger, w, "cannot join own pair", http.StatusBadRequest)
		return
	}

	if token.Consumed {
		SendError(h.logger, w, "relay token already consumed", http.StatusGone)
		return
	}

	// Граница включительно: expiresAt == now уже недействителен
	if !token.ExpiresAt.After(time.Now()) {
		SendError(h.logger, w, "relay token expired", http.StatusGone)
		return
	}

	if err := h.pairs.ConsumeTokenAndJoin(ctx, req.RelayToken, req.PublicKey); err != nil {
		if errors.Is(err, storage.ErrTokenConsumed) {
			// CAS проиграл гонку с другим join
			SendError(h.logger, w, "relay token already consumed", http.StatusGone)
			return
		}
		h.logger.Error("failed to join pair", "error", err)
		SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("pair joined", "pair_id", token.PairID)

	// Инициатор может ждать на watch канале
	if h.watcher != nil {
		h.watcher.NotifyPaired(token.PairID, req.PublicKey)
	}

	SendJSON(h.logger, w, api.JoinResponse{
		PairID:           token.PairID,
		PartnerPublicKey: token.InitiatorKey,
	}, http.StatusOK)
}

// Status обрабатывает GET /api/pairs/status (с подписью)
// Возвращает, есть ли у вызывающего партнер в паре
func (h *PairsHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	publicKey, ok := GetPublicKey(ctx)
	if !ok {
		SendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}
	pairID, _ := GetPairID(ctx)

	partner, err := h.users.GetPartner(ctx, pairID, publicKey)
	if err != nil {
		if errors.Is(err, storage.ErrPartnerNotFound) {
			SendJSON(h.logger, w, api.StatusResponse{Paired: false}, http.StatusOK)
			return
		}
		h.logger.Error("failed to resolve partner", "error", err)
		SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	SendJSON(h.logger, w, api.StatusResponse{
		Paired:           true,
		PartnerPublicKey: partner.PublicKey,
	}, http.StatusOK)
}

// DeleteAccount обрабатывает DELETE /api/account (с подписью)
// Удаляет записи вызывающего, затем его самого
// Потеря ключей устройства невосстановима по дизайну - никакого recovery
func (h *PairsHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	publicKey, ok := GetPublicKey(ctx)
	if !ok {
		SendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.users.DeleteUserCascade(ctx, publicKey); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			SendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.logger.Error("failed to delete account", "error", err)
		SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("account deleted", "key_prefix", publicKey[:min(8, len(publicKey))])

	w.WriteHeader(http.StatusNoContent)
}
