package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/aaronmgdr/paper-hearts/internal/models"
	"github.com/aaronmgdr/paper-hearts/internal/server/storage"
	"github.com/aaronmgdr/paper-hearts/internal/validation"
	"github.com/aaronmgdr/paper-hearts/pkg/api"
)

const (
	// MaxEntriesPerDay потолок загрузок на автора в день
	// Дружелюбный лимит, не граница безопасности: гонка двух загрузок
	// может пропустить третью запись, это принятый допуск
	MaxEntriesPerDay = 2

	// DefaultSince значение since по умолчанию для fetch
	DefaultSince = "1970-01-01"

	// notifyTimeout ограничивает фоновую отправку push
	notifyTimeout = 30 * time.Second
)

// Notifier доставляет push-уведомление партнеру
// Вызывается асинхронно: латентность загрузки не связана с латентностью push
type Notifier interface {
	Notify(ctx context.Context, recipientKey, pairID string)
}

// EntriesHandler обрабатывает загрузку, выборку и подтверждение записей
type EntriesHandler struct {
	logger   *slog.Logger
	entries  storage.EntryStorage
	users    storage.UserStorage
	notifier Notifier
}

// NewEntriesHandler создает новый handler для записей
func NewEntriesHandler(logger *slog.Logger, entries storage.EntryStorage, users storage.UserStorage, notifier Notifier) *EntriesHandler {
	return &EntriesHandler{
		logger:   logger,
		entries:  entries,
		users:    users,
		notifier: notifier,
	}
}

// Upload обрабатывает POST /api/entries (с подписью)
// Принимает base64 шифротекста, хранит как непрозрачные байты
func (h *EntriesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	publicKey, ok := GetPublicKey(ctx)
	if !ok {
		SendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}
	pairID, _ := GetPairID(ctx)

	var req api.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidateDayID(req.DayID); err != nil {
		SendError(h.logger, w, "dayId must match YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		SendError(h.logger, w, "payload must be valid base64", http.StatusBadRequest)
		return
	}

	// Потолок два blob в день на автора
	count, err := h.entries.CountEntriesForDay(ctx, publicKey, req.DayID)
	if err != nil {
		h.logger.Error("failed to count entries", "error", err)
		SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}
	if count >= MaxEntriesPerDay {
		SendError(h.logger, w, "daily entry limit reached", http.StatusTooManyRequests)
		return
	}

	entry := &models.Entry{
		ID:        uuid.New().String(),
		AuthorKey: publicKey,
		PairID:    pairID,
		DayID:     req.DayID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.entries.CreateEntry(ctx, entry); err != nil {
		h.logger.Error("failed to insert entry", "error", err)
		SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("entry stored", "entry_id", entry.ID, "day_id", entry.DayID)

	// Уведомление партнера не блокирует ответ; ошибки только логируются,
	// запись уже надежно сохранена
	h.notifyPartnerAsync(publicKey, pairID)

	SendJSON(h.logger, w, api.UploadResponse{
		ID:     entry.ID,
		Status: "stored",
	}, http.StatusCreated)
}

// notifyPartnerAsync запускает отправку push в отдельной горутине
func (h *EntriesHandler) notifyPartnerAsync(authorKey, pairID string) {
	if h.notifier == nil {
		return
	}

	go func() {
		// Горутина живет вне HTTP middleware: паника здесь без recover
		// уронила бы весь процесс, а не один запрос
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("panic in notify goroutine",
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		partner, err := h.users.GetPartner(ctx, pairID, authorKey)
		if err != nil {
			if !errors.Is(err, storage.ErrPartnerNotFound) {
				h.logger.Error("failed to resolve partner for notify", "error", err)
			}
			return
		}

		h.notifier.Notify(ctx, partner.PublicKey, pairID)
	}()
}

// Fetch обрабатывает GET /api/entries?since=YYYY-MM-DD (с подписью)
// Возвращает неподтвержденные записи партнера, day_id >= since
func (h *EntriesHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	publicKey, ok := GetPublicKey(ctx)
	if !ok {
		SendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}
	pairID, _ := GetPairID(ctx)

	since := r.URL.Query().Get("since")
	if since == "" {
		since = DefaultSince
	}
	if err := validation.ValidateDayID(since); err != nil {
		SendError(h.logger, w, "since must match YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	partner, err := h.users.GetPartner(ctx, pairID, publicKey)
	if err != nil {
		if errors.Is(err, storage.ErrPartnerNotFound) {
			// Партнера еще нет - пустой список, не ошибка
			SendJSON(h.logger, w, api.FetchResponse{Entries: []api.FetchedEntry{}}, http.StatusOK)
			return
		}
		h.logger.Error("failed to resolve partner", "error", err)
		SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	entries, err := h.entries.ListUndelivered(ctx, pairID, partner.PublicKey, since, time.Now().UTC())
	if err != nil {
		h.logger.Error("failed to list undelivered entries", "error", err)
		SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.FetchResponse{Entries: make([]api.FetchedEntry, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, api.FetchedEntry{
			ID:      entry.ID,
			DayID:   entry.DayID,
			Payload: base64.StdEncoding.EncodeToString(entry.Payload),
		})
	}

	SendJSON(h.logger, w, resp, http.StatusOK)
}

// Ack обрабатывает POST /api/entries/ack (с подписью)
// Удаляет подтвержденные записи партнера; записи самого вызывающего
// и чужих пар предикат молча пропускает (deleted = 0)
func (h *EntriesHandler) Ack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	publicKey, ok := GetPublicKey(ctx)
	if !ok {
		SendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}
	pairID, _ := GetPairID(ctx)

	var req api.AckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.EntryIDs) == 0 {
		SendError(h.logger, w, "entryIds must be a non-empty array", http.StatusBadRequest)
		return
	}

	partner, err := h.users.GetPartner(ctx, pairID, publicKey)
	if err != nil {
		if errors.Is(err, storage.ErrPartnerNotFound) {
			SendError(h.logger, w, "no partner in pair", http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to resolve partner", "error", err)
		SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	deleted, err := h.entries.DeleteAcked(ctx, req.EntryIDs, pairID, partner.PublicKey)
	if err != nil {
		h.logger.Error("failed to delete acked entries", "error", err)
		SendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("entries acked", "deleted", deleted)

	SendJSON(h.logger, w, api.AckResponse{Deleted: deleted}, http.StatusOK)
}
