package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aaronmgdr/paper-hearts/internal/crypto"
	"github.com/aaronmgdr/paper-hearts/internal/server/handlers"
	"github.com/aaronmgdr/paper-hearts/internal/server/storage"
)

// maxSignedBodySize ограничивает размер тела, участвующего в подписи
const maxSignedBodySize = 1 << 20 // 1 MB

// unauthorized единый ответ на любую ошибку подписи
// Какая именно часть проверки провалилась - не раскрывается
func unauthorized(logger *slog.Logger, w http.ResponseWriter) {
	handlers.SendError(logger, w, "unauthorized", http.StatusUnauthorized)
}

// SignatureAuth создает middleware для проверки подписи запроса
// Заголовки: Authorization: Signature <base64>, X-Public-Key, X-Timestamp
// Подписываемые байты: method + "\n" + path + "\n" + timestamp + "\n" + sha256(body)
// После криптографической проверки ключ должен быть зарегистрирован в users -
// валидная подпись незарегистрированным ключом не дает доступа ни к чему
func SignatureAuth(logger *slog.Logger, users storage.UserStorage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			publicKey := r.Header.Get("X-Public-Key")
			timestamp := r.Header.Get("X-Timestamp")

			if authHeader == "" || publicKey == "" || timestamp == "" {
				logger.Warn("missing signature headers", "path", r.URL.Path)
				unauthorized(logger, w)
				return
			}

			// Ожидаем формат: "Signature <base64>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Signature") {
				logger.Warn("invalid authorization header format")
				unauthorized(logger, w)
				return
			}
			signature := parts[1]

			// Окно свежести: |now - t| <= 5 минут
			if err := crypto.CheckFreshness(timestamp, time.Now()); err != nil {
				logger.Warn("stale request timestamp", "error", err)
				unauthorized(logger, w)
				return
			}

			// Тело читаем целиком: оно входит в подписываемые байты
			// и должно остаться доступным обработчику
			var body []byte
			if r.Body != nil {
				var err error
				body, err = io.ReadAll(io.LimitReader(r.Body, maxSignedBodySize+1))
				if err != nil {
					logger.Warn("failed to read request body", "error", err)
					unauthorized(logger, w)
					return
				}
				r.Body.Close()
				if len(body) > maxSignedBodySize {
					handlers.SendError(logger, w, "request body too large", http.StatusRequestEntityTooLarge)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			// Канонический путь включает query string
			payload := crypto.CanonicalPayload(r.Method, r.URL.RequestURI(), timestamp, body)

			if err := crypto.VerifySignature(publicKey, signature, payload); err != nil {
				logger.Warn("signature verification failed", "error", err)
				unauthorized(logger, w)
				return
			}

			// Ключ должен принадлежать зарегистрированному пользователю
			user, err := users.GetUser(r.Context(), publicKey)
			if err != nil {
				if errors.Is(err, storage.ErrUserNotFound) {
					logger.Warn("unknown public key", "key_prefix", keyPrefix(publicKey))
					unauthorized(logger, w)
					return
				}
				logger.Error("failed to resolve user", "error", err)
				handlers.SendError(logger, w, "internal server error", http.StatusInternalServerError)
				return
			}

			ctx := handlers.WithIdentity(r.Context(), user.PublicKey, user.PairID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// keyPrefix возвращает короткий префикс ключа для логов
func keyPrefix(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
