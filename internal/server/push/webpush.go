package push

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/aaronmgdr/paper-hearts/internal/models"
	"github.com/aaronmgdr/paper-hearts/internal/server/storage"
)

// notifyPayload фиксированное тело уведомления
// Содержимое записи никогда не попадает в push
const notifyPayload = `{"type":"partner-entry"}`

// Subscriptions доступ к push-подпискам пользователей
type Subscriptions interface {
	GetUser(ctx context.Context, publicKey string) (*models.User, error)
	ClearPushSubscription(ctx context.Context, publicKey string) error
}

// Config содержит VAPID параметры отправителя
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	HTTPClient      webpush.HTTPClient
}

// WebPush доставляет уведомления через Web Push транспорт
// Ошибки доставки никогда не всплывают к вызывающему: запись уже
// надежно сохранена, уведомление - best effort
type WebPush struct {
	logger *slog.Logger
	subs   Subscriptions
	cfg    Config
}

// NewWebPush создает push-эмиттер
func NewWebPush(logger *slog.Logger, subs Subscriptions, cfg Config) *WebPush {
	return &WebPush{
		logger: logger,
		subs:   subs,
		cfg:    cfg,
	}
}

// Notify отправляет фиксированный payload партнеру
// Отсутствие подписки - no-op; 404/410 от транспорта означает мертвую
// подписку и очищает поля в строке пользователя; остальные ошибки
// логируются и отбрасываются
func (p *WebPush) Notify(ctx context.Context, recipientKey, pairID string) {
	user, err := p.subs.GetUser(ctx, recipientKey)
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			p.logger.Error("failed to load push recipient", "error", err)
		}
		return
	}

	if !user.HasPushSubscription() {
		return
	}

	sub := &webpush.Subscription{
		Endpoint: *user.PushEndpoint,
		Keys: webpush.Keys{
			P256dh: *user.PushP256dh,
			Auth:   *user.PushAuth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, []byte(notifyPayload), sub, &webpush.Options{
		Subscriber:      p.cfg.Subscriber,
		VAPIDPublicKey:  p.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: p.cfg.VAPIDPrivateKey,
		TTL:             60,
		HTTPClient:      p.cfg.HTTPClient,
	})
	if err != nil {
		p.logger.Warn("push delivery failed", "pair_id", pairID, "error", err)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		// Подписка мертва - чистим, notify становится no-op до re-subscribe
		if err := p.subs.ClearPushSubscription(ctx, recipientKey); err != nil {
			p.logger.Error("failed to clear dead subscription", "error", err)
			return
		}
		p.logger.Info("stale push subscription pruned", "pair_id", pairID)
	default:
		if resp.StatusCode >= 400 {
			p.logger.Warn("push transport rejected notification",
				"pair_id", pairID, "status", resp.StatusCode)
		}
	}
}

// Nop push-эмиттер для конфигурации без VAPID ключей
type Nop struct{}

// Notify ничего не делает
func (Nop) Notify(ctx context.Context, recipientKey, pairID string) {}
