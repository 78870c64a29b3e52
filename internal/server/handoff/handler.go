package handoff

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/aaronmgdr/paper-hearts/internal/crypto"
	"github.com/aaronmgdr/paper-hearts/internal/models"
	"github.com/aaronmgdr/paper-hearts/internal/server/storage"
	"github.com/aaronmgdr/paper-hearts/pkg/api"
)

const (
	// authTimeout сколько ждем первый (аутентификационный) фрейм
	authTimeout = 30 * time.Second

	// maxFrameSize ограничивает размер одного фрейма
	// Пакет истории целиком помещается в один фрейм bundle
	maxFrameSize = 16 << 20 // 16 MB
)

// UserResolver разрешает публичный ключ в строку пользователя
type UserResolver interface {
	GetUser(ctx context.Context, publicKey string) (*models.User, error)
}

// ServeHTTP обрабатывает upgrade GET /api/pairs/watch
// Новый канал не имеет ни роли, ни пары; клиент обязан прислать ровно
// один аутентификационный фрейм, тип которого выбирает роль
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	conn.SetReadLimit(maxFrameSize)

	ch := &channel{conn: conn}

	authCtx, cancel := context.WithTimeout(r.Context(), authTimeout)
	var first api.HandoffFrame
	err = wsjson.Read(authCtx, conn, &first)
	cancel()
	if err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, "auth frame expected")
		return
	}

	switch first.Type {
	case api.FrameAuth:
		s.serveWatcher(r.Context(), ch, first)
	case api.FrameCollectAuth:
		s.serveCollector(r.Context(), ch, first)
	default:
		s.failChannel(ch, "first frame must be auth or collect_auth")
	}
}

// failChannel шлет терминальный фрейм ошибки и закрывает канал
func (s *Service) failChannel(ch *channel, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = ch.write(ctx, api.HandoffFrame{Type: api.FrameError, Message: message})
	_ = ch.conn.Close(websocket.StatusPolicyViolation, message)
}

// authenticate проверяет аутентификационный фрейм канала
// Подпись считается над prefix + "\n" + publicKey + "\n" + timestamp;
// префиксы WATCH и COLLECT различны, подпись одной роли не годится
// для другой. Возвращает pair_id пользователя
func (s *Service) authenticate(ctx context.Context, frame api.HandoffFrame, prefix string) (string, error) {
	if frame.PublicKey == "" || frame.Timestamp == "" || frame.Signature == "" {
		return "", errors.New("publicKey, timestamp and signature are required")
	}

	if err := crypto.CheckFreshness(frame.Timestamp, time.Now()); err != nil {
		return "", errors.New("stale timestamp")
	}

	payload := crypto.ChannelPayload(prefix, frame.PublicKey, frame.Timestamp)
	if err := crypto.VerifySignature(frame.PublicKey, frame.Signature, payload); err != nil {
		return "", errors.New("invalid signature")
	}

	user, err := s.users.GetUser(ctx, frame.PublicKey)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return "", errors.New("unknown user")
		}
		return "", errors.New("internal error")
	}

	return user.PairID, nil
}

// serveWatcher обслуживает канал инициатора
// После ready инициатор получает paired при успешном join и может
// отправить один пакет истории
func (s *Service) serveWatcher(ctx context.Context, ch *channel, frame api.HandoffFrame) {
	pairID, err := s.authenticate(ctx, frame, crypto.WatchPrefix)
	if err != nil {
		s.failChannel(ch, err.Error())
		return
	}

	ch.pairID = pairID
	ch.role = roleWatcher
	s.registerWaiter(ch)
	defer s.unregister(ch)

	if err := ch.write(ctx, api.HandoffFrame{Type: api.FrameReady}); err != nil {
		return
	}

	s.logger.Info("watcher attached", "pair_id", pairID)

	// Сообщения одного клиента обрабатываются последовательно
	for {
		var msg api.HandoffFrame
		if err := wsjson.Read(ctx, ch.conn, &msg); err != nil {
			// Отключение до терминальной доставки: только чистим директорию
			return
		}

		if msg.Type != api.FrameBundle {
			s.failChannel(ch, "unexpected frame type")
			return
		}

		// Пакет доставлен или буферизован - канал инициатора закрывается
		s.unregister(ch)
		s.deliverBundle(ctx, pairID, msg.Payload)
		ch.close()
		return
	}
}

// serveCollector обслуживает канал последователя
// Буферизованный пакет доставляется немедленно, иначе канал ждет
// живой передачи от watcher
func (s *Service) serveCollector(ctx context.Context, ch *channel, frame api.HandoffFrame) {
	pairID, err := s.authenticate(ctx, frame, crypto.CollectPrefix)
	if err != nil {
		s.failChannel(ch, err.Error())
		return
	}

	ch.pairID = pairID
	ch.role = roleCollector

	if payload, ok := s.takePendingBundle(pairID, time.Now()); ok {
		err := ch.write(ctx, api.HandoffFrame{Type: api.FrameBundle, Payload: payload})
		if err != nil {
			s.logger.Warn("failed to deliver buffered bundle", "pair_id", pairID, "error", err)
		}
		ch.close()
		s.logger.Info("buffered bundle delivered", "pair_id", pairID)
		return
	}

	s.registerCollector(ch)
	defer s.unregister(ch)

	if err := ch.write(ctx, api.HandoffFrame{Type: api.FrameReady}); err != nil {
		return
	}

	s.logger.Info("collector attached", "pair_id", pairID)

	// Collector ничего не шлет после аутентификации; читаем до закрытия
	// канала доставкой от watcher или отключением клиента
	for {
		var msg api.HandoffFrame
		if err := wsjson.Read(ctx, ch.conn, &msg); err != nil {
			return
		}
		// Любой фрейм от collector - нарушение протокола
		s.failChannel(ch, "unexpected frame type")
		return
	}
}
