package handoff

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/aaronmgdr/paper-hearts/pkg/api"
)

const (
	// BundleTTL время жизни буферизованного пакета истории
	BundleTTL = 5 * time.Minute

	// SweepInterval период очистки истекших пакетов
	SweepInterval = 2 * time.Minute
)

// Роли канала после аутентификации
const (
	roleWatcher   = "watcher"
	roleCollector = "collector"
)

// pendingBundle представляет пакет истории, отправленный до подключения
// последователя. Живет только в памяти процесса: рестарт инвалидирует
// любой незавершенный перенос
type pendingBundle struct {
	expiresAt time.Time
	payload   string
}

// channel представляет один аутентифицированный websocket канал
type channel struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	pairID  string
	role    string
}

// write шлет один JSON фрейм; запись сериализована на случай
// конкуренции обработчика join и собственной горутины канала
func (c *channel) write(ctx context.Context, frame api.HandoffFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsjson.Write(ctx, c.conn, frame)
}

// close закрывает канал с нормальным статусом
func (c *channel) close() {
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

// Service владеет процесс-локальными директориями каналов передачи истории
// Все три карты индексированы pair_id и не реплицируются
type Service struct {
	logger         *slog.Logger
	users          UserResolver
	waiters        map[string]*channel
	collectors     map[string]*channel
	pendingBundles map[string]pendingBundle
	sweepC         chan struct{}
	sweepOnce      sync.Once
	mu             sync.Mutex
}

// NewService создает сервис handoff и запускает sweeper
func NewService(logger *slog.Logger, users UserResolver) *Service {
	s := &Service{
		logger:         logger,
		users:          users,
		waiters:        make(map[string]*channel),
		collectors:     make(map[string]*channel),
		pendingBundles: make(map[string]pendingBundle),
		sweepC:         make(chan struct{}),
	}

	go s.sweep()

	return s
}

// sweep периодически удаляет истекшие буферизованные пакеты
func (s *Service) sweep() {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.dropExpiredBundles(time.Now())
		case <-s.sweepC:
			return
		}
	}
}

// dropExpiredBundles удаляет пакеты с истекшим TTL
func (s *Service) dropExpiredBundles(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pairID, b := range s.pendingBundles {
		if b.expiresAt.Before(now) {
			delete(s.pendingBundles, pairID)
			s.logger.Debug("pending bundle expired", "pair_id", pairID)
		}
	}
}

// Stop останавливает sweeper и закрывает все открытые каналы
func (s *Service) Stop() {
	s.sweepOnce.Do(func() { close(s.sweepC) })

	s.mu.Lock()
	defer s.mu.Unlock()

	for pairID, ch := range s.waiters {
		ch.close()
		delete(s.waiters, pairID)
	}
	for pairID, ch := range s.collectors {
		ch.close()
		delete(s.collectors, pairID)
	}
}

// NotifyPaired доставляет фрейм paired открытому watch каналу пары
// Канал не закрывается: инициатор еще может отправить пакет истории
func (s *Service) NotifyPaired(pairID, partnerPublicKey string) {
	s.mu.Lock()
	waiter := s.waiters[pairID]
	s.mu.Unlock()

	if waiter == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := waiter.write(ctx, api.HandoffFrame{
		Type:             api.FramePaired,
		PartnerPublicKey: partnerPublicKey,
	})
	if err != nil {
		s.logger.Warn("failed to push paired frame", "pair_id", pairID, "error", err)
	}
}

// registerWaiter записывает watch канал в директорию
// Существующий канал той же роли вытесняется и закрывается
func (s *Service) registerWaiter(ch *channel) {
	s.mu.Lock()
	prev := s.waiters[ch.pairID]
	s.waiters[ch.pairID] = ch
	s.mu.Unlock()

	if prev != nil {
		prev.close()
	}
}

// registerCollector записывает collect канал в директорию
func (s *Service) registerCollector(ch *channel) {
	s.mu.Lock()
	prev := s.collectors[ch.pairID]
	s.collectors[ch.pairID] = ch
	s.mu.Unlock()

	if prev != nil {
		prev.close()
	}
}

// unregister удаляет канал из директории его роли, но только если
// там лежит именно он: отключившийся collector не должен вытеснить
// watcher той же пары и наоборот
func (s *Service) unregister(ch *channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ch.role {
	case roleWatcher:
		if s.waiters[ch.pairID] == ch {
			delete(s.waiters, ch.pairID)
		}
	case roleCollector:
		if s.collectors[ch.pairID] == ch {
			delete(s.collectors, ch.pairID)
		}
	}
}

// takePendingBundle забирает непросроченный буферизованный пакет пары
func (s *Service) takePendingBundle(pairID string, now time.Time) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.pendingBundles[pairID]
	if !ok {
		return "", false
	}

	delete(s.pendingBundles, pairID)

	if b.expiresAt.Before(now) {
		return "", false
	}

	return b.payload, true
}

// deliverBundle передает пакет истории: живому collector напрямую,
// иначе в буфер с TTL
func (s *Service) deliverBundle(ctx context.Context, pairID, payload string) {
	s.mu.Lock()
	collector := s.collectors[pairID]
	if collector != nil {
		delete(s.collectors, pairID)
	} else {
		s.pendingBundles[pairID] = pendingBundle{
			payload:   payload,
			expiresAt: time.Now().Add(BundleTTL),
		}
	}
	s.mu.Unlock()

	if collector == nil {
		s.logger.Info("bundle buffered", "pair_id", pairID)
		return
	}

	err := collector.write(ctx, api.HandoffFrame{
		Type:    api.FrameBundle,
		Payload: payload,
	})
	if err != nil {
		s.logger.Warn("failed to deliver bundle", "pair_id", pairID, "error", err)
	}
	collector.close()

	s.logger.Info("bundle delivered", "pair_id", pairID)
}
