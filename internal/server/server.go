package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aaronmgdr/paper-hearts/internal/server/config"
	"github.com/aaronmgdr/paper-hearts/internal/server/handlers"
	"github.com/aaronmgdr/paper-hearts/internal/server/handoff"
	"github.com/aaronmgdr/paper-hearts/internal/server/middleware"
	"github.com/aaronmgdr/paper-hearts/internal/server/push"
	"github.com/aaronmgdr/paper-hearts/internal/server/storage/sqlite"
)

// Константы фоновой уборки
const (
	// janitorInterval период фоновой уборки БД
	janitorInterval = time.Hour
	// staleEntryAge возраст неподтвержденной записи, после которого
	// она считается осиротевшей и удаляется
	staleEntryAge = 30 * 24 * time.Hour
)

// Server собирает все компоненты relay в один HTTP сервер
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *sqlite.Storage
	handoff   *handoff.Service
	throttler *middleware.Throttler
	httpSrv   *http.Server
	janitorC  chan struct{}
}

// New создает сервер: хранилище с миграциями, сервисы, маршруты
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	handoffSvc := handoff.NewService(logger, store)

	var notifier handlers.Notifier
	if cfg.PushEnabled() {
		notifier = push.NewWebPush(logger, store, push.Config{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subscriber:      cfg.VAPIDSubscriber,
		})
	} else {
		logger.Warn("VAPID keys not configured, push notifications disabled")
		notifier = push.Nop{}
	}

	throttler := middleware.NewThrottler(middleware.ThrottleLimit, middleware.ThrottleWindow, logger)

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		handoff:   handoffSvc,
		throttler: throttler,
		janitorC:  make(chan struct{}),
	}

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(notifier),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes собирает маршрутизацию и цепочку middleware
func (s *Server) routes(notifier handlers.Notifier) http.Handler {
	pairsHandler := handlers.NewPairsHandler(s.logger, s.store, s.store, s.handoff)
	entriesHandler := handlers.NewEntriesHandler(s.logger, s.store, s.store, notifier)
	pushHandler := handlers.NewPushHandler(s.logger, s.store)
	healthHandler := handlers.NewHealthHandler(s.logger, s.store)

	signed := middleware.SignatureAuth(s.logger, s.store)

	mux := http.NewServeMux()

	// Pairing endpoints без аутентификации: ключ еще не зарегистрирован
	mux.HandleFunc("POST /api/pairs/initiate", pairsHandler.Initiate)
	mux.HandleFunc("POST /api/pairs/join", pairsHandler.Join)

	// Подписанные endpoints
	mux.Handle("GET /api/pairs/status", signed(http.HandlerFunc(pairsHandler.Status)))
	mux.Handle("POST /api/entries", signed(http.HandlerFunc(entriesHandler.Upload)))
	mux.Handle("GET /api/entries", signed(http.HandlerFunc(entriesHandler.Fetch)))
	mux.Handle("POST /api/entries/ack", signed(http.HandlerFunc(entriesHandler.Ack)))
	mux.Handle("POST /api/push/subscribe", signed(http.HandlerFunc(pushHandler.Subscribe)))
	mux.Handle("DELETE /api/account", signed(http.HandlerFunc(pairsHandler.DeleteAccount)))

	// Канал передачи истории: аутентификация внутри протокола канала
	mux.Handle("GET /api/pairs/watch", s.handoff)

	mux.HandleFunc("GET /api/health", healthHandler.Health)

	// recovery -> logging -> throttle -> mux
	var handler http.Handler = mux
	handler = middleware.ThrottleMiddleware(s.throttler)(handler)
	handler = middleware.LoggingMiddleware(s.logger)(handler)
	handler = middleware.RecoveryMiddleware(s.logger)(handler)

	return handler
}

// janitor периодически чистит истекшие токены и осиротевшие записи
func (s *Server) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			now := time.Now().UTC()

			if n, err := s.store.DeleteExpiredTokens(ctx, now); err != nil {
				s.logger.Error("failed to clean expired tokens", "error", err)
			} else if n > 0 {
				s.logger.Info("expired tokens cleaned", "count", n)
			}

			if n, err := s.store.DeleteStaleEntries(ctx, now.Add(-staleEntryAge)); err != nil {
				s.logger.Error("failed to clean stale entries", "error", err)
			} else if n > 0 {
				s.logger.Info("stale entries cleaned", "count", n)
			}

			cancel()
		case <-s.janitorC:
			return
		}
	}
}

// Run запускает сервер и блокируется до отмены контекста
func (s *Server) Run(ctx context.Context) error {
	go s.janitor()

	errC := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.cfg.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()

	select {
	case err := <-errC:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	close(s.janitorC)
	s.throttler.Stop()
	s.handoff.Stop()

	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	if err := s.store.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}

	return nil
}
