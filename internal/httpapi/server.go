// Package httpapi - HTTP API для игровых серверов: приём игровых событий,
// чтение журнала наград и получение (claim) наград с передачей в выплату.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reward-ledger/internal/features/rewards"
	"serotonyl.ru/reward-ledger/internal/features/settlement"
	"serotonyl.ru/reward-ledger/internal/metrics"
)

// Options - настройки сервера.
type Options struct {
	// APIKey - общий секрет игровых серверов (заголовок X-Api-Key). Пусто = без проверки.
	APIKey         string
	RequestTimeout time.Duration
	// Settler - очередь выплат. nil = claim без выплаты.
	Settler rewards.Settler
	// Wallets - платёжный клиент для запросов баланса и проверки транзакций. Может быть nil.
	Wallets settlement.Client
	Metrics *metrics.Metrics
}

// Server - HTTP API сервиса наград.
type Server struct {
	rewards *rewards.Service
	opts    Options
	router  chi.Router
}

// NewServer собирает роутер.
func NewServer(rewardsService *rewards.Service, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	s := &Server{rewards: rewardsService, opts: opts}
	s.router = s.routes()
	return s
}

// Handler возвращает корневой http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(s.instrument)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(apiKeyAuth(s.opts.APIKey))
		r.Use(chimw.Timeout(s.opts.RequestTimeout))

		r.Post("/events", s.handleEvent)

		r.Route("/players/{playerID}", func(r chi.Router) {
			r.Get("/rewards", s.handleRewards)
			r.Get("/rewards/pending", s.handlePending)
			r.Get("/rewards.csv", s.handleRewardsCSV)
			r.Post("/claim", s.handleClaim)
			r.Get("/daily-stats", s.handleDailyStats)
			r.Get("/streak", s.handleStreak)
		})

		r.Get("/wallets/{address}/balance", s.handleBalance)
		r.Get("/transactions/{signature}", s.handleTransaction)
	})
	return r
}

// Run слушает addr до отмены ctx, затем корректно останавливает сервер.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("HTTP API запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("HTTP API остановлен")
	return nil
}
