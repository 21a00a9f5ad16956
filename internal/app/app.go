// Package app инициализирует все компоненты приложения.
// app.go - точка сборки: хранилище, движок наград, выплаты, HTTP API,
// необязательный Telegram-бот и планировщик.
package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/reward-ledger/internal/bot"
	"serotonyl.ru/reward-ledger/internal/bot/filters"
	"serotonyl.ru/reward-ledger/internal/config"
	"serotonyl.ru/reward-ledger/internal/db/postgres"
	"serotonyl.ru/reward-ledger/internal/features/admin"
	"serotonyl.ru/reward-ledger/internal/features/ledger"
	"serotonyl.ru/reward-ledger/internal/features/members"
	"serotonyl.ru/reward-ledger/internal/features/rewards"
	"serotonyl.ru/reward-ledger/internal/features/settlement"
	"serotonyl.ru/reward-ledger/internal/features/streak"
	"serotonyl.ru/reward-ledger/internal/httpapi"
	"serotonyl.ru/reward-ledger/internal/jobs"
	"serotonyl.ru/reward-ledger/internal/metrics"
)

// App содержит все компоненты приложения.
type App struct {
	cfg *config.Config

	DB         *pgxpool.Pool // nil при STORE_DRIVER=memory
	Store      ledger.Store
	Rewards    *rewards.Service
	Dispatcher *settlement.Dispatcher // nil, если выплаты выключены
	HTTP       *httpapi.Server
	Bot        *bot.Bot // nil без TELEGRAM_BOT_TOKEN
	Scheduler  *jobs.Scheduler
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен: компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}
	m := metrics.New()

	// === 1. Хранилище журнала ===
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		a.DB = pool
		a.Store = ledger.NewRepository(pool)
	default:
		log.Warn("STORE_DRIVER=memory: журнал наград не переживёт перезапуск")
		a.Store = ledger.NewMemoryStore()
	}

	// === 2. Движок наград ===
	a.Rewards = rewards.NewService(a.Store, cfg.Rewards, rewards.WithMetrics(m))

	// === 3. Выплаты ===
	var (
		settler rewards.Settler
		client  settlement.Client
	)
	if cfg.FeatureSettlementEnabled {
		dry, err := settlement.NewDryRunClient(cfg.SettlementMint, cfg.SettlementVault)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("ошибка настройки выплат: %w", err)
		}
		a.Dispatcher = settlement.NewDispatcher(dry, cfg.SettlementWorkers, cfg.SettlementQueueSize,
			settlement.WithMetrics(m))
		settler = a.Dispatcher
		client = dry
	} else {
		log.Info("Выплаты выключены (FEATURE_SETTLEMENT_ENABLED=false)")
	}

	// === 4. HTTP API ===
	a.HTTP = httpapi.NewServer(a.Rewards, httpapi.Options{
		APIKey:         cfg.HTTPAPIKey,
		RequestTimeout: cfg.HTTPRequestTimeout,
		Settler:        settler,
		Wallets:        client,
		Metrics:        m,
	})
	if cfg.HTTPAPIKey == "" {
		log.Warn("HTTP_API_KEY не задан: API доступен без авторизации")
	}

	// === 5. Telegram-бот и планировщик ===
	var (
		reminder jobs.Reminder
		sendFunc func(userID int64, text string)
	)
	if cfg.TelegramEnabled() {
		b, streakService, err := newBot(cfg, a.DB, a.Rewards, settler)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Bot = b
		if cfg.FeatureStreakRemindersEnabled {
			reminder = streakService
			sendFunc = b.SendMessageToUser
		}
	} else {
		log.Info("TELEGRAM_BOT_TOKEN не задан: бот не запускается")
	}
	a.Scheduler = jobs.NewScheduler(a.Rewards, reminder, sendFunc)

	return a, nil
}

// newBot собирает Telegram-фронтенд. Участники и админ-сессии живут в PostgreSQL.
func newBot(cfg *config.Config, pool *pgxpool.Pool, rewardsService *rewards.Service, settler rewards.Settler) (*bot.Bot, *streak.Service, error) {
	if pool == nil {
		return nil, nil, fmt.Errorf("Telegram-бот требует STORE_DRIVER=postgres")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// Репозитории
	memberRepo := members.NewRepository(pool)
	adminRepo := admin.NewRepository(pool)

	// Сервисы
	memberService := members.NewService(memberRepo)
	streakService := streak.NewService(rewardsService, cfg.StreakReminderThreshold, cfg.TokenDecimals, cfg.TokenSymbol)
	adminService := admin.NewService(adminRepo, rewardsService, memberService, cfg.AdminPasswordHash, cfg.IsAdmin)

	// Обработчики
	memberHandler := members.NewHandler(memberService, botAPI)
	rewardsHandler := rewards.NewHandler(rewardsService, memberService, settler, botAPI, cfg.TokenDecimals, cfg.TokenSymbol)
	streakHandler := streak.NewHandler(streakService, botAPI)
	adminHandler := admin.NewHandler(adminService, botAPI, cfg.TokenDecimals, cfg.TokenSymbol)

	chatFilter := filters.NewChatFilter(cfg.FloodChatID, memberService, botAPI)

	b := bot.New(botAPI, cfg,
		memberService, memberHandler,
		rewardsHandler, streakHandler, adminHandler,
		chatFilter,
	)
	return b, streakService, nil
}

// Run запускает все компоненты и блокируется до отмены ctx или ошибки любого из них.
// Диспетчер выплат останавливается последним: HTTP и бот ещё могут
// ставить пачки, пока дорабатывают запросы в течение shutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("ошибка запуска планировщика: %w", err)
	}
	defer a.Scheduler.Stop()

	dispatcherCtx, stopDispatcher := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatcher()
	var dispatcherDone chan error
	if a.Dispatcher != nil {
		dispatcherDone = make(chan error, 1)
		go func() { dispatcherDone <- a.Dispatcher.Run(dispatcherCtx) }()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.HTTP.Run(gctx, a.cfg.HTTPAddr, a.cfg.HTTPShutdownTimeout)
	})
	if a.Bot != nil {
		g.Go(func() error { return a.Bot.Start(gctx) })
	}
	err := g.Wait()

	stopDispatcher()
	if dispatcherDone != nil {
		if dErr := <-dispatcherDone; err == nil {
			err = dErr
		}
	}
	return err
}

// Close освобождает хранилище. Вызывать после возврата Run.
func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
