// Package main - точка входа сервиса наград.
// Загружает конфигурацию, собирает приложение и запускает HTTP API,
// выплаты, планировщик и (если задан токен) Telegram-бота.
// Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reward-ledger/internal/app"
	"serotonyl.ru/reward-ledger/internal/config"
)

func main() {
	setupLogging()

	log.Info("=== Сервис наград запускается ===")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("level", cfg.AppLogLevel).Warn("Неизвестный APP_LOG_LEVEL, оставляем debug")
	}

	// Ctrl+C, docker stop
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}
	defer application.Close()

	log.WithFields(log.Fields{
		"store":    cfg.StoreDriver,
		"http":     cfg.HTTPAddr,
		"telegram": cfg.TelegramEnabled(),
	}).Info("=== Сервис наград готов к работе ===")

	if err := application.Run(ctx); err != nil {
		log.WithError(err).Error("Сервис остановлен с ошибкой")
		application.Close()
		os.Exit(1)
	}

	log.Info("=== Сервис наград остановлен ===")
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
