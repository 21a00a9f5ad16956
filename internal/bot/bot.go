// Package bot - Telegram-фронтенд журнала наград: polling, фильтры и маршрутизация команд.
// Сам бот ничего не считает, все начисления идут через rewards.Service.
package bot

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reward-ledger/internal/bot/filters"
	"serotonyl.ru/reward-ledger/internal/bot/middleware"
	"serotonyl.ru/reward-ledger/internal/config"
	"serotonyl.ru/reward-ledger/internal/features/admin"
	"serotonyl.ru/reward-ledger/internal/features/members"
	"serotonyl.ru/reward-ledger/internal/features/rewards"
	"serotonyl.ru/reward-ledger/internal/features/streak"
)

const helpText = `🎮 Бот наград сообщества

!вход - ежедневный вход (награда растёт с серией)
!огонек - текущая серия входов
!награды - последние награды
!ожидают - награды, ожидающие получения
!кошелек <адрес> - привязать кошелёк для выплат
!забрать - получить все ожидающие награды
!статистика - заработано сегодня по играм`

// Bot - главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter

	memberService  *members.Service
	memberHandler  *members.Handler
	rewardsHandler *rewards.Handler
	streakHandler  *streak.Handler
	adminHandler   *admin.Handler

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
	wg       sync.WaitGroup
}

// New создаёт бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	memberService *members.Service,
	memberHandler *members.Handler,
	rewardsHandler *rewards.Handler,
	streakHandler *streak.Handler,
	adminHandler *admin.Handler,
	chatFilter *filters.ChatFilter,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:            api,
		cfg:            cfg,
		chatFilter:     chatFilter,
		rateLimiter:    middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		memberService:  memberService,
		memberHandler:  memberHandler,
		rewardsHandler: rewardsHandler,
		streakHandler:  streakHandler,
		adminHandler:   adminHandler,
		parser:         NewCommandParser(),
		inflight:       make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling и блокируется до отмены ctx.
// Перед возвратом дожидается уже запущенных обработчиков.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	defer func() {
		b.wg.Wait()
		b.rateLimiter.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			return nil

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return nil
			}

			// лимит параллелизма
			select {
			case b.inflight <- struct{}{}:
			case <-ctx.Done():
				b.api.StopReceivingUpdates()
				return nil
			}
			b.wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer func() {
					<-b.inflight
					b.wg.Done()
				}()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	message := update.Message
	if message == nil {
		return
	}

	// Вступление в чат сообщества - приветственный бонус
	if len(message.NewChatMembers) > 0 {
		if message.Chat != nil && message.Chat.ID == b.cfg.FloodChatID {
			b.handleNewMembers(ctx, message.NewChatMembers)
		}
		return
	}

	if message.Text == "" {
		return
	}

	middleware.LogMessage(message)

	// FLOOD_CHAT_ID или личка участника
	if !b.chatFilter.CheckAccess(ctx, message) {
		return
	}

	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	if err := b.memberService.EnsureMember(ctx, userID,
		message.From.UserName, message.From.FirstName, message.From.LastName,
	); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("EnsureMember failed")
	}

	// Админ-команды только в личке
	if message.Chat.IsPrivate() &&
		b.adminHandler.HandleCommand(ctx, chatID, userID, message.MessageID, message.Text) {
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if !isCommand {
		return
	}
	log.WithFields(log.Fields{
		"cmd":     cmd,
		"args":    len(args),
		"user_id": userID,
	}).Debug("parsed command")

	b.routeCommand(ctx, chatID, userID, cmd, args)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, chatID, userID int64, cmd string, args []string) {
	switch cmd {
	case "start", "help", "помощь":
		b.sendMessage(chatID, helpText)

	case "вход":
		b.rewardsHandler.HandleLogin(ctx, chatID, userID)

	case "огонек":
		b.streakHandler.HandleOgonek(ctx, chatID, userID)

	case "награды":
		b.rewardsHandler.HandleRewards(ctx, chatID, userID)

	case "ожидают":
		b.rewardsHandler.HandlePending(ctx, chatID, userID)

	case "забрать":
		b.rewardsHandler.HandleClaim(ctx, chatID, userID)

	case "кошелек":
		b.memberHandler.HandleWallet(ctx, chatID, userID, args)

	case "статистика":
		b.rewardsHandler.HandleStats(ctx, chatID, userID)
	}
}

// handleNewMembers регистрирует вступивших и выдаёт им приветственный бонус.
func (b *Bot) handleNewMembers(ctx context.Context, newMembers []tgbotapi.User) {
	for _, user := range newMembers {
		if user.IsBot {
			continue
		}
		logger := log.WithFields(log.Fields{
			"user_id":  user.ID,
			"username": user.UserName,
		})

		if _, err := b.memberService.HandleNewMember(ctx, user.ID, user.UserName, user.FirstName, user.LastName); err != nil {
			logger.WithError(err).Warn("HandleNewMember failed")
			continue
		}
		// Повторное вступление бонус не даёт: event_id привязан к пользователю
		if _, err := b.rewardsHandler.GrantWelcome(ctx, user.ID); err != nil {
			logger.WithError(err).Error("Не удалось начислить приветственный бонус")
			continue
		}

		logger.Info("Новый участник обработан")
	}
}

// sendMessage - утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// SendMessageToUser отправляет сообщение пользователю в личку (для напоминаний).
func (b *Bot) SendMessageToUser(userID int64, text string) {
	msg := tgbotapi.NewMessage(userID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("user_id", userID).Debug("Не удалось отправить сообщение")
		return
	}
	log.WithField("user_id", userID).Debug("message sent")
}
