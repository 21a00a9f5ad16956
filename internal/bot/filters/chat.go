// Package filters решает, отвечать ли боту на сообщение.
// Бот работает в чате сообщества и в личке с его участниками.
package filters

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Membership - часть members.Service, нужная фильтру.
type Membership interface {
	IsMember(ctx context.Context, userID int64) (bool, error)
	EnsureMember(ctx context.Context, userID int64, username, firstName, lastName string) error
}

// ChatAPI - часть *tgbotapi.BotAPI, нужная фильтру.
type ChatAPI interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type ChatFilter struct {
	floodChatID int64
	members     Membership
	api         ChatAPI
}

func NewChatFilter(floodChatID int64, members Membership, api ChatAPI) *ChatFilter {
	return &ChatFilter{floodChatID: floodChatID, members: members, api: api}
}

// CheckAccess пропускает сообщения из чата сообщества и личку его участников.
// Участника, которого ещё нет в базе, проверяет через Telegram и дозаписывает.
func (f *ChatFilter) CheckAccess(ctx context.Context, message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		log.WithField("component", "ChatFilter").Warn("nil message/chat")
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("Сообщение без отправителя (канал или сервисное)")
		return false
	}
	if f.floodChatID == 0 {
		log.WithField("component", "ChatFilter").Error("floodChatID = 0 (ошибка конфигурации)")
		return false
	}

	chatID := message.Chat.ID
	userID := message.From.ID
	logger := log.WithFields(log.Fields{
		"component": "ChatFilter",
		"chat_id":   chatID,
		"user_id":   userID,
	})

	if chatID == f.floodChatID {
		return true
	}
	if !message.Chat.IsPrivate() {
		logger.Debug("deny: посторонний чат")
		return false
	}

	isMember, err := f.members.IsMember(ctx, userID)
	if err != nil {
		logger.WithError(err).Error("Ошибка проверки участника (БД)")
		return false
	}
	if isMember {
		return true
	}

	// База пользователя не знает: спрашиваем Telegram
	cm, err := f.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: f.floodChatID,
			UserID: userID,
		},
	})
	if err != nil {
		logger.WithError(err).Error("Ошибка проверки участника (GetChatMember)")
		return false
	}

	switch cm.Status {
	case "creator", "administrator", "member", "restricted":
		if err := f.members.EnsureMember(ctx, userID,
			message.From.UserName, message.From.FirstName, message.From.LastName,
		); err != nil {
			logger.WithError(err).Warn("Не удалось дозаписать участника, пропускаем всё равно")
		}
		logger.WithField("tg_status", cm.Status).Info("allow: участник чата, дозаписан в базу")
		return true
	default:
		logger.WithField("tg_status", cm.Status).Info("deny: не участник чата")
		msg := tgbotapi.NewMessage(chatID, "❌ Бот работает только для участников чата сообщества")
		if _, err := f.api.Send(msg); err != nil {
			logger.WithError(err).Warn("Не удалось отправить отказ")
		}
		return false
	}
}
