package common

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Sender - часть *tgbotapi.BotAPI, нужная обработчикам для ответов.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	// Request - для методов, которые не возвращают сообщение (удаление и т.п.)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// SendText отправляет текстовое сообщение и логирует ошибку отправки.
func SendText(s Sender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := s.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
