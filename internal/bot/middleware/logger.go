// Package middleware содержит промежуточные обработчики бота: логирование,
// восстановление после паники и ограничение частоты команд.
package middleware

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Сколько символов текста попадает в лог
const logTextLimit = 50

// LogMessage логирует входящее сообщение: user_id, chat_id, username и начало текста.
// Пароли из /login в лог не попадают.
func LogMessage(message *tgbotapi.Message) {
	if message == nil || message.From == nil || message.Chat == nil {
		return
	}

	log.WithFields(log.Fields{
		"user_id":  message.From.ID,
		"chat_id":  message.Chat.ID,
		"username": message.From.UserName,
		"text":     SafeText(message.Text),
	}).Debug("Входящее сообщение")
}

// SafeText обрезает текст по символам (не по байтам) и скрывает аргументы /login.
func SafeText(text string) string {
	runes := []rune(text)
	if len(runes) >= 6 && string(runes[:6]) == "/login" {
		return "/login ***"
	}
	if len(runes) > logTextLimit {
		return string(runes[:logTextLimit]) + "..."
	}
	return text
}
