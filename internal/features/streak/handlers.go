// Package streak - handlers.go обрабатывает команду !огонек.
// Показывает текущую серию входов, рекорд и награду за следующий вход.
package streak

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reward-ledger/internal/common"
	"serotonyl.ru/reward-ledger/internal/features/members"
)

// Handler обрабатывает команды стриков.
type Handler struct {
	service *Service
	bot     common.Sender
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, bot common.Sender) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleOgonek обрабатывает команду !огонек.
//
// Формат ответа (вход сегодня ещё не засчитан):
//
//	🔥 Твой огонек
//	Текущая серия: 8 дней
//	Лучшая серия: 12 дней
//	⏳ Сегодня ещё не было входа (!вход)
//	Награда за вход: 60 POKE
func (h *Handler) HandleOgonek(ctx context.Context, chatID, userID int64) {
	p, err := h.service.GetProgress(ctx, members.PlayerID(userID))
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения стрика")
		common.SendText(h.bot, chatID, "❌ Ошибка получения данных стрика")
		return
	}
	common.SendText(h.bot, chatID, h.progressText(p))
}

func (h *Handler) progressText(p *Progress) string {
	text := fmt.Sprintf(
		"🔥 Твой огонек\n\n"+
			"Текущая серия: %d %s\n"+
			"Лучшая серия: %d %s\n\n",
		p.CurrentStreak, common.PluralizeDays(int(p.CurrentStreak)),
		p.LongestStreak, common.PluralizeDays(int(p.LongestStreak)),
	)
	if p.LoggedInToday {
		return text + fmt.Sprintf("✅ Вход засчитан! Завтра: %s", h.service.FormatTokens(p.NextReward))
	}
	return text + fmt.Sprintf("⏳ Сегодня ещё не было входа (!вход)\nНаграда за вход: %s",
		h.service.FormatTokens(p.NextReward))
}
