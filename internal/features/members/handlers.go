// Package members - handlers.go: команда !кошелек.
package members

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reward-ledger/internal/common"
)

// Handler обрабатывает команды участников.
type Handler struct {
	service *Service
	bot     common.Sender
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, bot common.Sender) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleWallet: "!кошелек" показывает привязанный адрес, "!кошелек <адрес>" привязывает новый.
func (h *Handler) HandleWallet(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) == 0 {
		wallet, err := h.service.Wallet(ctx, userID)
		switch {
		case errors.Is(err, common.ErrWalletNotLinked), errors.Is(err, common.ErrUserNotFound):
			common.SendText(h.bot, chatID, "👛 Кошелёк не привязан.\nФормат: !кошелек <адрес>")
		case err != nil:
			log.WithError(err).WithField("user_id", userID).Error("Ошибка чтения кошелька")
			common.SendText(h.bot, chatID, "❌ Ошибка получения кошелька")
		default:
			common.SendText(h.bot, chatID, fmt.Sprintf("👛 Кошелёк: %s", wallet))
		}
		return
	}

	err := h.service.LinkWallet(ctx, userID, args[0])
	switch {
	case errors.Is(err, common.ErrInvalidWallet):
		common.SendText(h.bot, chatID, "❌ Некорректный адрес кошелька")
	case err != nil:
		log.WithError(err).WithField("user_id", userID).Error("Ошибка привязки кошелька")
		common.SendText(h.bot, chatID, "❌ Не удалось привязать кошелёк")
	default:
		common.SendText(h.bot, chatID, "✅ Кошелёк привязан. Полученные награды будут отправляться на него.")
	}
}
