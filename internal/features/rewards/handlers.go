// Package rewards - handlers.go обрабатывает команды бота:
// !вход, !награды, !ожидают, !забрать, !статистика.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reward-ledger/internal/common"
	"serotonyl.ru/reward-ledger/internal/features/ledger"
	"serotonyl.ru/reward-ledger/internal/features/members"
	"serotonyl.ru/reward-ledger/internal/features/settlement"
)

// Сколько последних наград показывает !награды
const recentRewardsLimit = 10

// WalletSource возвращает привязанный кошелёк Telegram-пользователя.
type WalletSource interface {
	Wallet(ctx context.Context, userID int64) (string, error)
}

// Settler принимает полученные награды в очередь выплат.
type Settler interface {
	Submit(b settlement.Batch) error
}

// Handler обрабатывает команды наград.
type Handler struct {
	service  *Service
	wallets  WalletSource
	settler  Settler // nil, если выплаты выключены
	bot      common.Sender
	decimals int32
	symbol   string
}

// NewHandler создаёт обработчик. settler может быть nil.
func NewHandler(service *Service, wallets WalletSource, settler Settler, bot common.Sender, decimals int32, symbol string) *Handler {
	return &Handler{
		service:  service,
		wallets:  wallets,
		settler:  settler,
		bot:      bot,
		decimals: decimals,
		symbol:   symbol,
	}
}

func (h *Handler) tokens(minor uint64) string {
	return common.FormatTokens(minor, h.decimals, h.symbol)
}

// LoginEventID - ключ идемпотентности ежедневного входа из Telegram.
// Один и тот же день даёт один и тот же event_id, поэтому повторный !вход безопасен.
func LoginEventID(userID int64, day string) string {
	return fmt.Sprintf("login:%s:%s", members.PlayerID(userID), day)
}

// WelcomeEventID - ключ идемпотентности приветственного бонуса.
func WelcomeEventID(userID int64) string {
	return "welcome:" + members.PlayerID(userID)
}

// GrantWelcome начисляет приветственный бонус новому участнику.
// Повторный вызов безопасен: бонус выдаётся не больше одного раза.
func (h *Handler) GrantWelcome(ctx context.Context, userID int64) (*RewardResponse, error) {
	resp, err := h.service.ProcessGameEvent(ctx, GameEvent{
		PlayerID: members.PlayerID(userID),
		Game:     ledger.GameWelcome,
		EventID:  WelcomeEventID(userID),
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"user_id": userID,
		"outcome": resp.Outcome,
		"amount":  resp.Amount(),
	}).Info("Приветственный бонус обработан")
	return resp, nil
}

// HandleLogin обрабатывает !вход - ежедневный вход с наградой за серию.
func (h *Handler) HandleLogin(ctx context.Context, chatID, userID int64) {
	today := h.service.Today()
	resp, err := h.service.ProcessGameEvent(ctx, GameEvent{
		PlayerID: members.PlayerID(userID),
		Game:     ledger.GameLogin,
		EventID:  LoginEventID(userID, common.FormatDate(today)),
	})
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка обработки входа")
		common.SendText(h.bot, chatID, "❌ Не удалось засчитать вход, попробуй позже")
		return
	}

	var text string
	switch resp.Outcome {
	case OutcomeAwarded, OutcomeClamped:
		text = fmt.Sprintf("✅ Вход засчитан! %s\n🔥 Серия: %d %s",
			common.FormatTokensDelta(resp.Amount(), h.decimals, h.symbol),
			resp.Streak, common.PluralizeDays(int(resp.Streak)))
	case OutcomeLimitReached:
		text = fmt.Sprintf("✅ Вход засчитан, но дневной лимит наград исчерпан\n🔥 Серия: %d %s",
			resp.Streak, common.PluralizeDays(int(resp.Streak)))
	default:
		text = fmt.Sprintf("ℹ️ Сегодня ты уже заходил\n🔥 Серия: %d %s",
			resp.Streak, common.PluralizeDays(int(resp.Streak)))
	}
	common.SendText(h.bot, chatID, text)
}

// HandleRewards обрабатывает !награды - последние награды и итог.
func (h *Handler) HandleRewards(ctx context.Context, chatID, userID int64) {
	list, err := h.service.GetRewards(ctx, members.PlayerID(userID))
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения наград")
		common.SendText(h.bot, chatID, "❌ Ошибка получения наград")
		return
	}
	if len(list) == 0 {
		common.SendText(h.bot, chatID, "🎁 Наград пока нет. Играй и заходи каждый день (!вход)")
		return
	}

	var total uint64
	for _, r := range list {
		total = addSat(total, r.Amount)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🎁 Награды: %d, всего %s\n\n", len(list), h.tokens(total))
	start := 0
	if len(list) > recentRewardsLimit {
		start = len(list) - recentRewardsLimit
	}
	for i := len(list) - 1; i >= start; i-- {
		r := list[i]
		mark := "⏳"
		if r.Status == ledger.StatusClaimed {
			mark = "✅"
		}
		fmt.Fprintf(&sb, "%s %s %s (%s)\n", mark, common.FormatDateTime(r.CreatedAt), h.tokens(r.Amount), r.Game)
	}
	common.SendText(h.bot, chatID, sb.String())
}

// HandlePending обрабатывает !ожидают - неполученные награды.
func (h *Handler) HandlePending(ctx context.Context, chatID, userID int64) {
	list, err := h.service.GetPendingRewards(ctx, members.PlayerID(userID))
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения ожидающих наград")
		common.SendText(h.bot, chatID, "❌ Ошибка получения наград")
		return
	}
	if len(list) == 0 {
		common.SendText(h.bot, chatID, "⏳ Неполученных наград нет")
		return
	}
	var total uint64
	for _, r := range list {
		total = addSat(total, r.Amount)
	}
	common.SendText(h.bot, chatID, fmt.Sprintf("⏳ Ожидают получения: %d %s на %s\nЗабрать: !забрать",
		len(list), common.PluralizeRewards(len(list)), h.tokens(total)))
}

// HandleClaim обрабатывает !забрать: переводит награды в claimed и ставит выплату в очередь.
// Без привязанного кошелька награды не трогаются.
func (h *Handler) HandleClaim(ctx context.Context, chatID, userID int64) {
	wallet, err := h.wallets.Wallet(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrWalletNotLinked) || errors.Is(err, common.ErrUserNotFound) {
			common.SendText(h.bot, chatID, "👛 Сначала привяжи кошелёк: !кошелек <адрес>")
			return
		}
		log.WithError(err).WithField("user_id", userID).Error("Ошибка чтения кошелька")
		common.SendText(h.bot, chatID, "❌ Ошибка получения кошелька")
		return
	}

	playerID := members.PlayerID(userID)
	claimed, err := h.service.ClaimRewards(ctx, playerID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения наград")
		common.SendText(h.bot, chatID, "❌ Не удалось забрать награды, попробуй позже")
		return
	}
	if len(claimed) == 0 {
		common.SendText(h.bot, chatID, "⏳ Неполученных наград нет")
		return
	}

	var total uint64
	for _, r := range claimed {
		total = addSat(total, r.Amount)
	}
	text := fmt.Sprintf("✅ Получено %d %s на %s", len(claimed), common.PluralizeRewards(len(claimed)), h.tokens(total))

	if h.settler != nil {
		err := h.settler.Submit(settlement.Batch{PlayerID: playerID, Wallet: wallet, Rewards: claimed})
		if err != nil {
			// награды уже claimed, выплату доведёт администратор по логам
			log.WithError(err).WithFields(log.Fields{
				"player_id": playerID,
				"rewards":   len(claimed),
			}).Error("Выплата не поставлена в очередь")
			text += "\n⚠️ Выплата задерживается, администратор уже в курсе"
		} else {
			text += "\n💸 Выплата на кошелёк поставлена в очередь"
		}
	}
	common.SendText(h.bot, chatID, text)
}

// HandleStats обрабатывает !статистика - начислено сегодня по играм.
func (h *Handler) HandleStats(ctx context.Context, chatID, userID int64) {
	playerID := members.PlayerID(userID)
	today := h.service.Today()
	cfg := h.service.Config()

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Сегодня (%s, UTC)\n\n", common.FormatDate(today))
	for _, game := range ledger.AllGames() {
		st, err := h.service.GetDailyStats(ctx, playerID, game, today)
		if err != nil {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка получения статистики")
			common.SendText(h.bot, chatID, "❌ Ошибка получения статистики")
			return
		}
		if dailyCap := DailyCap(game, cfg); dailyCap > 0 {
			fmt.Fprintf(&sb, "%s: %s из %s\n", game, h.tokens(st.TotalAwarded), h.tokens(dailyCap))
		} else if st.EventCount > 0 {
			fmt.Fprintf(&sb, "%s: %s\n", game, h.tokens(st.TotalAwarded))
		}
	}
	common.SendText(h.bot, chatID, sb.String())
}
