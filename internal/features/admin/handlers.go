// Package admin - handlers.go обрабатывает админ-команды в личных сообщениях:
//
//	/login <пароль>          - открыть сессию
//	/logout                  - закрыть сессию
//	/игрок <player_id|@ник>  - отчёт по игроку
//	/сводка [ГГГГ-ММ-ДД]     - сводка журнала за день (по умолчанию сегодня, UTC)
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reward-ledger/internal/common"
	"serotonyl.ru/reward-ledger/internal/features/ledger"
)

// Handler обрабатывает админ-команды.
type Handler struct {
	service  *Service
	bot      common.Sender
	decimals int32
	symbol   string
}

// NewHandler создаёт обработчик админ-команд.
func NewHandler(service *Service, bot common.Sender, decimals int32, symbol string) *Handler {
	return &Handler{service: service, bot: bot, decimals: decimals, symbol: symbol}
}

// HandleCommand обрабатывает сообщение в DM. Возвращает false, если это не админ-команда.
func (h *Handler) HandleCommand(ctx context.Context, chatID, userID int64, messageID int, text string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(text), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "/login":
		h.deleteMessage(chatID, messageID) // пароль не должен оставаться в истории
		h.handleLogin(ctx, chatID, userID, arg)
	case "/logout":
		if err := h.service.Logout(ctx, userID); err != nil {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка закрытия сессии")
		}
		common.SendText(h.bot, chatID, "👋 Сессия закрыта")
	case "/игрок":
		if !h.authorize(ctx, chatID, userID) {
			return true
		}
		h.handlePlayer(ctx, chatID, arg)
	case "/сводка":
		if !h.authorize(ctx, chatID, userID) {
			return true
		}
		h.handleSummary(ctx, chatID, arg)
	default:
		return false
	}
	return true
}

func (h *Handler) handleLogin(ctx context.Context, chatID, userID int64, password string) {
	if password == "" {
		common.SendText(h.bot, chatID, "Формат: /login <пароль>")
		return
	}
	err := h.service.Login(ctx, userID, password)
	switch {
	case err == nil:
		common.SendText(h.bot, chatID, "✅ Аутентификация успешна!\n/игрок <player_id|@ник>\n/сводка [ГГГГ-ММ-ДД]")
	case errors.Is(err, common.ErrNotAdmin), errors.Is(err, common.ErrWrongPassword), errors.Is(err, common.ErrTooManyAttempts):
		common.SendText(h.bot, chatID, "❌ "+err.Error())
	default:
		log.WithError(err).WithField("user_id", userID).Error("Ошибка входа администратора")
		common.SendText(h.bot, chatID, "❌ Ошибка входа, попробуйте позже")
	}
}

func (h *Handler) authorize(ctx context.Context, chatID, userID int64) bool {
	err := h.service.Authorize(ctx, userID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, common.ErrNotAdmin), errors.Is(err, common.ErrSessionExpired):
		common.SendText(h.bot, chatID, "🔐 "+err.Error()+"\n/login <пароль>")
	default:
		log.WithError(err).WithField("user_id", userID).Error("Ошибка проверки сессии")
		common.SendText(h.bot, chatID, "❌ Ошибка проверки сессии")
	}
	return false
}

func (h *Handler) handlePlayer(ctx context.Context, chatID int64, arg string) {
	if arg == "" {
		common.SendText(h.bot, chatID, "Формат: /игрок <player_id|@ник>")
		return
	}
	report, err := h.service.PlayerReport(ctx, arg)
	switch {
	case errors.Is(err, common.ErrUserNotFound):
		common.SendText(h.bot, chatID, "❌ Участник не найден")
		return
	case err != nil:
		log.WithError(err).WithField("player", arg).Error("Ошибка отчёта по игроку")
		common.SendText(h.bot, chatID, "❌ Ошибка получения отчёта")
		return
	}
	common.SendText(h.bot, chatID, h.formatReport(report))
}

func (h *Handler) formatReport(r *PlayerReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "👤 %s", r.PlayerID)
	if r.DisplayName != "" {
		fmt.Fprintf(&sb, " (%s)", r.DisplayName)
	}
	sb.WriteString("\n")
	if r.Wallet != "" {
		fmt.Fprintf(&sb, "👛 %s\n", r.Wallet)
	}
	fmt.Fprintf(&sb, "\n🎁 Наград: %d на %s\n", r.TotalRewards, h.tokens(r.TotalAmount))
	fmt.Fprintf(&sb, "⏳ Ожидают: %d на %s\n", r.PendingCount, h.tokens(r.PendingAmount))
	fmt.Fprintf(&sb, "✅ Получено: %s\n", h.tokens(r.ClaimedAmount))
	if r.Streak != nil {
		fmt.Fprintf(&sb, "🔥 Серия: %d (рекорд %d)", r.Streak.CurrentStreak, r.Streak.LongestStreak)
		if r.Streak.LastLoginDate != nil {
			fmt.Fprintf(&sb, ", последний вход %s", common.FormatDate(*r.Streak.LastLoginDate))
		}
		sb.WriteString("\n")
	}
	if len(r.Today) > 0 {
		sb.WriteString("\n📊 Сегодня:\n")
		for _, st := range r.Today {
			fmt.Fprintf(&sb, "%s: %s (%d %s)\n", st.Game, h.tokens(st.TotalAwarded),
				st.EventCount, common.PluralizeEvents(st.EventCount))
		}
	}
	return sb.String()
}

func (h *Handler) handleSummary(ctx context.Context, chatID int64, arg string) {
	day := h.service.Today()
	if arg != "" {
		parsed, err := common.ParseDate(arg)
		if err != nil {
			common.SendText(h.bot, chatID, "❌ Дата в формате ГГГГ-ММ-ДД")
			return
		}
		day = parsed
	}

	summary, err := h.service.DaySummary(ctx, day)
	if err != nil {
		log.WithError(err).Error("Ошибка получения сводки")
		common.SendText(h.bot, chatID, "❌ Ошибка получения сводки")
		return
	}
	common.SendText(h.bot, chatID, h.formatSummary(common.FormatDate(day), summary))
}

func (h *Handler) formatSummary(day string, summary []ledger.GameSummary) string {
	if len(summary) == 0 {
		return fmt.Sprintf("📋 %s: событий не было", day)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Сводка за %s (UTC)\n\n", day)
	var total uint64
	for _, g := range summary {
		fmt.Fprintf(&sb, "%s: %s, игроков %d, %d %s\n", g.Game, h.tokens(g.TotalAwarded),
			g.Players, g.EventCount, common.PluralizeEvents(g.EventCount))
		total += g.TotalAwarded
	}
	fmt.Fprintf(&sb, "\nИтого: %s", h.tokens(total))
	return sb.String()
}

func (h *Handler) tokens(minor uint64) string {
	return common.FormatTokens(minor, h.decimals, h.symbol)
}

func (h *Handler) deleteMessage(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if _, err := h.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		log.WithError(err).Debug("Не удалось удалить сообщение с паролем")
	}
}
