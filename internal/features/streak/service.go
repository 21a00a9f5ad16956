// Package streak - service.go: прогресс стрика и ежечасные напоминания.
package streak

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reward-ledger/internal/common"
	"serotonyl.ru/reward-ledger/internal/features/ledger"
	"serotonyl.ru/reward-ledger/internal/features/members"
	"serotonyl.ru/reward-ledger/internal/features/rewards"
)

// Service читает стрики из журнала наград.
type Service struct {
	rewards   *rewards.Service
	threshold uint32
	decimals  int32
	symbol    string

	mu       sync.Mutex
	day      time.Time           // день, к которому относится reminded
	reminded map[string]struct{} // кому уже напомнили сегодня
}

// NewService создаёт сервис. threshold - минимальная серия для напоминания,
// decimals и symbol нужны для текста напоминания.
func NewService(rewardsService *rewards.Service, threshold int, decimals int32, symbol string) *Service {
	if threshold < 1 {
		threshold = 1
	}
	return &Service{
		rewards:   rewardsService,
		threshold: uint32(threshold),
		decimals:  decimals,
		symbol:    symbol,
		reminded:  make(map[string]struct{}),
	}
}

// GetProgress возвращает прогресс серии игрока.
func (s *Service) GetProgress(ctx context.Context, playerID string) (*Progress, error) {
	st, err := s.rewards.GetStreak(ctx, playerID)
	if err != nil {
		return nil, err
	}
	today := s.rewards.Today()

	p := &Progress{
		PlayerID:      playerID,
		CurrentStreak: st.CurrentStreak,
		LongestStreak: st.LongestStreak,
		LastLoginDate: st.LastLoginDate,
		NextReward:    NextLoginReward(st, today, s.rewards.Config()),
	}
	if st.LastLoginDate != nil {
		p.LoggedInToday = common.IsSameDay(*st.LastLoginDate, today)
		p.Alive = p.LoggedInToday || common.IsYesterday(*st.LastLoginDate, today)
	}
	if !p.Alive {
		p.CurrentStreak = 0
	}
	return p, nil
}

// SendReminders напоминает игрокам из Telegram, у которых серия не короче порога,
// а последний вход был вчера: без входа сегодня серия сгорит.
// Каждому игроку - не больше одного напоминания в день. Возвращает число отправленных.
// Запускается кроном каждый час.
func (s *Service) SendReminders(ctx context.Context, sendFunc func(userID int64, text string)) (int, error) {
	streaks, err := s.rewards.ListStreaks(ctx, s.threshold)
	if err != nil {
		return 0, err
	}

	today := s.rewards.Today()
	cfg := s.rewards.Config()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.day.Equal(today) {
		s.day = today
		s.reminded = make(map[string]struct{})
	}

	sent := 0
	for _, st := range streaks {
		if st.LastLoginDate == nil || !common.IsYesterday(*st.LastLoginDate, today) {
			continue
		}
		if _, ok := s.reminded[st.PlayerID]; ok {
			continue
		}
		userID, ok := members.UserIDFromPlayer(st.PlayerID)
		if !ok {
			continue
		}

		sendFunc(userID, s.reminderText(st, NextLoginReward(st, today, cfg)))
		s.reminded[st.PlayerID] = struct{}{}
		sent++
	}

	if sent > 0 {
		log.WithField("sent", sent).Info("Напоминания о стриках отправлены")
	}
	return sent, nil
}

// FormatTokens форматирует сумму в токенах для сообщений бота.
func (s *Service) FormatTokens(minor uint64) string {
	return common.FormatTokens(minor, s.decimals, s.symbol)
}

func (s *Service) reminderText(st *ledger.LoginStreak, next uint64) string {
	return fmt.Sprintf("⚠️ У тебя огонек %d %s! Зайди сегодня (!вход), чтобы не потерять серию.\nНаграда за вход: %s",
		st.CurrentStreak, common.PluralizeDays(int(st.CurrentStreak)), s.FormatTokens(next))
}
