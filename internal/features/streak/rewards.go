// Package streak - rewards.go считает награду за следующий вход.
package streak

import (
	"time"

	"serotonyl.ru/reward-ledger/internal/common"
	"serotonyl.ru/reward-ledger/internal/config"
	"serotonyl.ru/reward-ledger/internal/features/ledger"
	"serotonyl.ru/reward-ledger/internal/features/rewards"
)

// NextStreak возвращает, каким станет стрик после следующего входа.
//
//	вход сегодня уже был    → серия продолжится завтра: current + 1
//	последний вход вчера    → current + 1
//	иначе (пропуск, новичок) → 1
func NextStreak(s *ledger.LoginStreak, today time.Time) uint32 {
	if s == nil || s.LastLoginDate == nil {
		return 1
	}
	last := *s.LastLoginDate
	if common.IsSameDay(last, today) || common.IsYesterday(last, today) {
		return s.CurrentStreak + 1
	}
	return 1
}

// NextLoginReward возвращает награду за следующий вход по таблице наград.
func NextLoginReward(s *ledger.LoginStreak, today time.Time, cfg config.RewardConfig) uint64 {
	calc, err := rewards.Compute(ledger.GameLogin, nil, NextStreak(s, today), cfg)
	if err != nil {
		return 0
	}
	return calc.Amount
}
