// Package admin реализует команды администратора в личных сообщениях бота:
// вход по паролю, отчёт по игроку и дневная сводка журнала наград.
// models.go описывает сессии, попытки входа и отчёты.
package admin

import (
	"time"

	"serotonyl.ru/reward-ledger/internal/features/ledger"
)

// Защита от перебора и срок жизни сессии
const (
	MaxFailedAttempts = 3
	LockoutPeriod     = time.Hour
	SessionTTL        = 24 * time.Hour
)

// AdminSession - активная сессия администратора.
type AdminSession struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	SessionToken    string    `db:"session_token"`
	AuthenticatedAt time.Time `db:"authenticated_at"`
	ExpiresAt       time.Time `db:"expires_at"`
	LastActivity    time.Time `db:"last_activity"`
	IsActive        bool      `db:"is_active"`
}

// LoginAttempt - попытка входа (для защиты от brute-force).
type LoginAttempt struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	AttemptTime time.Time `db:"attempt_time"`
	Success     bool      `db:"success"`
}

// PlayerReport - сводка по игроку для /игрок.
type PlayerReport struct {
	PlayerID      string
	DisplayName   string // пусто для игроков не из Telegram
	Wallet        string
	TotalRewards  int
	TotalAmount   uint64
	PendingCount  int
	PendingAmount uint64
	ClaimedAmount uint64
	Streak        *ledger.LoginStreak
	Today         []*ledger.DailyStats // только игры с событиями за сегодня
}
