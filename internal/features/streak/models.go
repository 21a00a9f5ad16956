// Package streak показывает игрокам прогресс серии ежедневных входов
// и напоминает тем, у кого длинная серия может сгореть.
// Сами стрики хранит и обновляет журнал наград (ledger), здесь только чтение.
// models.go описывает прогресс стрика.
package streak

import "time"

// Progress - состояние серии входов на сегодня.
type Progress struct {
	PlayerID      string
	CurrentStreak uint32 // Текущая серия (дней подряд)
	LongestStreak uint32 // Личный рекорд
	LastLoginDate *time.Time
	// LoggedInToday - вход за сегодня уже засчитан
	LoggedInToday bool
	// Alive - серия не прервана: последний вход был сегодня или вчера
	Alive bool
	// NextReward - сколько принесёт следующий вход (сегодня или завтра)
	NextReward uint64
}
