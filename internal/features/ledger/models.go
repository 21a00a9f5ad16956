// Package ledger хранит журнал наград: записи о наградах, дневные агрегаты
// по играм и стрики ежедневного входа.
// models.go описывает структуры данных журнала.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/reward-ledger/internal/common"
)

// GameType - тип игры, за которую начисляется награда.
type GameType string

const (
	GameFlyPoke   GameType = "flypoke"
	GameBattle    GameType = "battle"
	GamePokeMatch GameType = "pokematch"
	GamePokedex   GameType = "pokedex"
	GameLogin     GameType = "login"
	GameWelcome   GameType = "welcome"
)

// AllGames возвращает все поддерживаемые игры в фиксированном порядке.
func AllGames() []GameType {
	return []GameType{GameFlyPoke, GameBattle, GamePokeMatch, GamePokedex, GameLogin, GameWelcome}
}

// Valid сообщает, поддерживается ли игра.
func (g GameType) Valid() bool {
	for _, known := range AllGames() {
		if g == known {
			return true
		}
	}
	return false
}

// ParseGameType разбирает название игры без учёта регистра.
func ParseGameType(s string) (GameType, error) {
	g := GameType(strings.ToLower(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", fmt.Errorf("%w: %q", common.ErrUnknownGame, s)
	}
	return g, nil
}

// RewardStatus - статус награды. Переход только один: pending → claimed.
type RewardStatus string

const (
	StatusPending RewardStatus = "pending"
	StatusClaimed RewardStatus = "claimed"
)

// Reward - запись о начисленной награде.
// Создаётся один раз, меняется только при получении (claim), никогда не удаляется.
type Reward struct {
	ID            uuid.UUID      `json:"id"`
	PlayerID      string         `json:"player_id"`
	Game          GameType       `json:"game"`
	Amount        uint64         `json:"amount"` // в минимальных единицах токена
	CreatedAt     time.Time      `json:"created_at"`
	ClaimedAt     *time.Time     `json:"claimed_at,omitempty"`
	Status        RewardStatus   `json:"status"`
	SourceEventID string         `json:"source_event_id"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Clone возвращает глубокую копию, чтобы вызывающий не мог изменить данные хранилища.
func (r *Reward) Clone() *Reward {
	if r == nil {
		return nil
	}
	c := *r
	if r.ClaimedAt != nil {
		t := *r.ClaimedAt
		c.ClaimedAt = &t
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// DailyStats - агрегат по игроку, игре и календарному дню (UTC).
// Инвариант: TotalAwarded никогда не превышает дневной лимит игры.
type DailyStats struct {
	PlayerID     string    `json:"player_id"`
	Game         GameType  `json:"game"`
	Date         time.Time `json:"date"`
	TotalAwarded uint64    `json:"total_awarded"`
	EventCount   uint64    `json:"event_count"`
}

// LoginStreak - серия ежедневных входов игрока.
type LoginStreak struct {
	PlayerID      string     `json:"player_id"`
	CurrentStreak uint32     `json:"current_streak"`
	LongestStreak uint32     `json:"longest_streak"` // личный рекорд
	LastLoginDate *time.Time `json:"last_login_date,omitempty"`
}

// Clone возвращает копию стрика.
func (s *LoginStreak) Clone() *LoginStreak {
	if s == nil {
		return nil
	}
	c := *s
	if s.LastLoginDate != nil {
		d := *s.LastLoginDate
		c.LastLoginDate = &d
	}
	return &c
}

// ProcessedEvent - событие, обработанное без награды: лимит исчерпан,
// вход уже засчитан и т.п. Хранится под своим event_id, чтобы повторная
// доставка давала duplicate, а не новый расчёт.
type ProcessedEvent struct {
	PlayerID    string
	EventID     string
	Game        GameType
	Outcome     string
	EventDate   time.Time // UTC-день события
	ProcessedAt time.Time
}

// DeltaResult - итог атомарной проверки дневного лимита.
type DeltaResult struct {
	Accepted bool   // сумма учтена
	Total    uint64 // total_awarded после операции (или текущий при отказе)
	Headroom uint64 // сколько ещё можно было выдать на момент проверки
}

// StreakUpdate - итог обработки входа.
type StreakUpdate struct {
	Streak LoginStreak
	// Duplicate - вход в этот день уже был, стрик не изменился
	Duplicate bool
	// Stale - событие датировано раньше последнего входа, стрик не изменился
	Stale bool
}

// GameSummary - сводка по игре за день (для ночного аудита и админки).
type GameSummary struct {
	Game         GameType  `json:"game"`
	Date         time.Time `json:"date"`
	Players      int       `json:"players"`
	EventCount   uint64    `json:"event_count"`
	TotalAwarded uint64    `json:"total_awarded"`
}
