// Package rewards превращает игровые события в награды: расчёт суммы,
// дневные лимиты, стрики входа и идемпотентность по event_id.
// models.go описывает входящее событие, ответ и данные событий по играм.
package rewards

import (
	"encoding/json"
	"time"

	"serotonyl.ru/reward-ledger/internal/features/ledger"
)

// GameEvent - игровое событие, уже декодированное транспортом.
type GameEvent struct {
	PlayerID string          `json:"player_id"`
	Game     ledger.GameType `json:"game"`
	// EventID уникален для одного логического события и служит ключом идемпотентности
	EventID   string          `json:"event_id"`
	EventData json.RawMessage `json:"event_data,omitempty"`
	// OccurredAt - время события. Нулевое значение = часы сервиса.
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

// Outcome - чем закончилась обработка события.
type Outcome string

const (
	OutcomeAwarded         Outcome = "awarded"           // начислено полностью
	OutcomeClamped         Outcome = "clamped"           // начислен остаток дневного лимита
	OutcomeLimitReached    Outcome = "limit_reached"     // лимит исчерпан, награды нет
	OutcomeDuplicate       Outcome = "duplicate"         // event_id уже обработан
	OutcomeAlreadyLoggedIn Outcome = "already_logged_in" // вход в этот день уже засчитан
	OutcomeAlreadyGranted  Outcome = "already_granted"   // приветственный бонус уже выдан
	OutcomeStaleLogin      Outcome = "stale_login"       // вход датирован раньше последнего
)

// changesLedger сообщает, изменил ли исход награды или дневные итоги.
func (o Outcome) changesLedger() bool {
	return o == OutcomeAwarded || o == OutcomeClamped || o == OutcomeLimitReached
}

// RewardResponse - результат обработки события.
type RewardResponse struct {
	// Reward - созданная (или ранее созданная для дубликата) награда; nil, если награды нет
	Reward *ledger.Reward `json:"reward"`
	// DailyTotal - начислено по игре за день события после обработки
	DailyTotal   uint64  `json:"daily_total"`
	LimitReached bool    `json:"limit_reached"`
	Outcome      Outcome `json:"outcome"`
	// Streak - текущий стрик, только для событий входа
	Streak uint32 `json:"streak,omitempty"`
}

// Amount возвращает начисленную сумму (0, если награды нет).
func (r *RewardResponse) Amount() uint64 {
	if r == nil || r.Reward == nil {
		return 0
	}
	return r.Reward.Amount
}

// Данные событий. Указатели отличают "поле не передано" от нулевого значения.

type flyPokeData struct {
	Score          *int64 `json:"score"`
	IsNewHighScore bool   `json:"is_new_high_score"`
}

type battleData struct {
	Level          *int64 `json:"level"`
	Streak         *int64 `json:"streak,omitempty"`
	PerfectVictory bool   `json:"perfect_victory,omitempty"`
}

type pokeMatchData struct {
	Perfect *bool  `json:"perfect"`
	Score   *int64 `json:"score,omitempty"`
}

type pokedexData struct {
	PokemonID *string `json:"pokemon_id"`
	IsRare    bool    `json:"is_rare"`
}
