package config

import "fmt"

// LimitPolicy определяет, что делать с наградой, которая не влезает в дневной лимит.
type LimitPolicy string

const (
	// LimitPolicyClamp - выдать остаток лимита (если он больше нуля)
	LimitPolicyClamp LimitPolicy = "clamp"
	// LimitPolicyReject - не выдавать ничего
	LimitPolicyReject LimitPolicy = "reject"
)

// Valid сообщает, известна ли политика.
func (p LimitPolicy) Valid() bool {
	return p == LimitPolicyClamp || p == LimitPolicyReject
}

// Все суммы ниже - в минимальных единицах токена (9 знаков: 1 POKE = 1_000_000_000).
// DailyCap == 0 означает отсутствие дневного лимита.

// FlyPokeRewards - награда = clamp(Base + score*PerPoint, [Min, Max]) (+ HighScoreBonus).
type FlyPokeRewards struct {
	Base           uint64 `envconfig:"BASE" default:"0"`
	PerPoint       uint64 `envconfig:"PER_POINT" default:"50000000"`
	Min            uint64 `envconfig:"MIN" default:"10000000000"`
	Max            uint64 `envconfig:"MAX" default:"100000000000"`
	HighScoreBonus uint64 `envconfig:"HIGH_SCORE_BONUS" default:"20000000000"`
	DailyCap       uint64 `envconfig:"DAILY_CAP" default:"500000000000"`
}

// BattleRewards - награда = Base + level*LevelBonus + бонус серии побед (+ PerfectBonus).
type BattleRewards struct {
	Base         uint64 `envconfig:"BASE" default:"50000000000"`
	LevelBonus   uint64 `envconfig:"LEVEL_BONUS" default:"20000000000"`
	Streak2Bonus uint64 `envconfig:"STREAK2_BONUS" default:"10000000000"`
	Streak3Bonus uint64 `envconfig:"STREAK3_BONUS" default:"20000000000"`
	PerfectBonus uint64 `envconfig:"PERFECT_BONUS" default:"25000000000"`
	DailyCap     uint64 `envconfig:"DAILY_CAP" default:"300000000000"`
}

// PokeMatchRewards - награда = Base (+ PerfectBonus за идеальную партию).
type PokeMatchRewards struct {
	Base         uint64 `envconfig:"BASE" default:"20000000000"`
	PerfectBonus uint64 `envconfig:"PERFECT_BONUS" default:"100000000000"`
	DailyCap     uint64 `envconfig:"DAILY_CAP" default:"200000000000"`
}

// PokedexRewards - награда = Base (+ RareBonus за редкого покемона).
type PokedexRewards struct {
	Base      uint64 `envconfig:"BASE" default:"10000000000"`
	RareBonus uint64 `envconfig:"RARE_BONUS" default:"100000000000"`
	DailyCap  uint64 `envconfig:"DAILY_CAP" default:"0"`
}

// LoginRewards - ежедневный вход. Бонусы порогов суммируются:
// на 7-й день подряд игрок получает Base + ShortStreakBonus + LongStreakBonus.
type LoginRewards struct {
	Base             uint64 `envconfig:"BASE" default:"20000000000"`
	ShortStreakDays  uint32 `envconfig:"SHORT_STREAK_DAYS" default:"3"`
	ShortStreakBonus uint64 `envconfig:"SHORT_STREAK_BONUS" default:"10000000000"`
	LongStreakDays   uint32 `envconfig:"LONG_STREAK_DAYS" default:"7"`
	LongStreakBonus  uint64 `envconfig:"LONG_STREAK_BONUS" default:"30000000000"`
	DailyCap         uint64 `envconfig:"DAILY_CAP" default:"0"`
}

// WelcomeRewards - разовый бонус новому игроку.
type WelcomeRewards struct {
	Amount   uint64 `envconfig:"AMOUNT" default:"100000000000"`
	DailyCap uint64 `envconfig:"DAILY_CAP" default:"0"`
}

// RewardConfig - параметры расчёта наград по всем играм.
// Переменные окружения: REWARD_<ИГРА>_<ПАРАМЕТР>, например REWARD_FLYPOKE_DAILY_CAP.
type RewardConfig struct {
	LimitPolicy LimitPolicy      `envconfig:"LIMIT_POLICY" default:"clamp"`
	FlyPoke     FlyPokeRewards   `envconfig:"FLYPOKE"`
	Battle      BattleRewards    `envconfig:"BATTLE"`
	PokeMatch   PokeMatchRewards `envconfig:"POKEMATCH"`
	Pokedex     PokedexRewards   `envconfig:"POKEDEX"`
	Login       LoginRewards     `envconfig:"LOGIN"`
	Welcome     WelcomeRewards   `envconfig:"WELCOME"`
}

// DefaultRewards возвращает таблицу наград по умолчанию (те же значения, что в default-тегах).
func DefaultRewards() RewardConfig {
	const poke = 1_000_000_000
	return RewardConfig{
		LimitPolicy: LimitPolicyClamp,
		FlyPoke: FlyPokeRewards{
			Base:           0,
			PerPoint:       poke / 20,
			Min:            10 * poke,
			Max:            100 * poke,
			HighScoreBonus: 20 * poke,
			DailyCap:       500 * poke,
		},
		Battle: BattleRewards{
			Base:         50 * poke,
			LevelBonus:   20 * poke,
			Streak2Bonus: 10 * poke,
			Streak3Bonus: 20 * poke,
			PerfectBonus: 25 * poke,
			DailyCap:     300 * poke,
		},
		PokeMatch: PokeMatchRewards{
			Base:         20 * poke,
			PerfectBonus: 100 * poke,
			DailyCap:     200 * poke,
		},
		Pokedex: PokedexRewards{
			Base:      10 * poke,
			RareBonus: 100 * poke,
		},
		Login: LoginRewards{
			Base:             20 * poke,
			ShortStreakDays:  3,
			ShortStreakBonus: 10 * poke,
			LongStreakDays:   7,
			LongStreakBonus:  30 * poke,
		},
		Welcome: WelcomeRewards{
			Amount: 100 * poke,
		},
	}
}

// Validate проверяет внутреннюю согласованность таблицы наград.
func (r RewardConfig) Validate() error {
	if !r.LimitPolicy.Valid() {
		return fmt.Errorf("REWARD_LIMIT_POLICY должен быть %q или %q, получено %q",
			LimitPolicyClamp, LimitPolicyReject, r.LimitPolicy)
	}
	if r.FlyPoke.Min > r.FlyPoke.Max {
		return fmt.Errorf("REWARD_FLYPOKE_MIN (%d) больше REWARD_FLYPOKE_MAX (%d)", r.FlyPoke.Min, r.FlyPoke.Max)
	}
	if r.Login.ShortStreakDays == 0 || r.Login.LongStreakDays == 0 {
		return fmt.Errorf("пороги стрика REWARD_LOGIN_*_STREAK_DAYS должны быть > 0")
	}
	if r.Login.ShortStreakDays > r.Login.LongStreakDays {
		return fmt.Errorf("REWARD_LOGIN_SHORT_STREAK_DAYS больше REWARD_LOGIN_LONG_STREAK_DAYS")
	}
	return nil
}
