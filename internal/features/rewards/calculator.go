package rewards

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/bits"

	"serotonyl.ru/reward-ledger/internal/common"
	"serotonyl.ru/reward-ledger/internal/config"
	"serotonyl.ru/reward-ledger/internal/features/ledger"
)

// Calculation - рассчитанная сумма и её составляющие для metadata награды.
type Calculation struct {
	Amount   uint64
	Metadata map[string]any
}

// Compute рассчитывает награду за событие. Функция чистая: без ввода-вывода,
// одинаковые аргументы всегда дают одинаковый результат.
//
// streak используется только для входа и должен быть уже обновлён хранилищем.
// Ошибки некорректных данных оборачивают common.ErrInvalidPayload.
func Compute(game ledger.GameType, data json.RawMessage, streak uint32, cfg config.RewardConfig) (Calculation, error) {
	switch game {
	case ledger.GameFlyPoke:
		return computeFlyPoke(data, cfg.FlyPoke)
	case ledger.GameBattle:
		return computeBattle(data, cfg.Battle)
	case ledger.GamePokeMatch:
		return computePokeMatch(data, cfg.PokeMatch)
	case ledger.GamePokedex:
		return computePokedex(data, cfg.Pokedex)
	case ledger.GameLogin:
		return computeLogin(streak, cfg.Login), nil
	case ledger.GameWelcome:
		return Calculation{
			Amount:   cfg.Welcome.Amount,
			Metadata: map[string]any{"base": cfg.Welcome.Amount},
		}, nil
	default:
		return Calculation{}, fmt.Errorf("%w: %q", common.ErrUnknownGame, game)
	}
}

// DailyCap возвращает дневной лимит игры (0 - без лимита).
func DailyCap(game ledger.GameType, cfg config.RewardConfig) uint64 {
	switch game {
	case ledger.GameFlyPoke:
		return cfg.FlyPoke.DailyCap
	case ledger.GameBattle:
		return cfg.Battle.DailyCap
	case ledger.GamePokeMatch:
		return cfg.PokeMatch.DailyCap
	case ledger.GamePokedex:
		return cfg.Pokedex.DailyCap
	case ledger.GameLogin:
		return cfg.Login.DailyCap
	case ledger.GameWelcome:
		return cfg.Welcome.DailyCap
	}
	return 0
}

// FlyPoke: clamp(base + score*per_point, [min, max]), бонус за рекорд - сверху.
func computeFlyPoke(data json.RawMessage, c config.FlyPokeRewards) (Calculation, error) {
	var d flyPokeData
	if err := decodePayload(data, &d); err != nil {
		return Calculation{}, err
	}
	if d.Score == nil {
		return Calculation{}, fmt.Errorf("%w: flypoke: нет поля score", common.ErrInvalidPayload)
	}
	if *d.Score < 0 {
		return Calculation{}, fmt.Errorf("%w: flypoke: score < 0 (%d)", common.ErrInvalidPayload, *d.Score)
	}

	score := uint64(*d.Score)
	amount := addSat(c.Base, mulSat(score, c.PerPoint))
	if amount < c.Min {
		amount = c.Min
	}
	if amount > c.Max {
		amount = c.Max
	}

	meta := map[string]any{"score": score, "base": c.Base, "clamped": amount}
	if d.IsNewHighScore {
		amount = addSat(amount, c.HighScoreBonus)
		meta["high_score_bonus"] = c.HighScoreBonus
	}
	return Calculation{Amount: amount, Metadata: meta}, nil
}

// Battle: base + level*level_bonus + бонус серии побед, perfect_victory - сверху.
func computeBattle(data json.RawMessage, c config.BattleRewards) (Calculation, error) {
	var d battleData
	if err := decodePayload(data, &d); err != nil {
		return Calculation{}, err
	}
	if d.Level == nil {
		return Calculation{}, fmt.Errorf("%w: battle: нет поля level", common.ErrInvalidPayload)
	}
	if *d.Level < 0 {
		return Calculation{}, fmt.Errorf("%w: battle: level < 0 (%d)", common.ErrInvalidPayload, *d.Level)
	}
	var winStreak uint64
	if d.Streak != nil {
		if *d.Streak < 0 {
			return Calculation{}, fmt.Errorf("%w: battle: streak < 0 (%d)", common.ErrInvalidPayload, *d.Streak)
		}
		winStreak = uint64(*d.Streak)
	}

	level := uint64(*d.Level)
	levelBonus := mulSat(level, c.LevelBonus)
	var streakBonus uint64
	switch {
	case winStreak >= 3:
		streakBonus = c.Streak3Bonus
	case winStreak == 2:
		streakBonus = c.Streak2Bonus
	}

	amount := addSat(addSat(c.Base, levelBonus), streakBonus)
	meta := map[string]any{
		"level":        level,
		"win_streak":   winStreak,
		"base":         c.Base,
		"level_bonus":  levelBonus,
		"streak_bonus": streakBonus,
	}
	if d.PerfectVictory {
		amount = addSat(amount, c.PerfectBonus)
		meta["perfect_bonus"] = c.PerfectBonus
	}
	return Calculation{Amount: amount, Metadata: meta}, nil
}

func computePokeMatch(data json.RawMessage, c config.PokeMatchRewards) (Calculation, error) {
	var d pokeMatchData
	if err := decodePayload(data, &d); err != nil {
		return Calculation{}, err
	}
	if d.Perfect == nil {
		return Calculation{}, fmt.Errorf("%w: pokematch: нет поля perfect", common.ErrInvalidPayload)
	}

	amount := c.Base
	meta := map[string]any{"base": c.Base, "perfect": *d.Perfect}
	if d.Score != nil {
		meta["score"] = *d.Score
	}
	if *d.Perfect {
		amount = addSat(amount, c.PerfectBonus)
		meta["perfect_bonus"] = c.PerfectBonus
	}
	return Calculation{Amount: amount, Metadata: meta}, nil
}

func computePokedex(data json.RawMessage, c config.PokedexRewards) (Calculation, error) {
	var d pokedexData
	if err := decodePayload(data, &d); err != nil {
		return Calculation{}, err
	}
	if d.PokemonID == nil || *d.PokemonID == "" {
		return Calculation{}, fmt.Errorf("%w: pokedex: нет поля pokemon_id", common.ErrInvalidPayload)
	}

	amount := c.Base
	meta := map[string]any{"base": c.Base, "pokemon_id": *d.PokemonID}
	if d.IsRare {
		amount = addSat(amount, c.RareBonus)
		meta["rare_bonus"] = c.RareBonus
	}
	return Calculation{Amount: amount, Metadata: meta}, nil
}

// Login: бонусы порогов суммируются.
func computeLogin(streak uint32, c config.LoginRewards) Calculation {
	amount := c.Base
	var bonus uint64
	if streak >= c.ShortStreakDays {
		bonus = addSat(bonus, c.ShortStreakBonus)
	}
	if streak >= c.LongStreakDays {
		bonus = addSat(bonus, c.LongStreakBonus)
	}
	amount = addSat(amount, bonus)
	return Calculation{
		Amount:   amount,
		Metadata: map[string]any{"base": c.Base, "streak": streak, "streak_bonus": bonus},
	}
}

// decodePayload разбирает event_data. Отсутствующие данные равны пустому объекту,
// дальше каждая игра сама проверяет обязательные поля.
func decodePayload(data json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}
	return nil
}

func addSat(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

func mulSat(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}
