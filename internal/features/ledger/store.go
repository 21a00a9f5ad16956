// Package ledger - store.go описывает контракт хранилища журнала.
//
// Все изменения данных одного игрока выполняются внутри Store.Atomic:
// проверка дубликата, проверка дневного лимита и создание награды
// видны другим либо целиком, либо никак. События разных игроков
// обрабатываются параллельно без общей блокировки.
package ledger

import (
	"context"
	"math"
	"time"

	"serotonyl.ru/reward-ledger/internal/common"
)

// Tx - операции внутри атомарного блока одного игрока.
// Все изменения фиксируются, только если функция блока вернула nil.
type Tx interface {
	// FindRewardByEvent возвращает награду по event_id или nil, если её нет.
	FindRewardByEvent(ctx context.Context, eventID string) (*Reward, error)
	// FindProcessedEvent возвращает событие, обработанное без награды, или nil.
	FindProcessedEvent(ctx context.Context, eventID string) (*ProcessedEvent, error)
	// MarkProcessed запоминает event_id события без награды. Повтор ничего не меняет.
	MarkProcessed(ctx context.Context, e *ProcessedEvent) error
	// HasGameReward сообщает, есть ли у игрока хоть одна награда за игру.
	HasGameReward(ctx context.Context, game GameType) (bool, error)
	// CreateReward сохраняет награду. Если награда с тем же SourceEventID уже есть,
	// возвращает существующую и created=false, ничего не меняя.
	CreateReward(ctx context.Context, r *Reward) (saved *Reward, created bool, err error)
	// ApplyDailyDelta атомарно прибавляет amount к дневному агрегату,
	// если итог не превысит dailyCap (0 - без лимита). При отказе ничего не меняет.
	ApplyDailyDelta(ctx context.Context, game GameType, date time.Time, amount, dailyCap uint64) (DeltaResult, error)
	// GetOrInitStreak возвращает стрик, создавая пустую запись при первом обращении.
	GetOrInitStreak(ctx context.Context) (*LoginStreak, error)
	// UpdateStreak применяет вход в день eventDate.
	UpdateStreak(ctx context.Context, eventDate time.Time) (StreakUpdate, error)
}

// Store - хранилище журнала наград.
type Store interface {
	// Atomic выполняет fn как единую единицу работы для игрока playerID.
	// Блоки одного игрока сериализуются. Ошибка fn или отмена ctx откатывают всё.
	Atomic(ctx context.Context, playerID string, fn func(tx Tx) error) error

	// GetRewards возвращает все награды игрока в порядке создания.
	GetRewards(ctx context.Context, playerID string) ([]*Reward, error)
	// GetPendingRewards возвращает неполученные награды в порядке создания.
	GetPendingRewards(ctx context.Context, playerID string) ([]*Reward, error)
	// ClaimRewards переводит все pending-награды игрока в claimed и возвращает
	// только те, что перевёл этот вызов. Параллельные вызовы делят множество без пересечений.
	ClaimRewards(ctx context.Context, playerID string, at time.Time) ([]*Reward, error)
	// GetDailyStats возвращает агрегат за день (нулевой, если событий не было).
	GetDailyStats(ctx context.Context, playerID string, game GameType, date time.Time) (*DailyStats, error)
	// GetStreak возвращает стрик игрока (нулевой, если входов не было).
	GetStreak(ctx context.Context, playerID string) (*LoginStreak, error)
	// ListStreaks возвращает стрики не короче minStreak (для напоминаний).
	ListStreaks(ctx context.Context, minStreak uint32) ([]*LoginStreak, error)
	// DaySummary возвращает сводку по играм за день.
	DaySummary(ctx context.Context, date time.Time) ([]GameSummary, error)

	Ping(ctx context.Context) error
	Close()
}

// CreateReward - одиночная операция create_reward в собственном атомарном блоке.
func CreateReward(ctx context.Context, s Store, r *Reward) (saved *Reward, created bool, err error) {
	err = s.Atomic(ctx, r.PlayerID, func(tx Tx) error {
		saved, created, err = tx.CreateReward(ctx, r)
		return err
	})
	return saved, created, err
}

// ApplyDailyDelta - одиночная операция apply_daily_delta.
func ApplyDailyDelta(ctx context.Context, s Store, playerID string, game GameType, date time.Time, amount, dailyCap uint64) (res DeltaResult, err error) {
	err = s.Atomic(ctx, playerID, func(tx Tx) error {
		res, err = tx.ApplyDailyDelta(ctx, game, date, amount, dailyCap)
		return err
	})
	return res, err
}

// GetOrInitStreak - одиночная операция get_or_init_streak.
func GetOrInitStreak(ctx context.Context, s Store, playerID string) (streak *LoginStreak, err error) {
	err = s.Atomic(ctx, playerID, func(tx Tx) error {
		streak, err = tx.GetOrInitStreak(ctx)
		return err
	})
	return streak, err
}

// UpdateStreak - одиночная операция update_streak.
func UpdateStreak(ctx context.Context, s Store, playerID string, eventDate time.Time) (upd StreakUpdate, err error) {
	err = s.Atomic(ctx, playerID, func(tx Tx) error {
		upd, err = tx.UpdateStreak(ctx, eventDate)
		return err
	})
	return upd, err
}

// evaluateDelta - правило дневного лимита, общее для всех реализаций.
// current может оказаться больше лимита, если лимит уменьшили в конфиге:
// тогда остаток считается нулевым.
func evaluateDelta(current, amount, dailyCap uint64) DeltaResult {
	limit := dailyCap
	if limit == 0 {
		limit = math.MaxUint64
	}
	var headroom uint64
	if current < limit {
		headroom = limit - current
	}
	if amount > headroom {
		return DeltaResult{Accepted: false, Total: current, Headroom: headroom}
	}
	return DeltaResult{Accepted: true, Total: current + amount, Headroom: headroom}
}

// advanceStreak - правило стрика относительно дня события (UTC):
// вчера → +1, сегодня → дубликат, раньше последнего входа → устаревшее событие,
// иначе (пропуск или первый вход) → 1.
func advanceStreak(s LoginStreak, eventDate time.Time) StreakUpdate {
	day := common.DateOf(eventDate)

	if s.LastLoginDate != nil {
		last := common.DateOf(*s.LastLoginDate)
		switch {
		case last.Equal(day):
			return StreakUpdate{Streak: s, Duplicate: true}
		case day.Before(last):
			return StreakUpdate{Streak: s, Stale: true}
		case common.IsYesterday(last, day):
			if s.CurrentStreak < math.MaxUint32 {
				s.CurrentStreak++
			}
		default:
			s.CurrentStreak = 1
		}
	} else {
		s.CurrentStreak = 1
	}

	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	s.LastLoginDate = &day
	return StreakUpdate{Streak: s}
}
