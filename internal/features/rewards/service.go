// Package rewards - service.go содержит движок наград.
//
// Порядок обработки события (всё внутри одного атомарного блока игрока):
// проверка → поиск дубликата по event_id → стрик (вход) или разовость (welcome) →
// расчёт → дневной лимит → запись награды. Дубликат проверяется до лимита,
// иначе повторная доставка события съела бы дневной остаток.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reward-ledger/internal/common"
	"serotonyl.ru/reward-ledger/internal/config"
	"serotonyl.ru/reward-ledger/internal/features/ledger"
	"serotonyl.ru/reward-ledger/internal/metrics"
)

// Service - движок наград. Собственного изменяемого состояния не хранит:
// всё состояние живёт в ledger.Store.
type Service struct {
	store   ledger.Store
	cfg     config.RewardConfig
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет часы (тесты, воспроизведение событий).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics включает метрики Prometheus.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService создаёт движок. cfg копируется и дальше не меняется.
func NewService(store ledger.Store, cfg config.RewardConfig, opts ...Option) *Service {
	s := &Service{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config возвращает таблицу наград, с которой работает движок.
func (s *Service) Config() config.RewardConfig { return s.cfg }

// ProcessGameEvent обрабатывает игровое событие.
//
// Ошибки: common.ErrInvalidEvent (в т.ч. ErrInvalidPayload), common.ErrUnknownGame,
// common.ErrStorageFailure. Дубликат и исчерпанный лимит - не ошибки, а Outcome.
// При любой ошибке или отмене ctx изменения не сохраняются.
func (s *Service) ProcessGameEvent(ctx context.Context, ev GameEvent) (*RewardResponse, error) {
	started := time.Now()

	if err := validateEvent(ev); err != nil {
		return nil, err
	}

	at := ev.OccurredAt
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	dailyCap := DailyCap(ev.Game, s.cfg)

	var (
		resp *RewardResponse
		ref  statsRef
	)
	err := s.store.Atomic(ctx, ev.PlayerID, func(tx ledger.Tx) error {
		var err error
		resp, ref, err = s.process(ctx, tx, ev, at, dailyCap)
		return err
	})
	if err != nil {
		return nil, s.fail(ev, err)
	}

	// Для исходов без изменений показываем итог дня исходного события.
	if !resp.Outcome.changesLedger() {
		stats, err := s.store.GetDailyStats(ctx, ev.PlayerID, ref.game, ref.day)
		if err != nil {
			return nil, s.fail(ev, err)
		}
		resp.DailyTotal = stats.TotalAwarded
	}

	var awarded uint64
	if resp.Outcome == OutcomeAwarded || resp.Outcome == OutcomeClamped {
		awarded = resp.Amount()
	}
	s.metrics.EventProcessed(string(ev.Game), string(resp.Outcome), awarded, time.Since(started))
	log.WithFields(log.Fields{
		"player_id": ev.PlayerID,
		"game":      ev.Game,
		"event_id":  ev.EventID,
		"outcome":   resp.Outcome,
		"amount":    resp.Amount(),
		"daily":     resp.DailyTotal,
	}).Debug("Событие обработано")

	return resp, nil
}

// statsRef - дневной агрегат, итог которого отдаётся в ответе.
type statsRef struct {
	game ledger.GameType
	day  time.Time
}

// process - тело атомарного блока. Каждый исход, кроме ошибки, оставляет
// запись под event_id: награду или отметку об обработке без награды.
func (s *Service) process(ctx context.Context, tx ledger.Tx, ev GameEvent, at time.Time, dailyCap uint64) (*RewardResponse, statsRef, error) {
	ref := statsRef{game: ev.Game, day: common.DateOf(at)}

	existing, err := tx.FindRewardByEvent(ctx, ev.EventID)
	if err != nil {
		return nil, ref, err
	}
	if existing != nil {
		ref = statsRef{game: existing.Game, day: rewardDay(existing)}
		return &RewardResponse{Reward: existing, Outcome: OutcomeDuplicate}, ref, nil
	}
	seen, err := tx.FindProcessedEvent(ctx, ev.EventID)
	if err != nil {
		return nil, ref, err
	}
	if seen != nil {
		ref = statsRef{game: seen.Game, day: seen.EventDate}
		return &RewardResponse{Outcome: OutcomeDuplicate}, ref, nil
	}

	// skip завершает событие без награды и запоминает его event_id.
	skip := func(resp *RewardResponse) (*RewardResponse, statsRef, error) {
		err := tx.MarkProcessed(ctx, &ledger.ProcessedEvent{
			PlayerID:    ev.PlayerID,
			EventID:     ev.EventID,
			Game:        ev.Game,
			Outcome:     string(resp.Outcome),
			EventDate:   ref.day,
			ProcessedAt: s.now().UTC(),
		})
		if err != nil {
			return nil, ref, err
		}
		return resp, ref, nil
	}

	var streak uint32
	switch ev.Game {
	case ledger.GameLogin:
		upd, err := tx.UpdateStreak(ctx, at)
		if err != nil {
			return nil, ref, err
		}
		streak = upd.Streak.CurrentStreak
		if upd.Duplicate {
			return skip(&RewardResponse{Outcome: OutcomeAlreadyLoggedIn, Streak: streak})
		}
		if upd.Stale {
			return skip(&RewardResponse{Outcome: OutcomeStaleLogin, Streak: streak})
		}
	case ledger.GameWelcome:
		granted, err := tx.HasGameReward(ctx, ledger.GameWelcome)
		if err != nil {
			return nil, ref, err
		}
		if granted {
			return skip(&RewardResponse{Outcome: OutcomeAlreadyGranted})
		}
	}

	calc, err := Compute(ev.Game, ev.EventData, streak, s.cfg)
	if err != nil {
		return nil, ref, err
	}

	amount := calc.Amount
	outcome := OutcomeAwarded
	res, err := tx.ApplyDailyDelta(ctx, ev.Game, at, amount, dailyCap)
	if err != nil {
		return nil, ref, err
	}
	if !res.Accepted {
		if s.cfg.LimitPolicy != config.LimitPolicyClamp || res.Headroom == 0 {
			return skip(&RewardResponse{
				DailyTotal:   res.Total,
				LimitReached: true,
				Outcome:      OutcomeLimitReached,
				Streak:       streak,
			})
		}
		// Блок держит блокировку игрока, поэтому остаток не мог измениться.
		clamped, err := tx.ApplyDailyDelta(ctx, ev.Game, at, res.Headroom, dailyCap)
		if err != nil {
			return nil, ref, err
		}
		if !clamped.Accepted {
			return nil, ref, fmt.Errorf("остаток лимита %d не принят хранилищем", res.Headroom)
		}
		calc.Metadata["requested"] = amount
		amount = res.Headroom
		outcome = OutcomeClamped
		res = clamped
	}

	calc.Metadata["event_date"] = common.FormatDate(at)
	saved, created, err := tx.CreateReward(ctx, &ledger.Reward{
		PlayerID:      ev.PlayerID,
		Game:          ev.Game,
		Amount:        amount,
		CreatedAt:     s.now().UTC(),
		Status:        ledger.StatusPending,
		SourceEventID: ev.EventID,
		Metadata:      calc.Metadata,
	})
	if err != nil {
		return nil, ref, err
	}
	if !created {
		// Дубликат уже проверен под той же блокировкой. Откатываем лимит.
		return nil, ref, fmt.Errorf("награда для event_id %q появилась параллельно", ev.EventID)
	}

	return &RewardResponse{
		Reward:       saved,
		DailyTotal:   res.Total,
		LimitReached: outcome == OutcomeClamped,
		Outcome:      outcome,
		Streak:       streak,
	}, ref, nil
}

// rewardDay - UTC-день события, за которое выдана награда.
func rewardDay(r *ledger.Reward) time.Time {
	if v, ok := r.Metadata["event_date"].(string); ok {
		if day, err := common.ParseDate(v); err == nil {
			return day
		}
	}
	return common.DateOf(r.CreatedAt)
}

// fail приводит ошибку к таксономии движка: ошибки данных отдаются как есть,
// всё остальное - ошибка хранилища.
func (s *Service) fail(ev GameEvent, err error) error {
	if errors.Is(err, common.ErrInvalidEvent) || errors.Is(err, common.ErrUnknownGame) {
		log.WithFields(log.Fields{
			"player_id": ev.PlayerID,
			"game":      ev.Game,
			"event_id":  ev.EventID,
		}).WithError(err).Info("Событие отклонено")
		return err
	}
	s.metrics.StorageFailure()
	log.WithFields(log.Fields{
		"player_id": ev.PlayerID,
		"game":      ev.Game,
		"event_id":  ev.EventID,
	}).WithError(err).Error("Ошибка хранилища при обработке события")
	return storageFailure(err)
}

func storageFailure(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", common.ErrStorageFailure, err)
}

func validateEvent(ev GameEvent) error {
	if strings.TrimSpace(ev.PlayerID) == "" {
		return fmt.Errorf("%w: пустой player_id", common.ErrInvalidEvent)
	}
	if strings.TrimSpace(ev.EventID) == "" {
		return fmt.Errorf("%w: пустой event_id", common.ErrInvalidEvent)
	}
	if !ev.Game.Valid() {
		return fmt.Errorf("%w: %q", common.ErrUnknownGame, ev.Game)
	}
	return nil
}

func validatePlayer(playerID string) error {
	if strings.TrimSpace(playerID) == "" {
		return fmt.Errorf("%w: пустой player_id", common.ErrInvalidEvent)
	}
	return nil
}

// --- Запросы игрока ---

// GetRewards возвращает все награды игрока в порядке создания.
func (s *Service) GetRewards(ctx context.Context, playerID string) ([]*ledger.Reward, error) {
	if err := validatePlayer(playerID); err != nil {
		return nil, err
	}
	out, err := s.store.GetRewards(ctx, playerID)
	return out, s.storageErr(err)
}

// GetPendingRewards возвращает неполученные награды в порядке создания.
func (s *Service) GetPendingRewards(ctx context.Context, playerID string) ([]*ledger.Reward, error) {
	if err := validatePlayer(playerID); err != nil {
		return nil, err
	}
	out, err := s.store.GetPendingRewards(ctx, playerID)
	return out, s.storageErr(err)
}

// ClaimRewards переводит все pending-награды в claimed и возвращает только
// переведённые этим вызовом. Выплата - забота вызывающего.
func (s *Service) ClaimRewards(ctx context.Context, playerID string) ([]*ledger.Reward, error) {
	if err := validatePlayer(playerID); err != nil {
		return nil, err
	}
	claimed, err := s.store.ClaimRewards(ctx, playerID, s.now())
	if err != nil {
		return nil, s.storageErr(err)
	}
	s.metrics.RewardsClaimed(len(claimed))
	if len(claimed) > 0 {
		log.WithFields(log.Fields{
			"player_id": playerID,
			"count":     len(claimed),
		}).Info("Награды получены")
	}
	return claimed, nil
}

// GetDailyStats возвращает дневной агрегат по игре.
func (s *Service) GetDailyStats(ctx context.Context, playerID string, game ledger.GameType, date time.Time) (*ledger.DailyStats, error) {
	if err := validatePlayer(playerID); err != nil {
		return nil, err
	}
	if !game.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownGame, game)
	}
	st, err := s.store.GetDailyStats(ctx, playerID, game, date)
	return st, s.storageErr(err)
}

// Today возвращает сегодняшний день по часам движка.
func (s *Service) Today() time.Time { return common.DateOf(s.now()) }

// GetStreak возвращает стрик входов игрока.
func (s *Service) GetStreak(ctx context.Context, playerID string) (*ledger.LoginStreak, error) {
	if err := validatePlayer(playerID); err != nil {
		return nil, err
	}
	st, err := s.store.GetStreak(ctx, playerID)
	return st, s.storageErr(err)
}

// ListStreaks возвращает стрики не короче minStreak.
func (s *Service) ListStreaks(ctx context.Context, minStreak uint32) ([]*ledger.LoginStreak, error) {
	out, err := s.store.ListStreaks(ctx, minStreak)
	return out, s.storageErr(err)
}

// DaySummary возвращает сводку начислений за день по играм.
func (s *Service) DaySummary(ctx context.Context, date time.Time) ([]ledger.GameSummary, error) {
	out, err := s.store.DaySummary(ctx, date)
	return out, s.storageErr(err)
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.storageErr(s.store.Ping(ctx))
}

func (s *Service) storageErr(err error) error {
	if err == nil {
		return nil
	}
	s.metrics.StorageFailure()
	return storageFailure(err)
}
