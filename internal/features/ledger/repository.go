// Package ledger - repository.go реализует Store поверх PostgreSQL (pgx).
// Каждый атомарный блок - одна транзакция БД, в начале которой берётся
// транзакционная advisory-блокировка по player_id. Она сериализует блоки
// одного игрока даже тогда, когда строк ещё нет (первое событие дня).
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/reward-ledger/internal/common"
)

// Repository - хранилище журнала в PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

// NewRepository создаёт репозиторий журнала.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// querier - общее у pgx.Tx и pgxpool.Pool, чтобы сканирование не дублировать.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const rewardColumns = `seq, id::text, player_id, game, amount, status, source_event_id, metadata, created_at, claimed_at`

// Atomic открывает транзакцию, блокирует игрока и выполняет fn.
func (r *Repository) Atomic(ctx context.Context, playerID string, fn func(tx Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	// Откатываем транзакцию, если что-то пошло не так
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, playerID); err != nil {
		return fmt.Errorf("ошибка блокировки игрока %s: %w", playerID, err)
	}

	if err := fn(&pgTx{tx: tx, playerID: playerID}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// pgTx - операции внутри транзакции одного игрока.
type pgTx struct {
	tx       pgx.Tx
	playerID string
}

func (t *pgTx) FindRewardByEvent(ctx context.Context, eventID string) (*Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE player_id = $1 AND source_event_id = $2`
	rw, err := scanReward(t.tx.QueryRow(ctx, query, t.playerID, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка поиска награды по событию %s: %w", eventID, err)
	}
	return rw.Reward, nil
}

func (t *pgTx) HasGameReward(ctx context.Context, game GameType) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM rewards WHERE player_id = $1 AND game = $2)`,
		t.playerID, string(game),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки наград за %s: %w", game, err)
	}
	return exists, nil
}

func (t *pgTx) FindProcessedEvent(ctx context.Context, eventID string) (*ProcessedEvent, error) {
	e := ProcessedEvent{PlayerID: t.playerID, EventID: eventID}
	var game string
	err := t.tx.QueryRow(ctx, `
		SELECT game, outcome, event_date, processed_at
		FROM processed_events
		WHERE player_id = $1 AND event_id = $2
	`, t.playerID, eventID).Scan(&game, &e.Outcome, &e.EventDate, &e.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка поиска обработанного события %s: %w", eventID, err)
	}
	e.Game = GameType(game)
	e.EventDate = common.DateOf(e.EventDate)
	e.ProcessedAt = e.ProcessedAt.UTC()
	return &e, nil
}

func (t *pgTx) MarkProcessed(ctx context.Context, e *ProcessedEvent) error {
	if e.PlayerID != t.playerID {
		return fmt.Errorf("событие игрока %q в блоке игрока %q", e.PlayerID, t.playerID)
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO processed_events (player_id, event_id, game, outcome, event_date, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (player_id, event_id) DO NOTHING
	`, e.PlayerID, e.EventID, string(e.Game), e.Outcome, common.DateOf(e.EventDate), e.ProcessedAt.UTC())
	if err != nil {
		return fmt.Errorf("ошибка записи обработанного события %s: %w", e.EventID, err)
	}
	return nil
}

func (t *pgTx) CreateReward(ctx context.Context, r *Reward) (*Reward, bool, error) {
	if r.PlayerID != t.playerID {
		return nil, false, fmt.Errorf("награда игрока %q в блоке игрока %q", r.PlayerID, t.playerID)
	}

	saved := r.Clone()
	if saved.ID == uuid.Nil {
		saved.ID = uuid.New()
	}
	if saved.Status == "" {
		saved.Status = StatusPending
	}
	metadata := saved.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	query := `
		INSERT INTO rewards (id, player_id, game, amount, status, source_event_id, metadata, created_at, claimed_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (player_id, source_event_id) DO NOTHING
		RETURNING seq
	`
	var seq int64
	err := t.tx.QueryRow(ctx, query,
		saved.ID.String(), saved.PlayerID, string(saved.Game), saved.Amount,
		string(saved.Status), saved.SourceEventID, metadata, saved.CreatedAt.UTC(), saved.ClaimedAt,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		// Конфликт по (player_id, source_event_id): награда уже есть
		existing, findErr := t.FindRewardByEvent(ctx, saved.SourceEventID)
		if findErr != nil {
			return nil, false, findErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка создания награды: %w", err)
	}
	return saved, true, nil
}

func (t *pgTx) ApplyDailyDelta(ctx context.Context, game GameType, date time.Time, amount, dailyCap uint64) (DeltaResult, error) {
	day := common.DateOf(date)

	// Блокируем строку агрегата (если она есть) до конца транзакции
	var current uint64
	err := t.tx.QueryRow(ctx, `
		SELECT total_awarded FROM daily_stats
		WHERE player_id = $1 AND game = $2 AND stat_date = $3
		FOR UPDATE
	`, t.playerID, string(game), day).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return DeltaResult{}, fmt.Errorf("ошибка чтения дневной статистики: %w", err)
	}

	res := evaluateDelta(current, amount, dailyCap)
	if !res.Accepted {
		return res, nil
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO daily_stats (player_id, game, stat_date, total_awarded, event_count)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (player_id, game, stat_date) DO UPDATE
		SET total_awarded = daily_stats.total_awarded + EXCLUDED.total_awarded,
		    event_count = daily_stats.event_count + 1,
		    updated_at = NOW()
	`, t.playerID, string(game), day, amount)
	if err != nil {
		return DeltaResult{}, fmt.Errorf("ошибка обновления дневной статистики: %w", err)
	}
	return res, nil
}

func (t *pgTx) GetOrInitStreak(ctx context.Context) (*LoginStreak, error) {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO login_streaks (player_id) VALUES ($1)
		ON CONFLICT (player_id) DO NOTHING
	`, t.playerID); err != nil {
		return nil, fmt.Errorf("ошибка создания стрика: %w", err)
	}

	s, err := scanStreak(t.tx.QueryRow(ctx, `
		SELECT player_id, current_streak, longest_streak, last_login_date
		FROM login_streaks WHERE player_id = $1
		FOR UPDATE
	`, t.playerID))
	if err != nil {
		return nil, fmt.Errorf("стрик не найден (player_id=%s): %w", t.playerID, err)
	}
	return s, nil
}

func (t *pgTx) UpdateStreak(ctx context.Context, eventDate time.Time) (StreakUpdate, error) {
	current, err := t.GetOrInitStreak(ctx)
	if err != nil {
		return StreakUpdate{}, err
	}

	upd := advanceStreak(*current, eventDate)
	if upd.Duplicate || upd.Stale {
		return upd, nil
	}

	_, err = t.tx.Exec(ctx, `
		UPDATE login_streaks
		SET current_streak = $2, longest_streak = $3, last_login_date = $4, updated_at = NOW()
		WHERE player_id = $1
	`, t.playerID, upd.Streak.CurrentStreak, upd.Streak.LongestStreak, *upd.Streak.LastLoginDate)
	if err != nil {
		return StreakUpdate{}, fmt.Errorf("ошибка обновления стрика: %w", err)
	}
	return upd, nil
}

// GetRewards возвращает все награды игрока в порядке создания.
func (r *Repository) GetRewards(ctx context.Context, playerID string) ([]*Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE player_id = $1 ORDER BY seq`
	return queryRewards(ctx, r.db, query, playerID)
}

// GetPendingRewards возвращает неполученные награды в порядке создания.
func (r *Repository) GetPendingRewards(ctx context.Context, playerID string) ([]*Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE player_id = $1 AND status = 'pending' ORDER BY seq`
	return queryRewards(ctx, r.db, query, playerID)
}

// ClaimRewards - один UPDATE с условием status = 'pending'. Второй параллельный
// UPDATE дождётся блокировок строк, перепроверит условие и пропустит уже полученные.
func (r *Repository) ClaimRewards(ctx context.Context, playerID string, at time.Time) ([]*Reward, error) {
	query := `
		UPDATE rewards SET status = 'claimed', claimed_at = $2
		WHERE player_id = $1 AND status = 'pending'
		RETURNING ` + rewardColumns
	rows, err := r.db.Query(ctx, query, playerID, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("ошибка получения наград: %w", err)
	}
	claimed, err := collectRewards(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING не гарантирует порядок
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].seq < claimed[j].seq })

	out := make([]*Reward, 0, len(claimed))
	for _, c := range claimed {
		out = append(out, c.Reward)
	}
	return out, nil
}

// GetDailyStats возвращает агрегат за день.
func (r *Repository) GetDailyStats(ctx context.Context, playerID string, game GameType, date time.Time) (*DailyStats, error) {
	day := common.DateOf(date)
	st := &DailyStats{PlayerID: playerID, Game: game, Date: day}

	err := r.db.QueryRow(ctx, `
		SELECT total_awarded, event_count FROM daily_stats
		WHERE player_id = $1 AND game = $2 AND stat_date = $3
	`, playerID, string(game), day).Scan(&st.TotalAwarded, &st.EventCount)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ошибка получения дневной статистики: %w", err)
	}
	return st, nil
}

// GetStreak возвращает стрик игрока без создания записи.
func (r *Repository) GetStreak(ctx context.Context, playerID string) (*LoginStreak, error) {
	s, err := scanStreak(r.db.QueryRow(ctx, `
		SELECT player_id, current_streak, longest_streak, last_login_date
		FROM login_streaks WHERE player_id = $1
	`, playerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &LoginStreak{PlayerID: playerID}, nil
		}
		return nil, fmt.Errorf("ошибка получения стрика: %w", err)
	}
	return s, nil
}

// ListStreaks возвращает стрики с серией >= minStreak.
func (r *Repository) ListStreaks(ctx context.Context, minStreak uint32) ([]*LoginStreak, error) {
	rows, err := r.db.Query(ctx, `
		SELECT player_id, current_streak, longest_streak, last_login_date
		FROM login_streaks
		WHERE current_streak >= $1
		ORDER BY player_id
	`, minStreak)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения стриков: %w", err)
	}
	defer rows.Close()

	var out []*LoginStreak
	for rows.Next() {
		s, err := scanStreak(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования стрика: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DaySummary возвращает сводку по играм за день.
func (r *Repository) DaySummary(ctx context.Context, date time.Time) ([]GameSummary, error) {
	day := common.DateOf(date)
	rows, err := r.db.Query(ctx, `
		SELECT game, COUNT(DISTINCT player_id), SUM(event_count)::BIGINT, SUM(total_awarded)::BIGINT
		FROM daily_stats
		WHERE stat_date = $1
		GROUP BY game
		ORDER BY game
	`, day)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сводки за %s: %w", common.FormatDate(day), err)
	}
	defer rows.Close()

	var out []GameSummary
	for rows.Next() {
		var (
			sum  = GameSummary{Date: day}
			game string
		)
		if err := rows.Scan(&game, &sum.Players, &sum.EventCount, &sum.TotalAwarded); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сводки: %w", err)
		}
		sum.Game = GameType(game)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Close ничего не делает: пулом владеет приложение.
func (r *Repository) Close() {}

// seqReward - награда вместе с порядковым номером строки.
type seqReward struct {
	*Reward
	seq int64
}

func scanReward(row pgx.Row) (seqReward, error) {
	var (
		rw       = seqReward{Reward: &Reward{}}
		id       string
		game     string
		status   string
		metadata map[string]any
	)
	err := row.Scan(
		&rw.seq, &id, &rw.PlayerID, &game, &rw.Amount, &status,
		&rw.SourceEventID, &metadata, &rw.CreatedAt, &rw.ClaimedAt,
	)
	if err != nil {
		return seqReward{}, err
	}
	if rw.ID, err = uuid.Parse(id); err != nil {
		return seqReward{}, fmt.Errorf("некорректный id награды %q: %w", id, err)
	}
	rw.Game = GameType(game)
	rw.Status = RewardStatus(status)
	if len(metadata) > 0 {
		rw.Metadata = metadata
	}
	rw.CreatedAt = rw.CreatedAt.UTC()
	if rw.ClaimedAt != nil {
		t := rw.ClaimedAt.UTC()
		rw.ClaimedAt = &t
	}
	return rw, nil
}

func collectRewards(rows pgx.Rows) ([]seqReward, error) {
	defer rows.Close()

	var out []seqReward
	for rows.Next() {
		rw, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования награды: %w", err)
		}
		out = append(out, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

func queryRewards(ctx context.Context, q querier, query string, args ...any) ([]*Reward, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса наград: %w", err)
	}
	list, err := collectRewards(rows)
	if err != nil {
		return nil, err
	}
	out := make([]*Reward, 0, len(list))
	for _, rw := range list {
		out = append(out, rw.Reward)
	}
	return out, nil
}

func scanStreak(row pgx.Row) (*LoginStreak, error) {
	var s LoginStreak
	if err := row.Scan(&s.PlayerID, &s.CurrentStreak, &s.LongestStreak, &s.LastLoginDate); err != nil {
		return nil, err
	}
	if s.LastLoginDate != nil {
		d := common.DateOf(*s.LastLoginDate)
		s.LastLoginDate = &d
	}
	return &s, nil
}
