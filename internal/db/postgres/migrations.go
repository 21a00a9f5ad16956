package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// migration - одна версия схемы. Версии применяются строго по возрастанию
// и никогда не переписываются: изменения схемы добавляются новой версией.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{1, "rewards", migration001Rewards},
	{2, "daily_stats", migration002DailyStats},
	{3, "login_streaks", migration003LoginStreaks},
	{4, "members", migration004Members},
	{5, "admin", migration005Admin},
	{6, "processed_events", migration006ProcessedEvents},
}

// Migrate создаёт таблицу версий и применяет недостающие миграции.
// Повторный вызов безопасен.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ошибка создания таблицы миграций: %w", err)
	}

	for _, m := range migrations {
		applied, err := ExecMigrationSQL(ctx, pool, m.version, m.sql)
		if err != nil {
			return fmt.Errorf("миграция %d (%s): %w", m.version, m.name, err)
		}
		if applied {
			log.WithField("name", m.name).Infof("Миграция %d применена", m.version)
		}
	}
	return nil
}

// Суммы - BIGINT в минимальных единицах токена. Отрицательных значений
// быть не может, CHECK ловит ошибки приведения uint64 → int64.

const migration001Rewards = `
CREATE TABLE IF NOT EXISTS rewards (
    seq BIGSERIAL PRIMARY KEY,
    id UUID UNIQUE NOT NULL,
    player_id VARCHAR(255) NOT NULL,
    game VARCHAR(32) NOT NULL,
    amount BIGINT NOT NULL CHECK (amount >= 0),
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    source_event_id VARCHAR(255) NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    claimed_at TIMESTAMPTZ,
    UNIQUE (player_id, source_event_id)
);
CREATE INDEX IF NOT EXISTS idx_rewards_player_seq ON rewards(player_id, seq);
CREATE INDEX IF NOT EXISTS idx_rewards_pending ON rewards(player_id) WHERE status = 'pending';
`

const migration002DailyStats = `
CREATE TABLE IF NOT EXISTS daily_stats (
    player_id VARCHAR(255) NOT NULL,
    game VARCHAR(32) NOT NULL,
    stat_date DATE NOT NULL,
    total_awarded BIGINT NOT NULL DEFAULT 0 CHECK (total_awarded >= 0),
    event_count BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (player_id, game, stat_date)
);
CREATE INDEX IF NOT EXISTS idx_daily_stats_date ON daily_stats(stat_date);
`

const migration003LoginStreaks = `
CREATE TABLE IF NOT EXISTS login_streaks (
    player_id VARCHAR(255) PRIMARY KEY,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_login_date DATE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_login_streaks_current ON login_streaks(current_streak);
`

const migration004Members = `
CREATE TABLE IF NOT EXISTS members (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT UNIQUE NOT NULL,
    username VARCHAR(255),
    first_name VARCHAR(255) NOT NULL,
    last_name VARCHAR(255),
    wallet_address VARCHAR(64),
    is_banned BOOLEAN DEFAULT FALSE,
    joined_at TIMESTAMPTZ DEFAULT NOW(),
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_members_username ON members(LOWER(username));
`

const migration005Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    session_token VARCHAR(255) UNIQUE,
    authenticated_at TIMESTAMPTZ DEFAULT NOW(),
    expires_at TIMESTAMPTZ,
    last_activity TIMESTAMPTZ DEFAULT NOW(),
    is_active BOOLEAN DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user_id ON admin_sessions(user_id);
CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT,
    attempt_time TIMESTAMPTZ DEFAULT NOW(),
    success BOOLEAN DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_admin_login_attempts_user ON admin_login_attempts(user_id, attempt_time);
`

// События, обработанные без награды. Вместе с rewards.source_event_id
// покрывают все event_id, которые движок уже видел.
const migration006ProcessedEvents = `
CREATE TABLE IF NOT EXISTS processed_events (
    player_id VARCHAR(255) NOT NULL,
    event_id VARCHAR(255) NOT NULL,
    game VARCHAR(32) NOT NULL,
    outcome VARCHAR(32) NOT NULL,
    event_date DATE NOT NULL,
    processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (player_id, event_id)
);
`
