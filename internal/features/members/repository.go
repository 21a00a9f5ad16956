// Package members - repository.go работает с таблицей members.
package members

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/reward-ledger/internal/common"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const memberColumns = `id, user_id, COALESCE(username, ''), first_name, COALESCE(last_name, ''),
	wallet_address, is_banned, joined_at, created_at, updated_at`

// Create добавляет участника. Возвращает true, если запись новая.
// На конфликте по user_id обновляет только имя и username (кошелёк и бан не трогает).
func (r *Repository) Create(ctx context.Context, m *Member) (bool, error) {
	query := `
		INSERT INTO members (user_id, username, first_name, last_name, is_banned, joined_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    updated_at = NOW()
		RETURNING (xmax = 0)
	`
	var inserted bool
	err := r.db.QueryRow(ctx, query,
		m.UserID, m.Username, m.FirstName, m.LastName, time.Now().UTC(),
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("ошибка создания/обновления участника: %w", err)
	}
	return inserted, nil
}

// GetByUserID возвращает участника. Если его нет - ошибка с common.ErrUserNotFound.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE user_id = $1`
	m, err := scanMember(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user_id=%d: %w", userID, common.ErrUserNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения участника (user_id=%d): %w", userID, err)
	}
	return m, nil
}

// GetByUsername ищет участника по @username без учёта регистра.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE LOWER(username) = LOWER($1)`
	m, err := scanMember(r.db.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("username=%s: %w", username, common.ErrUserNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения участника (username=%s): %w", username, err)
	}
	return m, nil
}

func (r *Repository) Exists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM members WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки существования: %w", err)
	}
	return exists, nil
}

func (r *Repository) UpdateInfo(ctx context.Context, userID int64, info UpdateInfo) error {
	query := `
		UPDATE members
		SET username = $2, first_name = $3, last_name = $4, updated_at = NOW()
		WHERE user_id = $1
	`
	if _, err := r.db.Exec(ctx, query, userID, info.Username, info.FirstName, info.LastName); err != nil {
		return fmt.Errorf("ошибка обновления данных участника: %w", err)
	}
	return nil
}

// SetWallet привязывает кошелёк. Адрес должен быть уже проверен.
func (r *Repository) SetWallet(ctx context.Context, userID int64, wallet string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE members SET wallet_address = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, wallet,
	)
	if err != nil {
		return fmt.Errorf("ошибка привязки кошелька: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user_id=%d: %w", userID, common.ErrUserNotFound)
	}
	return nil
}

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	err := row.Scan(
		&m.ID, &m.UserID, &m.Username, &m.FirstName, &m.LastName,
		&m.WalletAddress, &m.IsBanned,
		&m.JoinedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
