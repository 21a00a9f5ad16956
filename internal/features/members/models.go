// Package members связывает пользователей Telegram с игроками журнала наград
// и хранит адрес кошелька для выплат.
// models.go описывает участника и формат player_id.
package members

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PlayerIDPrefix - префикс player_id для игроков из Telegram.
// Игровые серверы могут использовать собственные player_id без префикса.
const PlayerIDPrefix = "tg:"

// PlayerID возвращает player_id журнала для Telegram-пользователя.
//
//	PlayerID(123456) → "tg:123456"
func PlayerID(userID int64) string {
	return PlayerIDPrefix + strconv.FormatInt(userID, 10)
}

// UserIDFromPlayer извлекает Telegram user ID из player_id.
// ok == false, если игрок не из Telegram.
func UserIDFromPlayer(playerID string) (userID int64, ok bool) {
	rest, found := strings.CutPrefix(playerID, PlayerIDPrefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Member - участник сообщества.
type Member struct {
	ID            int64     `db:"id"`
	UserID        int64     `db:"user_id"` // Telegram user ID
	Username      string    `db:"username"`
	FirstName     string    `db:"first_name"`
	LastName      string    `db:"last_name"`
	WalletAddress *string   `db:"wallet_address"` // nil, пока игрок не привязал кошелёк
	IsBanned      bool      `db:"is_banned"`
	JoinedAt      time.Time `db:"joined_at"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// UpdateInfo - данные профиля, которые могли поменяться при повторном входе.
type UpdateInfo struct {
	Username  string
	FirstName string
	LastName  string
}

// PlayerID возвращает player_id участника.
func (m *Member) PlayerID() string { return PlayerID(m.UserID) }

// DisplayName возвращает @username или имя с фамилией.
func (m *Member) DisplayName() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	name := m.FirstName
	if m.LastName != "" {
		name += " " + m.LastName
	}
	if name == "" {
		return fmt.Sprintf("id%d", m.UserID)
	}
	return name
}
