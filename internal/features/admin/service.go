// Package admin - service.go: аутентификация администраторов и отчёты по журналу.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/reward-ledger/internal/common"
	"serotonyl.ru/reward-ledger/internal/features/ledger"
	"serotonyl.ru/reward-ledger/internal/features/members"
	"serotonyl.ru/reward-ledger/internal/features/rewards"
)

// MemberLookup ищет участников Telegram (members.Service).
type MemberLookup interface {
	GetByUserID(ctx context.Context, userID int64) (*members.Member, error)
	GetByUsername(ctx context.Context, username string) (*members.Member, error)
}

// Service управляет админ-командами.
type Service struct {
	store        SessionStore
	rewards      *rewards.Service
	members      MemberLookup
	passwordHash string
	isAdmin      func(userID int64) bool
	now          func() time.Time
}

// NewService создаёт сервис. isAdmin - проверка по ADMIN_IDS.
func NewService(store SessionStore, rewardsService *rewards.Service, lookup MemberLookup, passwordHash string, isAdmin func(int64) bool) *Service {
	return &Service{
		store:        store,
		rewards:      rewardsService,
		members:      lookup,
		passwordHash: passwordHash,
		isAdmin:      isAdmin,
		now:          time.Now,
	}
}

// Login проверяет пароль администратора (Argon2id) и открывает сессию на SessionTTL.
// 3 неудачные попытки за час блокируют вход на час.
func (s *Service) Login(ctx context.Context, userID int64, password string) error {
	if !s.isAdmin(userID) {
		return common.ErrNotAdmin
	}

	failed, err := s.store.CountFailedAttempts(ctx, userID, s.now().Add(-LockoutPeriod))
	if err != nil {
		return err
	}
	if failed >= MaxFailedAttempts {
		return common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.passwordHash)
	if err := s.store.LogAttempt(ctx, userID, match); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось записать попытку входа")
	}
	if !match {
		log.WithField("user_id", userID).Warn("Неверный пароль администратора")
		return common.ErrWrongPassword
	}

	session := &AdminSession{
		UserID:       userID,
		SessionToken: generateSecureToken(),
		ExpiresAt:    s.now().Add(SessionTTL),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return err
	}
	log.WithField("user_id", userID).Info("Администратор вошёл")
	return nil
}

// Logout закрывает сессию.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.store.DeactivateSession(ctx, userID)
}

// Authorize проверяет, что пользователь - администратор с живой сессией.
func (s *Service) Authorize(ctx context.Context, userID int64) error {
	if !s.isAdmin(userID) {
		return common.ErrNotAdmin
	}
	session, err := s.store.GetActiveSession(ctx, userID)
	if err != nil {
		return err
	}
	if session == nil || !session.ExpiresAt.After(s.now()) {
		return common.ErrSessionExpired
	}
	if err := s.store.UpdateActivity(ctx, userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Debug("Не удалось обновить активность сессии")
	}
	return nil
}

// ResolvePlayer превращает аргумент команды в player_id:
// "@username" ищется среди участников, "tg:<id>" и прочие player_id берутся как есть.
func (s *Service) ResolvePlayer(ctx context.Context, arg string) (playerID, displayName string, err error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", "", fmt.Errorf("%w: пустой player_id", common.ErrInvalidEvent)
	}
	if strings.HasPrefix(arg, "@") {
		if s.members == nil {
			return "", "", common.ErrUserNotFound
		}
		m, err := s.members.GetByUsername(ctx, arg)
		if err != nil {
			return "", "", err
		}
		return m.PlayerID(), m.DisplayName(), nil
	}
	return arg, "", nil
}

// PlayerReport собирает отчёт по игроку.
func (s *Service) PlayerReport(ctx context.Context, arg string) (*PlayerReport, error) {
	playerID, name, err := s.ResolvePlayer(ctx, arg)
	if err != nil {
		return nil, err
	}

	list, err := s.rewards.GetRewards(ctx, playerID)
	if err != nil {
		return nil, err
	}
	report := &PlayerReport{PlayerID: playerID, DisplayName: name, TotalRewards: len(list)}
	for _, r := range list {
		report.TotalAmount += r.Amount
		if r.Status == ledger.StatusPending {
			report.PendingCount++
			report.PendingAmount += r.Amount
		} else {
			report.ClaimedAmount += r.Amount
		}
	}

	if report.Streak, err = s.rewards.GetStreak(ctx, playerID); err != nil {
		return nil, err
	}

	today := s.rewards.Today()
	for _, game := range ledger.AllGames() {
		st, err := s.rewards.GetDailyStats(ctx, playerID, game, today)
		if err != nil {
			return nil, err
		}
		if st.EventCount > 0 {
			report.Today = append(report.Today, st)
		}
	}

	if userID, ok := members.UserIDFromPlayer(playerID); ok && s.members != nil {
		m, err := s.members.GetByUserID(ctx, userID)
		switch {
		case err == nil:
			report.DisplayName = m.DisplayName()
			if m.WalletAddress != nil {
				report.Wallet = *m.WalletAddress
			}
		case !errors.Is(err, common.ErrUserNotFound):
			return nil, err
		}
	}
	return report, nil
}

// DaySummary возвращает сводку журнала за день.
func (s *Service) DaySummary(ctx context.Context, date time.Time) ([]ledger.GameSummary, error) {
	return s.rewards.DaySummary(ctx, date)
}

// Today - текущий день журнала (UTC).
func (s *Service) Today() time.Time { return s.rewards.Today() }

// --- Криптографические утилиты ---

// verifyArgon2id проверяет пароль по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		log.Error("Неподдерживаемая версия Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expectedHash) == 0 {
		log.Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}

// generateSecureToken генерирует токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
