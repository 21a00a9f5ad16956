// Package members - service.go: регистрация участников и привязка кошелька.
package members

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reward-ledger/internal/common"
	"serotonyl.ru/reward-ledger/internal/features/settlement"
)

// Service управляет участниками.
type Service struct {
	repo *Repository
}

// NewService создаёт сервис участников.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// HandleNewMember регистрирует вступившего пользователя.
// Возвращает true, если это первый вход (ему положен приветственный бонус).
func (s *Service) HandleNewMember(ctx context.Context, userID int64, username, firstName, lastName string) (bool, error) {
	created, err := s.repo.Create(ctx, &Member{
		UserID:    userID,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
	})
	if err != nil {
		return false, fmt.Errorf("ошибка регистрации участника: %w", err)
	}

	fields := log.Fields{"user_id": userID, "username": username}
	if created {
		log.WithFields(fields).Info("Новый участник зарегистрирован")
	} else {
		log.WithFields(fields).Info("Участник перезашёл в чат, данные обновлены")
	}
	return created, nil
}

// EnsureMember гарантирует, что пользователь есть в базе (первое сообщение в DM или чате).
func (s *Service) EnsureMember(ctx context.Context, userID int64, username, firstName, lastName string) error {
	exists, err := s.repo.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.HandleNewMember(ctx, userID, username, firstName, lastName)
	return err
}

// IsMember проверяет, зарегистрирован ли пользователь.
func (s *Service) IsMember(ctx context.Context, userID int64) (bool, error) {
	return s.repo.Exists(ctx, userID)
}

func (s *Service) GetByUserID(ctx context.Context, userID int64) (*Member, error) {
	return s.repo.GetByUserID(ctx, userID)
}

func (s *Service) GetByUsername(ctx context.Context, username string) (*Member, error) {
	return s.repo.GetByUsername(ctx, strings.TrimPrefix(username, "@"))
}

// LinkWallet проверяет адрес и привязывает его к участнику.
func (s *Service) LinkWallet(ctx context.Context, userID int64, wallet string) error {
	wallet = strings.TrimSpace(wallet)
	if err := settlement.ValidateWallet(wallet); err != nil {
		return err
	}
	if err := s.repo.SetWallet(ctx, userID, wallet); err != nil {
		return err
	}
	log.WithField("user_id", userID).Info("Кошелёк привязан")
	return nil
}

// Wallet возвращает привязанный кошелёк или common.ErrWalletNotLinked.
func (s *Service) Wallet(ctx context.Context, userID int64) (string, error) {
	m, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if m.WalletAddress == nil || *m.WalletAddress == "" {
		return "", common.ErrWalletNotLinked
	}
	return *m.WalletAddress, nil
}
