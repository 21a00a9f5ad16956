// Package settlement передаёт полученные (claimed) награды во внешнюю выплату.
// Журнал наград о результате выплаты ничего не знает: успех или ошибка
// только логируются и считаются в метриках.
package settlement

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"

	"serotonyl.ru/reward-ledger/internal/common"
)

// PublicKeySize - размер публичного ключа кошелька в байтах.
const PublicKeySize = 32

// Transfer - одна выплата игроку.
type Transfer struct {
	PlayerID  string
	Wallet    string
	Amount    uint64 // минимальные единицы токена
	RewardIDs []uuid.UUID
}

// Client - внешняя платёжная система.
type Client interface {
	// Transfer переводит токены и возвращает подпись транзакции.
	Transfer(ctx context.Context, t Transfer) (string, error)
	// Balance возвращает баланс токена на кошельке.
	Balance(ctx context.Context, wallet string) (uint64, error)
	// VerifyTransaction проверяет, что транзакция с подписью подтверждена.
	VerifyTransaction(ctx context.Context, signature string) (bool, error)
}

// ValidateWallet проверяет, что адрес - base58-строка ровно на 32 байта.
func ValidateWallet(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("%w: пустой адрес", common.ErrInvalidWallet)
	}
	raw := base58.Decode(addr)
	if len(raw) != PublicKeySize {
		return fmt.Errorf("%w: %q", common.ErrInvalidWallet, addr)
	}
	return nil
}

// DryRunClient - клиент без реальной сети: проверяет адреса, запоминает переводы
// и выдаёт подписи вида placeholder_signature_<id>.
// Используется, пока подпись транзакций не подключена.
type DryRunClient struct {
	mint  string
	vault string

	mu       sync.Mutex
	balances map[string]uint64
	sent     map[string]Transfer
}

var _ Client = (*DryRunClient)(nil)

// NewDryRunClient создаёт клиент. mint и vault необязательны, но если заданы,
// должны быть корректными адресами.
func NewDryRunClient(mint, vault string) (*DryRunClient, error) {
	if mint != "" {
		if err := ValidateWallet(mint); err != nil {
			return nil, fmt.Errorf("SETTLEMENT_MINT: %w", err)
		}
	}
	if vault != "" {
		if err := ValidateWallet(vault); err != nil {
			return nil, fmt.Errorf("SETTLEMENT_VAULT: %w", err)
		}
	}
	return &DryRunClient{
		mint:     mint,
		vault:    vault,
		balances: make(map[string]uint64),
		sent:     make(map[string]Transfer),
	}, nil
}

func (c *DryRunClient) Transfer(ctx context.Context, t Transfer) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ValidateWallet(t.Wallet); err != nil {
		return "", err
	}
	if t.Amount == 0 {
		return "", fmt.Errorf("нулевая сумма перевода")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.balances[t.Wallet] + t.Amount
	if next < t.Amount {
		return "", common.ErrAmountOverflow
	}
	c.balances[t.Wallet] = next

	sig := "placeholder_signature_" + uuid.NewString()
	c.sent[sig] = t
	return sig, nil
}

func (c *DryRunClient) Balance(_ context.Context, wallet string) (uint64, error) {
	if err := ValidateWallet(wallet); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[wallet], nil
}

func (c *DryRunClient) VerifyTransaction(_ context.Context, signature string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sent[signature]
	return ok, nil
}
