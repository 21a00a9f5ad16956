package rewards

import (
	"context"
	"errors"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reward-ledger/internal/common"
	"serotonyl.ru/reward-ledger/internal/config"
	"serotonyl.ru/reward-ledger/internal/features/ledger"
	"serotonyl.ru/reward-ledger/internal/features/settlement"
)

type recordingSender struct {
	mu    sync.Mutex
	texts []string
}

func (s *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		s.texts = append(s.texts, m.Text)
	}
	return tgbotapi.Message{}, nil
}

func (s *recordingSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (s *recordingSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.texts) == 0 {
		return ""
	}
	return s.texts[len(s.texts)-1]
}

type staticWallets map[int64]string

func (w staticWallets) Wallet(_ context.Context, userID int64) (string, error) {
	if addr, ok := w[userID]; ok {
		return addr, nil
	}
	return "", common.ErrWalletNotLinked
}

type recordingSettler struct {
	batches []settlement.Batch
	err     error
}

func (s *recordingSettler) Submit(b settlement.Batch) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, b)
	return nil
}

const testWallet = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"

func newTestHandler(t *testing.T) (*Handler, *Service, *recordingSender, *recordingSettler, *testClock) {
	t.Helper()
	svc, _, clock := newTestService(t, config.DefaultRewards())
	sender := &recordingSender{}
	settler := &recordingSettler{}
	h := NewHandler(svc, staticWallets{42: testWallet}, settler, sender, 9, "POKE")
	return h, svc, sender, settler, clock
}

func TestHandler_LoginIsIdempotentPerDay(t *testing.T) {
	h, svc, sender, _, clock := newTestHandler(t)
	ctx := context.Background()

	h.HandleLogin(ctx, 1, 42)
	assert.Contains(t, sender.last(), "+20 POKE")
	assert.Contains(t, sender.last(), "1 день")

	h.HandleLogin(ctx, 1, 42)
	assert.Contains(t, sender.last(), "уже заходил")

	clock.Set(monday.AddDate(0, 0, 1))
	h.HandleLogin(ctx, 1, 42)
	assert.Contains(t, sender.last(), "2 дня")

	list, err := svc.GetRewards(ctx, "tg:42")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "login:tg:42:2024-03-11", list[0].SourceEventID)
}

func TestHandler_GrantWelcomeOnce(t *testing.T) {
	h, _, _, _, _ := newTestHandler(t)
	ctx := context.Background()

	first, err := h.GrantWelcome(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAwarded, first.Outcome)
	assert.Equal(t, uint64(100*poke), first.Amount())

	again, err := h.GrantWelcome(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, again.Outcome)
	assert.Equal(t, first.Reward.ID, again.Reward.ID)
}

func TestHandler_ClaimRequiresWallet(t *testing.T) {
	h, svc, sender, settler, _ := newTestHandler(t)
	ctx := context.Background()

	_, err := h.GrantWelcome(ctx, 7)
	require.NoError(t, err)

	h.HandleClaim(ctx, 1, 7)
	assert.Contains(t, sender.last(), "привяжи кошелёк")
	pending, err := svc.GetPendingRewards(ctx, "tg:7")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Empty(t, settler.batches)
}

func TestHandler_ClaimSubmitsBatch(t *testing.T) {
	h, svc, sender, settler, _ := newTestHandler(t)
	ctx := context.Background()

	_, err := h.GrantWelcome(ctx, 42)
	require.NoError(t, err)
	h.HandleLogin(ctx, 1, 42)

	h.HandleClaim(ctx, 1, 42)
	assert.Contains(t, sender.last(), "120 POKE")
	assert.Contains(t, sender.last(), "в очередь")
	require.Len(t, settler.batches, 1)
	assert.Equal(t, "tg:42", settler.batches[0].PlayerID)
	assert.Equal(t, testWallet, settler.batches[0].Wallet)
	assert.Len(t, settler.batches[0].Rewards, 2)

	pending, err := svc.GetPendingRewards(ctx, "tg:42")
	require.NoError(t, err)
	assert.Empty(t, pending)

	h.HandleClaim(ctx, 1, 42)
	assert.Contains(t, sender.last(), "нет")
	assert.Len(t, settler.batches, 1)
}

func TestHandler_ClaimSurvivesSettlementFailure(t *testing.T) {
	h, svc, sender, settler, _ := newTestHandler(t)
	ctx := context.Background()
	settler.err = errors.New("queue full")

	_, err := h.GrantWelcome(ctx, 42)
	require.NoError(t, err)
	h.HandleClaim(ctx, 1, 42)
	assert.Contains(t, sender.last(), "задерживается")

	list, err := svc.GetRewards(ctx, "tg:42")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ledger.StatusClaimed, list[0].Status)
}

func TestHandler_StatsShowsCappedGames(t *testing.T) {
	h, svc, sender, _, _ := newTestHandler(t)
	ctx := context.Background()

	_, err := svc.ProcessGameEvent(ctx, GameEvent{
		PlayerID:  "tg:42",
		Game:      ledger.GameBattle,
		EventID:   "battle-1",
		EventData: []byte(`{"level": 1}`),
	})
	require.NoError(t, err)

	h.HandleStats(ctx, 1, 42)
	assert.Contains(t, sender.last(), "battle: 70 POKE из 300 POKE")
	assert.Contains(t, sender.last(), "flypoke: 0 POKE из 500 POKE")
}
