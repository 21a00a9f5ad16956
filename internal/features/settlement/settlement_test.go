package settlement

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reward-ledger/internal/common"
	"serotonyl.ru/reward-ledger/internal/features/ledger"
	"serotonyl.ru/reward-ledger/internal/metrics"
)

func testWallet(b byte) string {
	return base58.Encode(bytes.Repeat([]byte{b}, PublicKeySize))
}

func claimed(amounts ...uint64) []*ledger.Reward {
	out := make([]*ledger.Reward, 0, len(amounts))
	for _, a := range amounts {
		out = append(out, &ledger.Reward{ID: uuid.New(), Amount: a, Status: ledger.StatusClaimed})
	}
	return out
}

func TestValidateWallet(t *testing.T) {
	assert.NoError(t, ValidateWallet(testWallet(7)))
	assert.NoError(t, ValidateWallet("  "+testWallet(7)+" "))

	bad := []string{
		"",
		"not-base58-0OIl",
		base58.Encode(bytes.Repeat([]byte{7}, 20)),
		base58.Encode(bytes.Repeat([]byte{7}, 33)),
	}
	for _, addr := range bad {
		assert.ErrorIs(t, ValidateWallet(addr), common.ErrInvalidWallet, addr)
	}
}

func TestDryRunClient(t *testing.T) {
	ctx := context.Background()

	_, err := NewDryRunClient("garbage", "")
	require.ErrorIs(t, err, common.ErrInvalidWallet)

	c, err := NewDryRunClient(testWallet(1), testWallet(2))
	require.NoError(t, err)

	wallet := testWallet(3)
	sig, err := c.Transfer(ctx, Transfer{PlayerID: "p1", Wallet: wallet, Amount: 50})
	require.NoError(t, err)
	assert.Contains(t, sig, "placeholder_signature_")

	ok, err := c.VerifyTransaction(ctx, sig)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.VerifyTransaction(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	bal, err := c.Balance(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), bal)

	_, err = c.Transfer(ctx, Transfer{Wallet: "bad", Amount: 1})
	assert.ErrorIs(t, err, common.ErrInvalidWallet)
	_, err = c.Transfer(ctx, Transfer{Wallet: wallet, Amount: 0})
	assert.Error(t, err)
}

func TestDispatcher_SubmitValidation(t *testing.T) {
	d := NewDispatcher(&recordingClient{}, 1, 4)

	assert.ErrorIs(t, d.Submit(Batch{PlayerID: "p1", Wallet: "bad", Rewards: claimed(1)}), common.ErrInvalidWallet)
	assert.ErrorIs(t, d.Submit(Batch{PlayerID: "p1", Wallet: testWallet(1), Rewards: claimed(math.MaxUint64, 1)}), common.ErrAmountOverflow)
	// пустая пачка - ничего не делать
	assert.NoError(t, d.Submit(Batch{PlayerID: "p1", Wallet: testWallet(1)}))
}

func TestDispatcher_QueueFull(t *testing.T) {
	d := NewDispatcher(&recordingClient{}, 1, 2, WithMetrics(metrics.New()))
	wallet := testWallet(1)

	// воркеры не запущены, очередь на две пачки
	require.NoError(t, d.Submit(Batch{PlayerID: "p1", Wallet: wallet, Rewards: claimed(1)}))
	require.NoError(t, d.Submit(Batch{PlayerID: "p2", Wallet: wallet, Rewards: claimed(1)}))
	assert.ErrorIs(t, d.Submit(Batch{PlayerID: "p3", Wallet: wallet, Rewards: claimed(1)}), common.ErrSettlementQueueFull)
}

func TestDispatcher_SendsAndDrainsOnStop(t *testing.T) {
	client := &recordingClient{failFor: "p-fail"}

	var mu sync.Mutex
	var results []Result
	d := NewDispatcher(client, 3, 16,
		WithTransferTimeout(time.Second),
		WithResultHook(func(r Result) {
			mu.Lock()
			defer mu.Unlock()
			results = append(results, r)
		}),
	)

	wallet := testWallet(9)
	require.NoError(t, d.Submit(Batch{PlayerID: "p1", Wallet: wallet, Rewards: claimed(10, 20, 30)}))
	require.NoError(t, d.Submit(Batch{PlayerID: "p2", Wallet: wallet, Rewards: claimed(5)}))
	require.NoError(t, d.Submit(Batch{PlayerID: "p-fail", Wallet: wallet, Rewards: claimed(1)}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("диспетчер не остановился")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 3)

	byPlayer := make(map[string]Result)
	for _, r := range results {
		byPlayer[r.Transfer.PlayerID] = r
	}
	assert.Equal(t, uint64(60), byPlayer["p1"].Transfer.Amount)
	assert.Len(t, byPlayer["p1"].Transfer.RewardIDs, 3)
	assert.NoError(t, byPlayer["p1"].Err)
	assert.Equal(t, uint64(5), byPlayer["p2"].Transfer.Amount)
	assert.Error(t, byPlayer["p-fail"].Err)

	assert.ErrorIs(t, d.Submit(Batch{PlayerID: "late", Wallet: wallet, Rewards: claimed(1)}), common.ErrSettlementStopped)
}

type recordingClient struct {
	failFor string

	mu   sync.Mutex
	sent []Transfer
}

func (c *recordingClient) Transfer(_ context.Context, t Transfer) (string, error) {
	if t.PlayerID == c.failFor {
		return "", errors.New("rpc unavailable")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, t)
	return "sig-" + t.PlayerID, nil
}

func (c *recordingClient) Balance(context.Context, string) (uint64, error) { return 0, nil }

func (c *recordingClient) VerifyTransaction(context.Context, string) (bool, error) { return true, nil }
