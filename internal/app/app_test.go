package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reward-ledger/internal/config"
	"serotonyl.ru/reward-ledger/internal/features/ledger"
	"serotonyl.ru/reward-ledger/internal/features/rewards"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreDriver:              config.StoreDriverMemory,
		HTTPAddr:                 "127.0.0.1:0",
		HTTPRequestTimeout:       time.Second,
		HTTPShutdownTimeout:      time.Second,
		TokenDecimals:            9,
		TokenSymbol:              "POKE",
		SettlementWorkers:        1,
		SettlementQueueSize:      4,
		FeatureSettlementEnabled: true,
		Rewards:                  config.DefaultRewards(),
	}
}

func TestNew_MemoryStore(t *testing.T) {
	a, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Bot, "без токена бот не поднимается")
	assert.NotNil(t, a.Dispatcher)
	assert.NotNil(t, a.Scheduler)

	rec := httptest.NewRecorder()
	a.HTTP.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_SettlementDisabled(t *testing.T) {
	cfg := memoryConfig()
	cfg.FeatureSettlementEnabled = false

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Dispatcher)
}

func TestNew_BadSettlementMint(t *testing.T) {
	cfg := memoryConfig()
	cfg.SettlementMint = "not-a-wallet"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}

func TestRun_ClaimInFlightDuringShutdownIsQueued(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := memoryConfig()
	cfg.HTTPAddr = addr
	cfg.HTTPRequestTimeout = 5 * time.Second
	cfg.HTTPShutdownTimeout = 5 * time.Second

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Rewards.ProcessGameEvent(context.Background(), rewards.GameEvent{
		PlayerID: "p1", Game: ledger.GameFlyPoke, EventID: "e1",
		EventData: json.RawMessage(`{"score": 10}`),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	base := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	// держим блокировку игрока, чтобы запрос на выплату завис внутри обработчика
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = a.Store.Atomic(context.Background(), "p1", func(ledger.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	type claimResult struct {
		Settlement string `json:"settlement"`
	}
	claimed := make(chan claimResult, 1)
	go func() {
		body := strings.NewReader(`{"wallet_address": "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"}`)
		resp, err := http.Post(base+"/v1/players/p1/claim", "application/json", body)
		if err != nil {
			claimed <- claimResult{Settlement: "error: " + err.Error()}
			return
		}
		defer resp.Body.Close()
		var out claimResult
		_ = json.NewDecoder(resp.Body).Decode(&out)
		claimed <- out
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	time.Sleep(100 * time.Millisecond)
	close(release)

	select {
	case res := <-claimed:
		assert.Equal(t, "queued", res.Settlement, "выплата принята, пока HTTP дорабатывает запрос")
	case <-time.After(5 * time.Second):
		t.Fatal("запрос на выплату не завершился")
	}
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}
