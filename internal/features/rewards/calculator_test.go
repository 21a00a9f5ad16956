package rewards

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reward-ledger/internal/common"
	"serotonyl.ru/reward-ledger/internal/config"
	"serotonyl.ru/reward-ledger/internal/features/ledger"
)

const poke = 1_000_000_000

func TestCompute_FlyPoke(t *testing.T) {
	cfg := config.DefaultRewards()

	tests := []struct {
		name string
		data string
		want uint64
	}{
		{"linear", `{"score": 1500}`, 75 * poke},
		{"below min", `{"score": 10}`, 10 * poke},
		{"zero score", `{"score": 0}`, 10 * poke},
		{"above max", `{"score": 100000}`, 100 * poke},
		{"high score after clamp", `{"score": 100000, "is_new_high_score": true}`, 120 * poke},
		{"high score", `{"score": 1000, "is_new_high_score": true}`, 70 * poke},
		{"extra fields ignored", `{"score": 1500, "level": 2, "skin": "pikachu"}`, 75 * poke},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(ledger.GameFlyPoke, json.RawMessage(tt.data), 0, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Amount)
		})
	}
}

func TestCompute_FlyPokeMetadata(t *testing.T) {
	cfg := config.DefaultRewards()

	got, err := Compute(ledger.GameFlyPoke, json.RawMessage(`{"score": 100000, "is_new_high_score": true}`), 0, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.FlyPoke.Base, got.Metadata["base"], "base - значение из конфигурации, как у других игр")
	assert.Equal(t, cfg.FlyPoke.Max, got.Metadata["clamped"])
	assert.Equal(t, cfg.FlyPoke.HighScoreBonus, got.Metadata["high_score_bonus"])
}

func TestCompute_FlyPokeIsDeterministic(t *testing.T) {
	cfg := config.DefaultRewards()
	data := json.RawMessage(`{"score": 1500, "is_new_high_score": false}`)

	first, err := Compute(ledger.GameFlyPoke, data, 0, cfg)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		again, err := Compute(ledger.GameFlyPoke, data, 0, cfg)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCompute_FlyPokeSaturates(t *testing.T) {
	cfg := config.DefaultRewards()
	cfg.FlyPoke.Max = math.MaxUint64

	got, err := Compute(ledger.GameFlyPoke, json.RawMessage(`{"score": 9223372036854775807, "is_new_high_score": true}`), 0, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got.Amount)
}

func TestCompute_Battle(t *testing.T) {
	cfg := config.DefaultRewards()

	tests := []struct {
		name string
		data string
		want uint64
	}{
		{"level only", `{"level": 1}`, 70 * poke},
		{"level zero", `{"level": 0}`, 50 * poke},
		{"win streak 1", `{"level": 3, "streak": 1}`, 110 * poke},
		{"win streak 2", `{"level": 3, "streak": 2}`, 120 * poke},
		{"win streak 3", `{"level": 3, "streak": 3}`, 130 * poke},
		{"win streak 10", `{"level": 3, "streak": 10}`, 130 * poke},
		{"perfect", `{"level": 3, "streak": 2, "perfect_victory": true}`, 145 * poke},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(ledger.GameBattle, json.RawMessage(tt.data), 0, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Amount)
		})
	}
}

func TestCompute_PokeMatchAndPokedex(t *testing.T) {
	cfg := config.DefaultRewards()

	got, err := Compute(ledger.GamePokeMatch, json.RawMessage(`{"perfect": false, "score": 12}`), 0, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(20*poke), got.Amount)

	got, err = Compute(ledger.GamePokeMatch, json.RawMessage(`{"perfect": true}`), 0, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(120*poke), got.Amount)

	got, err = Compute(ledger.GamePokedex, json.RawMessage(`{"pokemon_id": "025", "is_rare": false}`), 0, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(10*poke), got.Amount)

	got, err = Compute(ledger.GamePokedex, json.RawMessage(`{"pokemon_id": "151", "is_rare": true}`), 0, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(110*poke), got.Amount)
	assert.Equal(t, "151", got.Metadata["pokemon_id"])
}

func TestCompute_LoginThresholds(t *testing.T) {
	cfg := config.DefaultRewards()

	want := map[uint32]uint64{
		1:  20 * poke,
		2:  20 * poke,
		3:  30 * poke,
		6:  30 * poke,
		7:  60 * poke,
		30: 60 * poke,
	}
	for streak, amount := range want {
		got, err := Compute(ledger.GameLogin, nil, streak, cfg)
		require.NoError(t, err)
		assert.Equal(t, amount, got.Amount, "streak %d", streak)
		assert.Equal(t, streak, got.Metadata["streak"])
	}
}

func TestCompute_WelcomeNeedsNoPayload(t *testing.T) {
	got, err := Compute(ledger.GameWelcome, nil, 0, config.DefaultRewards())
	require.NoError(t, err)
	assert.Equal(t, uint64(100*poke), got.Amount)
}

func TestCompute_InvalidPayload(t *testing.T) {
	cfg := config.DefaultRewards()

	tests := []struct {
		name string
		game ledger.GameType
		data string
	}{
		{"flypoke missing score", ledger.GameFlyPoke, `{"is_new_high_score": true}`},
		{"flypoke empty", ledger.GameFlyPoke, ``},
		{"flypoke negative", ledger.GameFlyPoke, `{"score": -1}`},
		{"flypoke fractional", ledger.GameFlyPoke, `{"score": 1.5}`},
		{"flypoke string", ledger.GameFlyPoke, `{"score": "100"}`},
		{"flypoke not object", ledger.GameFlyPoke, `[1, 2]`},
		{"battle missing level", ledger.GameBattle, `{"streak": 2}`},
		{"battle negative streak", ledger.GameBattle, `{"level": 1, "streak": -2}`},
		{"pokematch missing perfect", ledger.GamePokeMatch, `{"score": 5}`},
		{"pokedex missing id", ledger.GamePokedex, `{"is_rare": true}`},
		{"pokedex empty id", ledger.GamePokedex, `{"pokemon_id": ""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.game, json.RawMessage(tt.data), 0, cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidPayload)
			assert.ErrorIs(t, err, common.ErrInvalidEvent)
		})
	}
}

func TestCompute_UnknownGame(t *testing.T) {
	_, err := Compute(ledger.GameType("tetris"), nil, 0, config.DefaultRewards())
	assert.ErrorIs(t, err, common.ErrUnknownGame)
}

func TestDailyCap(t *testing.T) {
	cfg := config.DefaultRewards()
	assert.Equal(t, uint64(500*poke), DailyCap(ledger.GameFlyPoke, cfg))
	assert.Equal(t, uint64(300*poke), DailyCap(ledger.GameBattle, cfg))
	assert.Equal(t, uint64(200*poke), DailyCap(ledger.GamePokeMatch, cfg))
	assert.Zero(t, DailyCap(ledger.GameLogin, cfg))
}
