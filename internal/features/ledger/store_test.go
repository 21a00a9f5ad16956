package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/reward-ledger/internal/common"
)

var day1 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// runStoreSuite проверяет контракт Store на любой реализации.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateRewardIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		player := newPlayerID()

		first, created, err := CreateReward(ctx, s, newReward(player, "evt-1", 100))
		require.NoError(t, err)
		require.True(t, created)

		again, created, err := CreateReward(ctx, s, newReward(player, "evt-1", 999))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, uint64(100), again.Amount)

		all, err := s.GetRewards(ctx, player)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("SameEventIDForDifferentPlayers", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, created, err := CreateReward(ctx, s, newReward(newPlayerID(), "shared", 1))
		require.NoError(t, err)
		assert.True(t, created)
		_, created, err = CreateReward(ctx, s, newReward(newPlayerID(), "shared", 1))
		require.NoError(t, err)
		assert.True(t, created)
	})

	t.Run("ProcessedEventSurvivesCommitOnly", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		player := newPlayerID()
		mark := func(eventID string) *ProcessedEvent {
			return &ProcessedEvent{
				PlayerID: player, EventID: eventID, Game: GameFlyPoke,
				Outcome: "limit_reached", EventDate: day1, ProcessedAt: day1,
			}
		}

		boom := errors.New("boom")
		err := s.Atomic(ctx, player, func(tx Tx) error {
			if err := tx.MarkProcessed(ctx, mark("rolled-back")); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		err = s.Atomic(ctx, player, func(tx Tx) error {
			if err := tx.MarkProcessed(ctx, mark("kept")); err != nil {
				return err
			}
			// повторная отметка не перезаписывает первую
			again := mark("kept")
			again.Outcome = "stale_login"
			if err := tx.MarkProcessed(ctx, again); err != nil {
				return err
			}
			seen, err := tx.FindProcessedEvent(ctx, "kept")
			if err != nil {
				return err
			}
			if seen == nil || seen.Outcome != "limit_reached" {
				return fmt.Errorf("в блоке видна не та отметка: %+v", seen)
			}
			return nil
		})
		require.NoError(t, err)

		err = s.Atomic(ctx, player, func(tx Tx) error {
			gone, err := tx.FindProcessedEvent(ctx, "rolled-back")
			if err != nil {
				return err
			}
			assert.Nil(t, gone)

			kept, err := tx.FindProcessedEvent(ctx, "kept")
			if err != nil {
				return err
			}
			if assert.NotNil(t, kept) {
				assert.Equal(t, GameFlyPoke, kept.Game)
				assert.Equal(t, "limit_reached", kept.Outcome)
				assert.True(t, common.DateOf(day1).Equal(kept.EventDate))
			}
			return nil
		})
		require.NoError(t, err)

		// отметка не видна другому игроку и не создаёт награду
		err = s.Atomic(ctx, newPlayerID(), func(tx Tx) error {
			other, err := tx.FindProcessedEvent(ctx, "kept")
			assert.Nil(t, other)
			return err
		})
		require.NoError(t, err)
		all, err := s.GetRewards(ctx, player)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("ApplyDailyDeltaRejectsOverCap", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		player := newPlayerID()

		res, err := ApplyDailyDelta(ctx, s, player, GameFlyPoke, day1, 900, 1000)
		require.NoError(t, err)
		assert.True(t, res.Accepted)
		assert.Equal(t, uint64(900), res.Total)

		res, err = ApplyDailyDelta(ctx, s, player, GameFlyPoke, day1, 200, 1000)
		require.NoError(t, err)
		assert.False(t, res.Accepted)
		assert.Equal(t, uint64(100), res.Headroom)
		assert.Equal(t, uint64(900), res.Total)

		st, err := s.GetDailyStats(ctx, player, GameFlyPoke, day1)
		require.NoError(t, err)
		assert.Equal(t, uint64(900), st.TotalAwarded)
		assert.Equal(t, uint64(1), st.EventCount)

		res, err = ApplyDailyDelta(ctx, s, player, GameFlyPoke, day1, 100, 1000)
		require.NoError(t, err)
		assert.True(t, res.Accepted)
		assert.Equal(t, uint64(1000), res.Total)

		// другая игра и другой день считаются отдельно
		res, err = ApplyDailyDelta(ctx, s, player, GameBattle, day1, 500, 1000)
		require.NoError(t, err)
		assert.True(t, res.Accepted)
		res, err = ApplyDailyDelta(ctx, s, player, GameFlyPoke, day1.AddDate(0, 0, 1), 500, 1000)
		require.NoError(t, err)
		assert.True(t, res.Accepted)
		assert.Equal(t, uint64(500), res.Total)
	})

	t.Run("ZeroCapMeansUnlimited", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		player := newPlayerID()

		for i := 0; i < 3; i++ {
			res, err := ApplyDailyDelta(ctx, s, player, GamePokedex, day1, 1_000_000_000_000, 0)
			require.NoError(t, err)
			assert.True(t, res.Accepted)
		}
		st, err := s.GetDailyStats(ctx, player, GamePokedex, day1)
		require.NoError(t, err)
		assert.Equal(t, uint64(3_000_000_000_000), st.TotalAwarded)
		assert.Equal(t, uint64(3), st.EventCount)
	})

	t.Run("StreakProgression", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		player := newPlayerID()

		initial, err := GetOrInitStreak(ctx, s, player)
		require.NoError(t, err)
		assert.Equal(t, uint32(0), initial.CurrentStreak)
		assert.Nil(t, initial.LastLoginDate)

		for i := 0; i < 3; i++ {
			upd, err := UpdateStreak(ctx, s, player, day1.AddDate(0, 0, i))
			require.NoError(t, err)
			assert.False(t, upd.Duplicate)
			assert.Equal(t, uint32(i+1), upd.Streak.CurrentStreak)
		}

		upd, err := UpdateStreak(ctx, s, player, day1.AddDate(0, 0, 2).Add(5*time.Hour))
		require.NoError(t, err)
		assert.True(t, upd.Duplicate)
		assert.Equal(t, uint32(3), upd.Streak.CurrentStreak)

		upd, err = UpdateStreak(ctx, s, player, day1)
		require.NoError(t, err)
		assert.True(t, upd.Stale)

		upd, err = UpdateStreak(ctx, s, player, day1.AddDate(0, 0, 5))
		require.NoError(t, err)
		assert.Equal(t, uint32(1), upd.Streak.CurrentStreak)
		assert.Equal(t, uint32(3), upd.Streak.LongestStreak)

		stored, err := s.GetStreak(ctx, player)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), stored.CurrentStreak)
		assert.Equal(t, uint32(3), stored.LongestStreak)
		require.NotNil(t, stored.LastLoginDate)
		assert.True(t, stored.LastLoginDate.Equal(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("StreakDayBoundaryIsUTC", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		player := newPlayerID()

		_, err := UpdateStreak(ctx, s, player, time.Date(2024, 5, 1, 23, 59, 59, 0, time.UTC))
		require.NoError(t, err)
		upd, err := UpdateStreak(ctx, s, player, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.False(t, upd.Duplicate)
		assert.Equal(t, uint32(2), upd.Streak.CurrentStreak)
	})

	t.Run("FailedBlockLeavesNoTrace", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		player := newPlayerID()
		boom := errors.New("boom")

		err := s.Atomic(ctx, player, func(tx Tx) error {
			if _, err := tx.ApplyDailyDelta(ctx, GameBattle, day1, 50, 100); err != nil {
				return err
			}
			if _, _, err := tx.CreateReward(ctx, newReward(player, "evt-x", 50)); err != nil {
				return err
			}
			if _, err := tx.UpdateStreak(ctx, day1); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		rewards, err := s.GetRewards(ctx, player)
		require.NoError(t, err)
		assert.Empty(t, rewards)
		st, err := s.GetDailyStats(ctx, player, GameBattle, day1)
		require.NoError(t, err)
		assert.Zero(t, st.TotalAwarded)
		streak, err := s.GetStreak(ctx, player)
		require.NoError(t, err)
		assert.Zero(t, streak.CurrentStreak)
	})

	t.Run("TxSeesOwnWrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		player := newPlayerID()

		err := s.Atomic(ctx, player, func(tx Tx) error {
			_, created, err := tx.CreateReward(ctx, newRewardFor(player, GameWelcome, "welcome", 10))
			require.NoError(t, err)
			require.True(t, created)

			found, err := tx.FindRewardByEvent(ctx, "welcome")
			require.NoError(t, err)
			require.NotNil(t, found)

			has, err := tx.HasGameReward(ctx, GameWelcome)
			require.NoError(t, err)
			assert.True(t, has)

			res, err := tx.ApplyDailyDelta(ctx, GameBattle, day1, 60, 100)
			require.NoError(t, err)
			require.True(t, res.Accepted)
			res, err = tx.ApplyDailyDelta(ctx, GameBattle, day1, 60, 100)
			require.NoError(t, err)
			assert.False(t, res.Accepted)
			assert.Equal(t, uint64(40), res.Headroom)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("ConcurrentDeltasNeverExceedCap", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		player := newPlayerID()

		var (
			mu       sync.Mutex
			accepted int
		)
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < 40; i++ {
			i := i
			g.Go(func() error {
				return s.Atomic(gctx, player, func(tx Tx) error {
					res, err := tx.ApplyDailyDelta(gctx, GameFlyPoke, day1, 100, 1000)
					if err != nil || !res.Accepted {
						return err
					}
					_, _, err = tx.CreateReward(gctx, newReward(player, fmt.Sprintf("evt-%d", i), 100))
					if err != nil {
						return err
					}
					mu.Lock()
					accepted++
					mu.Unlock()
					return nil
				})
			})
		}
		require.NoError(t, g.Wait())

		assert.Equal(t, 10, accepted)
		st, err := s.GetDailyStats(ctx, player, GameFlyPoke, day1)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), st.TotalAwarded)
		rewards, err := s.GetRewards(ctx, player)
		require.NoError(t, err)
		assert.Len(t, rewards, 10)
	})

	t.Run("ConcurrentClaimsPartitionPendingSet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		player := newPlayerID()

		for i := 0; i < 25; i++ {
			_, _, err := CreateReward(ctx, s, newReward(player, fmt.Sprintf("evt-%02d", i), uint64(i+1)))
			require.NoError(t, err)
		}

		results := make([][]*Reward, 6)
		g, gctx := errgroup.WithContext(ctx)
		for i := range results {
			i := i
			g.Go(func() error {
				claimed, err := s.ClaimRewards(gctx, player, day1)
				results[i] = claimed
				return err
			})
		}
		require.NoError(t, g.Wait())

		seen := make(map[uuid.UUID]bool)
		for _, claimed := range results {
			for _, r := range claimed {
				assert.False(t, seen[r.ID], "награда получена дважды")
				seen[r.ID] = true
				assert.Equal(t, StatusClaimed, r.Status)
				require.NotNil(t, r.ClaimedAt)
			}
		}
		assert.Len(t, seen, 25)

		pending, err := s.GetPendingRewards(ctx, player)
		require.NoError(t, err)
		assert.Empty(t, pending)

		again, err := s.ClaimRewards(ctx, player, day1)
		require.NoError(t, err)
		assert.Empty(t, again)
	})

	t.Run("PendingInCreationOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		player := newPlayerID()

		ids := []string{"c", "a", "b"}
		for _, id := range ids {
			_, _, err := CreateReward(ctx, s, newReward(player, id, 1))
			require.NoError(t, err)
		}
		pending, err := s.GetPendingRewards(ctx, player)
		require.NoError(t, err)
		require.Len(t, pending, 3)
		for i, r := range pending {
			assert.Equal(t, ids[i], r.SourceEventID)
		}

		claimed, err := s.ClaimRewards(ctx, player, day1)
		require.NoError(t, err)
		require.Len(t, claimed, 3)
		for i, r := range claimed {
			assert.Equal(t, ids[i], r.SourceEventID)
		}
	})

	t.Run("ListStreaksAndDaySummary", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		summaryDay := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)
		a, b := newPlayerID(), newPlayerID()

		for i := 0; i < 4; i++ {
			_, err := UpdateStreak(ctx, s, a, summaryDay.AddDate(0, 0, i))
			require.NoError(t, err)
		}
		_, err := UpdateStreak(ctx, s, b, summaryDay)
		require.NoError(t, err)

		long, err := s.ListStreaks(ctx, 4)
		require.NoError(t, err)
		var found bool
		for _, st := range long {
			assert.GreaterOrEqual(t, st.CurrentStreak, uint32(4))
			if st.PlayerID == a {
				found = true
			}
			assert.NotEqual(t, b, st.PlayerID)
		}
		assert.True(t, found)

		_, err = ApplyDailyDelta(ctx, s, a, GameBattle, summaryDay, 70, 0)
		require.NoError(t, err)
		_, err = ApplyDailyDelta(ctx, s, b, GameBattle, summaryDay, 30, 0)
		require.NoError(t, err)
		_, err = ApplyDailyDelta(ctx, s, b, GameLogin, summaryDay, 5, 0)
		require.NoError(t, err)

		summary, err := s.DaySummary(ctx, summaryDay)
		require.NoError(t, err)
		require.Len(t, summary, 2)
		assert.Equal(t, GameBattle, summary[0].Game)
		assert.Equal(t, 2, summary[0].Players)
		assert.Equal(t, uint64(100), summary[0].TotalAwarded)
		assert.Equal(t, uint64(2), summary[0].EventCount)
		assert.Equal(t, GameLogin, summary[1].Game)
	})
}

func newPlayerID() string {
	return "test:" + uuid.NewString()
}

func newReward(player, eventID string, amount uint64) *Reward {
	return newRewardFor(player, GameFlyPoke, eventID, amount)
}

func newRewardFor(player string, game GameType, eventID string, amount uint64) *Reward {
	return &Reward{
		PlayerID:      player,
		Game:          game,
		Amount:        amount,
		CreatedAt:     day1,
		SourceEventID: eventID,
		Metadata:      map[string]any{"source": "test"},
	}
}

func TestEvaluateDelta(t *testing.T) {
	res := evaluateDelta(900, 200, 1000)
	assert.False(t, res.Accepted)
	assert.Equal(t, uint64(100), res.Headroom)

	res = evaluateDelta(1200, 1, 1000)
	assert.False(t, res.Accepted)
	assert.Zero(t, res.Headroom)

	res = evaluateDelta(0, 1000, 1000)
	assert.True(t, res.Accepted)
	assert.Equal(t, uint64(1000), res.Total)

	res = evaluateDelta(10, 0, 10)
	assert.True(t, res.Accepted)
}

func TestAdvanceStreak_GapResets(t *testing.T) {
	last := day1
	upd := advanceStreak(LoginStreak{CurrentStreak: 9, LongestStreak: 9, LastLoginDate: &last}, day1.AddDate(0, 0, 2))
	assert.Equal(t, uint32(1), upd.Streak.CurrentStreak)
	assert.Equal(t, uint32(9), upd.Streak.LongestStreak)
}

func TestParseGameType(t *testing.T) {
	g, err := ParseGameType(" FlyPoke ")
	require.NoError(t, err)
	assert.Equal(t, GameFlyPoke, g)

	_, err = ParseGameType("chess")
	require.ErrorIs(t, err, common.ErrUnknownGame)
}
