package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/reward-ledger/internal/common"
)

// MemoryStore - хранилище в памяти процесса (локальная разработка, тесты).
// Атомарность на игрока та же, что у PostgreSQL: блок держит блокировку игрока
// на всё время выполнения, а изменения применяются только при успешном завершении.
type MemoryStore struct {
	mu      sync.Mutex // защищает карту players
	players map[string]*playerLedger
}

var _ Store = (*MemoryStore)(nil)

type dailyKey struct {
	game GameType
	date string
}

type playerLedger struct {
	// lock - блокировка единицы работы. Канал, а не мьютекс,
	// чтобы ожидание можно было прервать через ctx.
	lock chan struct{}

	// data защищает поля ниже. Писатели всегда держат ещё и lock.
	data    sync.RWMutex
	rewards []*Reward
	byEvent   map[string]*Reward
	processed map[string]*ProcessedEvent
	daily     map[dailyKey]*DailyStats
	streak    *LoginStreak
}

// NewMemoryStore создаёт пустое хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{players: make(map[string]*playerLedger)}
}

func (s *MemoryStore) player(playerID string, create bool) *playerLedger {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok && create {
		p = &playerLedger{
			lock:      make(chan struct{}, 1),
			byEvent:   make(map[string]*Reward),
			processed: make(map[string]*ProcessedEvent),
			daily:     make(map[dailyKey]*DailyStats),
		}
		s.players[playerID] = p
	}
	return p
}

func (s *MemoryStore) snapshotPlayers() map[string]*playerLedger {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*playerLedger, len(s.players))
	for id, p := range s.players {
		out[id] = p
	}
	return out
}

func (p *playerLedger) acquire(ctx context.Context) error {
	select {
	case p.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ожидание блокировки игрока: %w", ctx.Err())
	}
}

func (p *playerLedger) release() { <-p.lock }

// Atomic выполняет fn под блокировкой игрока.
func (s *MemoryStore) Atomic(ctx context.Context, playerID string, fn func(tx Tx) error) error {
	p := s.player(playerID, true)
	if err := p.acquire(ctx); err != nil {
		return err
	}
	defer p.release()

	tx := &memoryTx{
		playerID:  playerID,
		p:         p,
		daily:     make(map[dailyKey]*DailyStats),
		byEvent:   make(map[string]*Reward),
		processed: make(map[string]*ProcessedEvent),
	}
	if err := fn(tx); err != nil {
		return err
	}
	// Контекст мог истечь, пока fn работала: тогда ничего не фиксируем.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("блок отменён до фиксации: %w", err)
	}

	tx.commit()
	return nil
}

// memoryTx копит изменения и применяет их в commit.
type memoryTx struct {
	playerID string
	p        *playerLedger

	newRewards []*Reward
	byEvent    map[string]*Reward
	processed  map[string]*ProcessedEvent
	daily      map[dailyKey]*DailyStats
	streak     *LoginStreak
}

func (tx *memoryTx) FindRewardByEvent(_ context.Context, eventID string) (*Reward, error) {
	if r, ok := tx.byEvent[eventID]; ok {
		return r.Clone(), nil
	}
	if r, ok := tx.p.byEvent[eventID]; ok {
		return r.Clone(), nil
	}
	return nil, nil
}

func (tx *memoryTx) FindProcessedEvent(_ context.Context, eventID string) (*ProcessedEvent, error) {
	if e, ok := tx.processed[eventID]; ok {
		c := *e
		return &c, nil
	}
	if e, ok := tx.p.processed[eventID]; ok {
		c := *e
		return &c, nil
	}
	return nil, nil
}

func (tx *memoryTx) MarkProcessed(ctx context.Context, e *ProcessedEvent) error {
	if e.PlayerID != tx.playerID {
		return fmt.Errorf("событие игрока %q в блоке игрока %q", e.PlayerID, tx.playerID)
	}
	if existing, err := tx.FindProcessedEvent(ctx, e.EventID); err != nil || existing != nil {
		return err
	}
	c := *e
	c.EventDate = common.DateOf(e.EventDate)
	tx.processed[c.EventID] = &c
	return nil
}

func (tx *memoryTx) HasGameReward(_ context.Context, game GameType) (bool, error) {
	for _, r := range tx.newRewards {
		if r.Game == game {
			return true, nil
		}
	}
	for _, r := range tx.p.rewards {
		if r.Game == game {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) CreateReward(ctx context.Context, r *Reward) (*Reward, bool, error) {
	if r.PlayerID != tx.playerID {
		return nil, false, fmt.Errorf("награда игрока %q в блоке игрока %q", r.PlayerID, tx.playerID)
	}
	if existing, err := tx.FindRewardByEvent(ctx, r.SourceEventID); err != nil || existing != nil {
		return existing, false, err
	}

	saved := r.Clone()
	if saved.ID == uuid.Nil {
		saved.ID = uuid.New()
	}
	if saved.Status == "" {
		saved.Status = StatusPending
	}
	tx.newRewards = append(tx.newRewards, saved)
	tx.byEvent[saved.SourceEventID] = saved
	return saved.Clone(), true, nil
}

func (tx *memoryTx) ApplyDailyDelta(_ context.Context, game GameType, date time.Time, amount, dailyCap uint64) (DeltaResult, error) {
	day := common.DateOf(date)
	key := dailyKey{game: game, date: common.FormatDate(day)}

	current, ok := tx.daily[key]
	if !ok {
		if committed, found := tx.p.daily[key]; found {
			c := *committed
			current = &c
		} else {
			current = &DailyStats{PlayerID: tx.playerID, Game: game, Date: day}
		}
	}

	res := evaluateDelta(current.TotalAwarded, amount, dailyCap)
	if !res.Accepted {
		return res, nil
	}
	current.TotalAwarded = res.Total
	current.EventCount++
	tx.daily[key] = current
	return res, nil
}

func (tx *memoryTx) GetOrInitStreak(_ context.Context) (*LoginStreak, error) {
	if tx.streak == nil {
		if tx.p.streak != nil {
			tx.streak = tx.p.streak.Clone()
		} else {
			tx.streak = &LoginStreak{PlayerID: tx.playerID}
		}
	}
	return tx.streak.Clone(), nil
}

func (tx *memoryTx) UpdateStreak(ctx context.Context, eventDate time.Time) (StreakUpdate, error) {
	current, err := tx.GetOrInitStreak(ctx)
	if err != nil {
		return StreakUpdate{}, err
	}
	upd := advanceStreak(*current, eventDate)
	if !upd.Duplicate && !upd.Stale {
		tx.streak = upd.Streak.Clone()
	}
	return upd, nil
}

func (tx *memoryTx) commit() {
	p := tx.p
	p.data.Lock()
	defer p.data.Unlock()

	for _, r := range tx.newRewards {
		p.rewards = append(p.rewards, r)
		p.byEvent[r.SourceEventID] = r
	}
	for id, e := range tx.processed {
		p.processed[id] = e
	}
	for k, v := range tx.daily {
		p.daily[k] = v
	}
	if tx.streak != nil {
		p.streak = tx.streak
	}
}

func (s *MemoryStore) GetRewards(_ context.Context, playerID string) ([]*Reward, error) {
	return s.listRewards(playerID, func(*Reward) bool { return true }), nil
}

func (s *MemoryStore) GetPendingRewards(_ context.Context, playerID string) ([]*Reward, error) {
	return s.listRewards(playerID, func(r *Reward) bool { return r.Status == StatusPending }), nil
}

func (s *MemoryStore) listRewards(playerID string, keep func(*Reward) bool) []*Reward {
	out := []*Reward{}
	p := s.player(playerID, false)
	if p == nil {
		return out
	}
	p.data.RLock()
	defer p.data.RUnlock()

	for _, r := range p.rewards {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}

// ClaimRewards берёт блокировку игрока, как и Atomic, поэтому не пересекается
// ни с созданием наград, ни с другим claim.
func (s *MemoryStore) ClaimRewards(ctx context.Context, playerID string, at time.Time) ([]*Reward, error) {
	out := []*Reward{}
	p := s.player(playerID, false)
	if p == nil {
		return out, nil
	}
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()

	p.data.Lock()
	defer p.data.Unlock()

	claimedAt := at.UTC()
	for _, r := range p.rewards {
		if r.Status != StatusPending {
			continue
		}
		t := claimedAt
		r.Status = StatusClaimed
		r.ClaimedAt = &t
		out = append(out, r.Clone())
	}
	return out, nil
}

func (s *MemoryStore) GetDailyStats(_ context.Context, playerID string, game GameType, date time.Time) (*DailyStats, error) {
	day := common.DateOf(date)
	empty := &DailyStats{PlayerID: playerID, Game: game, Date: day}

	p := s.player(playerID, false)
	if p == nil {
		return empty, nil
	}
	p.data.RLock()
	defer p.data.RUnlock()

	if st, ok := p.daily[dailyKey{game: game, date: common.FormatDate(day)}]; ok {
		c := *st
		return &c, nil
	}
	return empty, nil
}

func (s *MemoryStore) GetStreak(_ context.Context, playerID string) (*LoginStreak, error) {
	p := s.player(playerID, false)
	if p == nil {
		return &LoginStreak{PlayerID: playerID}, nil
	}
	p.data.RLock()
	defer p.data.RUnlock()

	if p.streak == nil {
		return &LoginStreak{PlayerID: playerID}, nil
	}
	return p.streak.Clone(), nil
}

func (s *MemoryStore) ListStreaks(_ context.Context, minStreak uint32) ([]*LoginStreak, error) {
	var out []*LoginStreak
	for _, p := range s.snapshotPlayers() {
		p.data.RLock()
		if p.streak != nil && p.streak.CurrentStreak >= minStreak {
			out = append(out, p.streak.Clone())
		}
		p.data.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

func (s *MemoryStore) DaySummary(_ context.Context, date time.Time) ([]GameSummary, error) {
	day := common.DateOf(date)
	dayKey := common.FormatDate(day)
	byGame := make(map[GameType]*GameSummary)

	for _, p := range s.snapshotPlayers() {
		p.data.RLock()
		for k, st := range p.daily {
			if k.date != dayKey {
				continue
			}
			sum, ok := byGame[k.game]
			if !ok {
				sum = &GameSummary{Game: k.game, Date: day}
				byGame[k.game] = sum
			}
			sum.Players++
			sum.EventCount += st.EventCount
			sum.TotalAwarded += st.TotalAwarded
		}
		p.data.RUnlock()
	}

	out := make([]GameSummary, 0, len(byGame))
	for _, sum := range byGame {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Game < out[j].Game })
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}
