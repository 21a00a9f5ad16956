package settlement

import (
	"context"
	"math/bits"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reward-ledger/internal/common"
	"serotonyl.ru/reward-ledger/internal/features/ledger"
	"serotonyl.ru/reward-ledger/internal/metrics"
)

// Batch - награды, полученные одним вызовом claim.
type Batch struct {
	PlayerID string
	Wallet   string
	Rewards  []*ledger.Reward
}

// Result - итог выплаты пачки.
type Result struct {
	Transfer  Transfer
	Signature string
	Err       error
}

// Dispatcher выполняет выплаты в фоне: ограниченная очередь и пул воркеров.
// Claim не ждёт выплату и не зависит от её успеха.
type Dispatcher struct {
	client   Client
	workers  int
	timeout  time.Duration
	metrics  *metrics.Metrics
	onResult func(Result)

	mu      sync.RWMutex // защищает stopped и закрытие queue
	stopped bool
	queue   chan Transfer
	wg      sync.WaitGroup
}

// DispatcherOption настраивает Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMetrics включает метрики выплат.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTransferTimeout ограничивает время одного перевода (по умолчанию 30s).
func WithTransferTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithResultHook вызывается воркером после каждой выплаты.
func WithResultHook(fn func(Result)) DispatcherOption {
	return func(d *Dispatcher) { d.onResult = fn }
}

// NewDispatcher создаёт диспетчер. Воркеры запускаются в Run.
func NewDispatcher(client Client, workers, queueSize int, opts ...DispatcherOption) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		client:  client,
		workers: workers,
		timeout: 30 * time.Second,
		queue:   make(chan Transfer, queueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit ставит пачку в очередь. Не блокируется: при полной очереди
// возвращает common.ErrSettlementQueueFull.
func (d *Dispatcher) Submit(b Batch) error {
	if err := ValidateWallet(b.Wallet); err != nil {
		return err
	}
	t, err := newTransfer(b)
	if err != nil {
		d.metrics.SettlementBatch("rejected")
		return err
	}
	if t.Amount == 0 {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return common.ErrSettlementStopped
	}
	select {
	case d.queue <- t:
		d.metrics.SettlementQueueDepth(len(d.queue))
		return nil
	default:
		d.metrics.SettlementBatch("rejected")
		return common.ErrSettlementQueueFull
	}
}

// newTransfer суммирует награды пачки без переполнения.
func newTransfer(b Batch) (Transfer, error) {
	t := Transfer{PlayerID: b.PlayerID, Wallet: b.Wallet}
	for _, r := range b.Rewards {
		sum, carry := bits.Add64(t.Amount, r.Amount, 0)
		if carry != 0 {
			return Transfer{}, common.ErrAmountOverflow
		}
		t.Amount = sum
		t.RewardIDs = append(t.RewardIDs, r.ID)
	}
	return t, nil
}

// Run запускает воркеры и ждёт отмены ctx. Затем перестаёт принимать пачки
// и дорабатывает очередь.
func (d *Dispatcher) Run(ctx context.Context) error {
	// Уже принятые пачки доводим до конца даже после отмены ctx.
	workCtx := context.WithoutCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(workCtx)
	}
	log.WithField("workers", d.workers).Info("Диспетчер выплат запущен")

	<-ctx.Done()
	d.stop()
	log.Info("Диспетчер выплат остановлен")
	return nil
}

func (d *Dispatcher) stop() {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for t := range d.queue {
		d.metrics.SettlementQueueDepth(len(d.queue))
		d.send(ctx, t)
	}
}

func (d *Dispatcher) send(ctx context.Context, t Transfer) {
	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	sig, err := d.client.Transfer(tctx, t)
	entry := log.WithFields(log.Fields{
		"player_id": t.PlayerID,
		"wallet":    t.Wallet,
		"amount":    t.Amount,
		"rewards":   len(t.RewardIDs),
	})
	if err != nil {
		d.metrics.SettlementBatch("failed")
		// Награды остаются claimed: сверка выплат - внешний процесс.
		entry.WithError(err).WithField("reward_ids", idList(t.RewardIDs)).Error("Выплата не выполнена")
	} else {
		d.metrics.SettlementBatch("sent")
		entry.WithField("signature", sig).Info("Выплата отправлена")
	}

	if d.onResult != nil {
		d.onResult(Result{Transfer: t, Signature: sig, Err: err})
	}
}

func idList(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
