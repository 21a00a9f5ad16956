// Package metrics описывает метрики Prometheus сервиса наград.
// Метрики регистрируются в собственном реестре, а не в глобальном:
// так тесты могут создавать сколько угодно экземпляров.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reward_ledger"

// Metrics - все счётчики сервиса.
type Metrics struct {
	registry *prometheus.Registry

	eventsProcessed *prometheus.CounterVec
	amountAwarded   *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	storageFailures prometheus.Counter
	rewardsClaimed  prometheus.Counter

	settlementBatches *prometheus.CounterVec
	settlementQueue   prometheus.Gauge

	httpRequests *prometheus.CounterVec
}

// New создаёт метрики в новом реестре (вместе со стандартными метриками процесса и Go).
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Обработанные игровые события по игре и исходу.",
		}, []string{"game", "outcome"}),
		amountAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "amount_awarded_minor_total",
			Help:      "Начислено в минимальных единицах токена.",
		}, []string{"game"}),
		processDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_event_seconds",
			Help:      "Время обработки события, включая ожидание блокировки игрока.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"game"}),
		storageFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_failures_total",
			Help:      "Ошибки хранилища, отданные вызывающему.",
		}),
		rewardsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_claimed_total",
			Help:      "Награды, переведённые в claimed.",
		}),
		settlementBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_batches_total",
			Help:      "Пачки выплат по результату.",
		}, []string{"result"}),
		settlementQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "settlement_queue_depth",
			Help:      "Пачки в очереди на выплату.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP-запросы по маршруту и коду ответа.",
		}, []string{"route", "code"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsProcessed,
		m.amountAwarded,
		m.processDuration,
		m.storageFailures,
		m.rewardsClaimed,
		m.settlementBatches,
		m.settlementQueue,
		m.httpRequests,
	)
	return m
}

// Handler отдаёт метрики в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry нужен тестам, чтобы читать значения через testutil.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Методы ниже безопасно вызывать на nil: компоненты без метрик просто ничего не пишут.

func (m *Metrics) EventProcessed(game, outcome string, amount uint64, took time.Duration) {
	if m == nil {
		return
	}
	m.eventsProcessed.WithLabelValues(game, outcome).Inc()
	if amount > 0 {
		m.amountAwarded.WithLabelValues(game).Add(float64(amount))
	}
	m.processDuration.WithLabelValues(game).Observe(took.Seconds())
}

func (m *Metrics) StorageFailure() {
	if m == nil {
		return
	}
	m.storageFailures.Inc()
}

func (m *Metrics) RewardsClaimed(n int) {
	if m == nil {
		return
	}
	m.rewardsClaimed.Add(float64(n))
}

// SettlementBatch учитывает результат пачки: "sent", "failed", "rejected".
func (m *Metrics) SettlementBatch(result string) {
	if m == nil {
		return
	}
	m.settlementBatches.WithLabelValues(result).Inc()
}

func (m *Metrics) SettlementQueueDepth(n int) {
	if m == nil {
		return
	}
	m.settlementQueue.Set(float64(n))
}

func (m *Metrics) HTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, httpCode(code)).Inc()
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
