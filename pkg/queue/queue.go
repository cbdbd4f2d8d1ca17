// Package queue provides a generic bounded worker queue used wherever the
// control loop hands work from one task to another. CTRL uses one such
// queue: its monitoring consumer pushes every ack and telemetry record onto
// a single-worker queue whose worker runs the monitoring dispatcher. The
// agent does not use a queue.
package queue

import (
	"context"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

var (
	pushesTotalMetric = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdnctl",
		Name:      "queue_pushes_total",
		Help:      "Total items pushed onto a bounded queue.",
	}, []string{"name"})

	pushesDroppedTotalMetric = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdnctl",
		Name:      "queue_pushes_dropped_total",
		Help:      "Total items dropped because a bounded queue was full.",
	}, []string{"name"})

	lengthMetric = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sdnctl",
		Name:      "queue_length",
		Help:      "Current number of items queued but not yet processed.",
	}, []string{"name"})
)

func init() {
	prometheus.MustRegister(pushesTotalMetric, pushesDroppedTotalMetric, lengthMetric)
}

// ProcessFunc handles one queued item. It must not block indefinitely: a
// slow handler delays every item behind it on the same queue, whatever
// connection that item belongs to, but never items on other queues.
type ProcessFunc[T any] func(ctx context.Context, item T)

// Config configures a Queue.
type Config struct {
	// Name identifies this queue for metrics and logging.
	Name string
	// Size is the channel buffer; Push drops the item and increments the
	// dropped-items metric once the buffer is full rather than blocking
	// the producer, so a stalled consumer cannot back up an unrelated
	// Kafka partition consumer loop.
	Size int
	// WorkerCount is the number of goroutines draining the queue
	// concurrently. 1 preserves per-item arrival order.
	WorkerCount int
}

// Queue is a bounded, metrics-instrumented work queue with a fixed worker
// pool, adapted from the teacher's distributor ingestion queue.
type Queue[T any] struct {
	cfg     Config
	logger  log.Logger
	process ProcessFunc[T]

	items chan T
	depth atomic.Int64

	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// New builds a Queue. Call StartWorkers to begin draining it.
func New[T any](cfg Config, logger log.Logger, process ProcessFunc[T]) *Queue[T] {
	if cfg.Size <= 0 {
		cfg.Size = 64
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	return &Queue[T]{
		cfg:     cfg,
		logger:  log.With(logger, "queue", cfg.Name),
		process: process,
		items:   make(chan T, cfg.Size),
	}
}

// StartWorkers launches the worker pool. Safe to call once.
func (q *Queue[T]) StartWorkers(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	for i := 0; i < q.cfg.WorkerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

func (q *Queue[T]) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-q.items:
			if !ok {
				return
			}
			lengthMetric.WithLabelValues(q.cfg.Name).Dec()
			q.depth.Dec()
			q.process(ctx, item)
		}
	}
}

// Push enqueues an item, dropping it if the queue is full.
func (q *Queue[T]) Push(item T) {
	pushesTotalMetric.WithLabelValues(q.cfg.Name).Inc()
	select {
	case q.items <- item:
		lengthMetric.WithLabelValues(q.cfg.Name).Inc()
		q.depth.Inc()
	default:
		pushesDroppedTotalMetric.WithLabelValues(q.cfg.Name).Inc()
		level.Warn(q.logger).Log("msg", "queue full, dropping item")
	}
}

// Len returns the current number of items queued but not yet claimed by a
// worker. Useful for tests and liveness checks that want to assert on
// backlog without scraping Prometheus.
func (q *Queue[T]) Len() int64 {
	return q.depth.Load()
}

// Shutdown closes the queue and waits for in-flight items to drain, or for
// ctx to be cancelled.
func (q *Queue[T]) Shutdown(ctx context.Context) error {
	close(q.items)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
