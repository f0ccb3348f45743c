package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/donation-ledger/internal/queue"
	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/nimasrn/donation-ledger/pkg/redis"
	"github.com/nimasrn/donation-ledger/pkg/worker"
)

const ProcessingTimeout = time.Second * 10
const HealthInterval = time.Second * 30
const ShutdownTimeout = time.Minute

// highLag is the pending count above which the health check warns.
const highLag = 10000

// Processor handles one queue message. A nil error acks it.
type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

type Options struct {
	Queue      queue.QueueConfig
	Consumers  int
	Workers    int
	BufferSize int
}

// ProcessorService reads the event stream with several consumers of one
// group and runs every message on a bounded worker pool.
type ProcessorService struct {
	adapter   redis.RedisAdapter
	options   Options
	queues    []*queue.Queue
	processor Processor
	metrics   *ServiceMetrics
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	worker    *worker.WorkerManager
}

func NewProcessorService(adapter redis.RedisAdapter, options Options) *ProcessorService {
	if options.Consumers <= 0 {
		options.Consumers = 1
	}
	if options.Workers <= 0 {
		options.Workers = 4
	}
	if options.BufferSize <= 0 {
		options.BufferSize = options.Workers * 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessorService{
		adapter: adapter,
		options: options,
		metrics: NewServiceMetrics(),
		ctx:     ctx,
		cancel:  cancel,
		worker:  worker.NewWorkerManager(options.BufferSize, options.Workers),
	}
}

func (s *ProcessorService) RegisterProcessor(p Processor) {
	s.processor = p
	logger.Info("registered processor", "type", p.GetType())
}

func (s *ProcessorService) Metrics() *ServiceMetrics {
	return s.metrics
}

func (s *ProcessorService) Start() error {
	logger.Info("starting processor service...")
	if s.processor == nil {
		return fmt.Errorf("no processor registered")
	}

	s.worker.SetWorker(s.workerHandler)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(s.ctx); err != nil {
			logger.Info("worker manager stopped", "reason", err)
		}
	}()

	for i := 0; i < s.options.Consumers; i++ {
		cfg := s.options.Queue
		cfg.ConsumerName = fmt.Sprintf("%s-instance-%d", cfg.ConsumerName, i)

		q, err := queue.NewQueue(s.adapter, cfg)
		if err != nil {
			return fmt.Errorf("failed to create queue %d: %w", i, err)
		}
		if err := q.Consume(s.messageHandler); err != nil {
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}
		s.queues = append(s.queues, q)
	}

	s.wg.Add(2)
	go s.every(30*time.Second, s.reportMetrics)
	go s.every(HealthInterval, s.performHealthCheck)

	logger.Info("processor service started",
		"queue", s.options.Queue.Name,
		"consumers", len(s.queues),
		"workers", s.options.Workers)
	return nil
}

func (s *ProcessorService) every(interval time.Duration, fn func()) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics() {
	stats := s.metrics.Snapshot()
	logger.Info("processor metrics",
		"processed", stats.Processed,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"rate_per_second", stats.RatePerSecond,
		"avg_duration_ms", stats.AvgDuration.Milliseconds(),
		"uptime_seconds", stats.Uptime.Seconds())

	if len(s.queues) == 0 {
		return
	}
	if qs, err := s.queues[0].GetStats(s.ctx); err == nil {
		logger.Info("queue stats", "queue", s.options.Queue.Name, "total", qs.TotalMessages, "pending", qs.PendingMessages, "consumers", qs.ConsumerCount)
	}
}

func (s *ProcessorService) performHealthCheck() {
	if err := s.adapter.Ping(s.ctx); err != nil {
		logger.Error("health check failed: redis unreachable", "error", err)
		return
	}
	if len(s.queues) == 0 {
		return
	}
	stats, err := s.queues[0].GetStats(s.ctx)
	if err != nil {
		logger.Warn("health check: queue stats unavailable", "error", err)
		return
	}
	if stats.PendingMessages > highLag {
		logger.Warn("health check: queue lagging", "pending_messages", stats.PendingMessages)
	}
}

func (s *ProcessorService) Stop() {
	logger.Info("shutting down processor service...")

	var stopping sync.WaitGroup
	for i, q := range s.queues {
		stopping.Add(1)
		go func(index int, q *queue.Queue) {
			defer stopping.Done()
			if err := q.Stop(ShutdownTimeout); err != nil {
				logger.Error("error stopping queue", "queue", index, "error", err)
			}
		}(i, q)
	}
	stopping.Wait()

	s.cancel()
	s.worker.Exit()
	s.wg.Wait()

	s.reportMetrics()
	logger.Info("processor service stopped")
}

type job struct {
	msg    *queue.Message
	result chan error
	ctx    context.Context
}

// messageHandler hands a message to the pool and waits for its outcome so
// the queue acks only what was processed.
func (s *ProcessorService) messageHandler(ctx context.Context, msg *queue.Message) error {
	msgCtx, cancel := context.WithTimeout(ctx, ProcessingTimeout)
	defer cancel()

	j := &job{msg: msg, result: make(chan error, 1), ctx: msgCtx}
	if err := s.worker.Enqueue(msgCtx, j); err != nil {
		return fmt.Errorf("enqueue message %s: %w", msg.ID, err)
	}

	select {
	case err := <-j.result:
		return err
	case <-msgCtx.Done():
		return fmt.Errorf("timeout waiting for worker to process message: %w", msgCtx.Err())
	}
}

func (s *ProcessorService) workerHandler(_ context.Context, workerIndex int, payload interface{}) {
	j, ok := payload.(*job)
	if !ok {
		logger.Error("invalid job type in worker", "worker", workerIndex)
		return
	}
	if j.ctx.Err() != nil {
		logger.Warn("job expired before processing started", "worker", workerIndex, "message_id", j.msg.ID)
		return
	}

	start := time.Now()
	err := s.processor.Process(j.ctx, j.msg)
	switch {
	case err == nil:
		s.metrics.RecordSuccess(time.Since(start))
	case errors.Is(err, ErrSkipped):
		s.metrics.RecordSkipped()
		err = nil
	default:
		s.metrics.RecordFailure()
		logger.Error("failed to process message", "worker", workerIndex, "message_id", j.msg.ID, "error", err)
	}

	// result is buffered; the waiter may already have timed out
	j.result <- err
}
