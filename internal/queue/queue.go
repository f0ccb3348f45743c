package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/nimasrn/donation-ledger/pkg/redis"
	"github.com/pkg/errors"
)

var (
	ErrAlreadyAcked = errors.New("message already acknowledged")
	ErrNoHandler    = errors.New("message handler is required")
)

type Message struct {
	ID        string
	Data      []byte
	Metadata  map[string]string
	Timestamp time.Time
	Attempts  int
	acked     bool
	queue     *Queue
}

func (m *Message) Ack(ctx context.Context) error {
	if m.acked {
		return ErrAlreadyAcked
	}
	m.acked = true
	return m.queue.ackMessage(ctx, m.ID)
}

// MessageHandler returning nil acks the message; an error leaves it pending
// so it is reclaimed after the visibility timeout.
type MessageHandler func(ctx context.Context, msg *Message) error

type QueueConfig struct {
	Name              string
	ConsumerGroup     string
	ConsumerName      string
	MaxRetries        int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	BatchSize         int64
	MaxLen            int64
	EnableDLQ         bool
}

type Queue struct {
	adapter redis.RedisAdapter
	config  QueueConfig
	handler MessageHandler
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	// attempts counts deliveries per stream id within this consumer
	mu       sync.Mutex
	attempts map[string]int
}

type QueueStats struct {
	TotalMessages   int64
	PendingMessages int64
	ConsumerCount   int64
}

func NewQueue(adapter redis.RedisAdapter, config QueueConfig) (*Queue, error) {
	if config.Name == "" {
		return nil, errors.New("queue name is required")
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "default-group"
	}
	if config.ConsumerName == "" {
		config.ConsumerName = "consumer-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.VisibilityTimeout == 0 {
		config.VisibilityTimeout = 30 * time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		adapter:  adapter,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		attempts: make(map[string]int),
	}

	if err := adapter.XGroupCreateMkStream(ctx, config.Name, config.ConsumerGroup, "0"); err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		cancel()
		return nil, errors.Wrap(err, "create consumer group")
	}
	return q, nil
}

func (q *Queue) Name() string { return q.config.Name }

func (q *Queue) Publish(ctx context.Context, data []byte, metadata map[string]string) (string, error) {
	values := map[string]interface{}{
		"data":      string(data),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range metadata {
		values["meta_"+k] = v
	}

	id, err := q.adapter.XAdd(ctx, q.config.Name, values)
	if err != nil {
		return "", errors.Wrap(err, "failed to publish message")
	}

	if q.config.MaxLen > 0 {
		if err := q.adapter.XTrimApprox(ctx, q.config.Name, q.config.MaxLen); err != nil {
			logger.Warn("queue trim failed", "queue", q.config.Name, "error", err)
		}
	}
	return id, nil
}

func (q *Queue) PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal JSON")
	}
	return q.Publish(ctx, b, metadata)
}

func (q *Queue) Consume(handler MessageHandler) error {
	if handler == nil {
		return ErrNoHandler
	}
	q.handler = handler
	q.wg.Add(1)
	go q.consumeLoop()
	return nil
}

func (q *Queue) consumeLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.processMessages()
			q.claimStuckMessages()
		}
	}
}

func (q *Queue) processMessages() {
	messages, err := q.adapter.XReadGroup(q.ctx, q.config.ConsumerGroup, q.config.ConsumerName, q.config.Name, q.config.BatchSize)
	if err != nil {
		if !errors.Is(err, redis.NilError) && q.ctx.Err() == nil {
			logger.Error("queue read failed", "queue", q.config.Name, "error", err)
		}
		return
	}
	for _, sm := range messages {
		q.handleMessage(q.toMessage(sm))
	}
}

func (q *Queue) claimStuckMessages() {
	pending, err := q.adapter.XPendingExt(q.ctx, q.config.Name, q.config.ConsumerGroup, 100)
	if err != nil || len(pending) == 0 {
		return
	}

	var ids []string
	for _, p := range pending {
		if p.Idle >= q.config.VisibilityTimeout {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return
	}

	messages, err := q.adapter.XClaim(q.ctx, q.config.Name, q.config.ConsumerGroup, q.config.ConsumerName, q.config.VisibilityTimeout, ids...)
	if err != nil {
		logger.Warn("queue claim failed", "queue", q.config.Name, "error", err)
		return
	}
	for _, sm := range messages {
		q.handleMessage(q.toMessage(sm))
	}
}

func (q *Queue) handleMessage(msg *Message) {
	q.mu.Lock()
	q.attempts[msg.ID]++
	msg.Attempts = q.attempts[msg.ID]
	q.mu.Unlock()

	if msg.Attempts > q.config.MaxRetries {
		q.moveToDeadLetterQueue(msg)
		q.forget(msg.ID)
		if err := q.ackMessage(q.ctx, msg.ID); err != nil {
			logger.Warn("queue ack failed", "queue", q.config.Name, "id", msg.ID, "error", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(q.ctx, q.config.VisibilityTimeout)
	defer cancel()

	if err := q.handler(ctx, msg); err != nil {
		logger.Warn("queue handler failed, message stays pending", "queue", q.config.Name, "id", msg.ID, "attempt", msg.Attempts, "error", err)
		return
	}
	if !msg.acked {
		msg.acked = true
		if err := q.ackMessage(ctx, msg.ID); err != nil {
			logger.Warn("queue ack failed", "queue", q.config.Name, "id", msg.ID, "error", err)
		}
	}
	q.forget(msg.ID)
}

func (q *Queue) forget(id string) {
	q.mu.Lock()
	delete(q.attempts, id)
	q.mu.Unlock()
}

func (q *Queue) ackMessage(ctx context.Context, id string) error {
	return q.adapter.XAck(ctx, q.config.Name, q.config.ConsumerGroup, id)
}

func (q *Queue) moveToDeadLetterQueue(msg *Message) {
	if !q.config.EnableDLQ {
		return
	}
	values := map[string]interface{}{
		"data":           string(msg.Data),
		"original_id":    msg.ID,
		"attempts":       msg.Attempts,
		"failed_at":      time.Now().UTC().Format(time.RFC3339Nano),
		"original_queue": q.config.Name,
	}
	for k, v := range msg.Metadata {
		values["meta_"+k] = v
	}
	if _, err := q.adapter.XAdd(q.ctx, q.DeadLetterName(), values); err != nil {
		logger.Error("dead letter publish failed", "queue", q.config.Name, "id", msg.ID, "error", err)
		return
	}
	logger.Warn("message moved to dead letter queue", "queue", q.config.Name, "id", msg.ID, "attempts", msg.Attempts)
}

func (q *Queue) DeadLetterName() string {
	return q.config.Name + ":dlq"
}

func (q *Queue) toMessage(sm redis.StreamMessage) *Message {
	msg := &Message{ID: sm.ID, Metadata: make(map[string]string), queue: q}
	for k, v := range sm.Values {
		s, _ := v.(string)
		switch {
		case k == "data":
			msg.Data = []byte(s)
		case k == "timestamp":
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				msg.Timestamp = ts
			}
		case strings.HasPrefix(k, "meta_"):
			msg.Metadata[strings.TrimPrefix(k, "meta_")] = s
		}
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return msg
}

func (q *Queue) Stop(timeout time.Duration) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("timeout waiting for queue to stop")
	}
}

func (q *Queue) GetStats(ctx context.Context) (*QueueStats, error) {
	total, err := q.adapter.XLen(ctx, q.config.Name)
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{TotalMessages: total}
	if pending, err := q.adapter.XPending(ctx, q.config.Name, q.config.ConsumerGroup); err == nil && pending != nil {
		stats.PendingMessages = pending.Count
		stats.ConsumerCount = int64(len(pending.Consumers))
	}
	return stats, nil
}
