// Package idempotency guards work keyed by an external id (a gateway
// transaction id, an event id) with a short redis lock, a long-lived
// processed marker and a retry counter.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/nimasrn/donation-ledger/pkg/redis"
)

var (
	ErrAlreadyProcessed   = errors.New("already processed")
	ErrLockAcquireFailed  = errors.New("failed to acquire processing lock")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

type Config struct {
	// Scope namespaces every key, e.g. "confirm" or "event".
	Scope string

	LockTTL      time.Duration
	ProcessedTTL time.Duration
	MaxRetries   int

	RetryKeyPrefix     string
	LockKeyPrefix      string
	ProcessedKeyPrefix string
}

func DefaultConfig(scope string) Config {
	return Config{
		Scope:              scope,
		LockTTL:            30 * time.Second,
		ProcessedTTL:       24 * time.Hour,
		MaxRetries:         3,
		RetryKeyPrefix:     "retry:",
		LockKeyPrefix:      "lock:",
		ProcessedKeyPrefix: "processed:",
	}
}

type Service struct {
	redis  redis.RedisAdapter
	config Config
}

func NewService(adapter redis.RedisAdapter, config Config) *Service {
	return &Service{redis: adapter, config: config}
}

// Attempt is a held lock on one key. It must end with MarkSuccess,
// MarkFailure or Release.
type Attempt struct {
	Key          string
	RetryCount   int
	IsRetry      bool
	lockAcquired bool
}

func (s *Service) key(prefix, id string) string {
	if s.config.Scope == "" {
		return prefix + id
	}
	return s.config.Scope + ":" + prefix + id
}

// Acquire takes the lock for id unless id is already processed, has used up
// its retries, or is held by someone else.
func (s *Service) Acquire(ctx context.Context, id string) (*Attempt, error) {
	exists, err := s.redis.Exist(ctx, s.key(s.config.ProcessedKeyPrefix, id))
	if err != nil {
		// a missed duplicate check is preferred over blocking the work
		logger.Warn("processed marker check failed", "scope", s.config.Scope, "key", id, "error", err)
	} else if exists > 0 {
		logger.Debug("already processed, skipping", "scope", s.config.Scope, "key", id)
		return nil, ErrAlreadyProcessed
	}

	retryCount, err := s.RetryCount(ctx, id)
	if err != nil {
		logger.Warn("retry counter read failed", "scope", s.config.Scope, "key", id, "error", err)
	}
	if s.config.MaxRetries > 0 && retryCount >= s.config.MaxRetries {
		logger.Error("max retries exceeded", "scope", s.config.Scope, "key", id, "retry_count", retryCount)
		return nil, fmt.Errorf("%w: key=%s, retries=%d", ErrMaxRetriesExceeded, id, retryCount)
	}

	lockValue := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	acquired, err := s.redis.SetNX(ctx, s.key(s.config.LockKeyPrefix, id), lockValue, s.config.LockTTL)
	if err != nil {
		logger.Error("lock acquire failed", "scope", s.config.Scope, "key", id, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}
	if !acquired {
		logger.Info("lock held by another worker", "scope", s.config.Scope, "key", id)
		return nil, ErrLockAcquireFailed
	}

	return &Attempt{
		Key:          id,
		RetryCount:   retryCount,
		IsRetry:      retryCount > 0,
		lockAcquired: true,
	}, nil
}

// MarkSuccess writes the processed marker, optionally with a result such as
// the id of the row the work produced, and clears the lock and counter.
func (s *Service) MarkSuccess(ctx context.Context, a *Attempt, result []byte) error {
	if result == nil {
		result = []byte("1")
	}
	if err := s.redis.Set(ctx, s.key(s.config.ProcessedKeyPrefix, a.Key), result, s.config.ProcessedTTL); err != nil {
		logger.Error("processed marker write failed", "scope", s.config.Scope, "key", a.Key, "error", err)
		return fmt.Errorf("failed to mark as processed: %w", err)
	}
	s.cleanup(ctx, a)
	return nil
}

// MarkFailure bumps the retry counter and frees the lock for the next try.
func (s *Service) MarkFailure(ctx context.Context, a *Attempt, reason error) error {
	n, err := s.redis.Incr(ctx, s.key(s.config.RetryKeyPrefix, a.Key), s.config.ProcessedTTL)
	if err != nil {
		logger.Error("retry counter increment failed", "scope", s.config.Scope, "key", a.Key, "error", err)
	}
	if err := s.redis.Del(ctx, s.key(s.config.LockKeyPrefix, a.Key)); err != nil {
		logger.Warn("lock release failed", "scope", s.config.Scope, "key", a.Key, "error", err)
	}
	a.lockAcquired = false

	logger.Warn("processing failed, will retry",
		"scope", s.config.Scope,
		"key", a.Key,
		"retry_count", n,
		"max_retries", s.config.MaxRetries,
		"reason", reason)
	return nil
}

// Release drops the lock without recording an outcome.
func (s *Service) Release(ctx context.Context, a *Attempt) error {
	if a == nil || !a.lockAcquired {
		return nil
	}
	if err := s.redis.Del(ctx, s.key(s.config.LockKeyPrefix, a.Key)); err != nil {
		logger.Warn("lock release failed", "scope", s.config.Scope, "key", a.Key, "error", err)
		return err
	}
	a.lockAcquired = false
	return nil
}

func (s *Service) cleanup(ctx context.Context, a *Attempt) {
	if err := s.redis.Del(ctx, s.key(s.config.LockKeyPrefix, a.Key), s.key(s.config.RetryKeyPrefix, a.Key)); err != nil {
		logger.Warn("lock cleanup failed", "scope", s.config.Scope, "key", a.Key, "error", err)
	}
	a.lockAcquired = false
}

func (s *Service) RetryCount(ctx context.Context, id string) (int, error) {
	b, err := s.redis.Get(ctx, s.key(s.config.RetryKeyPrefix, id))
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *Service) IsProcessed(ctx context.Context, id string) (bool, error) {
	exists, err := s.redis.Exist(ctx, s.key(s.config.ProcessedKeyPrefix, id))
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// Result returns what MarkSuccess stored for id.
func (s *Service) Result(ctx context.Context, id string) ([]byte, bool, error) {
	b, err := s.redis.Get(ctx, s.key(s.config.ProcessedKeyPrefix, id))
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}
