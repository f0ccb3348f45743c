package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nimasrn/donation-ledger/internal/config"
	"github.com/nimasrn/donation-ledger/internal/events"
	"github.com/nimasrn/donation-ledger/internal/idempotency"
	"github.com/nimasrn/donation-ledger/internal/processor"
	"github.com/nimasrn/donation-ledger/internal/queue"
	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/nimasrn/donation-ledger/pkg/prom"
	"github.com/nimasrn/donation-ledger/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting donation ledger processor", "version", version, "commit", commit, "date", date)

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: "default",
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// receipts and other side effects subscribe here
	bus := events.NewBus()
	bus.SubscribeAll(processor.AuditHandler())

	eventLocks := idempotency.NewService(redisAdap, idempotency.DefaultConfig("event"))

	service := processor.NewProcessorService(redisAdap, processor.Options{
		Queue: queue.QueueConfig{
			Name:              cfg.EventsQueueName,
			ConsumerGroup:     cfg.EventsConsumerGroup,
			ConsumerName:      cfg.EventsConsumerName,
			MaxRetries:        cfg.EventsMaxRetries,
			VisibilityTimeout: cfg.EventsVisibilityTimeout,
			PollInterval:      cfg.EventsPollInterval,
			BatchSize:         cfg.EventsBatchSize,
			MaxLen:            cfg.EventsMaxLen,
			EnableDLQ:         cfg.EventsEnableDLQ,
		},
		Consumers: cfg.EventsConsumers,
		Workers:   cfg.EventsWorkers,
	})
	service.RegisterProcessor(processor.NewEventProcessor(bus, eventLocks))

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)
	}()

	if err := service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		return
	}

	<-c
	service.Stop()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
