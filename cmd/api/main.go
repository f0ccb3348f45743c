package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/donation-ledger/internal/config"
	"github.com/nimasrn/donation-ledger/internal/events"
	"github.com/nimasrn/donation-ledger/internal/fees"
	gateway "github.com/nimasrn/donation-ledger/internal/gateways"
	"github.com/nimasrn/donation-ledger/internal/handlers"
	"github.com/nimasrn/donation-ledger/internal/idempotency"
	"github.com/nimasrn/donation-ledger/internal/ledger"
	"github.com/nimasrn/donation-ledger/internal/queue"
	"github.com/nimasrn/donation-ledger/internal/repository"
	"github.com/nimasrn/donation-ledger/internal/services"
	"github.com/nimasrn/donation-ledger/internal/settings"
	xhttp "github.com/nimasrn/donation-ledger/pkg/http"
	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/nimasrn/donation-ledger/pkg/pg"
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
	logger.Info("starting donation ledger api", "version", version, "commit", commit, "date", date)

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.CORSMiddleware(cfg.HttpAllowOrigin))
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))
	s.Router = xhttp.CreateDefaultRouter()

	pgDebug := false
	if cfg.AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(cfg.ReadDB(), cfg.WriteDB(), pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

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

	q, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:              cfg.EventsQueueName,
		ConsumerGroup:     cfg.EventsConsumerGroup,
		ConsumerName:      cfg.EventsConsumerName,
		MaxRetries:        cfg.EventsMaxRetries,
		VisibilityTimeout: cfg.EventsVisibilityTimeout,
		PollInterval:      cfg.EventsPollInterval,
		BatchSize:         cfg.EventsBatchSize,
		MaxLen:            cfg.EventsMaxLen,
		EnableDLQ:         cfg.EventsEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating event queue", "error", err)
		return
	}

	// events land on the stream; the processor fans them out
	notifier := events.NewQueuePublisher(q)

	calc, err := fees.New(cfg.FeeRate, cfg.FeeFixed)
	if err != nil {
		logger.Error("invalid fee configuration", "error", err)
		return
	}

	paymentAPI, err := gateway.NewClient(gateway.Config{
		BaseURL:          cfg.PaymentAPIURL,
		Timeout:          cfg.PaymentAPITimeout,
		MaxConns:         64,
		ReadBufferSize:   1024 * 4,
		WriteBufferSize:  1024 * 4,
		BreakerThreshold: cfg.PaymentBreakerTrips,
		BreakerTimeout:   cfg.PaymentBreakerTimeout,
	})
	if err != nil {
		logger.Error("failed to create payment api client", "error", err)
		return
	}

	donorRepo := repository.NewDonorRepository(db, notifier)
	campaignRepo := repository.NewCampaignRepository(db, notifier)
	aggregator := ledger.NewAggregator(donorRepo, campaignRepo)
	transactionRepo := repository.NewTransactionRepository(db, aggregator, notifier)

	settingsStore := settings.NewStore(redisAdap, settings.DefaultsFromConfig(cfg), notifier)
	confirmLocks := idempotency.NewService(redisAdap, idempotency.DefaultConfig("confirm"))

	// services
	donationService := services.NewDonationService(donorRepo, transactionRepo, settingsStore, paymentAPI, confirmLocks, calc, notifier)
	campaignService := services.NewCampaignService(campaignRepo)

	// v1 handlers
	admin := handlers.NewAdmin(cfg.AdminToken)
	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN is empty, admin routes are disabled")
	}

	g := s.Router.Group("/api/v1")
	handlers.RegisterDonationRoutes(g, handlers.NewDonationHandler(donationService), admin)
	handlers.RegisterCampaignRoutes(g, handlers.NewCampaignHandler(campaignService), admin)
	handlers.RegisterSettingsRoutes(g, handlers.NewSettingsHandler(settingsStore), admin)
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(map[string]handlers.Pinger{
		"postgres": db,
		"redis":    redisAdap,
	}))

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	go func() {
		prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(cfg.HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	s.Shutdown()
	if err := q.Stop(5 * time.Second); err != nil {
		logger.Warn("event queue did not stop cleanly", "error", err)
	}
	if err := redis.Close("default"); err != nil {
		logger.Warn("redis close failed", "error", err)
	}
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
