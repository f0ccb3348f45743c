package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/nimasrn/donation-ledger/pkg/pg"
	"github.com/pkg/errors"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Config holds every value read from the environment. Nothing else in the
// module reads env vars directly.
type Config struct {
	AppEnv              string `env:"APP_ENV,default=dev"`
	AppName             string `env:"APP_NAME,default=donation_ledger"`
	AppDebug            bool   `env:"APP_DEBUG,default=false"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR,default=:9100"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI,default=/metrics"`

	HttpListenAddr     string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=10s"`
	HttpAllowOrigin    string        `env:"HTTP_ALLOW_ORIGIN,default=*"`
	AdminToken         string        `env:"ADMIN_TOKEN"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT,default=5432"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE,default=0"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=ledger:"`

	PromNamespace string `env:"PROM_NAMESPACE,default=donation_ledger"`

	LogLevel string `env:"LOG_LEVEL"`

	EventsQueueName         string        `env:"EVENTS_QUEUE_NAME,default=ledger-events"`
	EventsConsumerGroup     string        `env:"EVENTS_CONSUMER_GROUP,default=ledger-processors"`
	EventsConsumerName      string        `env:"EVENTS_CONSUMER_NAME,default=processor"`
	EventsConsumers         int           `env:"EVENTS_CONSUMERS,default=2"`
	EventsWorkers           int           `env:"EVENTS_WORKERS,default=8"`
	EventsMaxRetries        int           `env:"EVENTS_MAX_RETRIES,default=5"`
	EventsVisibilityTimeout time.Duration `env:"EVENTS_VISIBILITY_TIMEOUT,default=30s"`
	EventsPollInterval      time.Duration `env:"EVENTS_POLL_INTERVAL,default=1s"`
	EventsBatchSize         int64         `env:"EVENTS_BATCH_SIZE,default=20"`
	EventsMaxLen            int64         `env:"EVENTS_MAX_LEN,default=100000"`
	EventsEnableDLQ         bool          `env:"EVENTS_ENABLE_DLQ,default=true"`

	PaymentAPIURL         string        `env:"PAYMENT_API_URL,default=http://localhost:8081"`
	PaymentAPITimeout     time.Duration `env:"PAYMENT_API_TIMEOUT,default=30s"`
	PaymentBreakerTrips   int           `env:"PAYMENT_BREAKER_THRESHOLD,default=5"`
	PaymentBreakerTimeout time.Duration `env:"PAYMENT_BREAKER_TIMEOUT,default=30s"`

	FeeRate  string `env:"FEE_RATE,default=0.029"`
	FeeFixed int64  `env:"FEE_FIXED,default=30"`

	// Seed values for the settings store; stored settings win once written.
	DefaultCurrency      string `env:"DEFAULT_CURRENCY,default=USD"`
	TipEnabled           bool   `env:"TIP_ENABLED,default=true"`
	TipDefaultPercentage int    `env:"TIP_DEFAULT_PERCENTAGE,default=15"`
	StripePublishableKey string `env:"STRIPE_PUBLISHABLE_KEY"`
	StripeSiteToken      string `env:"STRIPE_SITE_TOKEN"`
	StripeAccountID      string `env:"STRIPE_ACCOUNT_ID"`
	EmailFromName        string `env:"EMAIL_FROM_NAME"`
	EmailFromAddress     string `env:"EMAIL_FROM_ADDRESS"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	config = c
	return nil
}

// Set installs an already built config; used by tests and embedded setups.
func Set(c *Config) {
	config = c
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

func (c *Config) ReadDB() pg.Config {
	return pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
	}
}

func (c *Config) WriteDB() pg.Config {
	return pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
	}
}
