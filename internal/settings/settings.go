// Package settings keeps the site-wide options in one typed struct stored
// as JSON in redis. Values never written fall back to the defaults the
// process was started with.
package settings

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/nimasrn/donation-ledger/internal/config"
	"github.com/nimasrn/donation-ledger/internal/events"
	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/nimasrn/donation-ledger/pkg/redis"
	"github.com/pkg/errors"
)

const Key = "settings"

const (
	ConnectionConnected    = "connected"
	ConnectionDisconnected = "disconnected"
)

type Settings struct {
	Currency               string `json:"currency"`
	TipEnabled             bool   `json:"tip_enabled"`
	TipDefaultPercentage   int    `json:"tip_default_percentage"`
	StripePublishableKey   string `json:"stripe_publishable_key"`
	StripeSiteToken        string `json:"stripe_site_token"`
	StripeAccountID        string `json:"stripe_account_id"`
	StripeConnectionStatus string `json:"stripe_connection_status"`
	EmailFromName          string `json:"email_from_name"`
	EmailFromAddress       string `json:"email_from_address"`
}

// Connected reports whether intents can be created at all.
func (s Settings) Connected() bool {
	return s.StripeSiteToken != ""
}

// Public drops the secrets, it is what the settings endpoint returns.
func (s Settings) Public() Settings {
	s.StripeSiteToken = ""
	return s
}

// Patch carries only the fields being changed.
type Patch struct {
	Currency               *string `json:"currency,omitempty"`
	TipEnabled             *bool   `json:"tip_enabled,omitempty"`
	TipDefaultPercentage   *int    `json:"tip_default_percentage,omitempty"`
	StripePublishableKey   *string `json:"stripe_publishable_key,omitempty"`
	StripeSiteToken        *string `json:"stripe_site_token,omitempty"`
	StripeAccountID        *string `json:"stripe_account_id,omitempty"`
	StripeConnectionStatus *string `json:"stripe_connection_status,omitempty"`
	EmailFromName          *string `json:"email_from_name,omitempty"`
	EmailFromAddress       *string `json:"email_from_address,omitempty"`
}

func (p Patch) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Currency, validation.NilOrNotEmpty, validation.Length(3, 3)),
		validation.Field(&p.TipDefaultPercentage, validation.Min(0), validation.Max(100)),
		validation.Field(&p.StripeConnectionStatus, validation.In(ConnectionConnected, ConnectionDisconnected)),
	)
	if err != nil {
		return model.NewValidationError(model.CodeInvalidRequest, err.Error(), err)
	}
	return nil
}

// apply returns the merged settings and the json names of the fields that
// actually changed.
func (p Patch) apply(s Settings) (Settings, []string) {
	var changed []string
	setString := func(name string, dst *string, v *string) {
		if v != nil && *dst != *v {
			*dst = *v
			changed = append(changed, name)
		}
	}
	if p.Currency != nil {
		up := strings.ToUpper(*p.Currency)
		setString("currency", &s.Currency, &up)
	}
	if p.TipEnabled != nil && s.TipEnabled != *p.TipEnabled {
		s.TipEnabled = *p.TipEnabled
		changed = append(changed, "tip_enabled")
	}
	if p.TipDefaultPercentage != nil && s.TipDefaultPercentage != *p.TipDefaultPercentage {
		s.TipDefaultPercentage = *p.TipDefaultPercentage
		changed = append(changed, "tip_default_percentage")
	}
	setString("stripe_publishable_key", &s.StripePublishableKey, p.StripePublishableKey)
	setString("stripe_site_token", &s.StripeSiteToken, p.StripeSiteToken)
	setString("stripe_account_id", &s.StripeAccountID, p.StripeAccountID)
	setString("stripe_connection_status", &s.StripeConnectionStatus, p.StripeConnectionStatus)
	setString("email_from_name", &s.EmailFromName, p.EmailFromName)
	setString("email_from_address", &s.EmailFromAddress, p.EmailFromAddress)
	sort.Strings(changed)
	return s, changed
}

func DefaultsFromConfig(c *config.Config) Settings {
	s := Settings{
		Currency:               strings.ToUpper(c.DefaultCurrency),
		TipEnabled:             c.TipEnabled,
		TipDefaultPercentage:   c.TipDefaultPercentage,
		StripePublishableKey:   c.StripePublishableKey,
		StripeSiteToken:        c.StripeSiteToken,
		StripeAccountID:        c.StripeAccountID,
		StripeConnectionStatus: ConnectionDisconnected,
		EmailFromName:          c.EmailFromName,
		EmailFromAddress:       c.EmailFromAddress,
	}
	if s.Currency == "" {
		s.Currency = "USD"
	}
	if s.StripeSiteToken != "" {
		s.StripeConnectionStatus = ConnectionConnected
	}
	return s
}

// UpdatedEvent is the payload of settings.updated. Values are left out so
// secrets never reach the event stream.
type UpdatedEvent struct {
	Changed []string `json:"changed"`
}

type Store struct {
	redis    redis.RedisAdapter
	defaults Settings
	notifier events.Notifier
	// serializes read-modify-write within this process
	mu sync.Mutex
}

func NewStore(adapter redis.RedisAdapter, defaults Settings, notifier events.Notifier) *Store {
	return &Store{redis: adapter, defaults: defaults, notifier: events.OrNop(notifier)}
}

// Get merges the stored document over the defaults.
func (s *Store) Get(ctx context.Context) (Settings, error) {
	out := s.defaults
	raw, err := s.redis.Get(ctx, Key)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return out, nil
		}
		return out, model.NewPersistenceError("read settings", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		logger.Warn("stored settings are unreadable, using defaults", "error", err)
		return s.defaults, nil
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, p Patch) (Settings, error) {
	if err := p.Validate(); err != nil {
		return Settings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Get(ctx)
	if err != nil {
		return Settings{}, err
	}
	updated, changed := p.apply(current)
	if len(changed) == 0 {
		return current, nil
	}

	b, err := json.Marshal(updated)
	if err != nil {
		return Settings{}, errors.Wrap(err, "marshal settings")
	}
	if err := s.redis.Set(ctx, Key, b, 0); err != nil {
		return Settings{}, model.NewPersistenceError("write settings", err)
	}

	logger.Info("settings updated", "changed", changed)
	s.notifier.Notify(ctx, events.New(events.SettingsUpdated, "settings", 0, UpdatedEvent{Changed: changed}))
	return updated, nil
}
