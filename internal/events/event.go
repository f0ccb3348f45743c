package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	DonorCreated        Type = "donor.created"
	CampaignCreated     Type = "campaign.created"
	TransactionCreated  Type = "transaction.created"
	SubscriptionCreated Type = "subscription.created"

	TransactionStatusChanged  Type = "transaction.status_changed"
	SubscriptionStatusChanged Type = "subscription.status_changed"

	DonationConfirmed Type = "donation.confirmed"
	SettingsUpdated   Type = "settings.updated"
)

// TransactionTransition names the per-pair event, e.g.
// transaction.status.pending_to_completed.
func TransactionTransition(from, to string) Type {
	return Type(fmt.Sprintf("transaction.status.%s_to_%s", from, to))
}

func SubscriptionTransition(from, to string) Type {
	return Type(fmt.Sprintf("subscription.status.%s_to_%s", from, to))
}

type Event struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	Entity     string          `json:"entity,omitempty"`
	EntityID   int64           `json:"entity_id,omitempty"`
	From       string          `json:"from,omitempty"`
	To         string          `json:"to,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// New builds an event carrying a JSON snapshot of data. A payload that
// cannot be encoded is dropped rather than failing the caller.
func New(t Type, entity string, id int64, data any) Event {
	e := Event{
		ID:         uuid.NewString(),
		Type:       t,
		Entity:     entity,
		EntityID:   id,
		OccurredAt: time.Now().UTC(),
	}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			e.Data = b
		}
	}
	return e
}

// Transition builds an event for a status change.
func Transition(t Type, entity string, id int64, from, to string, data any) Event {
	e := New(t, entity, id, data)
	e.From = from
	e.To = to
	return e
}

func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.ID)
	}
	return json.Unmarshal(e.Data, v)
}
