package model

import (
	"strings"
	"time"
)

const (
	DefaultPerPage = 25
	MaxPerPage     = 100
)

const (
	OrderAsc  = "ASC"
	OrderDesc = "DESC"
)

// Page is the paging and ordering part shared by every list filter.
// OrderBy is an API name checked against each store's allow-list.
type Page struct {
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
	OrderBy string `json:"orderby"`
	Order   string `json:"order"`
}

// Normalize clamps paging to [1, MaxPerPage] and defaults order to DESC.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	if strings.EqualFold(p.Order, OrderAsc) {
		p.Order = OrderAsc
	} else {
		p.Order = OrderDesc
	}
	p.OrderBy = strings.ToLower(strings.TrimSpace(p.OrderBy))
	return p
}

func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PerPage
}

// TotalPages is ceil(total / per_page).
func (p Page) TotalPages(total int64) int64 {
	n := p.Normalize()
	if total <= 0 {
		return 0
	}
	per := int64(n.PerPage)
	return (total + per - 1) / per
}

// DateRange bounds created_at, From inclusive and To exclusive.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

type DonorFilter struct {
	Page
	DateRange
	Search string `json:"search,omitempty"`
	UserID *int64 `json:"user_id,omitempty"`
}

type CampaignFilter struct {
	Page
	DateRange
	Search string         `json:"search,omitempty"`
	Status CampaignStatus `json:"status,omitempty"`
	// Today anchors Status filtering; zero means the current day.
	Today time.Time `json:"-"`
}

type TransactionFilter struct {
	Page
	DateRange
	Statuses       []TransactionStatus `json:"status,omitempty"`
	DonorID        *int64              `json:"donor_id,omitempty"`
	CampaignID     *int64              `json:"campaign_id,omitempty"`
	SubscriptionID *int64              `json:"subscription_id,omitempty"`
	SourceID       *int64              `json:"source_id,omitempty"`
	Search         string              `json:"search,omitempty"`
}

type SubscriptionFilter struct {
	Page
	DateRange
	Statuses   []SubscriptionStatus `json:"status,omitempty"`
	DonorID    *int64               `json:"donor_id,omitempty"`
	CampaignID *int64               `json:"campaign_id,omitempty"`
	Frequency  DonationType         `json:"frequency,omitempty"`
}
