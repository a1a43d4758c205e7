package types

import (
	"errors"
	"time"
)

type EventType string

const (
	SubscriptionCreated  EventType = "subscription.created"
	SubscriptionUpdated  EventType = "subscription.updated"
	SubscriptionCanceled EventType = "subscription.canceled"
)

// Known reports whether the event type is one the ingestor acts on.
func (t EventType) Known() bool {
	switch t {
	case SubscriptionCreated, SubscriptionUpdated, SubscriptionCanceled:
		return true
	}
	return false
}

type Status string

const StatusActive Status = "active"

var (
	ErrMissingPayer = errors.New("no payer user id in event")
	ErrNotFound     = errors.New("no entitlement record")
)

type Item struct {
	PlanID string
	Status Status
}

// Event is the provider-independent form of a subscription lifecycle event.
// PayerUserID is the identity whose record gets updated.
type Event struct {
	ID          string
	Type        EventType
	PayerUserID string
	Items       []Item
}

func (e *Event) Validate() error {
	if e.PayerUserID == "" {
		return ErrMissingPayer
	}
	return nil
}

// Entitlements is the set of fields the webhook ingestor writes. It never
// includes the whitelist flag.
type Entitlements struct {
	HasAnySubscription      bool
	HasPrimaryFeatureAccess bool
	ActivePlans             []string
}

type Record struct {
	UserID                  string
	HasAnySubscription      bool
	HasPrimaryFeatureAccess bool
	IsWhitelisted           bool
	ActivePlans             []string
	UpdatedAt               time.Time
}

func (r *Record) HasAccess() bool {
	return r.HasPrimaryFeatureAccess || r.IsWhitelisted
}
