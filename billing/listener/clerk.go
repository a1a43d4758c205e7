package listener

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mindmaxed/entitlement-sync/billing/types"
)

// Subscription events from the hosted identity provider's billing, signed
// with Svix. Only the fields the ingestor needs are declared.
type clerkEvent struct {
	Type string             `json:"type"`
	Data *clerkSubscription `json:"data"`
}

type clerkSubscription struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Payer  *clerkPayer `json:"payer"`
	Items  []clerkItem `json:"items"`
}

type clerkPayer struct {
	UserID string `json:"user_id"`
}

type clerkItem struct {
	Status string     `json:"status"`
	Plan   *clerkPlan `json:"plan"`
}

type clerkPlan struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
}

type clerkProvider struct{}

func (clerkProvider) verify(payload []byte, h http.Header, secret string, now time.Time) error {
	wh, err := newSvixVerifier(secret)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	return verifySignature(wh, payload, h, now)
}

func (clerkProvider) decode(payload []byte) (*types.Event, error) {
	var ce clerkEvent
	if err := json.Unmarshal(payload, &ce); err != nil {
		return nil, fmt.Errorf("error parsing JSON: %w", err)
	}

	e := &types.Event{Type: types.EventType(ce.Type)}
	if !e.Type.Known() {
		return e, nil
	}

	if ce.Data == nil {
		return nil, fmt.Errorf("%s event without data", ce.Type)
	}

	e.ID = ce.Data.ID
	if ce.Data.Payer != nil {
		e.PayerUserID = ce.Data.Payer.UserID
	}

	for _, it := range ce.Data.Items {
		item := types.Item{Status: types.Status(it.Status)}
		if it.Plan != nil {
			item.PlanID = it.Plan.ID
		}
		e.Items = append(e.Items, item)
	}

	return e, nil
}

func (clerkProvider) deliveryID(h http.Header) string {
	if id := h.Get("svix-id"); id != "" {
		return id
	}
	return h.Get("webhook-id")
}

func (clerkProvider) signatureHeaders(h http.Header) map[string]string {
	return pickHeaders(h,
		"svix-id", "svix-timestamp", "svix-signature",
		"webhook-id", "webhook-timestamp", "webhook-signature",
	)
}
