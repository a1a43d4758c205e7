package listener

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/mindmaxed/entitlement-sync/billing/types"
)

const (
	stripeSignatureHeader = "Stripe-Signature"

	// Subscriptions created from checkout carry the site's user id here.
	stripeUserIDKey = "user_id"
)

var stripeEventTypes = map[stripelib.EventType]types.EventType{
	"customer.subscription.created": types.SubscriptionCreated,
	"customer.subscription.updated": types.SubscriptionUpdated,
	"customer.subscription.deleted": types.SubscriptionCanceled,
}

type stripeProvider struct{}

func (stripeProvider) verify(payload []byte, h http.Header, secret string, now time.Time) error {
	return webhook.ValidatePayloadWithTolerance(
		payload,
		h.Get(stripeSignatureHeader),
		secret,
		signatureTolerance,
	)
}

func (stripeProvider) decode(payload []byte) (*types.Event, error) {
	var se stripelib.Event
	if err := json.Unmarshal(payload, &se); err != nil {
		return nil, fmt.Errorf("error parsing JSON: %w", err)
	}

	t, ok := stripeEventTypes[se.Type]
	if !ok {
		return &types.Event{ID: se.ID, Type: types.EventType(se.Type)}, nil
	}

	if se.Data == nil || len(se.Data.Raw) == 0 {
		return nil, fmt.Errorf("%s event without data", se.Type)
	}

	var sub stripelib.Subscription
	if err := json.Unmarshal(se.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("error parsing subscription: %w", err)
	}

	e := &types.Event{
		ID:          se.ID,
		Type:        t,
		PayerUserID: sub.Metadata[stripeUserIDKey],
	}

	if sub.Items != nil {
		for _, it := range sub.Items.Data {
			if it == nil || it.Price == nil {
				continue
			}
			e.Items = append(e.Items, types.Item{
				PlanID: it.Price.ID,
				Status: types.Status(sub.Status),
			})
		}
	}

	return e, nil
}

func (stripeProvider) deliveryID(http.Header) string {
	return ""
}

func (stripeProvider) signatureHeaders(h http.Header) map[string]string {
	return pickHeaders(h, stripeSignatureHeader)
}
