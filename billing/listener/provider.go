package listener

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mindmaxed/entitlement-sync/billing/types"
)

type Provider string

const (
	ProviderClerk  Provider = "clerk"
	ProviderStripe Provider = "stripe"
)

// provider is one billing source's signature scheme and payload shape.
type provider interface {
	verify(payload []byte, h http.Header, secret string, now time.Time) error
	decode(payload []byte) (*types.Event, error)
	// deliveryID returns the provider's id for this delivery, if any.
	deliveryID(h http.Header) string
	// signatureHeaders returns the headers worth logging on a rejected delivery.
	signatureHeaders(h http.Header) map[string]string
}

func newProvider(p Provider) (provider, error) {
	switch p {
	case ProviderClerk, "":
		return clerkProvider{}, nil
	case ProviderStripe:
		return stripeProvider{}, nil
	}
	return nil, fmt.Errorf("unknown billing provider %q", p)
}

func pickHeaders(h http.Header, names ...string) map[string]string {
	m := make(map[string]string)
	for _, n := range names {
		if v := h.Get(n); v != "" {
			m[n] = v
		}
	}
	return m
}
