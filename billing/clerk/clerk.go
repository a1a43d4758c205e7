// Package clerk keeps entitlement records in the public metadata of the
// hosted identity provider's user objects.
package clerk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/user"

	"github.com/mindmaxed/entitlement-sync/billing/types"
)

const (
	keyHasAnySubscription = "hasAnySubscription"
	keyPrimaryFeature     = "hasDeanOfZenSubscription"
	keyActivePlans        = "activePlans"
	keyWhitelisted        = "isWhitelisted"
)

type publicMetadata struct {
	HasAnySubscription      bool     `json:"hasAnySubscription"`
	HasPrimaryFeatureAccess bool     `json:"hasDeanOfZenSubscription"`
	IsWhitelisted           bool     `json:"isWhitelisted"`
	ActivePlans             []string `json:"activePlans"`
}

type Store struct {
	users *user.Client
}

// New returns a store authenticated with the provider's secret key. apiURL
// may be empty to use the default endpoint.
func New(secretKey, apiURL string, httpClient *http.Client) *Store {
	config := &clerk.ClientConfig{}
	config.Key = clerk.String(secretKey)
	if apiURL != "" {
		config.URL = clerk.String(apiURL)
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}

	return &Store{users: user.NewClient(config)}
}

// WriteEntitlements sends only the webhook-owned keys. The provider merges
// metadata updates, so isWhitelisted is left as it is.
func (s *Store) WriteEntitlements(ctx context.Context, userID string, e types.Entitlements) error {
	plans := e.ActivePlans
	if plans == nil {
		plans = []string{}
	}

	return s.updateMetadata(ctx, userID, map[string]any{
		keyHasAnySubscription: e.HasAnySubscription,
		keyPrimaryFeature:     e.HasPrimaryFeatureAccess,
		keyActivePlans:        plans,
	})
}

func (s *Store) SetWhitelisted(ctx context.Context, userID string, whitelisted bool) error {
	return s.updateMetadata(ctx, userID, map[string]any{keyWhitelisted: whitelisted})
}

func (s *Store) ReadRecord(ctx context.Context, userID string) (*types.Record, error) {
	u, err := s.users.Get(ctx, userID)
	if apiErr := (*clerk.APIErrorResponse)(nil); errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w for %s", types.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching user %s: %w", userID, err)
	}

	var md publicMetadata
	if len(u.PublicMetadata) > 0 {
		if err := json.Unmarshal(u.PublicMetadata, &md); err != nil {
			return nil, fmt.Errorf("error decoding metadata for %s: %w", userID, err)
		}
	}

	r := &types.Record{
		UserID:                  userID,
		HasAnySubscription:      md.HasAnySubscription,
		HasPrimaryFeatureAccess: md.HasPrimaryFeatureAccess,
		IsWhitelisted:           md.IsWhitelisted,
	}
	if len(md.ActivePlans) > 0 {
		r.ActivePlans = md.ActivePlans
	}

	return r, nil
}

func (s *Store) updateMetadata(ctx context.Context, userID string, fields map[string]any) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("error encoding metadata: %w", err)
	}

	raw := json.RawMessage(b)
	if _, err := s.users.UpdateMetadata(ctx, userID, &user.UpdateMetadataParams{
		PublicMetadata: &raw,
	}); err != nil {
		return fmt.Errorf("error updating metadata for %s: %w", userID, err)
	}

	return nil
}
