// Package store picks the backend that holds entitlement records.
package store

import (
	"context"
	"fmt"

	"github.com/mindmaxed/entitlement-sync/billing/clerk"
	"github.com/mindmaxed/entitlement-sync/billing/db"
	"github.com/mindmaxed/entitlement-sync/billing/types"
)

const (
	KindDB    = "db"
	KindClerk = "clerk"
)

type Store interface {
	WriteEntitlements(ctx context.Context, userID string, e types.Entitlements) error
	SetWhitelisted(ctx context.Context, userID string, whitelisted bool) error
	ReadRecord(ctx context.Context, userID string) (*types.Record, error)
}

type Config struct {
	Kind string

	// db
	Driver string
	DSN    string

	// clerk
	ClerkSecretKey string
	ClerkAPIURL    string
}

// Open returns the configured store and a func releasing it.
func Open(c Config) (Store, func() error, error) {
	switch c.Kind {
	case KindDB, "":
		if c.DSN == "" {
			return nil, nil, fmt.Errorf("no database connection string given")
		}
		d, err := db.New(c.Driver, c.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to database: %w", err)
		}
		return d, d.Close, nil

	case KindClerk:
		if c.ClerkSecretKey == "" {
			return nil, nil, fmt.Errorf("no clerk secret key given")
		}
		return clerk.New(c.ClerkSecretKey, c.ClerkAPIURL, nil), func() error { return nil }, nil
	}

	return nil, nil, fmt.Errorf("unknown store %q", c.Kind)
}
