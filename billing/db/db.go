package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/mindmaxed/entitlement-sync/billing/types"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"

	createTable = `CREATE TABLE IF NOT EXISTS entitlements (
		user_id VARCHAR(191) NOT NULL PRIMARY KEY,
		has_any_subscription BOOLEAN NOT NULL DEFAULT FALSE,
		has_primary_feature_access BOOLEAN NOT NULL DEFAULT FALSE,
		is_whitelisted BOOLEAN NOT NULL DEFAULT FALSE,
		active_plans VARCHAR(1024) NOT NULL DEFAULT '',
		updated_at BIGINT NOT NULL DEFAULT 0
	)`

	selectRecord = "SELECT user_id, has_any_subscription, has_primary_feature_access, " +
		"is_whitelisted, active_plans, updated_at FROM entitlements"
)

var ErrNotFound = types.ErrNotFound

type dialect struct {
	upsertEntitlements string
	upsertWhitelist    string
}

var dialects = map[string]dialect{
	DriverMySQL: {
		upsertEntitlements: "INSERT INTO entitlements " +
			"(user_id, has_any_subscription, has_primary_feature_access, active_plans, updated_at) " +
			"VALUES (?, ?, ?, ?, ?) " +
			"ON DUPLICATE KEY UPDATE has_any_subscription=VALUES(has_any_subscription), " +
			"has_primary_feature_access=VALUES(has_primary_feature_access), " +
			"active_plans=VALUES(active_plans), updated_at=VALUES(updated_at)",
		upsertWhitelist: "INSERT INTO entitlements (user_id, is_whitelisted, updated_at) " +
			"VALUES (?, ?, ?) " +
			"ON DUPLICATE KEY UPDATE is_whitelisted=VALUES(is_whitelisted), updated_at=VALUES(updated_at)",
	},
	DriverSQLite: {
		upsertEntitlements: "INSERT INTO entitlements " +
			"(user_id, has_any_subscription, has_primary_feature_access, active_plans, updated_at) " +
			"VALUES (?, ?, ?, ?, ?) " +
			"ON CONFLICT(user_id) DO UPDATE SET has_any_subscription=excluded.has_any_subscription, " +
			"has_primary_feature_access=excluded.has_primary_feature_access, " +
			"active_plans=excluded.active_plans, updated_at=excluded.updated_at",
		upsertWhitelist: "INSERT INTO entitlements (user_id, is_whitelisted, updated_at) " +
			"VALUES (?, ?, ?) " +
			"ON CONFLICT(user_id) DO UPDATE SET is_whitelisted=excluded.is_whitelisted, " +
			"updated_at=excluded.updated_at",
	},
}

// DB stores one entitlement record per user. The webhook owns the
// subscription columns; is_whitelisted is only written by SetWhitelisted.
type DB struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func New(driver, dsn string) (*DB, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("can't connect to database: %w", err)
	}

	db.SetConnMaxLifetime(1 * time.Minute)
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("can't ping the database: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("can't create entitlements table: %w", err)
	}

	log.Info().Str("driver", driver).Msg("Connected to db")
	return &DB{db: db, dialect: d, now: time.Now}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// WriteEntitlements overwrites the subscription-derived columns for userID,
// creating the record if needed.
func (d *DB) WriteEntitlements(ctx context.Context, userID string, e types.Entitlements) error {
	if _, err := d.db.ExecContext(
		ctx,
		d.dialect.upsertEntitlements,
		userID,
		e.HasAnySubscription,
		e.HasPrimaryFeatureAccess,
		strings.Join(e.ActivePlans, ","),
		d.now().Unix(),
	); err != nil {
		return fmt.Errorf("error writing entitlements for %s: %w", userID, err)
	}

	return nil
}

func (d *DB) SetWhitelisted(ctx context.Context, userID string, whitelisted bool) error {
	if _, err := d.db.ExecContext(
		ctx,
		d.dialect.upsertWhitelist,
		userID,
		whitelisted,
		d.now().Unix(),
	); err != nil {
		return fmt.Errorf("error updating whitelist for %s: %w", userID, err)
	}

	return nil
}

func (d *DB) ReadRecord(ctx context.Context, userID string) (*types.Record, error) {
	row := d.db.QueryRowContext(ctx, selectRecord+" WHERE user_id=?", userID)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading record for %s: %w", userID, err)
	}

	return r, nil
}

func (d *DB) ListRecords(ctx context.Context) ([]types.Record, error) {
	rows, err := d.db.QueryContext(ctx, selectRecord+" ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("error querying db: %w", err)
	}
	defer rows.Close()

	var records []types.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		records = append(records, *r)
	}

	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*types.Record, error) {
	var (
		r       types.Record
		plans   string
		updated int64
	)

	if err := s.Scan(
		&r.UserID,
		&r.HasAnySubscription,
		&r.HasPrimaryFeatureAccess,
		&r.IsWhitelisted,
		&plans,
		&updated,
	); err != nil {
		return nil, err
	}

	if plans != "" {
		r.ActivePlans = strings.Split(plans, ",")
	}
	r.UpdatedAt = time.Unix(updated, 0)

	return &r, nil
}
