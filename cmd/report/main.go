package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/mindmaxed/entitlement-sync/billing/db"
	"github.com/mindmaxed/entitlement-sync/billing/types"
	"github.com/mindmaxed/entitlement-sync/logging"
)

var (
	driver string
	dsn    string
)

func init() {
	_ = godotenv.Load()

	flag.StringVar(&driver, "driver", "mysql", "Database driver: mysql or sqlite3")
	flag.StringVar(&dsn, "dsn", os.Getenv("WEBHOOK_DSN"), "Database connection string")
}

func report(w io.Writer, records []types.Record) {
	withAccess := lo.CountBy(records, func(r types.Record) bool { return r.HasAccess() })
	paying := lo.CountBy(records, func(r types.Record) bool { return r.HasAnySubscription })
	primary := lo.CountBy(records, func(r types.Record) bool { return r.HasPrimaryFeatureAccess })
	whitelisted := lo.CountBy(records, func(r types.Record) bool { return r.IsWhitelisted })

	fmt.Fprintf(w, "Total users:          %03d\n", len(records))
	fmt.Fprintf(w, "Users with access:    %03d\n", withAccess)
	fmt.Fprintf(w, "Any subscription:     %03d\n", paying)
	fmt.Fprintf(w, "Primary feature:      %03d\n", primary)
	fmt.Fprintf(w, "Whitelisted:          %03d\n", whitelisted)

	perPlan := lo.CountValues(lo.FlatMap(records, func(r types.Record, _ int) []string { return r.ActivePlans }))
	plans := lo.Keys(perPlan)
	slices.Sort(plans)
	for _, p := range plans {
		fmt.Fprintf(w, "  %-20s%03d\n", p, perPlan[p])
	}
}

func main() {
	flag.Parse()
	logging.Init("warn", true)

	if dsn == "" {
		log.Fatal().Msg("No database connection string given")
	}

	d, err := db.New(driver, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	defer d.Close()

	records, err := d.ListRecords(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Error listing records")
	}

	report(os.Stdout, records)
}
