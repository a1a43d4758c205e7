package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mindmaxed/entitlement-sync/billing/store"
	"github.com/mindmaxed/entitlement-sync/logging"
)

var (
	storeConfig store.Config
	revoke      bool
	show        bool
)

func init() {
	_ = godotenv.Load()

	flag.StringVar(&storeConfig.Kind, "store", os.Getenv("ENTITLEMENT_STORE"), "Entitlement store: db or clerk")
	flag.StringVar(&storeConfig.Driver, "driver", "mysql", "Database driver: mysql or sqlite3")
	flag.StringVar(&storeConfig.DSN, "dsn", os.Getenv("WEBHOOK_DSN"), "Database connection string")
	flag.StringVar(&storeConfig.ClerkSecretKey, "clerk-secret-key", os.Getenv("CLERK_SECRET_KEY"), "Clerk backend API key")
	flag.StringVar(&storeConfig.ClerkAPIURL, "clerk-api-url", os.Getenv("CLERK_API_URL"), "Clerk backend API url override")
	flag.BoolVar(&revoke, "revoke", false, "Remove the users from the whitelist instead of adding them")
	flag.BoolVar(&show, "show", false, "Only print the users' records")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] user_id...\n", os.Args[0])
		flag.PrintDefaults()
	}
}

// apply sets the whitelist flag for every user, stopping at the first failure.
func apply(ctx context.Context, s store.Store, users []string, whitelisted bool) error {
	for _, u := range users {
		if err := s.SetWhitelisted(ctx, u, whitelisted); err != nil {
			return err
		}
		log.Info().Str("user_id", u).Bool("is_whitelisted", whitelisted).Msg("Updated whitelist")
	}
	return nil
}

func main() {
	flag.Parse()
	logging.Init("info", true)

	users := flag.Args()
	if len(users) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	s, closeStore, err := store.Open(storeConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening entitlement store")
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !show {
		if err := apply(ctx, s, users, !revoke); err != nil {
			log.Fatal().Err(err).Msg("Error updating whitelist")
		}
	}

	for _, u := range users {
		r, err := s.ReadRecord(ctx, u)
		if err != nil {
			log.Error().Err(err).Str("user_id", u).Msg("Error reading record")
			continue
		}
		fmt.Printf("%s whitelisted=%t access=%t plans=%s\n",
			u, r.IsWhitelisted, r.HasAccess(), strings.Join(r.ActivePlans, ","))
	}
}
