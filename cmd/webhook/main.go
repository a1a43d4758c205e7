package main

import (
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mindmaxed/entitlement-sync/billing/catalog"
	"github.com/mindmaxed/entitlement-sync/billing/listener"
	"github.com/mindmaxed/entitlement-sync/billing/store"
	"github.com/mindmaxed/entitlement-sync/logging"
	"github.com/mindmaxed/entitlement-sync/version"
)

var (
	endpointSecret string
	provider       string
	listenAddr     string
	listenEndpoint string
	catalogFile    string
	plans          string
	storeConfig    store.Config
	logLevel       string
	pretty         bool
	versionflag    bool
)

func init() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	flag.StringVar(&endpointSecret, "endpoint-secret", os.Getenv("WEBHOOK_SECRET"), "Webhook signing secret")
	flag.StringVar(&provider, "provider", envOr("BILLING_PROVIDER", string(listener.ProviderClerk)), "Billing provider: clerk or stripe")
	flag.StringVar(&listenAddr, "listen-address", envOr("LISTEN_ADDRESS", "127.0.0.1:8081"), "Address to listen on")
	flag.StringVar(&listenEndpoint, "listen-endpoint", "/api/webhooks/clerk", "Endpoint of the listener")
	flag.StringVar(&catalogFile, "catalog", os.Getenv("PLAN_CATALOG_FILE"), "Path to the plan catalog YAML")
	flag.StringVar(&plans, "plans", os.Getenv("PLAN_CATALOG"), "Plan catalog as id[:grantsPrimary],... when no file is given")
	flag.StringVar(&storeConfig.Kind, "store", envOr("ENTITLEMENT_STORE", store.KindDB), "Entitlement store: db or clerk")
	flag.StringVar(&storeConfig.Driver, "driver", envOr("DB_DRIVER", "mysql"), "Database driver: mysql or sqlite3")
	flag.StringVar(&storeConfig.DSN, "dsn", os.Getenv("WEBHOOK_DSN"), "Database connection string")
	flag.StringVar(&storeConfig.ClerkSecretKey, "clerk-secret-key", os.Getenv("CLERK_SECRET_KEY"), "Clerk backend API key")
	flag.StringVar(&storeConfig.ClerkAPIURL, "clerk-api-url", os.Getenv("CLERK_API_URL"), "Clerk backend API url override")
	flag.StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level")
	flag.BoolVar(&pretty, "pretty", false, "Human readable logs")
	flag.BoolVar(&versionflag, "version", false, "Print the version and exit")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadCatalog() (*catalog.Catalog, error) {
	if catalogFile != "" {
		return catalog.Load(catalogFile)
	}
	return catalog.Parse(plans)
}

func main() {
	flag.Parse()

	if versionflag {
		version.PrintVersion()
		return
	}

	logging.Init(logLevel, pretty)
	version.LogStartup("webhook")

	if endpointSecret == "" {
		// deliveries are rejected with 500 until a secret is configured
		log.Warn().Msg("No webhook signing secret given")
	}

	c, err := loadCatalog()
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading plan catalog")
	}
	log.Info().
		Int("plans", len(c.Plans())).
		Strs("primary_plans", c.PrimaryPlans()).
		Msg("Loaded plan catalog")

	s, closeStore, err := store.Open(storeConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening entitlement store")
	}
	defer closeStore()

	l, err := listener.New(endpointSecret, listenAddr, listenEndpoint, listener.Provider(provider), c, s)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating listener")
	}

	if err := l.Start(); err != nil {
		log.Fatal().Err(err).Msg("Listener exited")
	}
}
