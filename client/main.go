package main

import (
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	grpcinsecure "google.golang.org/grpc/credentials/insecure"

	"github.com/mindmaxed/entitlement-sync/billing/catalog"
	"github.com/mindmaxed/entitlement-sync/client/authz"
	"github.com/mindmaxed/entitlement-sync/client/gate"
	"github.com/mindmaxed/entitlement-sync/client/resolver"
	"github.com/mindmaxed/entitlement-sync/logging"
	"github.com/mindmaxed/entitlement-sync/version"
)

var (
	addr           = flag.String("addr", "localhost:50051", "address to connect to")
	crt            = flag.String("crt", "certs/client.crt", "Path to the client certificate")
	key            = flag.String("key", "certs/client.key", "Path to the client private key")
	ca             = flag.String("ca", "certs/root_ca.crt", "Path to the CA root certificate")
	insecure       = flag.Bool("insecure", false, "Connect without TLS (local development only)")
	userID         = flag.String("user", "", "User to resolve access for; empty means signed out")
	pollIntervalMs = flag.Int("pollIntervalMs", int(resolver.DefaultPollInterval/time.Millisecond), "Resolver poll interval in milliseconds")
	logLevel       = flag.String("log-level", "info", "Log level")
	pretty         = flag.Bool("pretty", true, "Human readable logs")
	catalogFile    string
	plans          string
)

func init() {
	_ = godotenv.Load()

	flag.StringVar(&catalogFile, "catalog", os.Getenv("PLAN_CATALOG_FILE"), "Path to the plan catalog YAML")
	flag.StringVar(&plans, "plans", os.Getenv("PLAN_CATALOG"), "Plan catalog as id[:grantsPrimary],... when no file is given")
}

// logView stands in for the gated page: it logs which surface would show.
type logView struct {
	logger zerolog.Logger
}

func (v logView) Loading() { v.logger.Info().Msg("Checking access") }
func (v logView) Locked()  { v.logger.Info().Msg("Locked: showing pricing") }
func (v logView) Granted() { v.logger.Info().Msg("Granted: showing feature") }

func credentialsOption() (grpc.DialOption, error) {
	if *insecure {
		return grpc.WithTransportCredentials(grpcinsecure.NewCredentials()), nil
	}

	cert, err := tls.LoadX509KeyPair(*crt, *key)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	certPool := x509.NewCertPool()
	caBytes, err := os.ReadFile(*ca)
	if err != nil {
		return nil, fmt.Errorf("error reading ca %q: %w", *ca, err)
	}
	if !certPool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("failed to parse %q", *ca)
	}

	serverUrl := url.URL{Host: *addr}
	return grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{
		ServerName:   serverUrl.Hostname(),
		Certificates: []tls.Certificate{cert},
		RootCAs:      certPool,
	})), nil
}

func main() {
	flag.Parse()

	logging.Init(*logLevel, *pretty)
	version.LogStartup("client")

	var (
		c   *catalog.Catalog
		err error
	)
	if catalogFile != "" {
		c, err = catalog.Load(catalogFile)
	} else {
		c, err = catalog.Parse(plans)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading plan catalog")
	}

	creds, err := credentialsOption()
	if err != nil {
		log.Fatal().Err(err).Msg("Error configuring TLS")
	}

	conn, err := grpc.NewClient(*addr, creds)
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't connect")
	}
	defer conn.Close()

	client := authz.New(conn)
	r := resolver.New(client, client, c.PrimaryPlans(), resolver.Options{
		PollInterval: time.Duration(*pollIntervalMs) * time.Millisecond,
	})

	logger := log.With().
		Str("session_id", uuid.NewString()).
		Str("user_id", *userID).
		Logger()

	g := gate.New(logView{logger: logger})
	g.Bind(r)
	r.Subscribe(func(s resolver.State) {
		logger.Debug().Bool("has_access", s.HasAccess).Bool("is_loading", s.IsLoading).Msg("Resolved")
	})

	r.Start(*userID)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	r.Stop()
	logger.Info().Str("gate", g.Current().String()).Msg("Stopped")
}
