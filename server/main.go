package main

import (
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/mindmaxed/entitlement-sync/billing/store"
	"github.com/mindmaxed/entitlement-sync/billing/types"
	"github.com/mindmaxed/entitlement-sync/logging"
	"github.com/mindmaxed/entitlement-sync/server/service"
	"github.com/mindmaxed/entitlement-sync/version"
)

var (
	port        = flag.Int("port", 50051, "The server port")
	crt         = flag.String("crt", "certs/server.crt", "Path to the server certificate")
	key         = flag.String("key", "certs/server.key", "Path to the server private key")
	ca          = flag.String("ca", "certs/root_ca.crt", "Path to CA root certificate")
	insecure    = flag.Bool("insecure", false, "Serve without TLS (local development only)")
	logLevel    = flag.String("log-level", "info", "Log level")
	pretty      = flag.Bool("pretty", false, "Human readable logs")
	storeConfig store.Config
)

func init() {
	_ = godotenv.Load()

	flag.StringVar(&storeConfig.Kind, "store", os.Getenv("ENTITLEMENT_STORE"), "Entitlement store: db or clerk")
	flag.StringVar(&storeConfig.Driver, "driver", "mysql", "Database driver: mysql or sqlite3")
	flag.StringVar(&storeConfig.DSN, "dsn", os.Getenv("DSN"), "Database DSN")
	flag.StringVar(&storeConfig.ClerkSecretKey, "clerk-secret-key", os.Getenv("CLERK_SECRET_KEY"), "Clerk backend API key")
	flag.StringVar(&storeConfig.ClerkAPIURL, "clerk-api-url", os.Getenv("CLERK_API_URL"), "Clerk backend API url override")
}

func serverOptions() ([]grpc.ServerOption, error) {
	if *insecure {
		log.Warn().Msg("Serving without TLS")
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(*crt, *key)
	if err != nil {
		return nil, fmt.Errorf("error loading certs: %w", err)
	}

	certPool := x509.NewCertPool()
	caBytes, err := os.ReadFile(*ca)
	if err != nil {
		return nil, fmt.Errorf("error reading %q: %w", *ca, err)
	}
	if !certPool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("error adding CA to pool")
	}

	tlsConfig := &tls.Config{
		ClientAuth:   tls.RequireAndVerifyClientCert,
		Certificates: []tls.Certificate{cert},
		ClientCAs:    certPool,
	}

	return []grpc.ServerOption{grpc.Creds(credentials.NewTLS(tlsConfig))}, nil
}

func main() {
	flag.Parse()

	logging.Init(*logLevel, *pretty)
	version.LogStartup("server")

	st, closeStore, err := store.Open(storeConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening entitlement store")
	}
	defer closeStore()

	opts, err := serverOptions()
	if err != nil {
		log.Fatal().Err(err).Msg("Error configuring TLS")
	}

	s := grpc.NewServer(opts...)
	service.Register(s, service.New(st, types.ErrNotFound))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't listen")
	}

	log.Info().Str("addr", lis.Addr().String()).Msg("Server listening")
	if err := s.Serve(lis); err != nil {
		log.Fatal().Err(err).Msg("Error serving")
	}
}
