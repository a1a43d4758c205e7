package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/mindmaxed/entitlement-sync/billing/catalog"
	"github.com/mindmaxed/entitlement-sync/billing/types"
	"github.com/mindmaxed/entitlement-sync/metrics"
)

//go:generate mockgen -source=listener.go -destination=mocks_test.go -package=listener

const (
	maxBodyBytes = int64(65536)
)

var (
	ErrNotConfigured    = errors.New("webhook secret not configured")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalformedEvent   = errors.New("malformed event")
	ErrUpstreamWrite    = errors.New("failed to update user metadata")
)

type entitlementStore interface {
	WriteEntitlements(ctx context.Context, userID string, e types.Entitlements) error
}

type errorResponse struct {
	Error string `json:"error"`
}

type receivedResponse struct {
	Received bool `json:"received"`
}

type Listener struct {
	secret     string
	listenAddr string
	endpoint   string
	provider   provider
	catalog    *catalog.Catalog
	store      entitlementStore
	now        func() time.Time
}

func New(
	secret, listenAddr, endpoint string,
	p Provider,
	c *catalog.Catalog,
	s entitlementStore,
) (*Listener, error) {
	prov, err := newProvider(p)
	if err != nil {
		return nil, err
	}

	return &Listener{
		secret:     secret,
		listenAddr: listenAddr,
		endpoint:   endpoint,
		provider:   prov,
		catalog:    c,
		store:      s,
		now:        time.Now,
	}, nil
}

// Start does not return until the listener exits
func (l *Listener) Start() error {
	mux := http.NewServeMux()
	mux.Handle(fmt.Sprintf("POST %s", l.endpoint), l)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s := http.Server{
		Addr:              l.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", l.listenAddr).Str("endpoint", l.endpoint).Msg("Listening")
	return s.ListenAndServe()
}

func (l *Listener) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	payload, err := io.ReadAll(req.Body)
	if err != nil {
		log.Error().Err(err).Msg("Error reading request body")
		status = http.StatusBadRequest
		writeJSON(w, status, errorResponse{Error: "failed to read request body"})
		return
	}

	event, err := l.handle(req.Context(), payload, req.Header)
	if event != nil {
		eventType = string(event.Type)
	}

	status = statusFor(err)
	if err != nil {
		writeJSON(w, status, errorResponse{Error: publicMessage(err)})
		return
	}

	writeJSON(w, status, receivedResponse{Received: true})
}

// handle verifies, decodes and applies one delivery. The returned event is
// nil when nothing could be decoded.
func (l *Listener) handle(ctx context.Context, payload []byte, h http.Header) (*types.Event, error) {
	deliveryID := l.provider.deliveryID(h)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	logger := log.With().Str("delivery_id", deliveryID).Logger()

	if strings.TrimSpace(l.secret) == "" {
		logger.Error().Msg("Webhook signing secret is not configured, rejecting delivery")
		return nil, ErrNotConfigured
	}

	if err := l.provider.verify(payload, h, l.secret, l.now()); err != nil {
		if errors.Is(err, ErrNotConfigured) {
			logger.Error().Err(err).Msg("Webhook signing secret is unusable")
			return nil, err
		}
		logger.Warn().
			Err(err).
			Interface("headers", l.provider.signatureHeaders(h)).
			Msg("Error verifying signature")
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	event, err := l.provider.decode(payload)
	if err != nil {
		logger.Warn().Err(err).Msg("Error decoding event")
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if event.ID != "" {
		logger = logger.With().Str("event_id", event.ID).Logger()
	}

	if !event.Type.Known() {
		logger.Info().Str("event_type", string(event.Type)).Msg("Unhandled event type")
		return event, nil
	}

	if err := event.Validate(); err != nil {
		logger.Warn().Err(err).Str("event_type", string(event.Type)).Msg("Rejecting event")
		return event, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	if err := l.apply(ctx, event); err != nil {
		logger.Error().
			Err(err).
			Str("event_type", string(event.Type)).
			Str("user_id", event.PayerUserID).
			Msg("Failed to update entitlements")
		metrics.StoreWritesTotal.WithLabelValues("error").Inc()
		return event, fmt.Errorf("%w: %w", ErrUpstreamWrite, err)
	}
	metrics.StoreWritesTotal.WithLabelValues("ok").Inc()

	return event, nil
}

// apply overwrites the payer's entitlements. A canceled subscription clears
// them whatever its items say.
func (l *Listener) apply(ctx context.Context, event *types.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic applying %s: %v", event.Type, r)
		}
	}()

	var e types.Entitlements
	if event.Type != types.SubscriptionCanceled {
		e = l.catalog.Resolve(event.Items)
	}

	unknown := lo.Reject(e.ActivePlans, func(p string, _ int) bool { return l.catalog.Known(p) })
	if len(unknown) > 0 {
		log.Warn().
			Str("event_id", event.ID).
			Strs("unknown_plans", unknown).
			Msg("Active plans missing from catalog")
	}

	log.Info().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("user_id", event.PayerUserID).
		Bool("has_any_subscription", e.HasAnySubscription).
		Bool("has_primary_feature_access", e.HasPrimaryFeatureAccess).
		Strs("active_plans", e.ActivePlans).
		Msg("Updating entitlements")

	return l.store.WriteEntitlements(ctx, event.PayerUserID, e)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrMalformedEvent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	switch {
	case errors.Is(err, types.ErrMissingPayer):
		return "No user ID found in webhook event"
	case errors.Is(err, ErrNotConfigured):
		return ErrNotConfigured.Error()
	case errors.Is(err, ErrInvalidSignature):
		return "Invalid signature"
	case errors.Is(err, ErrMalformedEvent):
		return ErrMalformedEvent.Error()
	case errors.Is(err, ErrUpstreamWrite):
		return "Failed to update user metadata"
	default:
		return "internal error"
	}
}

func writeJSON[T any](w http.ResponseWriter, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Int("status", status).Msg("Error encoding webhook response")
	}
}
