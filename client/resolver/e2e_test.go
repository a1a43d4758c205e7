package resolver_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"net"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/mindmaxed/entitlement-sync/billing/catalog"
	"github.com/mindmaxed/entitlement-sync/billing/db"
	"github.com/mindmaxed/entitlement-sync/billing/listener"
	"github.com/mindmaxed/entitlement-sync/client/authz"
	"github.com/mindmaxed/entitlement-sync/client/gate"
	"github.com/mindmaxed/entitlement-sync/client/resolver"
	"github.com/mindmaxed/entitlement-sync/server/service"
)

var signingKey = []byte("e2e-signing-key")

type transitions struct {
	mu     sync.Mutex
	states []gate.State
}

func (t *transitions) add(s gate.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.states); n == 0 || t.states[n-1] != s {
		t.states = append(t.states, s)
	}
}

func (t *transitions) Loading() { t.add(gate.Loading) }
func (t *transitions) Locked()  { t.add(gate.Locked) }
func (t *transitions) Granted() { t.add(gate.Granted) }

func (t *transitions) seen() []gate.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]gate.State{}, t.states...)
}

func postEvent(t *testing.T, url, payload string) {
	t.Helper()

	now := time.Now()
	wh, err := svix.NewWebhookRaw(signingKey)
	require.NoError(t, err)
	sig, err := wh.Sign("msg_e2e", now, []byte(payload))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader([]byte(payload)))
	require.NoError(t, err)
	req.Header.Set("svix-id", "msg_e2e")
	req.Header.Set("svix-timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("svix-signature", sig)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestWebhookToGate(t *testing.T) {
	store, err := db.New(db.DriverSQLite, path.Join(t.TempDir(), "e2e.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cat, err := catalog.Parse("plan_primary,plan_primary_annual,plan_newsletter:false")
	require.NoError(t, err)

	l, err := listener.New(
		"whsec_"+base64.StdEncoding.EncodeToString(signingKey),
		"", "/webhook", listener.ProviderClerk, cat, store,
	)
	require.NoError(t, err)
	webhook := httptest.NewServer(l)
	t.Cleanup(webhook.Close)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	service.Register(srv, service.New(store, db.ErrNotFound))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client := authz.New(conn)
	r := resolver.New(client, client, cat.PrimaryPlans(), resolver.Options{PollInterval: 20 * time.Millisecond})
	t.Cleanup(r.Stop)

	view := &transitions{}
	g := gate.New(view)
	g.Bind(r)

	r.Start("u_1")
	require.Eventually(t, func() bool { return g.Current() == gate.Locked }, time.Second, 5*time.Millisecond)

	postEvent(t, webhook.URL+"/webhook", `{"type":"subscription.created","data":{"id":"sub_1",
		"payer":{"user_id":"u_1"},"items":[{"plan":{"id":"plan_primary"},"status":"active"}]}}`)
	require.Eventually(t, func() bool { return g.Current() == gate.Granted }, time.Second, 5*time.Millisecond)

	postEvent(t, webhook.URL+"/webhook", `{"type":"subscription.canceled","data":{"id":"sub_1",
		"payer":{"user_id":"u_1"},"items":[{"plan":{"id":"plan_primary"},"status":"active"}]}}`)
	require.Eventually(t, func() bool { return g.Current() == gate.Locked }, time.Second, 5*time.Millisecond)

	require.NoError(t, store.SetWhitelisted(context.Background(), "u_1", true))
	require.Eventually(t, func() bool { return g.Current() == gate.Granted }, time.Second, 5*time.Millisecond)

	require.Equal(t,
		[]gate.State{gate.Loading, gate.Locked, gate.Granted, gate.Locked, gate.Granted},
		view.seen(),
	)
}
