package listener

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/mock/gomock"

	"github.com/mindmaxed/entitlement-sync/billing/types"
)

const stripeSecret = "whsec_test_secret"

func signedStripeRequest(t *testing.T, secret, payload string) *http.Request {
	t.Helper()

	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set(stripeSignatureHeader, signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestStripeProvider(t *testing.T) {
	for _, tt := range []struct {
		name       string
		secret     string
		payload    string
		wantStatus int
		mockSetup  func(*MockentitlementStore)
	}{
		{
			name: "Subscription created",
			payload: `{"id":"evt_1","object":"event","type":"customer.subscription.created","data":{"object":{
				"id":"sub_1","object":"subscription","status":"active","metadata":{"user_id":"u_1"},
				"items":{"object":"list","data":[{"id":"si_1","object":"subscription_item","price":{"id":"B","object":"price"}}]}}}}`,
			wantStatus: http.StatusOK,
			mockSetup: func(m *MockentitlementStore) {
				m.EXPECT().
					WriteEntitlements(gomock.Any(), gomock.Eq("u_1"), gomock.Eq(types.Entitlements{
						HasAnySubscription:      true,
						HasPrimaryFeatureAccess: true,
						ActivePlans:             []string{"B"},
					})).
					Times(1)
			},
		},
		{
			name: "Past due subscription",
			payload: `{"id":"evt_2","object":"event","type":"customer.subscription.updated","data":{"object":{
				"id":"sub_1","object":"subscription","status":"past_due","metadata":{"user_id":"u_1"},
				"items":{"object":"list","data":[{"id":"si_1","object":"subscription_item","price":{"id":"A","object":"price"}}]}}}}`,
			wantStatus: http.StatusOK,
			mockSetup: func(m *MockentitlementStore) {
				m.EXPECT().
					WriteEntitlements(gomock.Any(), gomock.Eq("u_1"), gomock.Eq(types.Entitlements{})).
					Times(1)
			},
		},
		{
			name: "Subscription deleted",
			payload: `{"id":"evt_3","object":"event","type":"customer.subscription.deleted","data":{"object":{
				"id":"sub_1","object":"subscription","status":"active","metadata":{"user_id":"u_1"},
				"items":{"object":"list","data":[{"id":"si_1","object":"subscription_item","price":{"id":"A","object":"price"}}]}}}}`,
			wantStatus: http.StatusOK,
			mockSetup: func(m *MockentitlementStore) {
				m.EXPECT().
					WriteEntitlements(gomock.Any(), gomock.Eq("u_1"), gomock.Eq(types.Entitlements{})).
					Times(1)
			},
		},
		{
			name: "No user id in metadata",
			payload: `{"id":"evt_4","object":"event","type":"customer.subscription.created","data":{"object":{
				"id":"sub_1","object":"subscription","status":"active","metadata":{}}}}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Unhandled event type",
			payload:    `{"id":"evt_5","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "Signed with another secret",
			secret:     "whsec_other",
			payload:    `{"id":"evt_6","object":"event","type":"customer.subscription.deleted","data":{"object":{}}}`,
			wantStatus: http.StatusBadRequest,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := NewMockentitlementStore(ctrl)
			if tt.mockSetup != nil {
				tt.mockSetup(store)
			} else {
				store.EXPECT().WriteEntitlements(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			}

			secret := stripeSecret
			if tt.secret != "" {
				secret = tt.secret
			}

			l, err := New(stripeSecret, "", "/webhook", ProviderStripe, testCatalog(t), store)
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			l.ServeHTTP(rec, signedStripeRequest(t, secret, tt.payload))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}
