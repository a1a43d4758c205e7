package listener

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	svix "github.com/svix/svix-webhooks/go"
)

const signatureTolerance = 5 * time.Minute

var errMissingTimestamp = errors.New("missing signature timestamp")

// newSvixVerifier decodes a whsec_ signing secret. An error means the secret
// itself is unusable.
func newSvixVerifier(secret string) (*svix.Webhook, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("malformed signing secret: %w", err)
	}
	return wh, nil
}

// svixTimestamp reads the delivery timestamp, falling back to the unbranded
// webhook-* header.
func svixTimestamp(h http.Header) string {
	if ts := h.Get("svix-timestamp"); ts != "" {
		return ts
	}
	return h.Get("webhook-timestamp")
}

func checkTimestamp(timestamp string, now time.Time) error {
	if timestamp == "" {
		return errMissingTimestamp
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed timestamp %q: %w", timestamp, err)
	}

	delta := now.Sub(time.Unix(ts, 0))
	if delta > signatureTolerance || delta < -signatureTolerance {
		return fmt.Errorf("timestamp %s outside tolerance", timestamp)
	}

	return nil
}

// verifySignature checks a Svix-signed delivery against wh. The tolerance
// window is measured from now rather than the wall clock.
func verifySignature(wh *svix.Webhook, payload []byte, h http.Header, now time.Time) error {
	if err := wh.VerifyIgnoringTimestamp(payload, h); err != nil {
		return err
	}
	return checkTimestamp(svixTimestamp(h), now)
}
