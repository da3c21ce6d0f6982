package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/resilience"
)

// Signature headers sent with every webhook delivery.
const (
	HeaderSignature = "X-Kasir-Signature"
	HeaderTimestamp = "X-Kasir-Timestamp"
	HeaderTopic     = "X-Kasir-Topic"
)

// Webhook posts tier transitions to the customer messaging service.
type Webhook struct {
	URL    string
	Secret string
	Client resilience.Client
	Now    func() time.Time
}

// HTTPClient returns a traced client for webhook delivery.
func HTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Deliver implements DeliverFunc.
func (w Webhook) Deliver(ctx context.Context, change events.TierChanged) error {
	url := strings.TrimSpace(w.URL)
	if url == "" {
		return errors.New("notify: webhook url not configured")
	}
	body, err := json.Marshal(change)
	if err != nil {
		return err
	}
	ts := w.now().Unix()
	signature := ComputeSignature(w.Secret, ts, body)

	resp, err := w.Client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderTopic, events.TopicLoyaltyTierChange)
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
		if w.Secret != "" {
			req.Header.Set(HeaderSignature, signature)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// ComputeSignature is HMAC-SHA256 over "<ts>.<body>" keyed by the secret.
func ComputeSignature(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (w Webhook) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
