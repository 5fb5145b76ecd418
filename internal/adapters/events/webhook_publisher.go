package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

const defaultWebhookTimeout = 10 * time.Second

// Webhook request headers.
const (
	HeaderTopic     = "X-Synthcheck-Topic"
	HeaderEventID   = "X-Synthcheck-Event-Id"
	HeaderEventType = "X-Synthcheck-Event-Type"
	HeaderTenant    = "X-Synthcheck-Tenant"
	HeaderSignature = "X-Synthcheck-Signature-256"
)

// WebhookPublisher POSTs outbox events to one endpoint. Bodies are signed with
// HMAC-SHA256 over the raw JSON. A non-2xx answer is an error so the dispatcher
// retries it.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *http.Client
	log    logrus.FieldLogger
}

// NewWebhookPublisher falls back to a 10s timeout when timeout is not positive.
func NewWebhookPublisher(url, secret string, timeout time.Duration, log logrus.FieldLogger) *WebhookPublisher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WebhookPublisher{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

func (p *WebhookPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTopic, topic)
	req.Header.Set(HeaderEventID, event.EventID)
	req.Header.Set(HeaderEventType, event.EventType)
	req.Header.Set(HeaderTenant, event.TenantID)
	req.Header.Set(HeaderSignature, "sha256="+Sign(p.secret, body))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	p.log.WithFields(logrus.Fields{"event_id": event.EventID, "status": resp.StatusCode}).Debug("webhook delivered")
	return nil
}

// Sign returns the hex HMAC-SHA256 of body. Receivers compare it against the
// signature header after stripping the "sha256=" prefix.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
