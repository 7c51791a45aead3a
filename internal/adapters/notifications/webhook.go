// Package notifications delivers scheduling events to external systems.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/planfab/planfab/internal/core/ports"
	"github.com/planfab/planfab/internal/core/services"
)

// WebhookNotifier posts schedule conflicts to a configured HTTP endpoint.
// The payload carries the conflict descriptor plus the originating intent
// parameters, so the receiving side can present a retry.
type WebhookNotifier struct {
	url     string
	headers string
	client  *http.Client
	logger  ports.Logger
}

// NewWebhookNotifier creates a new webhook notifier. headers is an optional
// comma-separated "Key: Value" list.
func NewWebhookNotifier(url, headers string, logger ports.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Attach subscribes the notifier to conflict events. Delivery runs on its own
// goroutine so a slow endpoint never stalls the publishing operation; failures
// are logged, never propagated into the scheduling path.
func (n *WebhookNotifier) Attach(events *services.EventService) {
	events.Subscribe(services.EventScheduleConflict, func(event services.Event) error {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := n.Send(ctx, event); err != nil {
				n.logger.Error("Webhook delivery failed", "url", n.url, "error", err)
			}
		}()
		return nil
	})
}

// Send posts a single event to the webhook endpoint.
func (n *WebhookNotifier) Send(ctx context.Context, event services.Event) error {
	if n.url == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	var detail json.RawMessage = event.Payload
	payload := map[string]interface{}{
		"id":        event.ID,
		"type":      event.Type,
		"source":    event.Source,
		"timestamp": event.Timestamp.Format(time.RFC3339),
		"detail":    detail,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for _, h := range strings.Split(n.headers, ",") {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) == 2 {
			req.Header.Set(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned error: %d - %s", resp.StatusCode, string(body))
	}

	return nil
}
