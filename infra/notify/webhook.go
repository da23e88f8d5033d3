// Package notify delivers emergency notifications to webhook endpoints.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook POSTs notification payloads as JSON.
type Webhook struct {
	client *http.Client
}

// NewWebhook builds a webhook notifier.
func NewWebhook() *Webhook {
	return &Webhook{client: &http.Client{Timeout: 10 * time.Second}}
}

// Notify delivers the payload to the endpoint.
func (n *Webhook) Notify(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify endpoint %s returned %s", endpoint, resp.Status)
	}
	return nil
}
