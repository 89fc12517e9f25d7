package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// WebhookTarget POSTs the notification as JSON to a URL.
type WebhookTarget struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookTarget creates a WebhookTarget. client may be nil.
func NewWebhookTarget(name, url string, headers map[string]string, client *http.Client) *WebhookTarget {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookTarget{name: name, url: url, headers: headers, client: client}
}

// Name returns the target name.
func (w *WebhookTarget) Name() string {
	return w.name
}

// Notify sends n. Any non-2xx response is an error.
func (w *WebhookTarget) Notify(ctx context.Context, n Notification) error {
	if err := postJSON(ctx, w.client, w.url, w.headers, n); err != nil {
		return fmt.Errorf("webhook %w", err)
	}
	return nil
}

// postJSON POSTs v as JSON to endpoint. Any non-2xx response is an error.
// Transport errors omit the URL, which may carry credentials.
func postJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	resp, err := client.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("returned status %d", resp.StatusCode)
	}
	return nil
}
