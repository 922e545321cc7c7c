// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package notify delivers approval requests to approvers. Delivery is best
// effort: the engine records the approval before notifying and never fails
// a step over a notification error.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/httpclient"
)

// Compile-time interface assertions.
var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*WebhookNotifier)(nil)
)

// Notifier sends one approval request to one recipient.
type Notifier interface {
	Notify(ctx context.Context, recipient, url string) error
}

// LogNotifier writes the approval email to the log instead of sending it.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the approval request.
func (n *LogNotifier) Notify(ctx context.Context, recipient, url string) error {
	n.logger.InfoContext(ctx, "approval required",
		"to", recipient,
		"subject", "Approval Required",
		"approval_url", url,
	)
	return nil
}

// WebhookNotifier POSTs approval requests to a configured endpoint, leaving
// actual delivery (email, chat, pager) to the receiver.
type WebhookNotifier struct {
	endpoint   string
	httpClient *http.Client
}

// webhookPayload is the body POSTed for each approval request.
type webhookPayload struct {
	Recipient string `json:"recipient"`
	URL       string `json:"url"`
}

// NewWebhookNotifier creates a webhook-backed notifier.
func NewWebhookNotifier(endpoint string) (*WebhookNotifier, error) {
	if endpoint == "" {
		return nil, &errors.ConfigError{
			Key:    "approvals.webhook_url",
			Reason: "webhook endpoint is required",
		}
	}

	cfg := httpclient.DefaultConfig()
	cfg.UserAgent = "baton-notify/1.0"

	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &WebhookNotifier{endpoint: endpoint, httpClient: client}, nil
}

// Notify delivers one approval request. A non-2xx response is an error;
// callers decide whether that matters.
func (n *WebhookNotifier) Notify(ctx context.Context, recipient, url string) error {
	body, err := json.Marshal(webhookPayload{Recipient: recipient, URL: url})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
