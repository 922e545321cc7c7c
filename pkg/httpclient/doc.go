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

// Package httpclient builds HTTP clients with consistent timeout, retry,
// and logging behavior for every outbound call baton makes: model provider
// requests, approval webhooks, and the CLI talking to the daemon.
//
// Clients are plain *http.Client values composed from transport layers:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.UserAgent = "baton/1.0"
//	client, err := httpclient.New(cfg)
//
// The logging layer emits one structured log line per request (method,
// sanitized URL, status, duration_ms) and propagates the active trace ID as
// an X-Correlation-ID header. The retry layer retries transient failures
// (5xx, 408, 429, connection errors) with exponential backoff and jitter,
// honoring Retry-After. Only idempotent methods are retried unless
// AllowNonIdempotentRetry is set; provider calls rely on the engine's own
// attempt loop rather than transport retries.
//
// Sensitive query parameters (api_key, token, ...) are redacted before URLs
// reach the logs. TLS is 1.2 minimum.
package httpclient
