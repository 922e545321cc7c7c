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

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

// flakyServer fails the first n requests with failStatus, then serves 200.
// Failure responses carry a short body so tests can assert it survives.
func flakyServer(t *testing.T, failures int, failStatus int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= int32(failures) {
			w.WriteHeader(failStatus)
			fmt.Fprint(w, "upstream busy")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestRetryTransport(attempts int) *retryTransport {
	cfg := DefaultConfig()
	cfg.RetryAttempts = attempts
	cfg.RetryBackoff = 5 * time.Millisecond
	cfg.MaxBackoff = 50 * time.Millisecond
	return newRetryTransport(http.DefaultTransport, cfg)
}

func TestRetryTransportStatusHandling(t *testing.T) {
	tests := []struct {
		name       string
		failStatus int
		wantCalls  int32
		wantStatus int
	}{
		{"retries 500", http.StatusInternalServerError, 3, http.StatusOK},
		{"retries 502", http.StatusBadGateway, 3, http.StatusOK},
		{"retries 429", http.StatusTooManyRequests, 3, http.StatusOK},
		{"retries 408", http.StatusRequestTimeout, 3, http.StatusOK},
		{"does not retry 400", http.StatusBadRequest, 1, http.StatusBadRequest},
		{"does not retry 404", http.StatusNotFound, 1, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, calls := flakyServer(t, 2, tt.failStatus)
			rt := newTestRetryTransport(3)

			req, err := http.NewRequest(http.MethodGet, server.URL, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := rt.RoundTrip(req)
			if err != nil {
				t.Fatalf("RoundTrip(): %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("server saw %d calls, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestRetryTransportExhaustionReturnsReadableResponse(t *testing.T) {
	server, calls := flakyServer(t, 1000, http.StatusServiceUnavailable)
	rt := newTestRetryTransport(2)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip(): %v", err)
	}
	defer resp.Body.Close()

	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3 (one initial, two retries)", got)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}

	// The final failure's body must still be open for the caller.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading final response body: %v", err)
	}
	if string(body) != "upstream busy" {
		t.Errorf("final body = %q, want %q", body, "upstream busy")
	}
}

func TestRetryTransportMethodGating(t *testing.T) {
	methods := map[string]int32{
		http.MethodGet:     3,
		http.MethodHead:    3,
		http.MethodOptions: 3,
		http.MethodPost:    1,
		http.MethodPut:     1,
		http.MethodPatch:   1,
		http.MethodDelete:  1,
	}

	for method, wantCalls := range methods {
		t.Run(method, func(t *testing.T) {
			server, calls := flakyServer(t, 1000, http.StatusInternalServerError)
			rt := newTestRetryTransport(2)

			req, err := http.NewRequest(method, server.URL, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := rt.RoundTrip(req)
			if err != nil {
				t.Fatalf("RoundTrip(): %v", err)
			}
			resp.Body.Close()

			if got := calls.Load(); got != wantCalls {
				t.Errorf("server saw %d calls, want %d", got, wantCalls)
			}
		})
	}
}

func TestRetryTransportNonIdempotentOptIn(t *testing.T) {
	server, calls := flakyServer(t, 1, http.StatusBadGateway)

	cfg := DefaultConfig()
	cfg.RetryAttempts = 2
	cfg.RetryBackoff = 5 * time.Millisecond
	cfg.AllowNonIdempotentRetry = true
	rt := newRetryTransport(http.DefaultTransport, cfg)

	req, err := http.NewRequest(http.MethodPost, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip(): %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d calls, want 2", got)
	}
}

func TestRetryTransportContextDeadline(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-r.Context().Done()
	}))
	defer server.Close()

	rt := newTestRetryTransport(3)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = rt.RoundTrip(req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("RoundTrip() error = %v, want context.DeadlineExceeded", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1 (deadline errors are final)", got)
	}
}

func TestRetryTransportHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// The computed backoff would wait a minute; the header must win.
	cfg := DefaultConfig()
	cfg.RetryAttempts = 1
	cfg.RetryBackoff = time.Minute
	cfg.MaxBackoff = time.Minute
	rt := newRetryTransport(http.DefaultTransport, cfg)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip(): %v", err)
	}
	resp.Body.Close()
	elapsed := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if elapsed < 900*time.Millisecond || elapsed > 10*time.Second {
		t.Errorf("second attempt after %v, want about 1s from Retry-After", elapsed)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"wrapped deadline", fmt.Errorf("round trip: %w", context.DeadlineExceeded), false},
		{"net timeout", &net.DNSError{Err: "i/o timeout", Name: "api.example.com", IsTimeout: true}, true},
		{"connection refused", errors.New("dial tcp 127.0.0.1:9999: connect: connection refused"), true},
		{"connection reset", errors.New("read tcp 10.0.0.1:443: connection reset by peer"), true},
		{"dns failure", errors.New("lookup api.example.invalid: no such host"), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
		{"url.Error unwrapped", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection refused")}, true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoffGrowthAndCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryBackoff = 100 * time.Millisecond
	cfg.MaxBackoff = time.Second
	rt := newRetryTransport(nil, cfg)

	// Jitter adds at most 20% on top of the exponential base.
	for retry, base := range map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
		8: time.Second,
	} {
		got := rt.backoff(retry)
		if got < base || got > base+base/5 {
			t.Errorf("backoff(%d) = %v, want within [%v, %v]", retry, got, base, base+base/5)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	mkResp := func(value string) *http.Response {
		resp := &http.Response{Header: http.Header{}}
		if value != "" {
			resp.Header.Set("Retry-After", value)
		}
		return resp
	}

	if got := parseRetryAfter(mkResp("")); got != 0 {
		t.Errorf("absent header: got %v, want 0", got)
	}
	if got := parseRetryAfter(mkResp("7")); got != 7*time.Second {
		t.Errorf("seconds form: got %v, want 7s", got)
	}
	if got := parseRetryAfter(mkResp("not-a-date")); got != 0 {
		t.Errorf("garbage: got %v, want 0", got)
	}

	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(mkResp(future)); got < 80*time.Second || got > 90*time.Second {
		t.Errorf("http-date form: got %v, want just under 90s", got)
	}

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(mkResp(past)); got != 0 {
		t.Errorf("past http-date: got %v, want 0", got)
	}
}
