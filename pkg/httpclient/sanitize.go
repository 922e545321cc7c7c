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
	"net/url"
	"strings"
)

// sensitiveParams are query parameter name fragments redacted from logged
// URLs, matched case-insensitively.
var sensitiveParams = []string{
	"api_key",
	"apikey",
	"token",
	"password",
	"auth",
	"secret",
	"key",
	"credential",
}

// sanitizeURL redacts sensitive query parameters so API keys and tokens
// never reach the logs.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	redacted := *u
	q := redacted.Query()
	for name := range q {
		if isSensitiveParam(name) {
			q.Set(name, "[REDACTED]")
		}
	}
	redacted.RawQuery = q.Encode()
	return redacted.String()
}

func isSensitiveParam(name string) bool {
	name = strings.ToLower(name)
	for _, fragment := range sensitiveParams {
		if strings.Contains(name, fragment) {
			return true
		}
	}
	return false
}
