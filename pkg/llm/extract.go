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

package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Fenced code blocks with or without a language tag.
var fencedBlockPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```json\\s*\\n(.+?)```"),
	regexp.MustCompile("(?s)```\\s*\\n(.+?)```"),
}

// ExtractObject pulls a JSON object out of model output. Models asked for
// bare JSON still sometimes wrap it in markdown fences or prose, so this
// tries a direct parse, then fenced code blocks, then a brace-balanced scan
// of the surrounding text.
func ExtractObject(response string) (map[string]any, error) {
	response = strings.TrimSpace(response)

	var object map[string]any
	if err := json.Unmarshal([]byte(response), &object); err == nil {
		return object, nil
	}

	if fenced := extractFencedBlock(response); fenced != "" {
		if err := json.Unmarshal([]byte(fenced), &object); err == nil {
			return object, nil
		}
	}

	if embedded := extractBalancedObject(response); embedded != "" {
		if err := json.Unmarshal([]byte(embedded), &object); err == nil {
			return object, nil
		}
	}

	return nil, fmt.Errorf("no JSON object found in response")
}

// extractFencedBlock returns the contents of the first markdown code block.
func extractFencedBlock(text string) string {
	for _, re := range fencedBlockPatterns {
		if matches := re.FindStringSubmatch(text); len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}
	return ""
}

// extractBalancedObject returns the first brace-balanced {...} region,
// skipping braces inside string literals. Brackets need no tracking: in
// well-formed JSON the brace closing the object is the one that returns the
// brace depth to zero, and malformed candidates fail the parse afterwards.
func extractBalancedObject(text string) string {
	var depth, start int
	var inString, escape, found bool

	for i, ch := range text {
		if escape {
			escape = false
			continue
		}

		switch ch {
		case '\\':
			if inString {
				escape = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				if depth == 0 {
					start = i
					found = true
				}
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 && found {
					return text[start : i+1]
				}
			}
		}
	}

	return ""
}
