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

package cli

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseInputs parses --input key=value arguments, optionally starting from a
// JSON object given via --inputs-json. key=value pairs override JSON keys.
func parseInputs(inputArgs []string, inputsJSON string) (map[string]any, error) {
	inputs := make(map[string]any)

	if inputsJSON != "" {
		if err := json.Unmarshal([]byte(inputsJSON), &inputs); err != nil {
			return nil, fmt.Errorf("parsing --inputs-json: %w", err)
		}
	}

	for _, arg := range inputArgs {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("input %q is not key=value", arg)
		}
		inputs[key] = value
	}

	return inputs, nil
}
