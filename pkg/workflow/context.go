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

package workflow

import "encoding/json"

// Context is the three-layer execution context carried by every run.
//
// The layers have fixed roles: Static holds values baked into the workflow,
// Profile holds per-tenant or per-environment values, and Runtime accumulates
// everything produced while the run executes (start inputs, step outputs,
// form submissions, approval records). Executors write only to Runtime.
//
// Reads use two distinct precedence rules, both fixed:
//   - Resolve (variable extraction) checks static, then profile, then runtime,
//     and takes the first non-nil hit.
//   - Flatten (expression namespaces) merges static, then profile, then
//     runtime, so later layers override earlier ones.
type Context struct {
	Static  map[string]any `json:"static"`
	Profile map[string]any `json:"profile"`
	Runtime map[string]any `json:"runtime"`
}

// NewContext creates a run context with empty static and profile layers and
// the given inputs copied into the runtime layer.
func NewContext(inputs map[string]any) *Context {
	runtime := make(map[string]any, len(inputs))
	for k, v := range inputs {
		runtime[k] = v
	}
	return &Context{
		Static:  make(map[string]any),
		Profile: make(map[string]any),
		Runtime: runtime,
	}
}

// Resolve looks up a variable by name, checking static, then profile, then
// runtime. A key whose value is nil counts as absent, so a lower layer can
// not be shadowed by an explicit null.
func (c *Context) Resolve(name string) (any, bool) {
	for _, layer := range []map[string]any{c.Static, c.Profile, c.Runtime} {
		if layer == nil {
			continue
		}
		if v, ok := layer[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Flatten merges the layers into a single namespace for expression
// evaluation. Runtime overrides profile, profile overrides static.
func (c *Context) Flatten() map[string]any {
	namespace := make(map[string]any)
	for _, layer := range []map[string]any{c.Static, c.Profile, c.Runtime} {
		for k, v := range layer {
			namespace[k] = v
		}
	}
	return namespace
}

// SetRuntime writes a value into the runtime layer, allocating it if needed.
func (c *Context) SetRuntime(key string, value any) {
	if c.Runtime == nil {
		c.Runtime = make(map[string]any)
	}
	c.Runtime[key] = value
}

// MergeRuntime merges a patch into the runtime layer, overwriting on
// key collision. Used when resume inputs land in the context.
func (c *Context) MergeRuntime(patch map[string]any) {
	if len(patch) == 0 {
		return
	}
	if c.Runtime == nil {
		c.Runtime = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		c.Runtime[k] = v
	}
}

// Clone returns a deep copy of the context. Context values are JSON-shaped
// by construction, so a marshal round-trip is a faithful copy.
func (c *Context) Clone() *Context {
	data, err := json.Marshal(c)
	if err != nil {
		// Context values come from JSON/YAML decoding; this cannot fail
		// for well-formed runs. Fall back to a fresh empty context.
		return NewContext(nil)
	}
	var copied Context
	if err := json.Unmarshal(data, &copied); err != nil {
		return NewContext(nil)
	}
	if copied.Static == nil {
		copied.Static = make(map[string]any)
	}
	if copied.Profile == nil {
		copied.Profile = make(map[string]any)
	}
	if copied.Runtime == nil {
		copied.Runtime = make(map[string]any)
	}
	return &copied
}
