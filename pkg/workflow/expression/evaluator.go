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

package expression

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/baton/pkg/errors"
)

// Evaluator evaluates condition expressions against a flattened run context.
// It caches compiled programs for repeated evaluations; because unknown
// names are a compile-time check, the cache key includes the namespace's
// key set as well as the expression text.
type Evaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// New creates a new expression evaluator.
func New() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*vm.Program),
	}
}

// unknownNamePattern extracts the identifier from expr's checker error.
var unknownNamePattern = regexp.MustCompile(`unknown name ([A-Za-z_][A-Za-z0-9_]*)`)

// Evaluate evaluates an expression against the given namespace and returns
// the truthiness of the computed value.
//
// The namespace is the flattened run context (runtime over profile over
// static). Sandbox violations surface as SecurityError, references to
// missing variables as UndefinedNameError, and everything else that can go
// wrong (syntax, runtime type errors, timeout) as ValidationError.
func (e *Evaluator) Evaluate(expression string, namespace map[string]any) (bool, error) {
	if err := Validate(expression); err != nil {
		return false, err
	}

	env := buildEnv(namespace)

	program, err := e.compile(expression, env, namespace)
	if err != nil {
		if m := unknownNamePattern.FindStringSubmatch(err.Error()); m != nil {
			return false, &errors.UndefinedNameError{Name: m[1]}
		}
		return false, &errors.ValidationError{
			Message: fmt.Sprintf("Invalid expression syntax: %s", err.Error()),
		}
	}

	type outcome struct {
		value any
		err   error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		value, err := expr.Run(program, env)
		resultCh <- outcome{value, err}
	}()

	timer := time.NewTimer(EvaluationTimeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return false, &errors.ValidationError{
				Message: fmt.Sprintf("Expression evaluation failed: %s", res.err.Error()),
			}
		}
		return Truthy(res.value), nil
	case <-timer.C:
		// The runaway goroutine drains into the buffered channel and is
		// collected; the VM holds no external resources.
		return false, &errors.ValidationError{
			Message: fmt.Sprintf("Expression evaluation failed: evaluation exceeded %v", EvaluationTimeout),
		}
	}
}

// buildEnv layers the evaluation environment: whitelisted functions first,
// then the namespace (context variables may shadow function names, matching
// symbol-table semantics), then the literal aliases, which behave like
// keywords and cannot be shadowed.
func buildEnv(namespace map[string]any) map[string]any {
	env := make(map[string]any, len(namespace)+11)
	for k, v := range safeFunctions() {
		env[k] = v
	}
	for k, v := range namespace {
		env[k] = v
	}
	for k, v := range literalAliases() {
		env[k] = v
	}
	return env
}

// compile compiles an expression with all builtins disabled and caches the
// program keyed by expression and namespace shape.
func (e *Evaluator) compile(expression string, env map[string]any, namespace map[string]any) (*vm.Program, error) {
	key := cacheKey(expression, namespace)

	e.mu.RLock()
	if prog, ok := e.cache[key]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	prog, err := expr.Compile(expression,
		expr.Env(env),
		expr.DisableAllBuiltins(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[key] = prog
	e.mu.Unlock()

	return prog, nil
}

// cacheKey builds a cache key from the expression and the sorted namespace
// keys. Two namespaces with the same keys compile identically.
func cacheKey(expression string, namespace map[string]any) string {
	keys := make([]string, 0, len(namespace))
	for k := range namespace {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return expression + "\x1f" + strings.Join(keys, ",")
}

// ClearCache clears the compiled program cache.
// This is mainly useful for testing.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	e.cache = make(map[string]*vm.Program)
	e.mu.Unlock()
}

// CacheSize returns the number of cached programs.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
