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

// Package expression provides the sandboxed boolean expression evaluator
// used by conditional workflow steps.
//
// It uses the expr-lang/expr library to evaluate a single expression against
// a flat namespace built from the run context. The sandbox is deliberately
// small:
//
//   - Variables resolve against the flattened context (runtime over profile
//     over static); an unknown name is reported distinctly so callers can
//     tell a typo from an attack.
//   - Comparisons, arithmetic, boolean logic (both && and `and` spellings),
//     ternaries, and membership via `in` are allowed.
//   - Exactly eight functions are whitelisted: min, max, abs, len, str, int,
//     float, bool. All library builtins are disabled.
//   - Attribute access, double-underscore names, and imports are rejected
//     before compilation.
//   - Expressions are capped at 256 characters and 100ms of evaluation time.
//
// The result is the truthiness coercion of the computed value, so `count`
// is as valid a condition as `count > 0`. The literal aliases True, False,
// and None are available for definitions written in that notation.
//
// Example expressions:
//
//	engagement_score > 75 and intent == True
//	tier in ["gold", "platinum"]
//	len(items) > 0
//	min(score, cap) >= threshold
//
// The evaluator caches compiled programs keyed by expression and namespace
// shape.
package expression
