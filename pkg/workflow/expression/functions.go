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
	"math"
	"reflect"
	"strconv"
	"strings"
)

// safeFunctions returns the whitelisted function set exposed to expressions.
// Exactly these eight; all library builtins are disabled at compile time.
func safeFunctions() map[string]any {
	return map[string]any{
		"min":   minFunc,
		"max":   maxFunc,
		"abs":   absFunc,
		"len":   lenFunc,
		"str":   strFunc,
		"int":   intFunc,
		"float": floatFunc,
		"bool":  boolFunc,
	}
}

// literalAliases lets expressions written in Python-style notation evaluate
// (e.g., `intent == True`, `value != None`).
func literalAliases() map[string]any {
	return map[string]any{
		"True":  true,
		"False": false,
		"None":  nil,
	}
}

// minFunc returns the smallest argument. With a single slice argument it
// returns the smallest element. Numbers compare numerically, strings
// lexicographically.
func minFunc(args ...any) (any, error) {
	return pickExtreme("min", args, func(cmp int) bool { return cmp < 0 })
}

// maxFunc returns the largest argument, mirroring minFunc.
func maxFunc(args ...any) (any, error) {
	return pickExtreme("max", args, func(cmp int) bool { return cmp > 0 })
}

func pickExtreme(name string, args []any, better func(cmp int) bool) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s requires at least 1 argument", name)
	}

	values := args
	if len(args) == 1 {
		v := reflect.ValueOf(args[0])
		if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
			return nil, fmt.Errorf("%s of a single value requires a collection", name)
		}
		if v.Len() == 0 {
			return nil, fmt.Errorf("%s of an empty collection", name)
		}
		values = make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			values[i] = v.Index(i).Interface()
		}
	}

	best := values[0]
	for _, candidate := range values[1:] {
		cmp, err := compareValues(candidate, best)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if better(cmp) {
			best = candidate
		}
	}
	return best, nil
}

// compareValues compares two values of compatible kinds, returning
// -1, 0, or 1. Numbers compare as float64; strings lexicographically.
func compareValues(a, b any) (int, error) {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}

	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(as, bs), nil
	}

	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

// absFunc returns the absolute value of a number.
func absFunc(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("abs requires exactly 1 argument, got %d", len(args))
	}
	f, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("abs: unsupported type %T", args[0])
	}
	// Preserve integer results for integer inputs.
	switch args[0].(type) {
	case int, int32, int64:
		return int(math.Abs(f)), nil
	default:
		return math.Abs(f), nil
	}
}

// lenFunc returns the length of a collection or string.
func lenFunc(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len requires exactly 1 argument, got %d", len(args))
	}
	if args[0] == nil {
		return 0, nil
	}

	v := reflect.ValueOf(args[0])
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return v.Len(), nil
	default:
		return nil, fmt.Errorf("len: unsupported type %T", args[0])
	}
}

// strFunc converts a value to its string form.
func strFunc(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("str requires exactly 1 argument, got %d", len(args))
	}
	if args[0] == nil {
		return "", nil
	}
	if s, ok := args[0].(string); ok {
		return s, nil
	}
	if f, ok := args[0].(float64); ok {
		// Trim the float artifacts JSON decoding introduces: str(5) is
		// "5" even when 5 arrived as float64.
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return fmt.Sprintf("%v", args[0]), nil
}

// intFunc converts a value to an integer, truncating toward zero.
func intFunc(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("int requires exactly 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case float32:
		return int(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("int: cannot convert %q", v)
		}
		return int(i), nil
	default:
		return nil, fmt.Errorf("int: unsupported type %T", args[0])
	}
}

// floatFunc converts a value to a float64.
func floatFunc(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("float requires exactly 1 argument, got %d", len(args))
	}
	if f, ok := toFloat(args[0]); ok {
		return f, nil
	}
	if s, ok := args[0].(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("float: cannot convert %q", s)
		}
		return f, nil
	}
	if b, ok := args[0].(bool); ok {
		if b {
			return 1.0, nil
		}
		return 0.0, nil
	}
	return nil, fmt.Errorf("float: unsupported type %T", args[0])
}

// boolFunc converts a value to a boolean using truthiness rules.
func boolFunc(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("bool requires exactly 1 argument, got %d", len(args))
	}
	return Truthy(args[0]), nil
}

// Truthy reports the truthiness of a value: nil, false, zero numbers, empty
// strings, and empty collections are false; everything else is true.
func Truthy(value any) bool {
	if value == nil {
		return false
	}
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v != ""
	}
	if f, ok := toFloat(value); ok {
		return f != 0
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	default:
		return true
	}
}

// toFloat widens any numeric value to float64. Booleans and strings are not
// numbers here; the conversion functions handle those explicitly.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}
