// ════════════════════════════════════════════════════════════════════════════════════════════════
// Runtime Configuration
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Low-Latency Trading Runtime
// Component: JSON Settings With Scoped Lookups
//
// Description:
//   Settings are one JSON document. Components receive a scope (a sub-object addressed by a
//   slash-separated path) and read typed values with defaults. Missing scopes are empty rather
//   than errors so every getter falls back to its default.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/sugawarayuuta/sonnet"
)

var (
	// ErrNotFound is returned or raised for a required key that is absent.
	ErrNotFound = errors.New("config: key not found")
	// ErrType is returned when a key holds a value of the wrong type.
	ErrType = errors.New("config: wrong value type")
)

// Settings is a read-only view of one JSON object.
type Settings struct {
	path string
	obj  map[string]any
}

// Parse decodes a JSON document whose root is an object.
func Parse(data []byte) (*Settings, error) {
	var obj map[string]any
	if err := sonnet.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return &Settings{path: "/", obj: obj}, nil
}

// Load reads and parses a settings file.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Path is the scope path of s.
func (s *Settings) Path() string { return s.path }

// Scope returns the sub-object at a slash-separated path relative to s. A
// missing or non-object path yields an empty scope.
func (s *Settings) Scope(path string) *Settings {
	obj := s.obj
	full := strings.TrimSuffix(s.path, "/")
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		full += "/" + part
		next, _ := obj[part].(map[string]any)
		obj = next
	}
	if full == "" {
		full = "/"
	}
	return &Settings{path: full, obj: obj}
}

// Has reports whether key is present.
func (s *Settings) Has(key string) bool {
	_, ok := s.obj[key]
	return ok
}

// Keys returns the keys of the scope in unspecified order.
func (s *Settings) Keys() []string {
	keys := make([]string, 0, len(s.obj))
	for k := range s.obj {
		keys = append(keys, k)
	}
	return keys
}

func (s *Settings) lookupInt(key string) (int, error) {
	v, ok := s.obj[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrNotFound, s.path, key)
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("%w: %s/%s is not an integer", ErrType, s.path, key)
	}
	return int(f), nil
}

func (s *Settings) lookupString(key string) (string, error) {
	v, ok := s.obj[key]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, s.path, key)
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s/%s is not a string", ErrType, s.path, key)
	}
	return str, nil
}

// Int returns key as an integer, or def when absent or mistyped.
func (s *Settings) Int(key string, def int) int {
	if v, err := s.lookupInt(key); err == nil {
		return v
	}
	return def
}

// String returns key as a string, or def when absent or mistyped.
func (s *Settings) String(key, def string) string {
	if v, err := s.lookupString(key); err == nil {
		return v
	}
	return def
}

// Bool returns key as a boolean, or def when absent or mistyped.
func (s *Settings) Bool(key string, def bool) bool {
	if v, ok := s.obj[key].(bool); ok {
		return v
	}
	return def
}

// Strings returns key as a list of strings. A single string is treated as a
// comma-separated list. Absent keys yield nil.
func (s *Settings) Strings(key string) []string {
	switch v := s.obj[key].(type) {
	case string:
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if str, ok := x.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// MustInt returns a required integer and panics when it is absent or
// mistyped. For setup code only.
func (s *Settings) MustInt(key string) int {
	v, err := s.lookupInt(key)
	if err != nil {
		panic(err)
	}
	return v
}

// MustString returns a required string and panics when it is absent or
// mistyped. For setup code only.
func (s *Settings) MustString(key string) string {
	v, err := s.lookupString(key)
	if err != nil {
		panic(err)
	}
	return v
}
