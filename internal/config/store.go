// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ChangeFunc is called after the active configuration has been replaced.
type ChangeFunc func(old, cur *Config)

// Store holds the active configuration. Readers always receive a copy, so a
// Config obtained from Get is never mutated behind the caller's back.
type Store struct {
	mu   sync.RWMutex
	cfg  *Config
	path string

	subMu   sync.Mutex
	subs    []ChangeFunc
	overlay func(*Config)
}

// NewStore creates a store around cfg. path is where Save and Reload operate;
// it may be empty for an in-memory store.
func NewStore(cfg *Config, path string) *Store {
	if cfg == nil {
		cfg = Default()
	}
	return &Store{cfg: cfg.Clone(), path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the active configuration.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Subscribe registers fn to be called on every change.
func (s *Store) Subscribe(fn ChangeFunc) {
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
}

// Overlay registers fn to be applied to every configuration read by Reload,
// after the file and environment. Command-line flags use it to keep
// outranking the file across live reloads.
func (s *Store) Overlay(fn func(*Config)) {
	s.subMu.Lock()
	s.overlay = fn
	s.subMu.Unlock()
}

// Set validates cfg and makes it the active configuration.
func (s *Store) Set(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg.Clone()
	cur := s.cfg.Clone()
	s.mu.Unlock()

	s.notify(old, cur)
	return nil
}

// Update applies fn to a copy of the active configuration and stores the
// result if it validates.
func (s *Store) Update(fn func(*Config)) (*Config, error) {
	next := s.Get()
	fn(next)
	if err := s.Set(next); err != nil {
		return nil, err
	}
	return next, nil
}

// Save writes the active configuration to the store's path.
func (s *Store) Save() error {
	if s.path == "" {
		return errors.New("config store has no file path")
	}
	return Save(s.Get(), s.path)
}

// Reload re-reads the backing file, applies environment overrides and makes
// the result active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}

	s.subMu.Lock()
	overlay := s.overlay
	s.subMu.Unlock()
	if overlay != nil {
		overlay(cfg)
	}
	return s.Set(cfg)
}

func (s *Store) notify(old, cur *Config) {
	s.subMu.Lock()
	subs := make([]ChangeFunc, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(old, cur)
	}
}

// =============================================================================
// DOTTED KEY ACCESS
// =============================================================================

// Keys returns every settable key in dotted TOML notation, sorted.
func Keys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(Config{}), "", &keys)
	sort.Strings(keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := tomlName(f)
		if name == "" {
			continue
		}
		if f.Type.Kind() == reflect.Struct {
			collectKeys(f.Type, prefix+name+".", keys)
			continue
		}
		*keys = append(*keys, prefix+name)
	}
}

func tomlName(f reflect.StructField) string {
	tag := f.Tag.Get("toml")
	if tag == "-" {
		return ""
	}
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	if tag == "" {
		return strings.ToLower(f.Name)
	}
	return tag
}

func lookupField(cfg *Config, key string) (reflect.Value, error) {
	v := reflect.ValueOf(cfg).Elem()
	for _, part := range strings.Split(key, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("unknown config key: %s", key)
		}
		found := false
		for i := 0; i < v.NumField(); i++ {
			if tomlName(v.Type().Field(i)) == part {
				v = v.Field(i)
				found = true
				break
			}
		}
		if !found {
			return reflect.Value{}, fmt.Errorf("unknown config key: %s", key)
		}
	}
	if v.Kind() == reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%s is a section, not a value", key)
	}
	return v, nil
}

// GetValue returns the value at a dotted key such as "timeouts.chat".
// The API key is redacted.
func (c *Config) GetValue(key string) (string, error) {
	v, err := lookupField(c, key)
	if err != nil {
		return "", err
	}
	if key == "api_key" && c.APIKey != "" {
		return "[REDACTED]", nil
	}
	if d, ok := v.Interface().(Duration); ok {
		return d.String(), nil
	}
	return fmt.Sprint(v.Interface()), nil
}

// SetValue parses raw into the field at a dotted key. It does not validate
// the resulting config.
func (c *Config) SetValue(key, raw string) error {
	v, err := lookupField(c, key)
	if err != nil {
		return err
	}

	if d, ok := v.Addr().Interface().(*Duration); ok {
		return d.UnmarshalText([]byte(raw))
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return errors.Wrapf(err, "%s expects a boolean", key)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "%s expects an integer", key)
		}
		v.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return errors.Wrapf(err, "%s expects a number", key)
		}
		v.SetFloat(f)
	default:
		return fmt.Errorf("unsupported type for %s", key)
	}
	return nil
}
