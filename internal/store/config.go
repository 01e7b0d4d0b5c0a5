package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

type configKind int

const (
	configInt configKind = iota
	configFloat
	configBool
	configRegex
)

type configRule struct {
	kind      configKind
	def       string
	minInt    int
	maxInt    int
	minFloat  float64
	maxFloat  float64
	pattern   *regexp.Regexp
	protected bool // cannot be deleted
}

var configRules = map[string]configRule{
	"max_iterations":   {kind: configInt, def: "100", minInt: 1, maxInt: 1000, protected: true},
	"thinking_budget":  {kind: configInt, def: "10000", minInt: 0, maxInt: 100000},
	"tool_timeout_ms":  {kind: configInt, def: "30000", minInt: 1000, maxInt: 600000, protected: true},
	"code_timeout_ms":  {kind: configInt, def: "60000", minInt: 1000, maxInt: 600000},
	"max_output_chars": {kind: configInt, def: "10000", minInt: 1000, maxInt: 100000},
	"verbose":          {kind: configBool, def: "false"},
	"temperature":      {kind: configFloat, def: "0.7", minFloat: 0, maxFloat: 2},
	"model": {kind: configRegex, def: "qwen2.5-32b-instruct",
		pattern: regexp.MustCompile(`^(qwen[\w.-]*|gpt-[\w.-]+|gemini-[\w.-]+|llama[\w.-]*|claude-[\w.-]+|mistral[\w.-]*)$`)},
}

func (r configRule) validate(value string) error {
	switch r.kind {
	case configInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("not an integer: %q", value)
		}
		if n < r.minInt || n > r.maxInt {
			return fmt.Errorf("value %d out of range [%d, %d]", n, r.minInt, r.maxInt)
		}
	case configFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", value)
		}
		if f < r.minFloat || f > r.maxFloat {
			return fmt.Errorf("value %g out of range [%g, %g]", f, r.minFloat, r.maxFloat)
		}
	case configBool:
		if value != "true" && value != "false" {
			return fmt.Errorf("not a boolean literal: %q", value)
		}
	case configRegex:
		if !r.pattern.MatchString(value) {
			return fmt.Errorf("value %q does not match any known model name", value)
		}
	}
	return nil
}

// clamp coerces an out-of-range persisted value to the nearest bound, or to
// the default when the value cannot be parsed at all.
func (r configRule) clamp(value string) string {
	switch r.kind {
	case configInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return r.def
		}
		if n < r.minInt {
			return strconv.Itoa(r.minInt)
		}
		if n > r.maxInt {
			return strconv.Itoa(r.maxInt)
		}
		return value
	case configFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return r.def
		}
		if f < r.minFloat {
			return strconv.FormatFloat(r.minFloat, 'g', -1, 64)
		}
		if f > r.maxFloat {
			return strconv.FormatFloat(r.maxFloat, 'g', -1, 64)
		}
		return value
	default:
		if err := r.validate(value); err != nil {
			return r.def
		}
		return value
	}
}

// SetConfig validates and stores a configuration value. Unknown keys are
// stored without validation so surfaces can keep their own settings.
func (s *Store) SetConfig(key, value string) error {
	if rule, ok := configRules[key]; ok {
		if err := rule.validate(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO configuration (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now())
	return err
}

// GetConfig returns the stored value overlaid on defaults. An invalid
// persisted value falls back to the nearest bound or the default.
func (s *Store) GetConfig(key string) (string, error) {
	s.mu.Lock()
	row := s.db.QueryRow(`SELECT value FROM configuration WHERE key = ?`, key)
	var value string
	err := row.Scan(&value)
	s.mu.Unlock()

	rule, known := configRules[key]
	if err == sql.ErrNoRows {
		if known {
			return rule.def, nil
		}
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if known {
		if vErr := rule.validate(value); vErr != nil {
			return rule.clamp(value), nil
		}
	}
	return value, nil
}

// GetConfigInt is a convenience accessor for integer-valued keys.
func (s *Store) GetConfigInt(key string) (int, error) {
	v, err := s.GetConfig(key)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

// GetConfigFloat is a convenience accessor for numeric keys.
func (s *Store) GetConfigFloat(key string) (float64, error) {
	v, err := s.GetConfig(key)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(v, 64)
}

// GetConfigBool is a convenience accessor for boolean keys.
func (s *Store) GetConfigBool(key string) (bool, error) {
	v, err := s.GetConfig(key)
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// DeleteConfig removes a stored value, restoring the default on next read.
// Protected keys cannot be deleted.
func (s *Store) DeleteConfig(key string) error {
	if rule, ok := configRules[key]; ok && rule.protected {
		return fmt.Errorf("config key %s cannot be deleted", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM configuration WHERE key = ?`, key)
	return err
}

// ConfigDefaults exposes the built-in defaults, for the status surface.
func ConfigDefaults() map[string]string {
	out := make(map[string]string, len(configRules))
	for k, r := range configRules {
		out[k] = r.def
	}
	return out
}
