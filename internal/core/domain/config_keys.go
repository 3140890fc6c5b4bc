package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// configKey reads and writes one YardConfig option as a string.
type configKey struct {
	get func(c *YardConfig) string
	set func(c *YardConfig, value string) error
}

var configKeys = map[string]configKey{
	"yard.id": {
		get: func(c *YardConfig) string { return c.ID },
		set: func(c *YardConfig, v string) error { c.ID = v; return nil },
	},
	"yard.name": {
		get: func(c *YardConfig) string { return c.Name },
		set: func(c *YardConfig, v string) error { c.Name = v; return nil },
	},
	"yard.strategy": {
		get: func(c *YardConfig) string { return string(c.Strategy) },
		set: func(c *YardConfig, v string) error {
			s, err := ParseCacheStrategy(v)
			if err != nil {
				return err
			}
			c.Strategy = s
			return nil
		},
	},
	"yard.level": {
		get: func(c *YardConfig) string { return string(c.Level) },
		set: func(c *YardConfig, v string) error {
			l, err := ParseCacheingLevel(v)
			if err != nil {
				return err
			}
			c.Level = l
			return nil
		},
	},
	"yard.base_fields": {
		get: func(c *YardConfig) string { return strings.Join(c.BaseFields, ",") },
		set: func(c *YardConfig, v string) error { c.BaseFields = splitList(v); return nil },
	},
	"yard.default_limit": {
		get: func(c *YardConfig) string { return strconv.Itoa(c.DefaultLimit) },
		set: func(c *YardConfig, v string) error { return setInt(&c.DefaultLimit, v) },
	},
	"yard.max_limit": {
		get: func(c *YardConfig) string { return strconv.Itoa(c.MaxLimit) },
		set: func(c *YardConfig, v string) error { return setInt(&c.MaxLimit, v) },
	},
	"yard.upstream": {
		get: func(c *YardConfig) string { return c.Upstream },
		set: func(c *YardConfig, v string) error { c.Upstream = v; return nil },
	},
	"backend.type": {
		get: func(c *YardConfig) string { return string(c.Backend.Type) },
		set: func(c *YardConfig, v string) error { c.Backend.Type = BackendType(v); return nil },
	},
	"backend.path": {
		get: func(c *YardConfig) string { return c.Backend.Path },
		set: func(c *YardConfig, v string) error { c.Backend.Path = v; return nil },
	},
	"backend.url": {
		get: func(c *YardConfig) string { return c.Backend.URL },
		set: func(c *YardConfig, v string) error { c.Backend.URL = v; return nil },
	},
	"backend.core": {
		get: func(c *YardConfig) string { return c.Backend.Core },
		set: func(c *YardConfig, v string) error { c.Backend.Core = v; return nil },
	},
	"backend.rate": {
		get: func(c *YardConfig) string {
			return strconv.FormatFloat(c.Backend.RequestsPerSecond, 'g', -1, 64)
		},
		set: func(c *YardConfig, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%w: %q is not a number", ErrInvalidInput, v)
			}
			c.Backend.RequestsPerSecond = f
			return nil
		},
	},
	"backend.external_schema": {
		get: func(c *YardConfig) string { return strconv.FormatBool(c.Backend.ExternalSchema) },
		set: func(c *YardConfig, v string) error { return setBool(&c.Backend.ExternalSchema, v) },
	},
	"backend.timeout": {
		get: func(c *YardConfig) string { return c.Backend.Timeout.String() },
		set: func(c *YardConfig, v string) error { return setDuration(&c.Backend.Timeout, v) },
	},
	"indexing.concurrency": {
		get: func(c *YardConfig) string { return strconv.Itoa(c.Indexing.Concurrency) },
		set: func(c *YardConfig, v string) error { return setInt(&c.Indexing.Concurrency, v) },
	},
	"indexing.interval": {
		get: func(c *YardConfig) string { return c.Indexing.Interval.String() },
		set: func(c *YardConfig, v string) error { return setDuration(&c.Indexing.Interval, v) },
	},
	"indexing.sources": {
		get: func(c *YardConfig) string { return strings.Join(c.Indexing.Sources, ",") },
		set: func(c *YardConfig, v string) error { c.Indexing.Sources = splitList(v); return nil },
	},
	"indexing.score_field": {
		get: func(c *YardConfig) string { return c.Indexing.ScoreField },
		set: func(c *YardConfig, v string) error { c.Indexing.ScoreField = v; return nil },
	},
	"indexing.exclude": {
		get: func(c *YardConfig) string { return strings.Join(c.Indexing.Exclude, ",") },
		set: func(c *YardConfig, v string) error { c.Indexing.Exclude = splitList(v); return nil },
	},
}

// ConfigKeys returns the option names accepted by Lookup and Assign, sorted.
func ConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns an option formatted as a string. Lists are comma separated.
func (c *YardConfig) Lookup(key string) (string, error) {
	k, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("%w: unknown config key %q", ErrNotFound, key)
	}
	return k.get(c), nil
}

// Assign parses value into an option. The configuration is not validated;
// callers run Validate once all options are set.
func (c *YardConfig) Assign(key, value string) error {
	k, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("%w: unknown config key %q", ErrNotFound, key)
	}
	if err := k.set(c, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

func splitList(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %q is not an integer", ErrInvalidInput, v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%w: %q is not a boolean", ErrInvalidInput, v)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %q is not a duration", ErrInvalidInput, v)
	}
	*dst = d
	return nil
}
