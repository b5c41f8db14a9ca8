package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// ConfigMap holds a module's opaque configuration blob. The engine only
// reads it; merchant tooling owns the contents.
type ConfigMap map[string]any

// Value serializes the map to JSON.
func (c ConfigMap) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// Scan decodes JSONB into the map.
func (c *ConfigMap) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded ConfigMap
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*c = decoded
	return nil
}

// String returns the string value at key, or fallback when absent.
func (c ConfigMap) String(key, fallback string) string {
	if raw, ok := c[key]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return fallback
}

// Int64 returns the integer value at key, tolerating JSON numbers and
// numeric strings, or fallback when absent or unparseable.
func (c ConfigMap) Int64(key string, fallback int64) int64 {
	raw, ok := c[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		if parsed, err := v.Int64(); err == nil {
			return parsed
		}
	case string:
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// Bool returns the boolean value at key, or fallback when absent.
func (c ConfigMap) Bool(key string, fallback bool) bool {
	raw, ok := c[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// Decimal returns the decimal value at key. Values are stored as strings
// to keep exact precision through JSON.
func (c ConfigMap) Decimal(key string) (decimal.Decimal, error) {
	raw, ok := c[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("config key %q not set", key)
	}
	switch v := raw.(type) {
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	}
	return decimal.Zero, fmt.Errorf("config key %q has unsupported type %T", key, raw)
}
