package config

import (
	"os"
	"strings"
)

// UseOrderTableMeta selects the newer first-class order attribute storage
// (meta_json column on orders, read-modify-save) instead of the legacy
// order_meta key-value table.
//
// Set via env:
// - ORDER_TABLE_META=true
func UseOrderTableMeta() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("ORDER_TABLE_META")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// EnvBoolDefault reads a boolean env var with a fallback.
func EnvBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
