// Package config reads process settings for the daemon and deployctl from
// the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetString returns the variable's value, or fallback when it is unset.
// A variable set to the empty string is returned as is.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt parses the variable as an integer. Unset or unparsable values yield
// fallback; the latter is logged.
func GetInt(key string, fallback int) int {
	value, ok := lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer setting, using default", "key", key, "value", value, "default", fallback)
		return fallback
	}
	return parsed
}

// GetBool parses the variable with strconv.ParseBool.
func GetBool(key string, fallback bool) bool {
	value, ok := lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("invalid boolean setting, using default", "key", key, "value", value, "default", fallback)
		return fallback
	}
	return parsed
}

// GetSeconds reads a whole number of seconds. Negative values are rejected
// in favour of fallback.
func GetSeconds(key string, fallback int) time.Duration {
	seconds := GetInt(key, fallback)
	if seconds < 0 {
		slog.Warn("negative duration setting, using default", "key", key, "value", seconds, "default", fallback)
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

// lookup treats blank values like unset ones for typed getters.
func lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
