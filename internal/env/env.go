// Package env reads process environment variables with typed defaults,
// used by cmd/pconn-bench to seed its logger configuration before viper is
// available.
package env

import (
	"os"
	"strconv"
)

// GetEnvOrDefault returns the value of key, or fallback if unset or empty.
func GetEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetEnvBoolOrDefault parses key as a bool, or returns fallback if unset or
// unparsable.
func GetEnvBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// GetEnvIntOrDefault parses key as an int, or returns fallback if unset or
// unparsable.
func GetEnvIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}
