package env

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/agentuity/go-cache/logger"
	"github.com/spf13/cobra"
)

// CacheQueriesEnv is the environment toggle gating the cache facade. It is
// independent of the `enabled` value of the cache configuration.
const CacheQueriesEnv = "CACHE_QUERIES"

// CacheQueriesEnabled returns true when CACHE_QUERIES is exactly "true".
func CacheQueriesEnabled() bool {
	return os.Getenv(CacheQueriesEnv) == "true"
}

// Bool returns the boolean value of the environment variable name, or
// defaultValue if it is unset or not a valid boolean.
func Bool(name string, defaultValue bool) bool {
	val, ok := os.LookupEnv(name)
	if !ok {
		return defaultValue
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return defaultValue
	}
	return b
}

// String returns the value of the environment variable name, or
// defaultValue if it is unset or empty.
func String(name string, defaultValue string) string {
	if val := os.Getenv(name); val != "" {
		return val
	}
	return defaultValue
}

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

// LogLevel returns the level from the log-level flag, then AGENTUITY_LOG_LEVEL, then info.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	level := FlagOrEnv(cmd, "log-level", logger.LevelEnv, "info")
	return logger.ParseLevel(level, logger.LevelInfo)
}

// NewLogger returns a console logger by first checking the cobra.Command log-level flag, then use the
// AGENTUITY_LOG_LEVEL environment value and falling back to the info logger level
func NewLogger(cmd *cobra.Command) logger.Logger {
	log.SetFlags(0)
	return logger.NewConsoleLogger(LogLevel(cmd))
}
