package cmd

import (
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that provide flag defaults. An optional .env file in
// the working directory is loaded first; variables already set win.
const (
	envLogLevel   = "WRSN_LOG_LEVEL"
	envListen     = "WRSN_LISTEN"
	envMetricsOut = "WRSN_METRICS_OUT"
)

// envDefaults holds flag defaults resolved from the environment.
type envDefaults struct {
	LogLevel   string
	Listen     string
	MetricsOut string
}

func loadEnvDefaults() envDefaults {
	_ = godotenv.Load()
	return envDefaults{
		LogLevel:   envOr(envLogLevel, "warn"),
		Listen:     envOr(envListen, ""),
		MetricsOut: envOr(envMetricsOut, ""),
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
