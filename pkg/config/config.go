// Package config holds the flat settings struct the CLI populates from
// cobra flags with environment-variable fallback, rather than a separate
// file-based config layer.
package config

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/golembase/indexer/pkg/log"
)

// Config holds everything the indexer needs to run.
type Config struct {
	DatabaseURL  string
	TickInterval time.Duration
	RestartDelay time.Duration
	MetricsAddr  string
	LogLevel     log.Level
	LogJSON      bool
}

// Defaults returns the out-of-the-box configuration.
func Defaults() Config {
	return Config{
		DatabaseURL:  "postgres://localhost:5432/golembase_indexer",
		TickInterval: 2 * time.Second,
		RestartDelay: 5 * time.Second,
		MetricsAddr:  "127.0.0.1:9090",
		LogLevel:     log.InfoLevel,
		LogJSON:      false,
	}
}

// BindFlags registers the persistent flags shared by every subcommand.
func BindFlags(cmd *cobra.Command) {
	d := Defaults()
	cmd.PersistentFlags().String("db", d.DatabaseURL, "Database URL (env INDEXER_DB_URL)")
	cmd.PersistentFlags().Duration("tick-interval", d.TickInterval, "Interval between ticks for the run subcommand")
	cmd.PersistentFlags().Duration("restart-delay", d.RestartDelay, "Delay before the supervisor restarts the tick loop after an error")
	cmd.PersistentFlags().String("metrics-addr", d.MetricsAddr, "Address to serve /metrics on")
	cmd.PersistentFlags().String("log-level", string(d.LogLevel), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("log-json", d.LogJSON, "Output logs in JSON format")
}

// FromFlags resolves a Config from the given command's flags, falling back
// to environment variables and then defaults.
func FromFlags(cmd *cobra.Command) Config {
	cfg := Defaults()

	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("INDEXER_DB_URL"); v != "" && !cmd.Flags().Changed("db") {
		cfg.DatabaseURL = v
	}

	if v, err := cmd.Flags().GetDuration("tick-interval"); err == nil && v > 0 {
		cfg.TickInterval = v
	}
	if v, err := cmd.Flags().GetDuration("restart-delay"); err == nil && v > 0 {
		cfg.RestartDelay = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}

	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = log.Level(v)
	}
	if v := os.Getenv("INDEXER_LOG_LEVEL"); v != "" && !cmd.Flags().Changed("log-level") {
		cfg.LogLevel = log.Level(v)
	}

	if v, err := cmd.Flags().GetBool("log-json"); err == nil {
		cfg.LogJSON = v
	}

	return cfg
}
