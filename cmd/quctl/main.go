// Command quctl is the operator CLI for the qupredict daemon: create and
// list markets, place and follow bets, inspect flash rounds, and manage the
// locally stored payout address.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/qupredict/qupredict/internal/client"
)

var (
	apiURL     string
	apiKey     string
	apiTimeout time.Duration
	statePath  string
)

var rootCmd = &cobra.Command{
	Use:           "quctl",
	Short:         "Operator CLI for the qupredict prediction market",
	Long:          `quctl talks to a running qupredict daemon over its HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("QUPREDICT_API_URL", "http://localhost:8000"), "base URL of the qupredict API")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("QUPREDICT_API_KEY"), "API key (also QUPREDICT_API_KEY)")
	rootCmd.PersistentFlags().DurationVar(&apiTimeout, "timeout", 15*time.Second, "HTTP request timeout")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", defaultStatePath(), "path to the local state database")

	rootCmd.AddCommand(marketsCmd)
	rootCmd.AddCommand(betCmd)
	rootCmd.AddCommand(roundsCmd)
	rootCmd.AddCommand(addressCmd)
}

// api builds the SDK client from the persistent flags.
func api() *client.Client {
	return client.NewClient(apiURL, apiKey, apiTimeout)
}

// openState opens the local state database, creating its directory on first
// use.
func openState() (*client.SQLiteStateStore, error) {
	if dir := filepath.Dir(statePath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	return client.OpenSQLiteState(statePath)
}

func defaultStatePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "qupredict", "state.db")
	}
	return "qupredict-state.db"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
