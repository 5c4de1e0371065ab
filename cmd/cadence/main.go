package main

import (
	"fmt"
	"os"

	"github.com/cuemby/cadence/pkg/config"
	"github.com/cuemby/cadence/pkg/log"
	"github.com/cuemby/cadence/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Cadence - Scheduled publishing and engagement automation",
	Long: `Cadence publishes scheduled social media posts when they come due,
answers audience comments and direct messages according to automation
rules, and pushes status notifications to connected users.

Everything runs from a single process backed by an embedded ledger.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Cadence version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "YAML configuration file")
	flags.String("env-file", ".env", "Environment file loaded before configuration")
	flags.String("data-dir", "", "Data directory (overrides store.data_dir)")
	flags.String("store", "", "Store driver: bolt or sqlite (overrides store.driver)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.Bool("log-json", false, "Emit JSON logs")
}

// cfg is loaded once by setup before any subcommand runs
var cfg *config.Config

// setup loads .env, the configuration file and flag overrides, then
// initializes logging
func setup(cmd *cobra.Command, args []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		loaded.Store.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		loaded.Store.Driver = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		loaded.Log.Level = v
	}
	if cmd.Flags().Changed("log-json") {
		loaded.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(loaded.Log.Level),
		JSONOutput: loaded.Log.JSON,
		Output:     os.Stderr,
	})
	cfg = loaded
	return nil
}

// openStore opens the configured ledger
func openStore() (storage.Store, error) {
	store, err := storage.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	return store, nil
}
