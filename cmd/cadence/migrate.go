package main

import (
	"fmt"

	"github.com/cuemby/cadence/pkg/config"
	"github.com/cuemby/cadence/pkg/storage"
	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the ledger",
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy the ledger between the bolt and sqlite drivers",
	Long: `Copy every account, post, rule, reply record, notification and
preference from one store driver to the other.

The source is the configured store; the destination is the other driver
in the same data directory unless --to-path is given. Entities are
upserted by id, so running the migration twice is harmless.

Access tokens are sealed on the destination with --to-encryption-key,
which defaults to the source key. Passing a new key rotates it; passing
"none" writes plaintext.

Examples:
  # Move a bolt ledger to sqlite
  cadence store migrate --to sqlite

  # Copy into a specific sqlite file
  cadence store migrate --to sqlite --to-path /var/lib/cadence/ledger.sqlite`,
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		toPath, _ := cmd.Flags().GetString("to-path")
		toKey, _ := cmd.Flags().GetString("to-encryption-key")

		if to == cfg.Store.Driver && toPath == "" {
			return fmt.Errorf("destination driver %s is the configured source", to)
		}

		dstCfg := config.StoreConfig{
			Driver:        to,
			DataDir:       cfg.Store.DataDir,
			Path:          toPath,
			EncryptionKey: cfg.Store.EncryptionKey,
		}
		switch toKey {
		case "":
		case "none":
			dstCfg.EncryptionKey = ""
		default:
			dstCfg.EncryptionKey = toKey
		}
		if to == config.DriverBolt && toPath != "" {
			dstCfg.DataDir = toPath
		}

		src, err := openStore()
		if err != nil {
			return err
		}
		defer src.Close()

		dst, err := storage.Open(dstCfg)
		if err != nil {
			return fmt.Errorf("failed to open destination: %w", err)
		}
		defer dst.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Migrating %s → %s...\n", cfg.Store.Driver, to)
		stats, err := storage.Migrate(cmd.Context(), src, dst)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "  Accounts:      %d\n", stats.Accounts)
		fmt.Fprintf(out, "  Posts:         %d\n", stats.Posts)
		fmt.Fprintf(out, "  Rules:         %d\n", stats.Rules)
		fmt.Fprintf(out, "  Replies:       %d\n", stats.Replies)
		fmt.Fprintf(out, "  Notifications: %d\n", stats.Notifications)
		fmt.Fprintf(out, "  Preferences:   %d\n", stats.Preferences)
		fmt.Fprintln(out, "✓ Migration completed successfully")
		return nil
	},
}

func init() {
	storeMigrateCmd.Flags().String("to", config.DriverSQLite, "Destination driver: bolt or sqlite")
	storeMigrateCmd.Flags().String("to-path", "", "Destination sqlite file, or bolt data directory")
	storeMigrateCmd.Flags().String("to-encryption-key", "", "Destination token key (default: source key, \"none\" for plaintext)")

	storeCmd.AddCommand(storeMigrateCmd)
	rootCmd.AddCommand(storeCmd)
}
