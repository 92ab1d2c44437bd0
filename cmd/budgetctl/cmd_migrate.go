package main

import (
	"fmt"

	"budgetcards/internal/storage"

	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQLite schema migrations",
		Long:  `Apply every pending migration to the database at SQLITE_DB_PATH, or print the current version with --version.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("db")
			if path == "" {
				path = a.cfg.SQLiteDBPath
			}
			out := cmd.OutOrStdout()

			if only, _ := cmd.Flags().GetBool("version"); !only {
				if err := storage.RunMigrations(path); err != nil {
					return err
				}
			}
			version, dirty, err := storage.MigrationVersion(path)
			if err != nil {
				return fmt.Errorf("read migration version: %w", err)
			}
			fmt.Fprintf(out, "%s: schema version %d", path, version)
			if dirty {
				fmt.Fprint(out, " (dirty)")
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().Bool("version", false, "Only print the applied schema version")
	cmd.Flags().String("db", "", "Database path (default: SQLITE_DB_PATH)")
	return cmd
}
