package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axellelanca/campaignshortener/cmd"
	"github.com/axellelanca/campaignshortener/internal/repository"
)

// MigrateCmd creates or updates the schema.
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Executes database migrations to create or update tables.",
	Long: `Connects to the configured database (SQLite or Postgres) and migrates the campaigns,
click events, journeys, engagement, organizations, users and auth sessions tables.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		db, closeDB, err := cmd.OpenDB()
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer closeDB()

		if err := repository.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		fmt.Println("Database migrations executed successfully.")
		return nil
	},
}

func init() {
	cmd.RootCmd.AddCommand(MigrateCmd)
}
