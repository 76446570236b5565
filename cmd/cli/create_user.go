package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/axellelanca/campaignshortener/cmd"
	"github.com/axellelanca/campaignshortener/internal/models"
	"github.com/axellelanca/campaignshortener/internal/repository"
	"github.com/axellelanca/campaignshortener/internal/services"
)

var userFlags struct {
	username     string
	password     string
	organization string
	role         string
}

// CreateUserCmd adds a dashboard account.
var CreateUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Creates a dashboard user.",
	RunE: func(c *cobra.Command, _ []string) error {
		db, closeDB, err := cmd.OpenDB()
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer closeDB()

		auth := services.NewAuthService(repository.NewUserRepository(db),
			time.Duration(cmd.Cfg.Auth.SessionTTLHours)*time.Hour, cmd.Cfg.Auth.BcryptCost, zap.NewNop())
		user, err := auth.CreateUser(c.Context(), userFlags.username, userFlags.password, userFlags.organization, userFlags.role)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		fmt.Printf("User %s created (role %s, organization id %d)\n", user.Username, user.Role, user.OrganizationID)
		return nil
	},
}

func init() {
	f := CreateUserCmd.Flags()
	f.StringVar(&userFlags.username, "username", "", "login name")
	f.StringVar(&userFlags.password, "password", "", "password (at least 8 characters)")
	f.StringVar(&userFlags.organization, "org", "", "organization name (default \"default\")")
	f.StringVar(&userFlags.role, "role", models.RoleUser, "admin or user")
	_ = CreateUserCmd.MarkFlagRequired("username")
	_ = CreateUserCmd.MarkFlagRequired("password")

	cmd.RootCmd.AddCommand(CreateUserCmd)
}
