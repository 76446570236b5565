package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/axellelanca/campaignshortener/internal/config"
	"github.com/axellelanca/campaignshortener/internal/logger"
	"github.com/axellelanca/campaignshortener/internal/repository"
)

// Cfg is the configuration loaded before any command runs.
var Cfg *config.Config

var configDir string

// RootCmd is the base command. Subcommands register themselves from their own init().
var RootCmd = &cobra.Command{
	Use:   "campaignshortener",
	Short: "Campaign URL shortener with click analytics",
	Long: `Creates UTM-tagged short links for marketing campaigns, redirects visitors while
recording every click, and serves the analytics dashboard API.`,
	SilenceUsage: true,
}

// Execute is called from main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&configDir, "config", "./configs", "directory holding config.yaml")
}

func initConfig() {
	var err error
	if configDir == "" || configDir == "./configs" {
		Cfg, err = config.LoadConfig()
	} else {
		Cfg, err = config.LoadConfigFrom(configDir)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
}

// NewLogger builds the logger described by the loaded configuration.
func NewLogger() (*zap.Logger, error) {
	return logger.New(Cfg.Log)
}

// OpenDB connects to the configured database and returns a close function.
func OpenDB() (*gorm.DB, func(), error) {
	db, err := repository.Open(Cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, closeFn, nil
}
