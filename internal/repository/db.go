package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/axellelanca/campaignshortener/internal/config"
	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/models"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// AllModels liste les tables gérées par Migrate, dans l'ordre des dépendances.
var AllModels = []any{
	&models.Organization{},
	&models.User{},
	&models.AuthSession{},
	&models.Campaign{},
	&models.ClickEvent{},
	&models.EngagementMetric{},
	&models.JourneyEvent{},
}

// Open ouvre la base configurée et règle le pool de connexions.
// SQLite is limited to one open connection, which serializes every write transaction.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite:
		db, err = gorm.Open(sqlite.Open(sqliteDSN(cfg.Name)), gormCfg)
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	default:
		return nil, apperrors.E(apperrors.Fatal, "repository.Open", fmt.Errorf("unsupported database driver %q", cfg.Driver))
	}
	if err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.Open", fmt.Errorf("%w: %v", apperrors.ErrDatabaseConnection, err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.Open", fmt.Errorf("failed to get sql.DB: %w", err))
	}
	if isSQLite(db) {
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db, nil
}

// sqliteDSN active les clés étrangères et un délai d'attente sur les verrous.
func sqliteDSN(name string) string {
	if name == "" {
		name = "campaigns.db"
	}
	if strings.Contains(name, "?") {
		return name
	}
	return name + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Migrate crée les tables et index manquants; les tables existantes ne sont jamais supprimées.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels...); err != nil {
		return apperrors.E(apperrors.Fatal, "repository.Migrate", fmt.Errorf("failed to migrate schema: %w", err))
	}
	return nil
}

func isSQLite(db *gorm.DB) bool {
	return db.Dialector.Name() == DriverSQLite
}
