// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/axellelanca/campaignshortener/internal/config"
	"github.com/axellelanca/campaignshortener/internal/repository"
)

// NewDB returns a migrated SQLite database living in t's temp dir.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := repository.Open(config.DatabaseConfig{
		Driver: repository.DriverSQLite,
		Name:   filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SequenceGenerator yields codes in order, then keeps repeating the last one.
func SequenceGenerator(codes ...string) repository.CodeGenerator {
	i := 0
	return func() (string, error) {
		if i >= len(codes) {
			return codes[len(codes)-1], nil
		}
		c := codes[i]
		i++
		return c, nil
	}
}
