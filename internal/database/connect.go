package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/qaim-khanx/essaygradingbot/internal/models"
)

// Open selects PostgreSQL when a DSN is configured and falls back to SQLite,
// then migrates the grading schema.
func Open(databaseURL, sqlitePath string) (*gorm.DB, string, error) {
	var (
		db     *gorm.DB
		driver string
		err    error
	)
	if databaseURL != "" {
		driver = "postgres"
		db, err = ConnectPostgres(databaseURL)
	} else {
		driver = "sqlite"
		db, err = ConnectSQLite(sqlitePath)
	}
	if err != nil {
		return nil, driver, err
	}

	if err := db.AutoMigrate(&models.EssayGrading{}); err != nil {
		return nil, driver, fmt.Errorf("failed to migrate %s: %w", driver, err)
	}

	return db, driver, nil
}
