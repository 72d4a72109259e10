// Package store owns persistence: users with their linked-account status,
// scraped transactions with the dedup constraint, and the dining menu cache.
package store

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the SQLite database and tunes it for a long-running
// single-writer service.
func Open(path string, logSQL bool) (*gorm.DB, error) {
	gormLogger := logger.Default
	if !logSQL {
		gormLogger = gormLogger.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)
	_, _ = sqlDB.Exec("PRAGMA journal_mode = WAL;")
	_, _ = sqlDB.Exec("PRAGMA synchronous = NORMAL;")
	_, _ = sqlDB.Exec("PRAGMA foreign_keys = ON;")
	return db, nil
}

// Migrate creates or amends every table the service uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Transaction{}, &MenuItem{})
}
