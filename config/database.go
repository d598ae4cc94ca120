package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDatabase opens the embedded SQLite database, applies pragmas and
// migrations, and returns the handle. The handle is owned by the caller
// and passed by reference to the store; there is no package-level
// database state.
func InitDatabase(modelDefs ...interface{}) *gorm.DB {
	cfg := Get()

	if dir := filepath.Dir(cfg.DatabasePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create database directory: %v", err)
		}
	}

	gLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  toGormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: gLogger,
		// Map unique-index violations onto gorm.ErrDuplicatedKey so the
		// store can surface slug conflicts without string matching.
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	// WAL keeps readers unblocked during writes; busy_timeout serializes
	// contending writers instead of failing them immediately.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			log.Fatalf("failed to set pragma %q: %v", pragma, err)
		}
	}

	for _, model := range modelDefs {
		if err := db.AutoMigrate(model); err != nil {
			log.Fatalf("auto migration failed for %T: %v", model, err)
		}
	}

	if err := migrateSearchIndex(db); err != nil {
		log.Fatalf("failed to create search index: %v", err)
	}

	return db
}

// migrateSearchIndex creates the FTS5 table holding one entry per
// published post, keyed by the post row id.
func migrateSearchIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS posts_fts USING fts5(
			title, excerpt, tags, author
		)`).Error
}

// toGormLogLevel maps the application log level onto GORM's logger level.
func toGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}
