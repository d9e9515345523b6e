// Package storage persists events, transforms, signals, study results and
// propagation monitors in SQLite via GORM. Records are stored flat with
// JSON-encoded columns for the variable-shape fields; conversion to and
// from the domain contracts happens at the package boundary so nothing
// above this layer sees a GORM type.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the SQLite database at path and migrates the schema.
// The parent directory is created for file-backed databases.
func Open(path string) (*gorm.DB, error) {
	if !strings.HasPrefix(path, "file::memory:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

var memDBCounter atomic.Int64

// OpenInMemory opens a shared in-memory database, used by tests. Each call
// opens a distinct database so test harnesses in the same process do not
// share state.
func OpenInMemory() (*gorm.DB, error) {
	return Open(fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", memDBCounter.Add(1)))
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&eventRecord{},
		&transformRecord{},
		&signalRecord{},
		&causalTestRecord{},
		&propagationRecord{},
	); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
