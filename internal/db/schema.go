package db

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS navigation_progress (
    user_id INTEGER NOT NULL REFERENCES users(id),
    track_type TEXT NOT NULL,
    document TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (user_id, track_type)
);

CREATE TABLE IF NOT EXISTS user_assessments (
    user_id INTEGER NOT NULL REFERENCES users(id),
    assessment_type TEXT NOT NULL,
    results TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (user_id, assessment_type)
);
`

const migrations = `
ALTER TABLE navigation_progress ADD COLUMN updated_at DATETIME DEFAULT CURRENT_TIMESTAMP;
`

func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	// Fails harmlessly once the column exists.
	db.Exec(migrations)

	return nil
}

// Open opens the SQLite database at path in WAL mode and applies the schema.
func Open(path string) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := InitSchema(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return sqlDB, nil
}
