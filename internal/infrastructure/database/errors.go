package database

import "errors"

var (
	// ErrNoPath indicates the database path is empty.
	ErrNoPath = errors.New("database: path is empty")

	// ErrSettingNotFound indicates no value is stored under a settings key.
	ErrSettingNotFound = errors.New("database: setting not found")

	// ErrNoDownMigration indicates the latest migration cannot be rolled back.
	ErrNoDownMigration = errors.New("database: migration has no down SQL")
)
