package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Settings keys.
const (
	// KeyDeviceUDN holds the persisted device UDN.
	KeyDeviceUDN = "device.udn"
)

// Settings is a key/value store in the settings table.
//
// It satisfies server.IdentityStore through LoadUDN and SaveUDN.
type Settings struct {
	db *DB
}

// NewSettings returns a settings store. The settings migration must have
// been applied.
func NewSettings(db *DB) *Settings {
	return &Settings{db: db}
}

// Get returns the value stored under key.
//
// Returns:
//   - string: The stored value
//   - error: ErrSettingNotFound when absent, or the query error
func (s *Settings) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrSettingNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}

// LoadUDN returns the stored UDN, or "" when none has been saved.
func (s *Settings) LoadUDN(ctx context.Context) (string, error) {
	udn, err := s.Get(ctx, KeyDeviceUDN)
	if errors.Is(err, ErrSettingNotFound) {
		return "", nil
	}
	return udn, err
}

// SaveUDN persists the UDN.
func (s *Settings) SaveUDN(ctx context.Context, udn string) error {
	return s.Set(ctx, KeyDeviceUDN, udn)
}
