package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/graymedia/mediaserver/internal/infrastructure/config"
)

var settingsMigration = fstest.MapFS{
	"20260301_120000_settings.up.sql": {Data: []byte(`CREATE TABLE settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`)},
}

func openSettings(t *testing.T, path string) *Settings {
	t.Helper()
	useMigrations(t, settingsMigration, ".")

	db, err := Open(config.DatabaseConfig{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSettings(db)
}

func TestSettingsGetSet(t *testing.T) {
	s := openSettings(t, filepath.Join(t.TempDir(), "settings.db"))
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrSettingNotFound", err)
	}

	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || got != "v2" {
		t.Errorf("Get(k) = %q, %v; want v2", got, err)
	}
}

func TestSettingsUDNSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	ctx := context.Background()
	const udn = "uuid:0f8fad5b-d9cb-469f-a165-70867728950e"

	first := openSettings(t, path)
	stored, err := first.LoadUDN(ctx)
	if err != nil || stored != "" {
		t.Fatalf("LoadUDN() on empty store = %q, %v", stored, err)
	}
	if err := first.SaveUDN(ctx, udn); err != nil {
		t.Fatalf("SaveUDN() error = %v", err)
	}
	first.db.Close() //nolint:errcheck // reopened below

	second := openSettings(t, path)
	stored, err = second.LoadUDN(ctx)
	if err != nil {
		t.Fatalf("LoadUDN() error = %v", err)
	}
	if stored != udn {
		t.Errorf("LoadUDN() = %q, want %q", stored, udn)
	}
}

func TestSettingsWithoutTable(t *testing.T) {
	db := openTestDB(t)
	s := NewSettings(db)

	_, err := s.LoadUDN(context.Background())
	if err == nil || errors.Is(err, ErrSettingNotFound) {
		t.Errorf("LoadUDN() without settings table error = %v, want query error", err)
	}
}
