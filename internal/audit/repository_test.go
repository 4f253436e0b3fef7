package audit

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	schema, err := os.ReadFile("../../migrations/20260301_120100_audit.up.sql")
	if err != nil {
		t.Fatalf("reading audit migration: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatalf("applying audit migration: %v", err)
	}
	return NewSQLiteRepository(db)
}

func TestRecord_FillsDefaults(t *testing.T) {
	repo := openRepo(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	repo.now = func() time.Time { return fixed }

	entry := &Entry{Action: ActionLogin, Subject: "admin", Source: SourceAPI}
	if err := repo.Record(context.Background(), entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if entry.ID == "" {
		t.Error("Record() should assign an ID")
	}
	if !entry.CreatedAt.Equal(fixed) || entry.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt = %v, want %v in UTC", entry.CreatedAt, fixed)
	}

	res, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("List() total = %d, entries = %d; want 1", res.Total, len(res.Entries))
	}
	got := res.Entries[0]
	if got.ID != entry.ID || got.Subject != "admin" || !got.CreatedAt.Equal(fixed) {
		t.Errorf("List()[0] = %+v", got)
	}
	if got.Details != nil {
		t.Errorf("Details = %v, want nil", got.Details)
	}
}

func TestRecord_Invalid(t *testing.T) {
	repo := openRepo(t)

	tests := []struct {
		name  string
		entry Entry
	}{
		{"missing action", Entry{Source: SourceAPI}},
		{"missing source", Entry{Action: ActionStart}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Record(context.Background(), &tt.entry)
			if !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Record() error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestRecord_Details(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()

	err := repo.Record(ctx, &Entry{
		Action:  ActionStart,
		Source:  SourceSystem,
		Details: map[string]any{"udn": "uuid:abc", "port": 49152},
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	details := res.Entries[0].Details
	if details["udn"] != "uuid:abc" {
		t.Errorf("details[udn] = %v, want uuid:abc", details["udn"])
	}
	// JSON numbers decode as float64.
	if details["port"] != float64(49152) {
		t.Errorf("details[port] = %v, want 49152", details["port"])
	}
	if res.Entries[0].Subject != "" {
		t.Errorf("Subject = %q, want empty", res.Entries[0].Subject)
	}
}

func TestList_OrderFilterAndPaging(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := []Entry{
		{Action: ActionStart, Source: SourceSystem, CreatedAt: base},
		{Action: ActionLogin, Subject: "admin", Source: SourceAPI, CreatedAt: base.Add(500 * time.Millisecond)},
		{Action: ActionAdvertise, Subject: "admin", Source: SourceAPI, CreatedAt: base.Add(time.Second)},
		{Action: ActionLoginFailed, Subject: "mallory", Source: SourceAPI, CreatedAt: base.Add(2 * time.Second)},
		{Action: ActionStop, Source: SourceSystem, CreatedAt: base.Add(3 * time.Second)},
	}
	for i := range seed {
		if err := repo.Record(ctx, &seed[i]); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	tests := []struct {
		name        string
		filter      Filter
		wantTotal   int
		wantActions []string
	}{
		{
			name:        "all newest first",
			filter:      Filter{},
			wantTotal:   5,
			wantActions: []string{ActionStop, ActionLoginFailed, ActionAdvertise, ActionLogin, ActionStart},
		},
		{
			name:        "by action",
			filter:      Filter{Action: ActionLogin},
			wantTotal:   1,
			wantActions: []string{ActionLogin},
		},
		{
			name:        "by subject",
			filter:      Filter{Subject: "admin"},
			wantTotal:   2,
			wantActions: []string{ActionAdvertise, ActionLogin},
		},
		{
			name:        "page two",
			filter:      Filter{Limit: 2, Offset: 2},
			wantTotal:   5,
			wantActions: []string{ActionAdvertise, ActionLogin},
		},
		{
			name:        "negative offset",
			filter:      Filter{Limit: 1, Offset: -3},
			wantTotal:   5,
			wantActions: []string{ActionStop},
		},
		{
			name:        "no match",
			filter:      Filter{Action: "reboot"},
			wantTotal:   0,
			wantActions: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			if len(res.Entries) != len(tt.wantActions) {
				t.Fatalf("len(Entries) = %d, want %d", len(res.Entries), len(tt.wantActions))
			}
			for i, want := range tt.wantActions {
				if res.Entries[i].Action != want {
					t.Errorf("Entries[%d].Action = %q, want %q", i, res.Entries[i].Action, want)
				}
			}
		})
	}
}

func TestList_LimitClamp(t *testing.T) {
	repo := openRepo(t)

	tests := []struct {
		limit int
		want  int
	}{
		{0, DefaultLimit},
		{-1, DefaultLimit},
		{10, 10},
		{MaxLimit + 1, MaxLimit},
	}
	for _, tt := range tests {
		res, err := repo.List(context.Background(), Filter{Limit: tt.limit})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Limit != tt.want {
			t.Errorf("List(limit=%d).Limit = %d, want %d", tt.limit, res.Limit, tt.want)
		}
		if res.Entries == nil {
			t.Error("Entries should be an empty slice, not nil")
		}
	}
}
