package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/graymedia/mediaserver/internal/auth"
	"github.com/graymedia/mediaserver/internal/infrastructure/config"
	"github.com/graymedia/mediaserver/internal/services/contentdirectory"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("MEDIASERVER_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config failure", err)
	}
}

// TestRun_InvalidLibrary verifies validation errors stop startup before
// anything is opened.
func TestRun_InvalidLibrary(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
database:
  path: "` + filepath.Join(tmpDir, "test.db") + `"

media:
  library:
    - title: Music
      items:
        - title: Track
          class: podcast
          path: /music/track.mp3

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("MEDIASERVER_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with an unknown item class")
	}
	if !strings.Contains(err.Error(), "class") {
		t.Errorf("run() error = %v, want class validation failure", err)
	}
	if _, statErr := os.Stat(filepath.Join(tmpDir, "test.db")); !os.IsNotExist(statErr) {
		t.Error("database should not be created when validation fails")
	}
}

// TestGetConfigPath verifies config path resolution.
func TestGetConfigPath(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want string
	}{
		{"default path", "", defaultConfigPath},
		{"custom path from env", "/custom/path/config.yaml", "/custom/path/config.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MEDIASERVER_CONFIG", tt.env)
			if got := getConfigPath(); got != tt.want {
				t.Errorf("getConfigPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildCatalog(t *testing.T) {
	library := []config.LibraryFolder{
		{
			Title: "Music",
			Items: []config.LibraryItem{
				{Title: "One", Class: "audio", Path: "/music/one.mp3", ProtocolInfo: "http-get:*:audio/mpeg:*", Size: 1024},
				{Title: "Two", Class: "audio", Path: "/music/two.flac"},
			},
			Folders: []config.LibraryFolder{
				{
					Title: "Live",
					Items: []config.LibraryItem{{Title: "Concert", Class: "video", Path: "/video/concert.mp4"}},
				},
			},
		},
		{
			Title: "Photos",
			Items: []config.LibraryItem{{Title: "Beach", Class: "image", Path: "/photos/beach.jpg"}},
		},
	}

	catalog, err := buildCatalog(library)
	if err != nil {
		t.Fatalf("buildCatalog() error = %v", err)
	}

	// root + 3 folders + 4 items
	if catalog.Len() != 8 {
		t.Fatalf("Len() = %d, want 8", catalog.Len())
	}

	top, err := catalog.Children(contentdirectory.RootID)
	if err != nil {
		t.Fatalf("Children(root) error = %v", err)
	}
	if len(top) != 2 || top[0].Title != "Music" || top[1].Title != "Photos" {
		t.Fatalf("root children = %v, want Music and Photos", titles(top))
	}

	music, err := catalog.Children(top[0].ID)
	if err != nil {
		t.Fatalf("Children(Music) error = %v", err)
	}
	if got := titles(music); strings.Join(got, ",") != "One,Two,Live" {
		t.Errorf("Music children = %v, want [One Two Live]", got)
	}

	tests := []struct {
		obj   *contentdirectory.Object
		class string
	}{
		{music[0], contentdirectory.ClassAudioItem},
		{music[1], contentdirectory.ClassAudioItem},
		{music[2], contentdirectory.ClassContainer},
	}
	for _, tt := range tests {
		if tt.obj.Class != tt.class {
			t.Errorf("%s class = %q, want %q", tt.obj.Title, tt.obj.Class, tt.class)
		}
	}

	res := music[0].Resource
	if res == nil || res.Path != "/music/one.mp3" || res.Size != 1024 || res.ProtocolInfo != "http-get:*:audio/mpeg:*" {
		t.Errorf("One resource = %+v", res)
	}

	live, err := catalog.Children(music[2].ID)
	if err != nil {
		t.Fatalf("Children(Live) error = %v", err)
	}
	if len(live) != 1 || live[0].Class != contentdirectory.ClassVideoItem {
		t.Errorf("Live children = %v, want one video item", titles(live))
	}

	photos, err := catalog.Children(top[1].ID)
	if err != nil {
		t.Fatalf("Children(Photos) error = %v", err)
	}
	if len(photos) != 1 || photos[0].Class != contentdirectory.ClassImageItem {
		t.Errorf("Photos children = %v, want one image item", titles(photos))
	}
}

func TestBuildCatalog_Empty(t *testing.T) {
	catalog, err := buildCatalog(nil)
	if err != nil {
		t.Fatalf("buildCatalog(nil) error = %v", err)
	}
	if catalog.Len() != 1 {
		t.Errorf("Len() = %d, want root only", catalog.Len())
	}
}

func TestBuildCatalog_UnknownClass(t *testing.T) {
	library := []config.LibraryFolder{{
		Title: "Misc",
		Items: []config.LibraryItem{{Title: "Thing", Class: "hologram"}},
	}}

	if _, err := buildCatalog(library); err == nil {
		t.Fatal("buildCatalog() should reject an unknown class")
	}
}

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"with newline", "correct horse\n", false},
		{"windows newline", "correct horse\r\n", false},
		{"no newline", "correct horse", false},
		{"empty", "\n", true},
		{"no input", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := hashPassword(strings.NewReader(tt.input), &out)
			if tt.wantErr {
				if err == nil {
					t.Fatal("hashPassword() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("hashPassword() error = %v", err)
			}

			hash := strings.TrimSpace(out.String())
			if !strings.HasPrefix(hash, "$argon2id$") {
				t.Fatalf("hash = %q, want argon2id PHC string", hash)
			}
			ok, err := auth.VerifyPassword("correct horse", hash)
			if err != nil || !ok {
				t.Errorf("VerifyPassword() = %v, %v, want true", ok, err)
			}
		})
	}
}

func TestEventingOptions(t *testing.T) {
	opts := eventingOptions(config.EventingConfig{MaxTimeout: 1800, MinTimeout: 60, MaxSubscribers: 5})

	if opts.MaxTimeout != 30*time.Minute {
		t.Errorf("MaxTimeout = %v, want 30m", opts.MaxTimeout)
	}
	if opts.MinTimeout != time.Minute {
		t.Errorf("MinTimeout = %v, want 1m", opts.MinTimeout)
	}
	if opts.MaxSubscribers != 5 {
		t.Errorf("MaxSubscribers = %d, want 5", opts.MaxSubscribers)
	}
}

func titles(objs []*contentdirectory.Object) []string {
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.Title)
	}
	return out
}
