package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	s := Config{Host: "10.0.0.5"}.settings()
	if s.Host != "10.0.0.5" {
		t.Fatalf("host = %q", s.Host)
	}
	if s.Port != 3389 {
		t.Fatalf("port = %d, want 3389", s.Port)
	}
	if s.DesktopWidth != 1280 || s.DesktopHeight != 720 {
		t.Fatalf("size = %dx%d, want 1280x720", s.DesktopWidth, s.DesktopHeight)
	}
	if s.ColorDepth != 32 {
		t.Fatalf("color depth = %d, want 32", s.ColorDepth)
	}
	if !s.RedirectClipboard {
		t.Fatal("clipboard redirection not requested")
	}
	if s.Drive != nil {
		t.Fatal("drive set without a path")
	}
	if s.ConnectTimeout != 0 {
		t.Fatalf("timeout = %v, want engine default", s.ConnectTimeout)
	}
}

func TestConfigOverrides(t *testing.T) {
	s := Config{
		Host:           "host",
		Port:           3390,
		Width:          1920,
		Height:         1080,
		EnableNLA:      true,
		EnableGfx:      true,
		ConnectTimeout: 15 * time.Second,
	}.settings()
	if s.Port != 3390 || s.DesktopWidth != 1920 || s.DesktopHeight != 1080 {
		t.Fatalf("overrides not applied: %+v", s)
	}
	if !s.NLASecurity || !s.SupportGraphicsPipeline {
		t.Fatal("security/graphics flags not applied")
	}
	if s.ConnectTimeout != 15*time.Second {
		t.Fatalf("timeout = %v", s.ConnectTimeout)
	}
}

func TestDriveRedirection(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		path     string
		drive    string
		wantName string // "" means no drive
	}{
		{"valid dir default name", dir, "", "Mac"},
		{"valid dir custom name", dir, "Shared", "Shared"},
		{"missing path", "/tmp/doesnotexist-rdbridge", "", ""},
		{"regular file", file, "", ""},
		{"empty path", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Config{Host: "h", DrivePath: tt.path, DriveName: tt.drive}.settings()
			if tt.wantName == "" {
				if s.Drive != nil {
					t.Fatalf("drive = %+v, want disabled", s.Drive)
				}
				return
			}
			if s.Drive == nil {
				t.Fatal("drive disabled, want enabled")
			}
			if s.Drive.Name != tt.wantName || s.Drive.Path != tt.path {
				t.Fatalf("drive = %+v, want %s -> %s", s.Drive, tt.path, tt.wantName)
			}
		})
	}
}
