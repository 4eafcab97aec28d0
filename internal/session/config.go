package session

import (
	"log/slog"
	"os"
	"time"

	"go.klb.dev/rdbridge/rdp"
)

// Defaults applied when Config fields are zero.
const (
	DefaultPort      uint16 = 3389
	DefaultWidth     uint32 = 1280
	DefaultHeight    uint32 = 720
	DefaultDriveName        = "Mac"

	colorDepth uint32 = 32
)

// Config describes one connection attempt. Host is required; everything
// else is optional. Connect takes its own copy, so the caller may reuse or
// discard the struct immediately.
type Config struct {
	Host     string
	Port     uint16 // 0 = 3389
	Username string
	Password string
	Domain   string

	Width  uint32 // 0 = 1280
	Height uint32 // 0 = 720

	// EnableNLA turns on network-level authentication.
	EnableNLA bool

	// EnableGfx turns on the accelerated graphics pipeline.
	EnableGfx bool

	// ConnectTimeout bounds the initial connection; 0 uses the engine
	// default.
	ConnectTimeout time.Duration

	// DrivePath, when set to an existing directory, is shared with the
	// remote session under DriveName (default "Mac"). A path that does not
	// resolve to a directory disables sharing; it is not an error.
	DrivePath string
	DriveName string
}

// settings translates the config into engine settings, applying defaults
// and validating the shared-folder path.
func (c Config) settings() rdp.Settings {
	s := rdp.Settings{
		Host:                    c.Host,
		Port:                    c.Port,
		Username:                c.Username,
		Password:                c.Password,
		Domain:                  c.Domain,
		DesktopWidth:            c.Width,
		DesktopHeight:           c.Height,
		ColorDepth:              colorDepth,
		NLASecurity:             c.EnableNLA,
		SupportGraphicsPipeline: c.EnableGfx,
		RedirectClipboard:       true,
		ConnectTimeout:          c.ConnectTimeout,
	}
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.DesktopWidth == 0 {
		s.DesktopWidth = DefaultWidth
	}
	if s.DesktopHeight == 0 {
		s.DesktopHeight = DefaultHeight
	}

	if validDrivePath(c.DrivePath) {
		name := c.DriveName
		if name == "" {
			name = DefaultDriveName
		}
		s.Drive = &rdp.DriveRedirect{Name: name, Path: c.DrivePath}
		slog.Info("drive redirection enabled", "path", c.DrivePath, "name", name)
	} else if c.DrivePath != "" {
		slog.Warn("drive path invalid or not a directory, sharing disabled", "path", c.DrivePath)
	}
	return s
}

// validDrivePath reports whether path names an existing directory.
func validDrivePath(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
