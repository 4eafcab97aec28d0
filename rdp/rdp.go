// Package rdp defines the port to the underlying remote-desktop protocol
// engine. The engine owns wire framing, transport/TLS, and graphics
// decoding; this module drives it through the Engine interface and receives
// its events through Handlers callbacks.
//
// A scriptable in-process implementation lives in loopback.go for tests and
// the selftest command; production hosts supply a Factory backed by a real
// protocol engine.
package rdp

import "time"

// Settings is the connection configuration handed to the engine before it
// connects. Defaults are applied by the session controller, not here.
type Settings struct {
	Host     string
	Port     uint16
	Username string
	Password string
	Domain   string

	DesktopWidth  uint32
	DesktopHeight uint32
	ColorDepth    uint32

	// NLASecurity enables network-level authentication; TLS/RDP security
	// negotiation stays inside the engine.
	NLASecurity bool

	// SupportGraphicsPipeline enables the accelerated graphics channel.
	SupportGraphicsPipeline bool

	// RedirectClipboard requests the clipboard virtual channel.
	RedirectClipboard bool

	// ConnectTimeout bounds the initial connection. Zero means the engine
	// default.
	ConnectTimeout time.Duration

	// Drive, when non-nil, shares a local directory with the remote session.
	Drive *DriveRedirect
}

// DriveRedirect names a local directory exposed to the remote session.
type DriveRedirect struct {
	Name string
	Path string
}

// Frame is a decoded framebuffer snapshot. Pixels is owned by the engine
// and only valid for the duration of the callback that delivers it.
type Frame struct {
	Pixels []byte
	Width  uint32
	Height uint32
	Stride int
}

// Certificate describes the server certificate presented during the TLS
// handshake, for the verification callback.
type Certificate struct {
	Host        string
	Port        uint16
	CommonName  string
	Subject     string
	Issuer      string
	Fingerprint string
}

// Handlers are the registration points for engine events. All callbacks are
// invoked on the session worker goroutine. Nil fields are skipped.
type Handlers struct {
	// FrameComplete fires after every completed screen update.
	FrameComplete func(Frame)

	// DesktopResize fires when the server changes the desktop dimensions,
	// before any frame at the new size is delivered.
	DesktopResize func(width, height uint32)

	// Authenticate supplies credentials when the engine asks for them.
	Authenticate func() (username, password, domain string, ok bool)

	// VerifyCertificate and VerifyChangedCertificate decide whether to trust
	// the server certificate, for this session only.
	VerifyCertificate        func(cert Certificate) bool
	VerifyChangedCertificate func(newCert, oldCert Certificate) bool

	// ChannelConnected fires when a static virtual channel comes up. iface
	// is the channel's client interface; for the clipboard channel it is a
	// cliprdr.Channel.
	ChannelConnected func(name string, iface any)

	// ChannelDisconnected fires when a virtual channel goes down.
	ChannelDisconnected func(name string)
}

// Engine is one protocol session instance. Instances are single-use:
// Connect at most once, then Disconnect.
type Engine interface {
	// Connect performs the protocol handshake. Blocks until connected or
	// failed; AbortConnect unblocks it from another goroutine.
	Connect() error

	// Disconnect tears the session down. Safe after a failed Connect.
	Disconnect()

	// AbortConnect asks the engine to abandon an in-progress Connect or
	// unblock a pending PumpEvents.
	AbortConnect()

	// PumpEvents waits for and dispatches one batch of protocol events.
	// An error is fatal to the session.
	PumpEvents() error

	// ShouldDisconnect reports whether the engine has internally decided
	// the session is over (server closed, abort requested).
	ShouldDisconnect() bool

	// ResizeDisplay re-negotiates the drawing surface after a desktop
	// resize, before further frame delivery.
	ResizeDisplay(width, height uint32) error

	// SendPointerEvent and SendKeyboardEvent forward local input.
	SendPointerEvent(flags uint16, x, y uint16) error
	SendKeyboardEvent(flags uint16, code uint16) error
}

// Factory creates a fresh Engine for one connection attempt.
type Factory func(settings Settings, handlers Handlers) (Engine, error)
