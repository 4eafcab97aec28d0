// Package rdbridge bridges a remote-desktop protocol session to a host
// application: it drives session connect/run/disconnect on a background
// worker, delivers decoded framebuffer updates, forwards local input, and
// keeps the local and remote clipboards in sync over the clipboard virtual
// channel.
//
// The protocol engine itself (wire framing, transport/TLS, graphics
// decoding) is a collaborator supplied through the rdp.Factory port; the
// local system clipboard is reached through the clip.Backend port.
package rdbridge

import (
	"errors"
	"sync"

	"go.klb.dev/rdbridge/clip"
	"go.klb.dev/rdbridge/cliprdr"
	"go.klb.dev/rdbridge/internal/session"
	"go.klb.dev/rdbridge/rdp"
)

// Config describes one connection attempt. See session.Config for field
// semantics; Host is the only required field.
type Config = session.Config

// Frame is a decoded framebuffer update. The pixel buffer is only valid for
// the duration of the callback that delivers it.
type Frame = rdp.Frame

// FrameFunc receives framebuffer updates on the session worker goroutine.
type FrameFunc = session.FrameFunc

// DisconnectedFunc is invoked exactly once per session, after teardown
// completes, whether the session failed to connect, was closed remotely, or
// was disconnected locally.
type DisconnectedFunc = session.DisconnectedFunc

// ErrNoSession is returned by the input senders when no session is active.
var ErrNoSession = session.ErrNoSession

// Option customizes a Client.
type Option func(*options)

type options struct {
	board clip.Backend
}

// WithClipboard overrides the platform clipboard backend, e.g. with
// clip.NewMemory in tests or headless hosts.
func WithClipboard(b clip.Backend) Option {
	return func(o *options) { o.board = b }
}

// Client is the host's handle on the bridge. A Client runs at most one
// session at a time and may be reused across sessions until Close.
type Client struct {
	board  clip.Backend
	bridge *cliprdr.Bridge
	ctrl   *session.Controller

	closeOnce sync.Once
}

// New creates a Client. engine supplies a fresh protocol engine per
// connection attempt; onFrame and onDisconnected may be nil.
func New(engine rdp.Factory, onFrame FrameFunc, onDisconnected DisconnectedFunc, opts ...Option) (*Client, error) {
	if engine == nil {
		return nil, errors.New("rdbridge: nil engine factory")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	board := o.board
	if board == nil {
		board = clip.New()
	}

	bridge := cliprdr.New(board)
	return &Client{
		board:  board,
		bridge: bridge,
		ctrl:   session.New(engine, bridge, onFrame, onDisconnected),
	}, nil
}

// Connect starts a session with the given configuration. It returns
// immediately; only local resource errors are reported here, connection
// failures arrive through the disconnected callback. Calling Connect while
// a session is active is a no-op returning nil.
func (c *Client) Connect(cfg Config) error {
	return c.ctrl.Connect(cfg)
}

// Connected reports whether a session is currently connected.
func (c *Client) Connected() bool { return c.ctrl.Connected() }

// Disconnect stops the active session and blocks until the worker has fully
// exited; no callback fires after it returns. Idempotent.
func (c *Client) Disconnect() {
	c.ctrl.Disconnect()
}

// SendPointerEvent forwards a pointer event to the remote session.
func (c *Client) SendPointerEvent(flags uint16, x, y uint16) error {
	return c.ctrl.SendPointerEvent(flags, x, y)
}

// SendKeyboardEvent forwards a keyboard scancode event to the remote session.
func (c *Client) SendKeyboardEvent(flags uint16, code uint16) error {
	return c.ctrl.SendKeyboardEvent(flags, code)
}

// Close disconnects any active session and releases the clipboard backend.
// The Client must not be used afterwards.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.ctrl.Disconnect()
		c.board.Close()
	})
}
