// Package session owns the lifecycle of one protocol session: a worker
// goroutine that connects, pumps engine events until told to stop, and
// tears down, notifying the host exactly once per session.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.klb.dev/rdbridge/cliprdr"
	"go.klb.dev/rdbridge/internal/obs"
	"go.klb.dev/rdbridge/rdp"
)

// ErrNoSession is returned when input is sent without an active session.
var ErrNoSession = errors.New("no active session")

// FrameFunc receives decoded framebuffer updates on the worker goroutine.
// The frame's pixel buffer is only valid for the duration of the call.
type FrameFunc func(rdp.Frame)

// DisconnectedFunc is invoked exactly once per session, after teardown.
type DisconnectedFunc func()

// Controller drives connect → event pump → disconnect for one session at a
// time. Connect returns immediately; Disconnect blocks until the worker has
// fully exited and is the only blocking call.
type Controller struct {
	newEngine      rdp.Factory
	onFrame        FrameFunc
	onDisconnected DisconnectedFunc
	bridge         *cliprdr.Bridge

	mu     sync.Mutex
	engine rdp.Engine
	done   chan struct{}
	stop   *atomic.Bool

	connected atomic.Bool
}

// New creates a Controller. bridge may not be nil; callbacks may be.
func New(factory rdp.Factory, bridge *cliprdr.Bridge, onFrame FrameFunc, onDisconnected DisconnectedFunc) *Controller {
	return &Controller{
		newEngine:      factory,
		onFrame:        onFrame,
		onDisconnected: onDisconnected,
		bridge:         bridge,
	}
}

// Connected reports whether the engine has completed its handshake.
func (c *Controller) Connected() bool { return c.connected.Load() }

// Connect validates that no session is active, creates a fresh engine, and
// starts the worker. It returns an error only for local resource failures
// (engine creation); connection failures inside the engine surface through
// the disconnected callback. If a session is already active — including one
// that has ended but not yet been reaped by Disconnect — Connect is a no-op
// returning nil.
func (c *Controller) Connect(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		slog.Debug("connect ignored, session already active")
		return nil
	}

	var eng rdp.Engine
	handlers := rdp.Handlers{
		FrameComplete: func(f rdp.Frame) {
			obs.FramesTotal.Inc()
			if c.onFrame != nil {
				c.onFrame(f)
			}
		},
		DesktopResize: func(w, h uint32) {
			slog.Info("desktop resized", "width", w, "height", h)
			if err := eng.ResizeDisplay(w, h); err != nil {
				slog.Error("display resize failed", "err", err)
			}
		},
		Authenticate: func() (string, string, string, bool) {
			return cfg.Username, cfg.Password, cfg.Domain, true
		},
		// Certificate trust is intentionally permissive: accept for this
		// session only, never persisted.
		VerifyCertificate: func(cert rdp.Certificate) bool {
			slog.Info("accepting certificate", "host", cert.Host, "port", cert.Port)
			return true
		},
		VerifyChangedCertificate: func(newCert, _ rdp.Certificate) bool {
			slog.Info("accepting changed certificate", "host", newCert.Host, "port", newCert.Port)
			return true
		},
		ChannelConnected: func(name string, iface any) {
			slog.Debug("channel connected", "name", name)
			if name != cliprdr.ChannelName {
				return
			}
			ch, ok := iface.(cliprdr.Channel)
			if !ok {
				slog.Error("clipboard channel has unexpected interface")
				return
			}
			c.bridge.Activate(ch)
		},
		ChannelDisconnected: func(name string) {
			if name == cliprdr.ChannelName {
				c.bridge.Deactivate()
			}
		},
	}

	var err error
	eng, err = c.newEngine(cfg.settings(), handlers)
	if err != nil {
		return err
	}

	stop := new(atomic.Bool)
	done := make(chan struct{})
	c.engine = eng
	c.done = done
	c.stop = stop
	go c.run(eng, stop, done)
	return nil
}

// run is the session worker. It always ends by notifying the host, whether
// the session failed to connect, was closed remotely, or was stopped.
func (c *Controller) run(eng rdp.Engine, stop *atomic.Bool, done chan struct{}) {
	defer close(done)
	defer c.notifyDisconnected()
	obs.SessionsStartedTotal.Inc()
	defer obs.SessionsEndedTotal.Inc()

	if err := eng.Connect(); err != nil {
		slog.Error("connect failed", "err", err)
		obs.ErrorsTotal.WithLabelValues("connect").Inc()
		return
	}
	c.connected.Store(true)
	obs.SessionConnected.Set(1)
	slog.Info("session connected")

	for !stop.Load() && !eng.ShouldDisconnect() {
		if err := eng.PumpEvents(); err != nil {
			slog.Error("event handling failed", "err", err)
			obs.ErrorsTotal.WithLabelValues("pump").Inc()
			break
		}
	}

	eng.Disconnect()
	// The engine normally delivers a channel-disconnected event during
	// Disconnect; make teardown unconditional in case it did not.
	c.bridge.Deactivate()
	c.connected.Store(false)
	obs.SessionConnected.Set(0)
	slog.Info("session ended")
}

func (c *Controller) notifyDisconnected() {
	if c.onDisconnected != nil {
		c.onDisconnected()
	}
}

// Disconnect stops the worker and blocks until it has exited, then releases
// the engine. Idempotent; calling without an active session is a no-op.
// After it returns no callback will fire for the old session.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	eng, done, stop := c.engine, c.done, c.stop
	c.mu.Unlock()
	if done == nil {
		return
	}

	stop.Store(true)
	eng.AbortConnect()
	<-done

	c.mu.Lock()
	if c.done == done {
		c.engine = nil
		c.done = nil
		c.stop = nil
	}
	c.mu.Unlock()
}

// SendPointerEvent forwards a pointer event to the engine's input sink.
func (c *Controller) SendPointerEvent(flags uint16, x, y uint16) error {
	c.mu.Lock()
	eng := c.engine
	c.mu.Unlock()
	if eng == nil {
		return ErrNoSession
	}
	return eng.SendPointerEvent(flags, x, y)
}

// SendKeyboardEvent forwards a keyboard event to the engine's input sink.
func (c *Controller) SendKeyboardEvent(flags uint16, code uint16) error {
	c.mu.Lock()
	eng := c.engine
	c.mu.Unlock()
	if eng == nil {
		return ErrNoSession
	}
	return eng.SendKeyboardEvent(flags, code)
}
