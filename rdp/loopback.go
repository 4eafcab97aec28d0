package rdp

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.klb.dev/rdbridge/cliprdr"
	"go.klb.dev/rdbridge/internal/transcode"
)

// LoopbackServer is an in-process stand-in for a remote-desktop server. It
// hands out Engines that never touch the network: protocol events are
// functions queued onto the engine and executed by PumpEvents, so callback
// ordering matches a real engine (everything fires on the worker goroutine).
//
// The server side is scriptable: tests and the selftest command set its
// clipboard text, request the client's clipboard, and force disconnects.
type LoopbackServer struct {
	mu          sync.Mutex
	text        string // the "server clipboard"
	eng         *loopbackEngine
	failConnect error

	pointerEvents  []PointerEvent
	keyboardEvents []KeyboardEvent
}

// PointerEvent is a recorded client pointer event.
type PointerEvent struct {
	Flags uint16
	X, Y  uint16
}

// KeyboardEvent is a recorded client keyboard event.
type KeyboardEvent struct {
	Flags uint16
	Code  uint16
}

// NewLoopbackServer returns a server with an empty clipboard.
func NewLoopbackServer() *LoopbackServer {
	return &LoopbackServer{}
}

// Factory returns an engine Factory bound to this server. Only one live
// engine per server is supported.
func (s *LoopbackServer) Factory() Factory {
	return func(settings Settings, handlers Handlers) (Engine, error) {
		eng := &loopbackEngine{
			srv:      s,
			settings: settings,
			handlers: handlers,
			events:   make(chan func(), 64),
			abort:    make(chan struct{}),
		}
		eng.channel = &loopbackChannel{eng: eng}
		s.mu.Lock()
		s.eng = eng
		s.mu.Unlock()
		return eng, nil
	}
}

// FailNextConnect makes the next Connect return err.
func (s *LoopbackServer) FailNextConnect(err error) {
	s.mu.Lock()
	s.failConnect = err
	s.mu.Unlock()
}

// ClipboardText returns the server-side clipboard contents.
func (s *LoopbackServer) ClipboardText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// SetClipboardText simulates a copy on the remote desktop: the server
// clipboard changes and the server advertises its format list to the client.
func (s *LoopbackServer) SetClipboardText(text string) {
	s.mu.Lock()
	s.text = text
	eng := s.eng
	s.mu.Unlock()
	if eng == nil {
		return
	}
	eng.post(func() {
		if h := eng.channel.handler(); h != nil {
			_ = h.ServerFormatList([]cliprdr.Format{
				{ID: cliprdr.FormatUnicodeText},
				{ID: cliprdr.FormatText},
			})
		}
	})
}

// RequestClientClipboard makes the server ask the client for its clipboard
// data in the given format.
func (s *LoopbackServer) RequestClientClipboard(formatID uint32) {
	s.mu.Lock()
	eng := s.eng
	s.mu.Unlock()
	if eng == nil {
		return
	}
	eng.channel.setRequested(formatID)
	eng.post(func() {
		if h := eng.channel.handler(); h != nil {
			_ = h.ServerFormatDataRequest(formatID)
		}
	})
}

// CloseSession simulates the server ending the session.
func (s *LoopbackServer) CloseSession() {
	s.mu.Lock()
	eng := s.eng
	s.mu.Unlock()
	if eng != nil {
		eng.mu.Lock()
		eng.disconnect = true
		eng.mu.Unlock()
		eng.AbortConnect()
	}
}

// PointerEvents returns the pointer events received so far.
func (s *LoopbackServer) PointerEvents() []PointerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PointerEvent(nil), s.pointerEvents...)
}

// KeyboardEvents returns the keyboard events received so far.
func (s *LoopbackServer) KeyboardEvents() []KeyboardEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]KeyboardEvent(nil), s.keyboardEvents...)
}

func (s *LoopbackServer) clearEngine(eng *loopbackEngine) {
	s.mu.Lock()
	if s.eng == eng {
		s.eng = nil
	}
	s.mu.Unlock()
}

type loopbackEngine struct {
	srv      *LoopbackServer
	settings Settings
	handlers Handlers
	channel  *loopbackChannel

	events    chan func()
	abort     chan struct{}
	abortOnce sync.Once

	mu         sync.Mutex
	connected  bool
	disconnect bool
	width      uint32
	height     uint32
}

// post queues a protocol event for the next PumpEvents call. Drops when the
// queue is full rather than blocking a scripting goroutine.
func (e *loopbackEngine) post(f func()) {
	select {
	case e.events <- f:
	default:
		slog.Warn("loopback event queue full, dropping")
	}
}

func (e *loopbackEngine) Connect() error {
	e.srv.mu.Lock()
	failErr := e.srv.failConnect
	e.srv.failConnect = nil
	e.srv.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	select {
	case <-e.abort:
		return errors.New("connect aborted")
	default:
	}

	if e.handlers.Authenticate != nil {
		if _, _, _, ok := e.handlers.Authenticate(); !ok {
			return errors.New("authentication refused")
		}
	}
	if e.handlers.VerifyCertificate != nil {
		cert := Certificate{
			Host:        e.settings.Host,
			Port:        e.settings.Port,
			CommonName:  "loopback",
			Subject:     "CN=loopback",
			Issuer:      "CN=loopback",
			Fingerprint: "00:00",
		}
		if !e.handlers.VerifyCertificate(cert) {
			return errors.New("certificate rejected")
		}
	}

	e.mu.Lock()
	e.connected = true
	e.width = e.settings.DesktopWidth
	e.height = e.settings.DesktopHeight
	e.mu.Unlock()

	// A real engine brings channels up and delivers the first paint after
	// the handshake; queue the same sequence.
	if e.settings.RedirectClipboard {
		e.post(func() {
			if e.handlers.ChannelConnected != nil {
				e.handlers.ChannelConnected(cliprdr.ChannelName, e.channel)
			}
		})
		e.post(func() {
			if h := e.channel.handler(); h != nil {
				h.ServerCapabilities(cliprdr.CapUseLongFormatNames)
				_ = h.MonitorReady()
			}
		})
	}
	e.post(e.emitFrame)
	return nil
}

func (e *loopbackEngine) emitFrame() {
	if e.handlers.FrameComplete == nil {
		return
	}
	e.mu.Lock()
	w, h := e.width, e.height
	e.mu.Unlock()
	stride := int(w) * 4
	e.handlers.FrameComplete(Frame{
		Pixels: make([]byte, stride*int(h)),
		Width:  w,
		Height: h,
		Stride: stride,
	})
}

func (e *loopbackEngine) Disconnect() {
	e.mu.Lock()
	wasConnected := e.connected
	e.connected = false
	e.mu.Unlock()
	if wasConnected && e.settings.RedirectClipboard && e.handlers.ChannelDisconnected != nil {
		e.handlers.ChannelDisconnected(cliprdr.ChannelName)
	}
	e.srv.clearEngine(e)
}

func (e *loopbackEngine) AbortConnect() {
	e.abortOnce.Do(func() { close(e.abort) })
}

func (e *loopbackEngine) PumpEvents() error {
	select {
	case f := <-e.events:
		f()
		return nil
	case <-e.abort:
		return nil
	}
}

func (e *loopbackEngine) ShouldDisconnect() bool {
	select {
	case <-e.abort:
		return true
	default:
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disconnect
}

func (e *loopbackEngine) ResizeDisplay(width, height uint32) error {
	e.mu.Lock()
	e.width, e.height = width, height
	e.mu.Unlock()
	return nil
}

func (e *loopbackEngine) SendPointerEvent(flags uint16, x, y uint16) error {
	e.mu.Lock()
	connected := e.connected
	e.mu.Unlock()
	if !connected {
		return fmt.Errorf("loopback: not connected")
	}
	e.srv.mu.Lock()
	e.srv.pointerEvents = append(e.srv.pointerEvents, PointerEvent{Flags: flags, X: x, Y: y})
	e.srv.mu.Unlock()
	return nil
}

func (e *loopbackEngine) SendKeyboardEvent(flags uint16, code uint16) error {
	e.mu.Lock()
	connected := e.connected
	e.mu.Unlock()
	if !connected {
		return fmt.Errorf("loopback: not connected")
	}
	e.srv.mu.Lock()
	e.srv.keyboardEvents = append(e.srv.keyboardEvents, KeyboardEvent{Flags: flags, Code: code})
	e.srv.mu.Unlock()
	return nil
}

// loopbackChannel is the clipboard channel as seen by the client. Client
// sends mutate the server state and queue the server's reaction as events,
// never calling back into the client synchronously.
type loopbackChannel struct {
	eng *loopbackEngine

	mu         sync.Mutex
	h          cliprdr.Handler
	clientCaps uint32
	reqFormat  uint32 // format of the server's outstanding data request
}

func (c *loopbackChannel) setRequested(formatID uint32) {
	c.mu.Lock()
	c.reqFormat = formatID
	c.mu.Unlock()
}

func (c *loopbackChannel) SetHandler(h cliprdr.Handler) {
	c.mu.Lock()
	c.h = h
	c.mu.Unlock()
}

func (c *loopbackChannel) handler() cliprdr.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.h
}

func (c *loopbackChannel) SendCapabilities(generalFlags uint32) error {
	c.mu.Lock()
	c.clientCaps = generalFlags
	c.mu.Unlock()
	return nil
}

// ClientCaps returns the capability flags the client sent.
func (c *loopbackChannel) ClientCaps() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientCaps
}

func (c *loopbackChannel) SendFormatList(formats []cliprdr.Format) error {
	// The server acknowledges and, like a paste-eager remote, immediately
	// requests the preferred text format.
	var want uint32
	for _, f := range formats {
		switch f.ID {
		case cliprdr.FormatUnicodeText:
			want = cliprdr.FormatUnicodeText
		case cliprdr.FormatText:
			if want == 0 {
				want = cliprdr.FormatText
			}
		}
	}
	c.eng.post(func() {
		if h := c.handler(); h != nil {
			h.ServerFormatListResponse(true)
		}
	})
	if want != 0 {
		c.setRequested(want)
		c.eng.post(func() {
			if h := c.handler(); h != nil {
				_ = h.ServerFormatDataRequest(want)
			}
		})
	}
	return nil
}

func (c *loopbackChannel) SendFormatListResponse(ok bool) error { return nil }

func (c *loopbackChannel) SendFormatDataRequest(formatID uint32) error {
	srv := c.eng.srv
	srv.mu.Lock()
	text := srv.text
	srv.mu.Unlock()

	ok := text != ""
	var payload []byte
	if ok {
		switch formatID {
		case cliprdr.FormatUnicodeText:
			payload = transcode.EncodeUTF16LE(text)
		case cliprdr.FormatText:
			payload = append([]byte(text), 0)
		default:
			ok = false
		}
	}
	c.eng.post(func() {
		if h := c.handler(); h != nil {
			_ = h.ServerFormatDataResponse(ok, payload)
		}
	})
	return nil
}

func (c *loopbackChannel) SendFormatDataResponse(ok bool, data []byte) error {
	if !ok {
		return nil
	}
	c.mu.Lock()
	format := c.reqFormat
	c.mu.Unlock()

	var text string
	switch format {
	case cliprdr.FormatText:
		if i := len(data); i > 0 && data[i-1] == 0 {
			data = data[:i-1]
		}
		text = string(data)
	default:
		text = transcode.DecodeUTF16LE(data)
	}
	srv := c.eng.srv
	srv.mu.Lock()
	srv.text = text
	srv.mu.Unlock()
	return nil
}
