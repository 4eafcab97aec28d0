package rdbridge_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.klb.dev/rdbridge"
	"go.klb.dev/rdbridge/clip"
	"go.klb.dev/rdbridge/cliprdr"
	"go.klb.dev/rdbridge/rdp"
)

// startClient connects a client to a fresh loopback server and waits for the
// session to come up.
func startClient(t *testing.T, onFrame rdbridge.FrameFunc) (*rdbridge.Client, *rdp.LoopbackServer, clip.Backend, *atomic.Int32) {
	t.Helper()
	srv := rdp.NewLoopbackServer()
	board := clip.NewMemory()
	var disconnects atomic.Int32

	c, err := rdbridge.New(srv.Factory(), onFrame, func() { disconnects.Add(1) },
		rdbridge.WithClipboard(board))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)

	if err := c.Connect(rdbridge.Config{Host: "loopback"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, c.Connected, "session to connect")
	return c, srv, board, &disconnects
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestSessionDeliversFrames(t *testing.T) {
	var frames atomic.Int32
	var width, height atomic.Int64
	c, _, _, _ := startClient(t, func(f rdbridge.Frame) {
		frames.Add(1)
		width.Store(int64(f.Width))
		height.Store(int64(f.Height))
	})
	defer c.Disconnect()

	waitFor(t, func() bool { return frames.Load() > 0 }, "first frame")
	if width.Load() != 1280 || height.Load() != 720 {
		t.Fatalf("frame size = %dx%d, want default 1280x720", width.Load(), height.Load())
	}
}

func TestServerClipboardPushedToLocal(t *testing.T) {
	c, srv, board, _ := startClient(t, nil)
	defer c.Disconnect()

	srv.SetClipboardText("A")
	waitFor(t, func() bool {
		text, ok := board.Text()
		return ok && text == "A"
	}, "server clipboard to reach local board")
}

func TestLocalClipboardPushedToServer(t *testing.T) {
	// The loopback engine delivers its first frame after the clipboard
	// handshake, so a frame means monitor-ready has been processed.
	var frames atomic.Int32
	c, srv, board, _ := startClient(t, func(rdbridge.Frame) { frames.Add(1) })
	defer c.Disconnect()
	waitFor(t, func() bool { return frames.Load() > 0 }, "clipboard handshake")

	if err := board.SetText("hi"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return srv.ClipboardText() == "hi" }, "local clipboard to reach server")
}

func TestLegacyTextRequest(t *testing.T) {
	c, srv, board, _ := startClient(t, nil)
	defer c.Disconnect()

	if err := board.SetText("hi"); err != nil {
		t.Fatal(err)
	}
	srv.RequestClientClipboard(cliprdr.FormatText)
	waitFor(t, func() bool { return srv.ClipboardText() == "hi" }, "legacy text exchange")
}

func TestInputReachesServer(t *testing.T) {
	c, srv, _, _ := startClient(t, nil)
	defer c.Disconnect()

	if err := c.SendPointerEvent(0x1000, 100, 200); err != nil {
		t.Fatalf("SendPointerEvent: %v", err)
	}
	if err := c.SendKeyboardEvent(0x4000, 0x1C); err != nil {
		t.Fatalf("SendKeyboardEvent: %v", err)
	}
	pe := srv.PointerEvents()
	ke := srv.KeyboardEvents()
	if len(pe) != 1 || pe[0] != (rdp.PointerEvent{Flags: 0x1000, X: 100, Y: 200}) {
		t.Fatalf("pointer events = %v", pe)
	}
	if len(ke) != 1 || ke[0] != (rdp.KeyboardEvent{Flags: 0x4000, Code: 0x1C}) {
		t.Fatalf("keyboard events = %v", ke)
	}
}

func TestDisconnectTearsDownOnce(t *testing.T) {
	c, _, _, disconnects := startClient(t, nil)

	c.Disconnect()
	c.Disconnect()
	if n := disconnects.Load(); n != 1 {
		t.Fatalf("disconnected callback fired %d times, want 1", n)
	}
	if err := c.SendPointerEvent(0, 0, 0); !errors.Is(err, rdbridge.ErrNoSession) {
		t.Fatalf("input after disconnect: %v, want ErrNoSession", err)
	}
}

func TestServerClosedSession(t *testing.T) {
	c, srv, _, disconnects := startClient(t, nil)

	srv.CloseSession()
	waitFor(t, func() bool { return disconnects.Load() == 1 }, "disconnected callback")
	// Reap and reconnect on the same client.
	c.Disconnect()
	if err := c.Connect(rdbridge.Config{Host: "loopback"}); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	waitFor(t, c.Connected, "reconnect")
	c.Disconnect()
	if n := disconnects.Load(); n != 2 {
		t.Fatalf("disconnected callback fired %d times over two sessions, want 2", n)
	}
}

func TestConnectFailureIsAsync(t *testing.T) {
	srv := rdp.NewLoopbackServer()
	srv.FailNextConnect(errors.New("refused"))
	var disconnects atomic.Int32

	c, err := rdbridge.New(srv.Factory(), nil, func() { disconnects.Add(1) },
		rdbridge.WithClipboard(clip.NewMemory()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if err := c.Connect(rdbridge.Config{Host: "loopback"}); err != nil {
		t.Fatalf("Connect surfaced a remote error: %v", err)
	}
	waitFor(t, func() bool { return disconnects.Load() == 1 }, "async failure notification")
	if c.Connected() {
		t.Fatal("connected after refused connect")
	}
}
