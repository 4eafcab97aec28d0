package cliprdr

import (
	"log/slog"
	"sync"

	"go.klb.dev/rdbridge/clip"
	"go.klb.dev/rdbridge/internal/obs"
	"go.klb.dev/rdbridge/internal/transcode"
)

// state tracks where the bridge is in the channel handshake.
type state int

const (
	stateInactive state = iota // no channel
	stateCapabilityPending     // channel connected, awaiting monitor-ready
	stateNegotiating           // sending capabilities + initial format list
	stateSynced                // steady state, either side may initiate
)

// Bridge keeps the local clipboard and the remote session clipboard in sync
// over the clipboard virtual channel. It implements Handler for server
// messages (delivered on the session worker goroutine) and watches the local
// clipboard for changes (delivered on the backend's own goroutine); all state
// is guarded by a single mutex, held across sends so that Deactivate
// happens-before any access observes a live channel.
type Bridge struct {
	board clip.Backend

	mu         sync.Mutex
	state      state
	ch         Channel
	serverCaps uint32
	stopWatch  chan struct{}
}

// New creates a Bridge over the given local clipboard. The bridge stays
// inactive until Activate is called with a connected channel.
func New(board clip.Backend) *Bridge {
	return &Bridge{board: board}
}

// Activate attaches the bridge to a freshly connected clipboard channel and
// begins watching the local clipboard. Outbound synchronization stays
// disabled until the server sends monitor-ready.
func (b *Bridge) Activate(ch Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != stateInactive {
		slog.Warn("clipboard channel already active, ignoring connect")
		return
	}
	b.state = stateCapabilityPending
	b.ch = ch
	b.serverCaps = 0
	b.stopWatch = make(chan struct{})
	ch.SetHandler(b)
	go b.watch(b.stopWatch)
	slog.Info("clipboard channel connected", "board", b.board.Name())
}

// Deactivate detaches the bridge from the channel and stops the local watch.
// Idempotent; safe to call without a prior Activate.
func (b *Bridge) Deactivate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateInactive {
		return
	}
	close(b.stopWatch)
	b.stopWatch = nil
	b.ch.SetHandler(nil)
	b.ch = nil
	b.state = stateInactive
	slog.Info("clipboard channel disconnected")
}

// Synced reports whether the monitor-ready handshake has completed and
// outbound synchronization is enabled.
func (b *Bridge) Synced() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateSynced
}

// watch forwards local clipboard change notifications until stop is closed.
func (b *Bridge) watch(stop chan struct{}) {
	ch := b.board.Watch()
	for {
		select {
		case <-stop:
			return
		case <-ch:
			b.localChanged()
		}
	}
}

// localChanged re-advertises the client format list on every local clipboard
// change. There is deliberately no de-duplication against content the server
// already knows about: a server-originated write fires the same notification
// and costs one redundant round trip.
func (b *Bridge) localChanged() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != stateSynced {
		return
	}
	slog.Debug("local clipboard changed, advertising formats")
	if err := b.sendFormatListLocked(); err != nil {
		slog.Error("format list send failed", "err", err)
		obs.ErrorsTotal.WithLabelValues("clipboard_send").Inc()
	}
}

// localFormats is the unconditional two-entry advertisement; the bridge does
// not inspect the local clipboard when advertising, only when serving data.
func localFormats() []Format {
	return []Format{
		{ID: FormatUnicodeText},
		{ID: FormatText},
	}
}

func (b *Bridge) sendFormatListLocked() error {
	obs.ClipboardFormatLists.Inc()
	return b.ch.SendFormatList(localFormats())
}

// MonitorReady implements Handler. The server is ready: reply with our
// capability set, advertise the local formats, and enable outbound sync.
func (b *Bridge) MonitorReady() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateInactive {
		return nil
	}
	slog.Info("clipboard monitor ready")
	b.state = stateNegotiating
	if err := b.ch.SendCapabilities(CapUseLongFormatNames); err != nil {
		return err
	}
	if err := b.sendFormatListLocked(); err != nil {
		return err
	}
	b.state = stateSynced
	return nil
}

// ServerCapabilities implements Handler. The flags are recorded; nothing
// reacts to them beyond storage.
func (b *Bridge) ServerCapabilities(generalFlags uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.serverCaps = generalFlags
	slog.Debug("server clipboard capabilities", "flags", generalFlags)
}

// ServerCaps returns the last capability flags the server reported.
func (b *Bridge) ServerCaps() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.serverCaps
}

// ServerFormatList implements Handler: acknowledge the list, then request
// the preferred text format if one is offered. CF_UNICODETEXT is strictly
// preferred over CF_TEXT.
func (b *Bridge) ServerFormatList(formats []Format) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateInactive {
		return nil
	}
	slog.Debug("server format list", "formats", len(formats))

	var want uint32
	for _, f := range formats {
		switch f.ID {
		case FormatUnicodeText:
			want = FormatUnicodeText
		case FormatText:
			if want == 0 {
				want = FormatText
			}
		}
	}

	if err := b.ch.SendFormatListResponse(true); err != nil {
		return err
	}
	if want != 0 {
		slog.Debug("requesting clipboard data", "format", want)
		return b.ch.SendFormatDataRequest(want)
	}
	return nil
}

// ServerFormatListResponse implements Handler. Nothing to do.
func (b *Bridge) ServerFormatListResponse(ok bool) {
	if !ok {
		slog.Debug("server rejected format list")
	}
}

// ServerFormatDataRequest implements Handler: serve the current local
// clipboard text in the requested format, or fail the exchange. This is the
// only operation that reads the local clipboard.
func (b *Bridge) ServerFormatDataRequest(formatID uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateInactive {
		return nil
	}
	slog.Debug("server requesting clipboard data", "format", formatID)

	text, ok := b.board.Text()
	if !ok {
		return b.ch.SendFormatDataResponse(false, nil)
	}

	var payload []byte
	switch formatID {
	case FormatUnicodeText:
		payload = transcode.EncodeUTF16LE(text)
	case FormatText:
		payload = append([]byte(text), 0)
	default:
		return b.ch.SendFormatDataResponse(false, nil)
	}

	obs.ClipboardDataServed.Inc()
	return b.ch.SendFormatDataResponse(true, payload)
}

// ServerFormatDataResponse implements Handler: write a successful payload to
// the local clipboard. Failed or empty responses are silently ignored — the
// bridge does not distinguish "server has no data" from "server rejected the
// format".
func (b *Bridge) ServerFormatDataResponse(ok bool, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateInactive {
		return nil
	}
	if !ok || len(data) == 0 {
		return nil
	}

	text := transcode.DecodeUTF16LE(data)
	if text == "" {
		return nil
	}
	if err := b.board.SetText(text); err != nil {
		slog.Error("local clipboard write failed", "err", err)
		obs.ErrorsTotal.WithLabelValues("clipboard_write").Inc()
		return nil
	}
	obs.ClipboardDataReceived.Inc()
	slog.Debug("clipboard synced from server", "chars", len(text))
	return nil
}

// ServerLockClipboardData implements Handler. Delayed rendering is not used;
// acknowledged without action.
func (b *Bridge) ServerLockClipboardData(dataID uint32) {}

// ServerUnlockClipboardData implements Handler.
func (b *Bridge) ServerUnlockClipboardData(dataID uint32) {}
