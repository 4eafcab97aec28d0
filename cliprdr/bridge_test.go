package cliprdr

import (
	"testing"
	"time"

	"go.klb.dev/rdbridge/clip"
)

// fakeChannel records every client-to-server message.
type fakeChannel struct {
	handler Handler

	caps          []uint32
	formatLists   [][]Format
	listResponses []bool
	dataRequests  []uint32
	dataResponses []dataResponse
}

type dataResponse struct {
	ok   bool
	data []byte
}

func (c *fakeChannel) SetHandler(h Handler)                  { c.handler = h }
func (c *fakeChannel) SendCapabilities(flags uint32) error   { c.caps = append(c.caps, flags); return nil }
func (c *fakeChannel) SendFormatList(f []Format) error       { c.formatLists = append(c.formatLists, f); return nil }
func (c *fakeChannel) SendFormatListResponse(ok bool) error  { c.listResponses = append(c.listResponses, ok); return nil }
func (c *fakeChannel) SendFormatDataRequest(id uint32) error { c.dataRequests = append(c.dataRequests, id); return nil }
func (c *fakeChannel) SendFormatDataResponse(ok bool, data []byte) error {
	c.dataResponses = append(c.dataResponses, dataResponse{ok: ok, data: append([]byte(nil), data...)})
	return nil
}

// newActiveBridge returns a bridge attached to a fake channel, past the
// monitor-ready handshake.
func newActiveBridge(t *testing.T, board clip.Backend) (*Bridge, *fakeChannel) {
	t.Helper()
	b := New(board)
	ch := &fakeChannel{}
	b.Activate(ch)
	t.Cleanup(b.Deactivate)
	if err := b.MonitorReady(); err != nil {
		t.Fatalf("MonitorReady: %v", err)
	}
	return b, ch
}

func TestMonitorReadyHandshake(t *testing.T) {
	board := clip.NewMemory()
	defer board.Close()
	b := New(board)
	ch := &fakeChannel{}

	b.Activate(ch)
	defer b.Deactivate()
	if b.Synced() {
		t.Fatal("bridge synced before monitor-ready")
	}
	if len(ch.caps) != 0 || len(ch.formatLists) != 0 {
		t.Fatal("bridge sent messages before monitor-ready")
	}

	if err := b.MonitorReady(); err != nil {
		t.Fatalf("MonitorReady: %v", err)
	}
	if !b.Synced() {
		t.Fatal("bridge not synced after monitor-ready")
	}
	if len(ch.caps) != 1 || ch.caps[0] != CapUseLongFormatNames {
		t.Fatalf("capabilities = %v, want [%d]", ch.caps, CapUseLongFormatNames)
	}
	if len(ch.formatLists) != 1 {
		t.Fatalf("format lists sent = %d, want 1", len(ch.formatLists))
	}
	want := []Format{{ID: FormatUnicodeText}, {ID: FormatText}}
	got := ch.formatLists[0]
	if len(got) != len(want) || got[0].ID != want[0].ID || got[1].ID != want[1].ID {
		t.Fatalf("format list = %v, want %v", got, want)
	}
}

func TestServerFormatListSelection(t *testing.T) {
	tests := []struct {
		name    string
		formats []Format
		want    []uint32 // expected data requests
	}{
		{"unicode only", []Format{{ID: FormatUnicodeText}}, []uint32{FormatUnicodeText}},
		{"legacy only", []Format{{ID: FormatText}}, []uint32{FormatText}},
		{"both prefers unicode", []Format{{ID: FormatText}, {ID: FormatUnicodeText}}, []uint32{FormatUnicodeText}},
		{"both, unicode first", []Format{{ID: FormatUnicodeText}, {ID: FormatText}}, []uint32{FormatUnicodeText}},
		{"neither", []Format{{ID: 42, Name: "PNG"}, {ID: 3}}, nil},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board := clip.NewMemory()
			defer board.Close()
			b, ch := newActiveBridge(t, board)

			if err := b.ServerFormatList(tt.formats); err != nil {
				t.Fatalf("ServerFormatList: %v", err)
			}
			if len(ch.listResponses) != 1 || !ch.listResponses[0] {
				t.Fatalf("list responses = %v, want one success", ch.listResponses)
			}
			if len(ch.dataRequests) != len(tt.want) {
				t.Fatalf("data requests = %v, want %v", ch.dataRequests, tt.want)
			}
			for i := range tt.want {
				if ch.dataRequests[i] != tt.want[i] {
					t.Fatalf("data requests = %v, want %v", ch.dataRequests, tt.want)
				}
			}
		})
	}
}

func TestServerFormatDataRequest(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		hasText  bool
		format   uint32
		wantOK   bool
		wantData []byte
	}{
		{"unicode", "hi", true, FormatUnicodeText, true, []byte{0x68, 0x00, 0x69, 0x00, 0x00, 0x00}},
		{"legacy", "hi", true, FormatText, true, []byte{'h', 'i', 0x00}},
		{"no local text", "", false, FormatUnicodeText, false, nil},
		{"unsupported format", "hi", true, 42, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board := clip.NewMemory()
			defer board.Close()
			if tt.hasText {
				if err := board.SetText(tt.text); err != nil {
					t.Fatal(err)
				}
			}
			b, ch := newActiveBridge(t, board)

			if err := b.ServerFormatDataRequest(tt.format); err != nil {
				t.Fatalf("ServerFormatDataRequest: %v", err)
			}
			if len(ch.dataResponses) != 1 {
				t.Fatalf("data responses = %d, want 1", len(ch.dataResponses))
			}
			resp := ch.dataResponses[0]
			if resp.ok != tt.wantOK {
				t.Fatalf("response ok = %v, want %v", resp.ok, tt.wantOK)
			}
			if !tt.wantOK && len(resp.data) != 0 {
				t.Fatalf("failure response carries payload % X", resp.data)
			}
			if tt.wantOK {
				if string(resp.data) != string(tt.wantData) {
					t.Fatalf("payload = % X, want % X", resp.data, tt.wantData)
				}
			}
		})
	}
}

func TestServerFormatDataResponse(t *testing.T) {
	tests := []struct {
		name     string
		ok       bool
		data     []byte
		wantText string
		wantSet  bool
	}{
		{"success writes clipboard", true, []byte{0x41, 0x00, 0x00, 0x00}, "A", true},
		{"failure ignored", false, []byte{0x41, 0x00}, "", false},
		{"empty ignored", true, nil, "", false},
		{"terminator only ignored", true, []byte{0x00, 0x00}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board := clip.NewMemory()
			defer board.Close()
			b, _ := newActiveBridge(t, board)

			if err := b.ServerFormatDataResponse(tt.ok, tt.data); err != nil {
				t.Fatalf("ServerFormatDataResponse: %v", err)
			}
			got, ok := board.Text()
			if ok != tt.wantSet {
				t.Fatalf("clipboard set = %v, want %v", ok, tt.wantSet)
			}
			if tt.wantSet && got != tt.wantText {
				t.Fatalf("clipboard = %q, want %q", got, tt.wantText)
			}
		})
	}
}

func TestLocalChangeAdvertisesWhenSynced(t *testing.T) {
	board := clip.NewMemory()
	defer board.Close()
	b, ch := newActiveBridge(t, board)

	if err := board.SetText("copied locally"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(ch.formatLists) == 2 // handshake list + change list
	}, "format list after local change")
}

func TestLocalChangeIgnoredBeforeMonitorReady(t *testing.T) {
	board := clip.NewMemory()
	defer board.Close()
	b := New(board)
	ch := &fakeChannel{}
	b.Activate(ch)
	defer b.Deactivate()

	if err := board.SetText("early copy"); err != nil {
		t.Fatal(err)
	}
	// Give the watch goroutine a chance to (wrongly) react.
	time.Sleep(50 * time.Millisecond)
	b.mu.Lock()
	sent := len(ch.formatLists)
	b.mu.Unlock()
	if sent != 0 {
		t.Fatalf("format lists sent while not synced = %d, want 0", sent)
	}
}

func TestDeactivateStopsSync(t *testing.T) {
	board := clip.NewMemory()
	defer board.Close()
	b, ch := newActiveBridge(t, board)

	b.Deactivate()
	if b.Synced() {
		t.Fatal("bridge still synced after deactivate")
	}
	// Server messages after disconnect are ignored.
	if err := b.ServerFormatList([]Format{{ID: FormatUnicodeText}}); err != nil {
		t.Fatalf("ServerFormatList after deactivate: %v", err)
	}
	if len(ch.listResponses) != 0 {
		t.Fatal("bridge replied on a disconnected channel")
	}

	// Deactivate is idempotent.
	b.Deactivate()
}

func TestHandlerMessagesIgnoredWhenInactive(t *testing.T) {
	board := clip.NewMemory()
	defer board.Close()
	b := New(board)

	if err := b.MonitorReady(); err != nil {
		t.Fatalf("MonitorReady: %v", err)
	}
	if b.Synced() {
		t.Fatal("inactive bridge became synced")
	}
	if err := b.ServerFormatDataRequest(FormatUnicodeText); err != nil {
		t.Fatalf("ServerFormatDataRequest: %v", err)
	}
	if err := b.ServerFormatDataResponse(true, []byte{0x41, 0x00, 0x00, 0x00}); err != nil {
		t.Fatalf("ServerFormatDataResponse: %v", err)
	}
	if _, ok := board.Text(); ok {
		t.Fatal("inactive bridge wrote the clipboard")
	}
}

func TestServerCapabilitiesStored(t *testing.T) {
	board := clip.NewMemory()
	defer board.Close()
	b, _ := newActiveBridge(t, board)

	b.ServerCapabilities(CapUseLongFormatNames | 0x10)
	if got := b.ServerCaps(); got != CapUseLongFormatNames|0x10 {
		t.Fatalf("ServerCaps() = %#x, want %#x", got, CapUseLongFormatNames|0x10)
	}
}

// waitFor polls cond until it holds or the deadline passes.
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
