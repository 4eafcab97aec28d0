// Package clip provides a unified interface to the system clipboard across
// platforms. Build constraints select the appropriate implementation:
//
//	clip_darwin.go   — macOS via golang.design/x/clipboard + cgo changeCount
//	clip_windows.go  — Windows via golang.design/x/clipboard + AddClipboardFormatListener
//	clip_linux.go    — Linux via golang.design/x/clipboard, polling only
//	clip_other.go    — headless / container stub
//
// The clipboard channel only exchanges text, so the Backend interface is
// text-only.
package clip

// Backend is the interface that all platform clipboard implementations satisfy.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Text returns the current clipboard text. ok is false if the clipboard
	// is empty or holds no text representation.
	Text() (text string, ok bool)

	// SetText replaces the clipboard contents with the given text.
	SetText(text string) error

	// Watch returns a channel that receives a signal whenever the clipboard
	// changes, including changes made through SetText. The channel is never
	// closed. On platforms without native change notification this is
	// implemented via polling. The caller should call Text() when it
	// receives from the channel.
	Watch() <-chan struct{}

	// Close releases any resources held by the backend.
	Close()
}
