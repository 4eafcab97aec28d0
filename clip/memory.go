package clip

import "sync"

// memoryBackend is a process-local clipboard used by tests and the selftest
// command. SetText fires a Watch signal, matching the platform backends
// where programmatic writes also trip the change listener.
type memoryBackend struct {
	mu      sync.Mutex
	text    string
	hasText bool
	watchCh chan struct{}
}

// NewMemory returns an empty in-memory clipboard backend.
func NewMemory() Backend {
	return &memoryBackend{watchCh: make(chan struct{}, 1)}
}

func (b *memoryBackend) Name() string { return "in-memory" }

func (b *memoryBackend) Text() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text, b.hasText
}

func (b *memoryBackend) SetText(text string) error {
	b.mu.Lock()
	b.text = text
	b.hasText = true
	b.mu.Unlock()
	select {
	case b.watchCh <- struct{}{}:
	default:
	}
	return nil
}

func (b *memoryBackend) Watch() <-chan struct{} { return b.watchCh }
func (b *memoryBackend) Close()                 {}
