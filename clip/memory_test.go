package clip

import (
	"testing"
	"time"
)

func TestMemoryBackend(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	if _, ok := b.Text(); ok {
		t.Fatal("fresh backend should have no text")
	}

	if err := b.SetText("hello"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	got, ok := b.Text()
	if !ok || got != "hello" {
		t.Fatalf("Text() = %q, %v; want %q, true", got, ok, "hello")
	}

	select {
	case <-b.Watch():
	case <-time.After(time.Second):
		t.Fatal("SetText did not fire a watch signal")
	}
}

func TestMemoryBackendEmptyString(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	// An explicitly set empty string still counts as having text.
	if err := b.SetText(""); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	if got, ok := b.Text(); !ok || got != "" {
		t.Fatalf("Text() = %q, %v; want empty string, true", got, ok)
	}
}
