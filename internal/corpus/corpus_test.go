package corpus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWindowSmallText(t *testing.T) {
	text := strings.Repeat("hello world ", 50) // ~600 bytes
	windows, err := windowBytes([]byte(text), "test.txt", DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Small text (600 bytes < 1200 window) -> exactly one window.
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
}

func TestWindowLargeText(t *testing.T) {
	text := strings.Repeat("word ", 600)
	opts := Options{MaxBytes: 1000, OverlapBytes: 200}
	windows, err := windowBytes([]byte(text), "test.txt", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) < 3 {
		t.Fatalf("expected at least 3 windows for 3000-byte text, got %d", len(windows))
	}

	for i, w := range windows {
		if len(w.Text) > opts.MaxBytes {
			t.Errorf("window %d length %d exceeds MaxBytes %d", i, len(w.Text), opts.MaxBytes)
		}
	}
}

func TestIsSupportedFile(t *testing.T) {
	dir := t.TempDir()
	tf := filepath.Join(dir, "test.go")
	if err := os.WriteFile(tf, []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !IsSupportedFile(tf) {
		t.Error("expected .go file to be supported")
	}

	bf := filepath.Join(dir, "test.bin")
	if err := os.WriteFile(bf, []byte{0x00, 0x01, 0x02}, 0o644); err != nil {
		t.Fatal(err)
	}
	if IsSupportedFile(bf) {
		t.Error("expected .bin file to be unsupported")
	}

	uf := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(uf, []byte{0x89, 0x50, 0x4E, 0x47}, 0o644); err != nil {
		t.Fatal(err)
	}
	if IsSupportedFile(uf) {
		t.Error("expected .png file to be unsupported")
	}
}

func TestWindowFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	content := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 60)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	windows, err := WindowFile(path, DefaultOptions())
	if err != nil {
		t.Fatalf("WindowFile error: %v", err)
	}
	if len(windows) == 0 {
		t.Fatal("expected at least one window")
	}
	for i, w := range windows {
		if w.Path != path {
			t.Errorf("window %d: wrong path", i)
		}
		if strings.TrimSpace(w.Text) == "" {
			t.Errorf("window %d: empty text", i)
		}
	}
}

func TestWindowText(t *testing.T) {
	content := strings.Repeat("alpha beta gamma ", 80)
	windows, err := WindowText(content, "stdin", DefaultOptions())
	if err != nil {
		t.Fatalf("WindowText error: %v", err)
	}
	if len(windows) == 0 {
		t.Fatal("expected at least one window")
	}
	if windows[0].Path != "stdin" {
		t.Errorf("expected path %q, got %q", "stdin", windows[0].Path)
	}
}
