// Package corpus splits text documents into overlapping windows suitable
// for embedding into an hnsw index. WindowFile reads the whole file into
// memory before splitting it.
package corpus

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SupportedExtensions is the set of file extensions vecindex will index.
var SupportedExtensions = map[string]bool{
	".md": true, ".txt": true, ".go": true, ".py": true,
	".js": true, ".ts": true, ".rs": true, ".c": true,
	".cpp": true, ".h": true, ".json": true, ".yaml": true,
	".yml": true, ".toml": true, ".kdl": true, ".conf": true,
}

// Window is a slice of a source document.
type Window struct {
	Path      string
	Text      string
	LineNum   int // 1-indexed line number of the start of the window
	StartByte int64
	EndByte   int64
	Index     int // window index within the document
}

// Options controls windowing behaviour.
type Options struct {
	// MaxBytes is the maximum size of a single window.
	// BGE-small supports 512 tokens (~2000 bytes), but 1200 bytes is safer
	// and preserves strong semantic density.
	MaxBytes int
	// OverlapBytes is how many bytes of the previous window to include in
	// the next.
	OverlapBytes int
}

// DefaultOptions returns the recommended windowing parameters for BGE-small.
func DefaultOptions() Options {
	return Options{
		MaxBytes:     1200, // ~250-300 tokens
		OverlapBytes: 250,  // ~50-60 tokens overlap
	}
}

// IsSupportedFile returns true if the file extension is supported and the
// file does not appear to be binary (checked via a short header sniff).
func IsSupportedFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !SupportedExtensions[ext] {
		return false
	}
	return !isBinary(path)
}

// isBinary sniffs the first 512 bytes to detect binary content.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return true
	}
	buf = buf[:n]

	return bytes.IndexByte(buf, 0) != -1
}

// WindowFile reads the file at path and returns overlapping semantic
// windows. It splits on \n\n, \n, or space to keep paragraphs and code
// blocks intact.
func WindowFile(path string, opts Options) ([]Window, error) {
	if opts.MaxBytes <= 0 {
		opts = DefaultOptions()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return windowBytes(data, path, opts)
}

// WindowText splits raw text into overlapping windows, for callers that
// already have content in memory (e.g. piped stdin) rather than a file on
// disk. path is carried through purely as provenance in the returned
// Windows.
func WindowText(text, path string, opts Options) ([]Window, error) {
	if opts.MaxBytes <= 0 {
		opts = DefaultOptions()
	}
	return windowBytes([]byte(text), path, opts)
}

// windowBytes performs semantic text splitting.
func windowBytes(data []byte, path string, opts Options) ([]Window, error) {
	text := string(data)
	if len(strings.TrimSpace(text)) == 0 {
		return nil, nil
	}

	var windows []Window
	var idx int
	start := 0

	for start < len(text) {
		end := start + opts.MaxBytes
		if end >= len(text) {
			leadingSpaces := len(text[start:]) - len(strings.TrimLeft(text[start:], " \t\n\r"))
			windows = append(windows, Window{
				Path:      path,
				Text:      strings.TrimSpace(text[start:]),
				LineNum:   1 + bytes.Count(data[:start+leadingSpaces], []byte{'\n'}),
				StartByte: int64(start),
				EndByte:   int64(len(text)),
				Index:     idx,
			})
			break
		}

		// Find best semantic split point looking backwards from 'end'.
		var bestSplit int

		bestSplit = strings.LastIndex(text[start:end], "\n\n")
		if bestSplit != -1 {
			bestSplit += start + 2
		} else {
			bestSplit = strings.LastIndex(text[start:end], "\n")
			if bestSplit != -1 {
				bestSplit += start + 1
			} else {
				bestSplit = strings.LastIndexByte(text[start:end], ' ')
				if bestSplit != -1 {
					bestSplit += start + 1
				} else {
					bestSplit = end
				}
			}
		}

		leadingSpaces := len(text[start:bestSplit]) - len(strings.TrimLeft(text[start:bestSplit], " \t\n\r"))
		windows = append(windows, Window{
			Path:      path,
			Text:      strings.TrimSpace(text[start:bestSplit]),
			LineNum:   1 + bytes.Count(data[:start+leadingSpaces], []byte{'\n'}),
			StartByte: int64(start),
			EndByte:   int64(bestSplit),
			Index:     idx,
		})
		idx++

		overlapStart := bestSplit - opts.OverlapBytes
		if overlapStart <= start {
			overlapStart = start + 1
		} else {
			nextNL := strings.IndexByte(text[overlapStart:bestSplit], '\n')
			if nextNL != -1 {
				overlapStart += nextNL + 1
			} else {
				nextSp := strings.IndexByte(text[overlapStart:bestSplit], ' ')
				if nextSp != -1 {
					overlapStart += nextSp + 1
				}
			}
		}

		start = overlapStart
	}

	var filtered []Window
	for _, w := range windows {
		if w.Text != "" {
			filtered = append(filtered, w)
		}
	}

	return filtered, nil
}
