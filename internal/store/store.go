// Package store manages the vecindex collection: chunk metadata plus the
// HNSW graph backing it, wrapped for concurrent use. The graph itself is
// entirely in-memory; persistence is a deliberate non-goal (see
// SPEC_FULL.md §B.6 and DESIGN.md) so Close persists nothing and only
// releases the embedder.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arnavk/vecindex/internal/corpus"
	"github.com/arnavk/vecindex/internal/hnsw"
	"github.com/arnavk/vecindex/internal/textvec"
)

// WindowMeta stores provenance for each indexed window.
type WindowMeta struct {
	Path        string
	LineNum     int
	StartByte   int64
	EndByte     int64
	WindowIndex int
	Text        string // preview (first 200 chars)
	Mtime       time.Time
}

// Stats holds summary information about the current collection.
type Stats struct {
	NumWindows  int
	NumFiles    int
	LastUpdated time.Time
}

// SearchResult is a single result returned from Search.
type SearchResult struct {
	Meta  WindowMeta
	Score float32
}

// Collection is the main in-memory state: an HNSW graph plus the metadata
// needed to turn a hit id back into a readable source location.
type Collection struct {
	mu               sync.RWMutex
	graph            *hnsw.Graph
	windows          map[uint64]WindowMeta // keyed by HNSW vector id
	nextID           uint64
	fileCache        map[string]time.Time // path -> mtime of last indexed version
	embedder         *textvec.Embedder
	maxFileSizeBytes int64
	lastUpdated      time.Time
}

// Open creates a Collection backed by a fresh HNSW graph. modelDir is the
// path to the BGE-small model directory. ortLibPath is the path to
// onnxruntime.so; pass "" to use the system default. numThreads controls
// ONNX intra-op parallelism; 0 = auto. maxFileKB skips files larger than
// this limit.
func Open(modelDir, ortLibPath string, numThreads, maxFileKB int) (*Collection, error) {
	e, err := textvec.New(modelDir, ortLibPath, numThreads)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	g, err := hnsw.New(hnsw.DefaultConfig())
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("graph: %w", err)
	}

	return &Collection{
		graph:            g,
		windows:          make(map[uint64]WindowMeta),
		fileCache:        make(map[string]time.Time),
		embedder:         e,
		maxFileSizeBytes: int64(maxFileKB) * 1024,
		nextID:           1,
	}, nil
}

// Close releases the embedder. It does not persist anything: the
// collection lives only as long as the process that built it.
func (c *Collection) Close() error {
	c.embedder.Close()
	return nil
}

// AddFile windows, embeds, and indexes all windows from a single file. If
// the file's mtime matches the cached value it is skipped (already up to
// date). ctx is checked between embedding batches: cancelling it stops
// mid-file.
func (c *Collection) AddFile(ctx context.Context, path string) (skipped bool, err error) {
	if !corpus.IsSupportedFile(path) {
		return false, nil
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		fmt.Fprintf(os.Stderr, "skip %s: %v\n", path, statErr)
		return false, nil
	}

	if info.Size() > c.maxFileSizeBytes {
		fmt.Fprintf(os.Stderr, "skip %s: file too large (%d KB > %d KB limit)\n",
			path, info.Size()/1024, c.maxFileSizeBytes/1024)
		return false, nil
	}

	mtime := info.ModTime()

	c.mu.RLock()
	cachedMtime, inCache := c.fileCache[path]
	c.mu.RUnlock()
	if inCache && cachedMtime.Equal(mtime) {
		return true, nil
	}

	windows, err := corpus.WindowFile(path, corpus.DefaultOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "skip %s: window error: %v\n", path, err)
		return false, nil
	}
	if len(windows) == 0 {
		return false, nil
	}

	base := filepath.Base(path)
	nWindows := len(windows)
	verbose := nWindows > 4

	c.mu.Lock()
	ids := make([]uint64, nWindows)
	for i := range windows {
		ids[i] = c.nextID
		c.nextID++
	}
	c.mu.Unlock()

	const batchSize = 4
	vecs := make([]hnsw.Vector, 0, nWindows)
	for start := 0; start < nWindows; start += batchSize {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		end := start + batchSize
		if end > nWindows {
			end = nWindows
		}
		texts := make([]string, end-start)
		for i, w := range windows[start:end] {
			texts[i] = w.Text
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "\r    embedding window %d-%d / %d  %s ",
				start+1, end, nWindows, base)
		}
		batch, embedErr := c.embedder.EmbedDocuments(texts, ids[start:end])
		if embedErr != nil {
			if verbose {
				fmt.Fprintln(os.Stderr, "")
			}
			fmt.Fprintf(os.Stderr, "skip %s: embed error: %v\n", path, embedErr)
			return false, nil
		}
		vecs = append(vecs, batch...)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "\r    %-60s\r", "")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, vec := range vecs {
		preview := windows[i].Text
		if len(preview) > 200 {
			preview = preview[:197] + "..."
		}
		if err := c.graph.Insert(vec); err != nil {
			// id collision is a programming error here (ids are
			// monotonic per collection), not caller-supplied data.
			return false, fmt.Errorf("insert window %d: %w", vec.ID(), err)
		}
		c.windows[vec.ID()] = WindowMeta{
			Path:        path,
			LineNum:     windows[i].LineNum,
			StartByte:   windows[i].StartByte,
			EndByte:     windows[i].EndByte,
			WindowIndex: windows[i].Index,
			Text:        preview,
			Mtime:       mtime,
		}
	}

	c.fileCache[path] = mtime
	c.lastUpdated = time.Now()
	return false, nil
}

// Search embeds query with the BGE instruction prefix and returns the
// top-k most similar windows. It performs cross-window deduplication: it
// will not return two windows from the same file.
func (c *Collection) Search(query string, k int) ([]SearchResult, error) {
	queryVec, err := c.embedder.EmbedQuery(query, 0)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	// Fetch more hits than k to allow filtering out duplicates from the
	// same file.
	fetchK := k * 5
	if fetchK > len(c.windows) {
		fetchK = len(c.windows)
	}
	if fetchK == 0 {
		return nil, nil
	}

	req, err := hnsw.NewSearchRequest(queryVec, fetchK, 0)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	hits := c.graph.Search(req)

	queryWords := strings.Fields(strings.ToLower(query))

	type scoredHit struct {
		meta WindowMeta
		// score is a similarity-like measure: larger is better. The graph
		// reports distance (smaller is better), so we invert it before
		// blending in the keyword boost.
		score float32
	}
	var reranked []scoredHit

	for _, h := range hits {
		meta, ok := c.windows[h.ID]
		if !ok {
			continue
		}
		score := -h.Distance

		f, err := os.Open(meta.Path)
		if err == nil {
			buf := make([]byte, meta.EndByte-meta.StartByte)
			if _, err := f.ReadAt(buf, meta.StartByte); err == nil {
				lowerText := strings.ToLower(string(buf))
				var matches int
				for _, w := range queryWords {
					if len(w) > 2 && strings.Contains(lowerText, w) {
						matches++
					}
				}
				score += float32(matches) * 0.05
			}
			f.Close()
		}

		reranked = append(reranked, scoredHit{meta: meta, score: score})
	}

	sort.Slice(reranked, func(i, j int) bool {
		return reranked[i].score > reranked[j].score
	})

	results := make([]SearchResult, 0, k)
	seen := make(map[string]bool)

	for _, h := range reranked {
		if len(results) >= k {
			break
		}
		if seen[h.meta.Path] {
			continue
		}
		seen[h.meta.Path] = true

		results = append(results, SearchResult{Meta: h.meta, Score: h.score})
	}
	return results, nil
}

// Stats returns summary statistics about the collection.
func (c *Collection) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fileSet := make(map[string]struct{})
	for _, w := range c.windows {
		fileSet[w.Path] = struct{}{}
	}

	return Stats{
		NumWindows:  len(c.windows),
		NumFiles:    len(fileSet),
		LastUpdated: c.lastUpdated,
	}
}

// RebuildFromDir reindexes everything in rootDir from scratch.
func (c *Collection) RebuildFromDir(ctx context.Context, rootDir string) error {
	g, err := hnsw.New(hnsw.DefaultConfig())
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.graph = g
	c.windows = make(map[uint64]WindowMeta)
	c.fileCache = make(map[string]time.Time)
	c.nextID = 1
	c.mu.Unlock()

	return c.IndexDirWithProgress(ctx, rootDir, nil)
}

// ProgressFunc is called after each file is processed during indexing.
// done and total are file counts; skipped=true means mtime cache hit (no
// re-embed).
type ProgressFunc func(done, total int, path string, skipped bool)

// IndexDir walks rootDir and indexes all supported files.
func (c *Collection) IndexDir(ctx context.Context, rootDir string) error {
	return c.IndexDirWithProgress(ctx, rootDir, nil)
}

// IndexDirWithProgress walks rootDir, indexes all supported files, and
// calls progress after each file (may be nil). ctx is checked between each
// file and, inside AddFile, between embedding batches: cancelling it stops
// indexing mid-file, and that file is left unindexed.
func (c *Collection) IndexDirWithProgress(ctx context.Context, rootDir string, progress ProgressFunc) error {
	var paths []string
	err := walkDir(rootDir, func(path string) error {
		if corpus.IsSupportedFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	total := len(paths)
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		skipped, err := c.AddFile(ctx, path)
		if err != nil {
			return err
		}
		if progress != nil {
			progress(i+1, total, path, skipped)
		}
	}
	return nil
}

// Size returns the number of windows currently indexed.
func (c *Collection) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph.Size()
}

// RecallAtK samples up to sampleSize indexed windows as queries and reports
// the fraction of each query's brute-force top-k neighbours that the HNSW
// search also returns, averaged over the sample. It is a diagnostic for
// the bench command, not something the index needs at query time.
func (c *Collection) RecallAtK(k, sampleSize int) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.windows) == 0 {
		return 0, fmt.Errorf("store: RecallAtK: collection is empty")
	}

	ids := make([]uint64, 0, len(c.windows))
	for id := range c.windows {
		ids = append(ids, id)
	}
	if sampleSize > 0 && sampleSize < len(ids) {
		ids = ids[:sampleSize]
	}

	all := make([]hnsw.Vector, 0, len(c.windows))
	for id := range c.windows {
		if v, ok := c.graph.VectorFor(id); ok {
			all = append(all, v)
		}
	}

	var totalRecall float64
	for _, qID := range ids {
		qv, ok := c.graph.VectorFor(qID)
		if !ok {
			continue
		}

		type scored struct {
			id uint64
			d  float32
		}
		bruteForce := make([]scored, 0, len(all))
		for _, v := range all {
			d, err := qv.Distance(v)
			if err != nil {
				return 0, err
			}
			bruteForce = append(bruteForce, scored{id: v.ID(), d: d})
		}
		sort.Slice(bruteForce, func(i, j int) bool { return bruteForce[i].d < bruteForce[j].d })
		truth := make(map[uint64]bool, k)
		for i := 0; i < k && i < len(bruteForce); i++ {
			truth[bruteForce[i].id] = true
		}

		req, err := hnsw.NewSearchRequest(qv, k, 0)
		if err != nil {
			return 0, err
		}
		hits := c.graph.Search(req)
		var matched int
		for _, h := range hits {
			if truth[h.ID] {
				matched++
			}
		}
		totalRecall += float64(matched) / float64(k)
	}

	return totalRecall / float64(len(ids)), nil
}

// walkDir walks rootDir recursively, calling fn for each file. Skips
// hidden directories.
func walkDir(rootDir string, fn func(string) error) error {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return fmt.Errorf("readdir %s: %w", rootDir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(rootDir, name)
		if entry.IsDir() {
			if err := walkDir(full, fn); err != nil {
				return err
			}
		} else {
			if err := fn(full); err != nil {
				return err
			}
		}
	}
	return nil
}
