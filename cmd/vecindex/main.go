package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/arnavk/vecindex/internal/store"
	"github.com/arnavk/vecindex/internal/textvec"
	"github.com/arnavk/vecindex/internal/tui"
	"github.com/arnavk/vecindex/internal/watch"
)

var (
	defaultModelDir = "./models"
	defaultOrtLib   = "./lib/onnxruntime.so"
	defaultThreads  = 0
	defaultMaxFile  = 512
)

func main() {
	root := &cobra.Command{
		Use:   "vecindex",
		Short: "Local semantic search over a directory of text",
		Long:  "vecindex — offline semantic search powered by BGE-small-en-v1.5 and an in-memory HNSW index.",
	}

	var cfg struct {
		ModelDir  string `toml:"model-dir"`
		OrtLib    string `toml:"ort-lib"`
		Threads   int    `toml:"threads"`
		MaxFileKB int    `toml:"max-file-kb"`
	}

	if b, err := os.ReadFile(".vecindex.toml"); err == nil {
		if err := toml.Unmarshal(b, &cfg); err == nil {
			if cfg.ModelDir != "" {
				defaultModelDir = cfg.ModelDir
			}
			if cfg.OrtLib != "" {
				defaultOrtLib = cfg.OrtLib
			}
			if cfg.Threads > 0 {
				defaultThreads = cfg.Threads
			}
			if cfg.MaxFileKB > 0 {
				defaultMaxFile = cfg.MaxFileKB
			}
		}
	}

	var modelDir string
	var ortLib string
	var numThreads int
	var maxFileKB int
	root.PersistentFlags().StringVar(&modelDir, "model-dir", defaultModelDir, "directory containing ONNX model files")
	root.PersistentFlags().StringVar(&ortLib, "ort-lib", defaultOrtLib, "path to onnxruntime.so (auto-detected if empty)")
	root.PersistentFlags().IntVar(&numThreads, "threads", defaultThreads, "ONNX intra-op thread count (0 = auto, usually NumCPU capped at 4)")
	root.PersistentFlags().IntVar(&maxFileKB, "max-file-kb", defaultMaxFile, "skip indexing files larger than this (in KB)")

	resolveOrtLib := func(flag string) string {
		if flag != "" {
			return flag
		}
		if exe, err := os.Executable(); err == nil {
			candidate := filepath.Join(filepath.Dir(exe), "lib", "onnxruntime.so")
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		if _, err := os.Stat(defaultOrtLib); err == nil {
			absPath, _ := filepath.Abs(defaultOrtLib)
			return absPath
		}
		return ""
	}

	// openCollection loads the model and builds an empty in-memory
	// collection, printing status so the user knows it isn't stuck (model
	// loading can take 1-4s on first run). The collection is never
	// persisted: each invocation starts from an empty index and indexes
	// whatever directories it's pointed at.
	openCollection := func(ortLibFlag string) (*store.Collection, error) {
		fmt.Fprint(os.Stderr, "Loading model… ")
		coll, err := store.Open(modelDir, resolveOrtLib(ortLibFlag), numThreads, maxFileKB)
		if err != nil {
			fmt.Fprintln(os.Stderr, "")
			return nil, err
		}
		fmt.Fprintln(os.Stderr, "ready.")
		return coll, nil
	}

	// indexDirs indexes directories using ctx for cancellation.
	// IMPORTANT: session.Run() is a blocking CGo call that Go cannot
	// preempt. We start a hard-exit goroutine so Ctrl+C always terminates
	// the process after a grace period. A "done" channel cancels the
	// goroutine on clean exit so the interrupt message never prints
	// spuriously.
	indexDirs := func(ctx context.Context, coll *store.Collection, dirs []string) error {
		done := make(chan struct{})
		defer close(done)

		go func() {
			select {
			case <-done:
				return
			case <-ctx.Done():
				fmt.Fprintln(os.Stderr, "\n[vecindex] stopping — waiting up to 1s for current embed to finish…")
				select {
				case <-done:
					return
				case <-time.After(time.Second):
					fmt.Fprintln(os.Stderr, "[vecindex] exiting.")
					os.Exit(130)
				}
			}
		}()

		prog := makeProgressPrinter()
		for _, dir := range dirs {
			fmt.Fprintf(os.Stderr, "Scanning %s…\n", dir)
			err := coll.IndexDirWithProgress(ctx, dir, prog)
			if err != nil {
				if isInterrupted(err) {
					fmt.Fprintln(os.Stderr, "\nInterrupted — keeping partial index in memory…")
					return nil
				}
				return err
			}
		}
		return nil
	}

	// ---- vecindex index <dir> ----------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "index <dir> [dir...]",
		Short: "Index all supported files in a directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			coll, err := openCollection(ortLib)
			if err != nil {
				return err
			}
			defer coll.Close()

			if err := indexDirs(ctx, coll, args); err != nil {
				return err
			}
			s := coll.Stats()
			fmt.Fprintf(os.Stderr, "Done. %d windows from %d files indexed.\n", s.NumWindows, s.NumFiles)
			return nil
		},
	})

	// ---- vecindex search <query> --------------------------------------------
	var jsonExport bool
	var searchDir string
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Index a directory (if given) and run a one-shot semantic search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			coll, err := openCollection(ortLib)
			if err != nil {
				return err
			}
			defer coll.Close()

			if searchDir != "" {
				ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				if err := indexDirs(ctx, coll, []string{searchDir}); err != nil {
					return err
				}
			}

			results, err := coll.Search(query, 10)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				if jsonExport {
					fmt.Println("[]")
				} else {
					fmt.Println("no results")
				}
				return nil
			}
			if jsonExport {
				j, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal json: %w", err)
				}
				fmt.Println(string(j))
				return nil
			}
			for i, r := range results {
				fmt.Printf("%2d  %.3f  %s:%d\n    %s\n\n",
					i+1, r.Score, r.Meta.Path, r.Meta.LineNum, r.Meta.Text)
			}
			return nil
		},
	}
	searchCmd.Flags().BoolVar(&jsonExport, "json", false, "output search results as JSON")
	searchCmd.Flags().StringVar(&searchDir, "dir", "", "directory to index before searching")
	root.AddCommand(searchCmd)

	// ---- vecindex watch <dir> -----------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "watch <dir> [dir...]",
		Short: "Index a directory then watch it for changes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			coll, err := openCollection(ortLib)
			if err != nil {
				return err
			}
			defer coll.Close()

			if err := indexDirs(ctx, coll, args); err != nil {
				return err
			}
			s := coll.Stats()
			fmt.Fprintf(os.Stderr, "Done. %d windows indexed. Watching for changes… (Ctrl+C to stop)\n", s.NumWindows)

			w, err := watch.New(coll)
			if err != nil {
				return err
			}

			for _, dir := range args {
				go func(d string) {
					if err := w.Watch(ctx, d); err != nil {
						fmt.Fprintf(os.Stderr, "watch error %s: %v\n", d, err)
					}
				}(dir)
			}
			<-ctx.Done()
			return nil
		},
	})

	// ---- vecindex tui --------------------------------------------------------
	var tuiDir string
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch interactive BubbleTea search interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := openCollection(ortLib)
			if err != nil {
				return err
			}
			defer coll.Close()

			if tuiDir != "" {
				ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				if err := indexDirs(ctx, coll, []string{tuiDir}); err != nil {
					return err
				}
			}

			m := tui.New(coll)
			p := tea.NewProgram(m, tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
	tuiCmd.Flags().StringVar(&tuiDir, "dir", "", "directory to index before launching")
	root.AddCommand(tuiCmd)

	// ---- vecindex stats -------------------------------------------------------
	var statsDir string
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Index a directory and show collection statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := openCollection(ortLib)
			if err != nil {
				return err
			}
			defer coll.Close()

			if statsDir != "" {
				ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				if err := indexDirs(ctx, coll, []string{statsDir}); err != nil {
					return err
				}
			}

			s := coll.Stats()
			fmt.Printf("windows:   %d\n", s.NumWindows)
			fmt.Printf("files:     %d\n", s.NumFiles)
			if !s.LastUpdated.IsZero() {
				fmt.Printf("updated:   %s\n", s.LastUpdated.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	statsCmd.Flags().StringVar(&statsDir, "dir", "", "directory to index before reporting")
	root.AddCommand(statsCmd)

	// ---- vecindex rebuild -----------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "rebuild <dir> [dir...]",
		Short: "Rebuild the in-memory index from scratch (ignores skip-cache)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			coll, err := openCollection(ortLib)
			if err != nil {
				return err
			}
			defer coll.Close()

			for _, dir := range args {
				fmt.Fprintf(os.Stderr, "Rebuilding index for %s…\n", dir)
				if err := coll.RebuildFromDir(ctx, dir); err != nil {
					if !isInterrupted(err) {
						return err
					}
					fmt.Fprintln(os.Stderr, "\nInterrupted — keeping partial index in memory…")
				}
			}
			s := coll.Stats()
			fmt.Fprintf(os.Stderr, "Done. %d windows from %d files.\n", s.NumWindows, s.NumFiles)
			return nil
		},
	})

	// ---- vecindex bench -------------------------------------------------------
	var benchK int
	var benchSample int
	benchCmd := &cobra.Command{
		Use:   "bench <dir>",
		Short: "Index a directory and report HNSW recall@k against brute force",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			coll, err := openCollection(ortLib)
			if err != nil {
				return err
			}
			defer coll.Close()

			if err := indexDirs(ctx, coll, args); err != nil {
				return err
			}

			recall, err := coll.RecallAtK(benchK, benchSample)
			if err != nil {
				return err
			}
			fmt.Printf("recall@%d over %d sampled queries: %.3f\n", benchK, benchSample, recall)
			return nil
		},
	}
	benchCmd.Flags().IntVar(&benchK, "k", 10, "number of neighbours per query")
	benchCmd.Flags().IntVar(&benchSample, "sample", 50, "number of indexed windows to sample as queries")
	root.AddCommand(benchCmd)

	// ---- vecindex embed-bench --------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "embed-bench",
		Short: "Benchmark tokenizer and ONNX inference speed on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(os.Stderr, "Loading model… ")
			e, err := textvec.New(modelDir, resolveOrtLib(ortLib), numThreads)
			if err != nil {
				return err
			}
			defer e.Close()
			fmt.Fprintln(os.Stderr, "ready.")

			texts := []struct {
				label string
				text  string
			}{
				{"short (9 words)  ", "the quick brown fox jumps over the lazy dog"},
				{"medium (50 words)", strings.Repeat("the quick brown fox jumps ", 10)},
				{"long (180 words) ", strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)},
			}

			fmt.Printf("\n%-20s  %10s  %10s  %10s\n", "text size", "tokenize", "inference", "total")
			fmt.Println(strings.Repeat("─", 55))
			for _, tc := range texts {
				tok, inf, tot, err := e.BenchmarkSingle(tc.text)
				if err != nil {
					return fmt.Errorf("bench %s: %w", tc.label, err)
				}
				fmt.Printf("%-20s  %10s  %10s  %10s\n", tc.label,
					tok.Round(time.Millisecond),
					inf.Round(time.Millisecond),
					tot.Round(time.Millisecond))
			}
			fmt.Printf("\nIf inference >500ms, try: vecindex --threads 1 index <dir>\n")
			fmt.Printf("Set VECINDEX_DEBUG=1 for per-batch timing during indexing.\n")
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// isInterrupted returns true if err indicates a context cancellation or
// deadline.
func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// makeProgressPrinter returns a ProgressFunc that prints a compact
// progress line. Skipped files (mtime cache hit) are shown with · instead
// of a percentage.
func makeProgressPrinter() store.ProgressFunc {
	return func(done, total int, path string, skipped bool) {
		short := filepath.Base(filepath.Dir(path)) + "/" + filepath.Base(path)
		if skipped {
			fmt.Fprintf(os.Stderr, "\r  [%d/%d]  ·   %-50s", done, total, short)
		} else {
			pct := 100 * done / total
			if done < total {
				fmt.Fprintf(os.Stderr, "\r  [%d/%d] %3d%%  %-50s",
					done, total, pct, short)
			} else {
				fmt.Fprintf(os.Stderr, "\r  [%d/%d] 100%%  %-50s\n",
					done, total, short)
			}
		}
	}
}
