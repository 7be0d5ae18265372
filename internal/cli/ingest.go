package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"devsolver/internal/adapter/fs"
	"devsolver/internal/domain"
	"devsolver/internal/usecase"
)

var (
	ingestTech  string
	ingestLabel string
	ingestURLs  []string
	ingestWatch bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest documentation for a technology",
	Long: `Ingest documentation files from a directory, or pages from URLs, into the
document store under a technology. Files unchanged since the last ingest are
skipped and documents whose files disappeared are removed.

Examples:
  devsolver ingest ./docs/pandas --tech pandas --label official
  devsolver ingest ./notes --tech pandas --label community --watch
  devsolver ingest --tech pandas --url https://pandas.pydata.org/docs/user_guide/merging.html`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVarP(&ingestTech, "tech", "t", "", "technology the documents belong to (required)")
	ingestCmd.Flags().StringVarP(&ingestLabel, "label", "l", string(domain.SourceOfficial), "source label: official or community")
	ingestCmd.Flags().StringSliceVar(&ingestURLs, "url", nil, "documentation page to fetch (repeatable)")
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "keep running and re-ingest files as they change")
	ingestCmd.MarkFlagRequired("tech")
}

func runIngest(cmd *cobra.Command, args []string) error {
	label := domain.SourceLabel(ingestLabel)
	if !label.Valid() {
		return fmt.Errorf("invalid label %q: must be official or community", ingestLabel)
	}

	var path string
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("path does not exist: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("path is not a directory: %s", path)
		}
	} else if len(ingestURLs) == 0 {
		return errors.New("nothing to ingest: pass a directory or --url")
	}

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, u := range ingestURLs {
		meta, err := a.ingest.IngestURL(ctx, ingestTech, u, label)
		if err != nil {
			fmt.Printf("  - %s: %v\n", u, err)
			continue
		}
		fmt.Printf("Fetched %s (%d chunks)\n", meta.Title, meta.ChunkCount)
	}

	if path == "" {
		return nil
	}

	fmt.Printf("Scanning %s...\n", path)
	result, err := a.ingest.IngestDir(ctx, ingestTech, path, label, newProgress("Ingesting"))
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	printIngestResult(result)
	fmt.Printf("\nStore: %s\n", a.dbPath)

	if !ingestWatch {
		return nil
	}
	return watchDir(ctx, a, path, label)
}

// newProgress returns a progress callback that lazily creates a bar once
// the total is known.
func newProgress(description string) usecase.ProgressFunc {
	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	var startTime time.Time

	return func(processed, total int, currentFile string) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]"+description+"[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(processed)

		if processed > 0 {
			elapsed := time.Since(startTime)
			rate := float64(processed) / elapsed.Seconds()
			remaining := total - processed
			if rate > 0 {
				eta := time.Duration(float64(remaining)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]%s[reset] ETA: %s", description, formatDuration(eta)))
			}
		}
	}
}

func printIngestResult(result *usecase.IngestResult) {
	fmt.Printf("\nIngest complete:\n")
	fmt.Printf("  Files ingested: %d\n", result.FilesIngested)
	fmt.Printf("  Files skipped:  %d (unchanged)\n", result.FilesSkipped)
	fmt.Printf("  Files deleted:  %d (removed)\n", result.FilesDeleted)
	fmt.Printf("  Chunks created: %d\n", result.ChunksCreated)
	if result.EmbeddingsMissing > 0 {
		fmt.Printf("  Missing embeddings: %d (lexical search only for these chunks)\n", result.EmbeddingsMissing)
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
}

// watchDir re-ingests files under path as they change until ctx is done.
func watchDir(ctx context.Context, a *app, path string, label domain.SourceLabel) error {
	watcher := fs.NewWatcher(path, a.walker)
	defer watcher.Close()

	changes, err := watcher.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	fmt.Printf("\nWatching %s for changes (Ctrl+C to stop)...\n", path)

	for change := range changes {
		switch change.Type {
		case fs.ChangeDeleted:
			err := a.ingest.RemoveFile(ctx, ingestTech, change.Path)
			if err != nil && !isNotFound(err) {
				a.logger.Warn("failed to remove document", "path", change.Path, "error", err)
				continue
			}
			fmt.Printf("  removed %s\n", change.Path)
		default:
			meta, err := a.ingest.IngestFile(ctx, ingestTech, change.Path, label)
			if err != nil {
				a.logger.Warn("failed to ingest file", "path", change.Path, "error", err)
				continue
			}
			fmt.Printf("  ingested %s (%d chunks)\n", change.Path, meta.ChunkCount)
		}
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
