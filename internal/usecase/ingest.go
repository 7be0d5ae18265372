package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"devsolver/internal/adapter/cache"
	"devsolver/internal/domain"
	"devsolver/internal/port"
)

var (
	// ErrInvalidInput is returned for a missing technology or an unknown label.
	ErrInvalidInput = errors.New("invalid ingest input")

	// ErrNoContent is returned when a document yields no chunks.
	ErrNoContent = errors.New("document has no content")
)

// ProgressFunc is called after each file of a directory ingest.
type ProgressFunc func(done, total int, path string)

// IngestUseCase turns documentation into stored chunks and embeddings.
type IngestUseCase struct {
	store       port.DocumentStore
	walker      port.FileWalker
	loader      port.FileLoader
	fetcher     port.PageFetcher
	chunker     port.Chunker
	embedder    port.EmbeddingProvider
	cache       *cache.QueryCache
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// IngestOption configures an IngestUseCase.
type IngestOption func(*IngestUseCase)

func WithFetcher(f port.PageFetcher) IngestOption {
	return func(u *IngestUseCase) { u.fetcher = f }
}

func WithQueryCache(c *cache.QueryCache) IngestOption {
	return func(u *IngestUseCase) { u.cache = c }
}

func WithConcurrency(n int) IngestOption {
	return func(u *IngestUseCase) {
		if n > 0 {
			u.concurrency = n
		}
	}
}

func WithIngestLogger(logger *slog.Logger) IngestOption {
	return func(u *IngestUseCase) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// NewIngestUseCase creates a new ingest use case. The embedder is expected to
// be rate limited and to return zero sentinels rather than provider errors.
func NewIngestUseCase(
	store port.DocumentStore,
	walker port.FileWalker,
	loader port.FileLoader,
	chunker port.Chunker,
	embedder port.EmbeddingProvider,
	opts ...IngestOption,
) *IngestUseCase {
	u := &IngestUseCase{
		store:       store,
		walker:      walker,
		loader:      loader,
		chunker:     chunker,
		embedder:    embedder,
		concurrency: 4,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// IngestResult contains the results of an ingest operation.
type IngestResult struct {
	FilesIngested     int
	FilesSkipped      int
	FilesDeleted      int
	ChunksCreated     int
	EmbeddingsMissing int
	Errors            []string
}

// DocumentID derives a stable document id from the technology and the
// document's path or URL.
func DocumentID(technology, source string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("devsolver://"+technology+"/"+source)).String()
}

// IngestDir ingests every matching file under root. Files unchanged since
// their last ingest are skipped, and documents whose files disappeared from
// root are deleted. Per-file failures are collected in the result.
func (u *IngestUseCase) IngestDir(
	ctx context.Context,
	technology, root string,
	label domain.SourceLabel,
	progress ProgressFunc,
) (*IngestResult, error) {
	if err := checkInput(technology, label); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	files, err := u.walker.Walk(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	existing, err := u.store.LoadSourceMeta(ctx, technology)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing documents: %w", err)
	}

	result := &IngestResult{}
	seen := make(map[string]bool, len(files))

	var (
		mu   sync.Mutex
		done int
	)
	record := func(path string, fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
		done++
		if progress != nil {
			progress(done, len(files), path)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)

	for _, file := range files {
		docID := DocumentID(technology, file.Path)
		seen[docID] = true

		if prev, ok := existing[docID]; ok && u.upToDate(ctx, technology, prev, file, label) {
			record(file.RelPath, func() { result.FilesSkipped++ })
			continue
		}

		g.Go(func() error {
			stats, err := u.ingestFile(gctx, technology, docID, file, label)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			record(file.RelPath, func() {
				switch {
				case errors.Is(err, ErrNoContent):
					result.FilesSkipped++
				case err != nil:
					result.Errors = append(result.Errors, fmt.Sprintf("failed to ingest %s: %v", file.RelPath, err))
				default:
					result.FilesIngested++
					result.ChunksCreated += stats.chunks
					result.EmbeddingsMissing += stats.missing
				}
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for id, meta := range existing {
		if seen[id] || !underRoot(absRoot, meta.Path) {
			continue
		}
		if err := u.store.DeleteDocument(ctx, technology, id); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to delete %s: %v", meta.Path, err))
			continue
		}
		result.FilesDeleted++
	}

	if result.FilesIngested > 0 || result.FilesDeleted > 0 {
		u.invalidate(technology)
	}

	u.logger.Info("ingest complete",
		"technology", technology,
		"root", absRoot,
		"ingested", result.FilesIngested,
		"skipped", result.FilesSkipped,
		"deleted", result.FilesDeleted,
		"chunks", result.ChunksCreated,
		"errors", len(result.Errors))

	return result, nil
}

// upToDate reports whether prev can be kept as is: same label, ingested
// after the file's last modification, and every chunk embedded.
func (u *IngestUseCase) upToDate(ctx context.Context, technology string, prev domain.SourceMeta, file port.FileInfo, label domain.SourceLabel) bool {
	if prev.Label != label || prev.IngestedAt.Before(file.ModTime) {
		return false
	}

	vecs, err := u.store.LoadEmbeddings(ctx, technology, prev.DocumentID)
	if err != nil {
		u.logger.Warn("failed to load embeddings, re-ingesting",
			"technology", technology, "document", prev.DocumentID, "error", err)
		return false
	}
	if len(vecs) < prev.ChunkCount {
		return false
	}
	for _, v := range vecs {
		if v.IsZero() {
			u.logger.Debug("re-embedding document with missing embeddings",
				"technology", technology, "document", prev.DocumentID)
			return false
		}
	}
	return true
}

// IngestFile ingests a single file, replacing any earlier version.
func (u *IngestUseCase) IngestFile(ctx context.Context, technology, path string, label domain.SourceLabel) (domain.SourceMeta, error) {
	if err := checkInput(technology, label); err != nil {
		return domain.SourceMeta{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.SourceMeta{}, err
	}
	doc, err := u.loader.Load(abs)
	if err != nil {
		return domain.SourceMeta{}, err
	}
	meta := domain.SourceMeta{
		DocumentID: DocumentID(technology, abs),
		Label:      label,
		Title:      doc.Title,
		Path:       abs,
	}
	return u.ingestDocument(ctx, technology, meta, doc.Content)
}

// RemoveFile deletes the document ingested from path, if any.
func (u *IngestUseCase) RemoveFile(ctx context.Context, technology, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := u.store.DeleteDocument(ctx, technology, DocumentID(technology, abs)); err != nil {
		return err
	}
	u.invalidate(technology)
	return nil
}

// IngestURL fetches one documentation page and ingests it.
func (u *IngestUseCase) IngestURL(ctx context.Context, technology, url string, label domain.SourceLabel) (domain.SourceMeta, error) {
	if err := checkInput(technology, label); err != nil {
		return domain.SourceMeta{}, err
	}
	if u.fetcher == nil {
		return domain.SourceMeta{}, fmt.Errorf("%w: page fetching is not configured", ErrInvalidInput)
	}

	doc, err := u.fetcher.Fetch(ctx, url)
	if err != nil {
		return domain.SourceMeta{}, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	meta := domain.SourceMeta{
		DocumentID: DocumentID(technology, url),
		Label:      label,
		Title:      doc.Title,
		URL:        url,
	}
	return u.ingestDocument(ctx, technology, meta, doc.Content)
}

// IngestText ingests content under meta. A missing document id is derived
// from the URL, the path or the title, in that order.
func (u *IngestUseCase) IngestText(ctx context.Context, technology string, meta domain.SourceMeta, content string) (domain.SourceMeta, error) {
	if err := checkInput(technology, meta.Label); err != nil {
		return domain.SourceMeta{}, err
	}
	if meta.DocumentID == "" {
		switch {
		case meta.URL != "":
			meta.DocumentID = DocumentID(technology, meta.URL)
		case meta.Path != "":
			meta.DocumentID = DocumentID(technology, meta.Path)
		case meta.Title != "":
			meta.DocumentID = DocumentID(technology, "title:"+meta.Title)
		default:
			meta.DocumentID = uuid.NewString()
		}
	}
	if meta.Title == "" {
		meta.Title = meta.DocumentID
	}
	return u.ingestDocument(ctx, technology, meta, content)
}

type ingestStats struct {
	chunks  int
	missing int
}

func (u *IngestUseCase) ingestFile(ctx context.Context, technology, docID string, file port.FileInfo, label domain.SourceLabel) (ingestStats, error) {
	doc, err := u.loader.Load(file.Path)
	if err != nil {
		return ingestStats{}, err
	}

	meta := domain.SourceMeta{
		DocumentID: docID,
		Label:      label,
		Title:      doc.Title,
		Path:       file.Path,
	}
	_, stats, err := u.save(ctx, technology, meta, doc.Content)
	return stats, err
}

func (u *IngestUseCase) ingestDocument(ctx context.Context, technology string, meta domain.SourceMeta, content string) (domain.SourceMeta, error) {
	saved, stats, err := u.save(ctx, technology, meta, content)
	if err != nil {
		return domain.SourceMeta{}, err
	}
	u.invalidate(technology)

	u.logger.Info("document ingested",
		"technology", technology,
		"title", saved.Title,
		"chunks", stats.chunks,
		"missing_embeddings", stats.missing)
	return saved, nil
}

// save chunks, embeds and stores one document. Embeddings that could not be
// produced are stored as zero sentinels.
func (u *IngestUseCase) save(ctx context.Context, technology string, meta domain.SourceMeta, content string) (domain.SourceMeta, ingestStats, error) {
	chunks := u.chunker.Chunk(content, meta.DocumentID)
	if len(chunks) == 0 {
		return meta, ingestStats{}, ErrNoContent
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := u.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return meta, ingestStats{}, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return meta, ingestStats{}, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	stats := ingestStats{chunks: len(chunks)}
	embeddings := make(map[string]domain.EmbeddingVector, len(chunks))
	for i, c := range chunks {
		vec := vecs[i]
		if vec.IsZero() {
			vec = domain.ZeroVector(u.embedder.Dimension())
			stats.missing++
		}
		embeddings[c.ID] = vec
	}

	meta.IngestedAt = u.now()
	meta.ChunkCount = len(chunks)
	if err := u.store.SaveDocument(ctx, technology, meta, chunks); err != nil {
		return meta, ingestStats{}, fmt.Errorf("failed to save document: %w", err)
	}
	if err := u.store.SaveEmbeddings(ctx, technology, meta.DocumentID, embeddings); err != nil {
		return meta, ingestStats{}, fmt.Errorf("failed to save embeddings: %w", err)
	}

	if stats.missing > 0 {
		u.logger.Warn("some chunks have no embedding",
			"technology", technology,
			"document", meta.DocumentID,
			"missing", stats.missing,
			"chunks", stats.chunks)
	}
	return meta, stats, nil
}

func (u *IngestUseCase) invalidate(technology string) {
	if u.cache != nil {
		u.cache.Invalidate(technology)
	}
}

func checkInput(technology string, label domain.SourceLabel) error {
	if strings.TrimSpace(technology) == "" {
		return fmt.Errorf("%w: technology is required", ErrInvalidInput)
	}
	if !label.Valid() {
		return fmt.Errorf("%w: unknown source label %q", ErrInvalidInput, label)
	}
	return nil
}

func underRoot(root, path string) bool {
	if path == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
