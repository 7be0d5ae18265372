package port

import (
	"context"
	"time"

	"devsolver/internal/domain"
)

type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string
	RelPath string // slash-separated, relative to the walk root
	ModTime time.Time
	Size    int64
}

// FileLoader extracts plain text from a documentation file.
type FileLoader interface {
	Load(path string) (domain.Document, error)
}

// PageFetcher downloads a documentation page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (domain.Document, error)
}
