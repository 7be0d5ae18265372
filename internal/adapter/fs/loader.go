package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"devsolver/internal/domain"
)

// ErrUnsupported is returned for files that cannot be turned into text.
var ErrUnsupported = errors.New("unsupported document")

// Loader reads documentation files. PDF and HTML are converted to plain
// text; everything else is read as UTF-8 text.
type Loader struct {
	maxSize int64
}

func NewLoader(maxSize int64) *Loader {
	if maxSize <= 0 {
		maxSize = 20 << 20
	}
	return &Loader{maxSize: maxSize}
}

func (l *Loader) Load(path string) (domain.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.Document{}, err
	}
	if info.Size() > l.maxSize {
		return domain.Document{}, fmt.Errorf("%w: %s is larger than %d bytes", ErrUnsupported, path, l.maxSize)
	}

	var doc domain.Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		doc, err = loadPDF(path)
	case ".html", ".htm":
		doc, err = loadHTMLFile(path)
	default:
		doc, err = loadText(path)
	}
	if err != nil {
		return domain.Document{}, err
	}

	doc.Path = path
	if doc.Title == "" {
		doc.Title = titleFromFilename(path)
	}
	return doc, nil
}

func loadText(path string) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, err
	}
	if !utf8.Valid(data) {
		return domain.Document{}, fmt.Errorf("%w: %s is not valid UTF-8", ErrUnsupported, path)
	}
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	return domain.Document{Title: markdownTitle(content), Content: content}, nil
}

func loadHTMLFile(path string) (domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Document{}, err
	}
	defer f.Close()

	title, text, err := HTMLText(f)
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return domain.Document{Title: title, Content: text}, nil
}

// markdownTitle returns the first level-one heading, if any.
func markdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return ""
}

func titleFromFilename(path string) string {
	filename := filepath.Base(path)
	filename = strings.TrimSuffix(filename, filepath.Ext(filename))
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}
