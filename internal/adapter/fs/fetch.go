package fs

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"devsolver/internal/domain"
)

// Fetcher downloads documentation pages over HTTP.
type Fetcher struct {
	client  *http.Client
	maxSize int64
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		maxSize: 20 << 20,
	}
}

// Fetch downloads rawURL and extracts its text. HTML pages are converted;
// other text responses are kept as-is.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (domain.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.Document{}, fmt.Errorf("%w: invalid url %q", ErrUnsupported, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.Document{}, err
	}
	req.Header.Set("User-Agent", "devsolver/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.Document{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Document{}, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, f.maxSize)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	var doc domain.Document
	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		title, text, err := HTMLText(body)
		if err != nil {
			return domain.Document{}, fmt.Errorf("parse %s: %w", rawURL, err)
		}
		doc = domain.Document{Title: title, Content: text}
	case strings.HasPrefix(mediaType, "text/") || mediaType == "":
		data, err := io.ReadAll(body)
		if err != nil {
			return domain.Document{}, err
		}
		content := string(data)
		doc = domain.Document{Title: markdownTitle(content), Content: content}
	default:
		return domain.Document{}, fmt.Errorf("%w: %s returned %s", ErrUnsupported, rawURL, mediaType)
	}

	doc.URL = rawURL
	if doc.Title == "" {
		doc.Title = u.Host + u.Path
	}
	return doc, nil
}
