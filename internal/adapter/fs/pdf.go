package fs

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"devsolver/internal/domain"
)

func loadPDF(path string) (doc domain.Document, err error) {
	defer func() {
		// ledongthuc/pdf panics on some malformed files.
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed pdf %s: %v", ErrUnsupported, path, r)
		}
	}()

	f, rdr, err := pdf.Open(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	b, err := rdr.GetPlainText()
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, b); err != nil {
		return domain.Document{}, fmt.Errorf("failed to read pdf buffer: %w", err)
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return domain.Document{}, fmt.Errorf("%w: no text extracted from %s", ErrUnsupported, path)
	}
	return domain.Document{Title: pdfTitle(text), Content: text}, nil
}

// pdfTitle uses the first short non-empty line.
func pdfTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && len(line) <= 200 {
			return line
		}
	}
	return ""
}
