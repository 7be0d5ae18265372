package fs

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipped elements contribute no text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Nav:      true,
	atom.Svg:      true,
	atom.Template: true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Tr: true, atom.Pre: true, atom.Blockquote: true,
	atom.Table: true, atom.Section: true, atom.Article: true, atom.Main: true,
}

// HTMLText extracts the page title and readable text from an HTML document.
// Navigation, scripts and styles are dropped, runs of spaces collapse to one
// and blank lines are removed. Preformatted blocks keep their layout.
func HTMLText(r io.Reader) (title, text string, err error) {
	z := html.NewTokenizer(r)

	var (
		b       strings.Builder
		skip    int
		inTitle bool
		inPre   int
	)

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return strings.TrimSpace(title), clean(b.String()), nil
			}
			return "", "", z.Err()

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] && tt == html.StartTagToken {
				skip++
				continue
			}
			switch a {
			case atom.Title:
				inTitle = tt == html.StartTagToken
			case atom.Pre:
				if tt == html.StartTagToken {
					inPre++
					b.WriteString("\n```\n")
				}
				continue
			}
			if blocks[a] {
				b.WriteByte('\n')
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] {
				if skip > 0 {
					skip--
				}
				continue
			}
			switch a {
			case atom.Title:
				inTitle = false
			case atom.Pre:
				if inPre > 0 {
					inPre--
					b.WriteString("\n```\n")
				}
				continue
			}
			if blocks[a] {
				b.WriteByte('\n')
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			raw := string(z.Text())
			if inTitle {
				title += raw
				continue
			}
			if inPre > 0 {
				b.WriteString(strings.ReplaceAll(raw, "\n", "\x00"))
				continue
			}
			b.WriteString(raw)
		}
	}
}

// clean collapses whitespace line by line. NUL marks newlines inside
// preformatted text, which survive as-is.
func clean(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.Contains(line, "\x00") {
			out = append(out, strings.ReplaceAll(line, "\x00", "\n"))
			continue
		}
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
