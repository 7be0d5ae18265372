package usecase

import (
	"sort"
	"strings"

	"devsolver/internal/domain"
)

const defaultContextChars = 12000

// ContextBuilder renders retrieved results as the documentation block of a
// generation prompt.
type ContextBuilder struct {
	maxChars int
}

// NewContextBuilder creates a builder that keeps the rendered chunk content
// within maxChars.
func NewContextBuilder(maxChars int) *ContextBuilder {
	if maxChars <= 0 {
		maxChars = defaultContextChars
	}
	return &ContextBuilder{maxChars: maxChars}
}

// Build selects results in rank order while they fit the budget, merges
// consecutive chunks of the same document and groups the rest by source
// title in order of first appearance.
func (b *ContextBuilder) Build(results []domain.ScoredResult) string {
	if len(results) == 0 {
		return ""
	}

	selected := make([]domain.ScoredResult, 0, len(results))
	used := 0
	for _, r := range results {
		n := len(strings.TrimSpace(r.Chunk.Content))
		if n == 0 {
			continue
		}
		if used+n > b.maxChars && len(selected) > 0 {
			continue // Skip if it would exceed budget
		}
		selected = append(selected, r)
		used += n
	}

	merged := mergeAdjacentChunks(selected)

	var (
		order  []string
		groups = make(map[string][]domain.ScoredResult)
	)
	for _, r := range merged {
		title := sourceTitle(r)
		if _, ok := groups[title]; !ok {
			order = append(order, title)
		}
		groups[title] = append(groups[title], r)
	}

	var sb strings.Builder
	for _, title := range order {
		sb.WriteString("# Source: ")
		sb.WriteString(title)
		sb.WriteString("\n\n")
		for _, r := range groups[title] {
			sb.WriteString(strings.TrimSpace(r.Chunk.Content))
			sb.WriteString("\n\n---\n\n")
		}
	}
	return sb.String()
}

func sourceTitle(r domain.ScoredResult) string {
	if r.Source != nil && r.Source.Title != "" {
		return r.Source.Title
	}
	return r.Chunk.DocumentID
}

// mergeAdjacentChunks joins results whose chunks directly follow each other
// in the same document. Documents keep their order of first appearance and
// chunks within a document are ordered by ordinal. A merged entry keeps the
// higher score.
func mergeAdjacentChunks(results []domain.ScoredResult) []domain.ScoredResult {
	if len(results) <= 1 {
		return results
	}

	var docs []string
	byDoc := make(map[string][]domain.ScoredResult)
	for _, r := range results {
		if _, ok := byDoc[r.Chunk.DocumentID]; !ok {
			docs = append(docs, r.Chunk.DocumentID)
		}
		byDoc[r.Chunk.DocumentID] = append(byDoc[r.Chunk.DocumentID], r)
	}

	out := make([]domain.ScoredResult, 0, len(results))
	for _, doc := range docs {
		docResults := byDoc[doc]
		sort.SliceStable(docResults, func(i, j int) bool {
			return docResults[i].Chunk.Ordinal < docResults[j].Chunk.Ordinal
		})

		i := 0
		for i < len(docResults) {
			merged := docResults[i]
			last := merged.Chunk.Ordinal
			j := i + 1
			for j < len(docResults) && docResults[j].Chunk.Ordinal == last+1 {
				merged.Chunk.Content = joinOverlapping(merged.Chunk.Content, docResults[j].Chunk.Content)
				merged.Score = max(merged.Score, docResults[j].Score)
				last = docResults[j].Chunk.Ordinal
				j++
			}
			out = append(out, merged)
			i = j
		}
	}
	return out
}

// joinOverlapping appends b to a, dropping the longest prefix of b that is
// already a suffix of a.
func joinOverlapping(a, b string) string {
	for k := min(len(a), len(b)); k > 0; k-- {
		if strings.HasSuffix(a, b[:k]) {
			return a + b[k:]
		}
	}
	return a + "\n" + b
}
