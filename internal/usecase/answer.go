package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"devsolver/internal/domain"
	"devsolver/internal/port"
)

const systemPrompt = `You are a helpful programming assistant that provides accurate and specific solutions.

Answer the user's question based ONLY on the provided context. If the answer cannot be found
in the context, say "I don't have enough information to answer this question."

Clearly distinguish between official documentation and community solutions in your answer.

%s

When providing code examples, make sure they are complete, correct, and follow best practices.
Cite your sources by mentioning which documentation or community solution you're referencing.`

var codeBlock = regexp.MustCompile("(?s)```[\\w+-]*\\n(.*?)```")

// AnswerUseCase generates answers grounded on retrieved documentation.
type AnswerUseCase struct {
	searcher  port.Searcher
	generator port.TextGenerator // nil answers without generation
	builder   *ContextBuilder
	expander  *ContextExpander // nil disables expansion
	logger    *slog.Logger
	now       func() time.Time
}

// NewAnswerUseCase creates a new answer use case.
func NewAnswerUseCase(
	searcher port.Searcher,
	generator port.TextGenerator,
	builder *ContextBuilder,
	expander *ContextExpander,
	logger *slog.Logger,
) *AnswerUseCase {
	if builder == nil {
		builder = NewContextBuilder(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerUseCase{
		searcher:  searcher,
		generator: generator,
		builder:   builder,
		expander:  expander,
		logger:    logger,
		now:       time.Now,
	}
}

// Answer produces one solution per label selected by the question's
// preference. Generation failures are reported inside the solution; only
// context errors are returned.
func (u *AnswerUseCase) Answer(ctx context.Context, q domain.Question) (*domain.Answer, error) {
	start := u.now()
	if q.Preference == "" {
		q.Preference = domain.PreferBoth
	}

	labels := q.Preference.Labels()
	solutions := make([]*domain.Solution, len(labels))

	g, gctx := errgroup.WithContext(ctx)
	for i, label := range labels {
		g.Go(func() error {
			s, err := u.Solve(gctx, q, label)
			if err != nil {
				return err
			}
			solutions[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	answer := &domain.Answer{Query: q.Query}
	for _, s := range solutions {
		switch s.SourceLabel {
		case domain.SourceOfficial:
			answer.Official = s
		case domain.SourceCommunity:
			answer.Community = s
		}
	}
	answer.Timestamp = u.now()
	answer.Elapsed = answer.Timestamp.Sub(start)

	u.logger.Info("query answered",
		"technology", q.Technology,
		"preference", q.Preference,
		"elapsed", answer.Elapsed)
	return answer, nil
}

// Prompt is the generation input built for one source label.
type Prompt struct {
	Label      domain.SourceLabel    `json:"source_type"`
	System     string                `json:"system"`
	User       string                `json:"user"`
	References []domain.ScoredResult `json:"references"`
}

// Prompt retrieves documentation carrying label and renders the prompts the
// generator would receive. System is empty when nothing was found.
func (u *AnswerUseCase) Prompt(ctx context.Context, q domain.Question, label domain.SourceLabel) (*Prompt, error) {
	results, err := u.searcher.HybridSearch(ctx, q.Query, q.Technology, q.TopK, label)
	if err != nil {
		return nil, err
	}

	p := &Prompt{Label: label, User: q.Query, References: results}
	if len(results) == 0 {
		return p, nil
	}

	docs := results
	if u.expander != nil {
		docs = u.expander.Expand(ctx, q.Technology, results)
	}
	p.System = buildSystemPrompt(u.builder.Build(docs), q.CodeContext)
	return p, nil
}

// Solve answers the question from documentation carrying label.
func (u *AnswerUseCase) Solve(ctx context.Context, q domain.Question, label domain.SourceLabel) (*domain.Solution, error) {
	p, err := u.Prompt(ctx, q, label)
	if err != nil {
		return nil, err
	}

	solution := &domain.Solution{SourceLabel: label, References: p.References}
	if len(p.References) == 0 {
		u.logger.Warn("no results to generate solution from", "label", label, "technology", q.Technology)
		solution.Answer = fmt.Sprintf("I couldn't find relevant %s documentation for your query.", label)
		return solution, nil
	}
	if u.generator == nil {
		solution.Answer = "I'm sorry, no text generation service is available."
		return solution, nil
	}

	out, err := u.generator.Generate(ctx, p.System, p.User)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		u.logger.Error("failed to generate solution", "label", label, "error", err)
		solution.Answer = fmt.Sprintf("I encountered an error while generating a solution: %v", err)
		return solution, nil
	}

	solution.Answer = out
	solution.CodeChanges = extractCode(out)
	solution.Confidence = confidence(p.References)
	return solution, nil
}

func buildSystemPrompt(docContext, codeContext string) string {
	var promptContext string
	if strings.TrimSpace(codeContext) != "" {
		promptContext = "CODE CONTEXT:\n" + codeContext + "\n\nDOCUMENTATION CONTEXT:\n" + docContext
	} else {
		promptContext = "DOCUMENTATION CONTEXT:\n" + docContext
	}
	return fmt.Sprintf(systemPrompt, promptContext)
}

// extractCode joins the bodies of the fenced code blocks in text.
func extractCode(text string) string {
	matches := codeBlock.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, m[1])
	}
	return strings.Join(blocks, "\n\n")
}

// confidence is the mean fused score of the references, clamped to [0, 1].
func confidence(results []domain.ScoredResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
	}
	return min(max(sum/float64(len(results)), 0), 1)
}
