package cli

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/spf13/cobra"

	"devsolver/internal/domain"
	"devsolver/internal/usecase"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

var (
	promptQuery  string
	promptTech   string
	promptPrefer string
	promptCode   string
	promptTopK   int
	promptJSON   bool
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the grounded prompts without calling the generator",
	Long: `Retrieve documentation for a question and print the system and user prompts
that ask would send to the text generator, one pair per source label. Useful
for inspecting context or for feeding another LLM by hand.

Examples:
  devsolver prompt -q "merge on two columns" --tech pandas
  devsolver prompt -q "merge on two columns" --tech pandas --prefer official --json`,
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringVarP(&promptQuery, "query", "q", "", "question (required)")
	promptCmd.Flags().StringVarP(&promptTech, "tech", "t", "", "technology to search (required)")
	promptCmd.Flags().StringVarP(&promptPrefer, "prefer", "p", string(domain.PreferBoth), "official, community or both")
	promptCmd.Flags().StringVar(&promptCode, "code", "", "file with code context to include")
	promptCmd.Flags().IntVarP(&promptTopK, "top-k", "k", 0, "number of references (default from config)")
	promptCmd.Flags().BoolVar(&promptJSON, "json", false, "output as JSON")
	promptCmd.MarkFlagRequired("query")
	promptCmd.MarkFlagRequired("tech")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	q, err := buildQuestion(promptQuery, promptTech, promptPrefer, promptCode, promptTopK)
	if err != nil {
		return err
	}

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	var prompts []*usecase.Prompt
	for _, label := range q.Preference.Labels() {
		p, err := a.answer.Prompt(cmd.Context(), q, label)
		if err != nil {
			return fmt.Errorf("retrieval failed: %w", err)
		}
		prompts = append(prompts, p)
	}

	if promptJSON {
		output, _ := json.MarshalIndent(prompts, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	out, err := renderPrompts(prompts)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func renderPrompts(prompts []*usecase.Prompt) (string, error) {
	tmplContent, err := promptTemplates.ReadFile("templates/prompt.txt")
	if err != nil {
		return "", fmt.Errorf("template not found: %w", err)
	}

	tmpl, err := template.New("prompt").Funcs(templateFuncs()).Parse(string(tmplContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, prompts); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"upper": strings.ToUpper,
		"formatReferences": func(refs []domain.ScoredResult) string {
			var sb strings.Builder
			for i, r := range refs {
				sb.WriteString(fmt.Sprintf("[%d] %s (score: %.3f)\n", i+1, referenceName(r), r.Score))
			}
			return sb.String()
		},
	}
}

// buildQuestion validates the flags shared by ask and prompt.
func buildQuestion(query, tech, prefer, codeFile string, topK int) (domain.Question, error) {
	q := domain.Question{
		Query:      query,
		Technology: tech,
		Preference: domain.Preference(prefer),
		TopK:       topK,
	}
	switch q.Preference {
	case domain.PreferOfficial, domain.PreferCommunity, domain.PreferBoth:
	default:
		return q, fmt.Errorf("invalid preference %q: must be official, community or both", prefer)
	}

	if codeFile != "" {
		data, err := os.ReadFile(codeFile)
		if err != nil {
			return q, fmt.Errorf("failed to read code context: %w", err)
		}
		q.CodeContext = string(data)
	}
	return q, nil
}

// referenceName names the source of a result for display.
func referenceName(r domain.ScoredResult) string {
	if r.Source != nil {
		switch {
		case r.Source.Path != "":
			return r.Source.Path
		case r.Source.URL != "":
			return r.Source.URL
		case r.Source.Title != "":
			return r.Source.Title
		}
	}
	return r.Chunk.DocumentID
}
