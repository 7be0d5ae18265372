package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"devsolver/internal/domain"
)

var (
	askQuery  string
	askTech   string
	askPrefer string
	askCode   string
	askTopK   int
	askOutput string
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question from official and community documentation",
	Long: `Retrieve documentation for a question and generate one answer per source
label, each grounded only on documents carrying that label.

Examples:
  devsolver ask -q "how do I merge on two columns" --tech pandas
  devsolver ask -q "fix this KeyError" --tech pandas --code snippet.py --prefer official
  devsolver ask -q "merge performance" --tech pandas -o answer.json`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askQuery, "query", "q", "", "question (required)")
	askCmd.Flags().StringVarP(&askTech, "tech", "t", "", "technology to search (required)")
	askCmd.Flags().StringVarP(&askPrefer, "prefer", "p", string(domain.PreferBoth), "official, community or both")
	askCmd.Flags().StringVar(&askCode, "code", "", "file with code context to include")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of references per answer (default from config)")
	askCmd.Flags().StringVarP(&askOutput, "output", "o", "", "write the answer as JSON to this file")
	askCmd.MarkFlagRequired("query")
	askCmd.MarkFlagRequired("tech")
}

func runAsk(cmd *cobra.Command, args []string) error {
	q, err := buildQuestion(askQuery, askTech, askPrefer, askCode, askTopK)
	if err != nil {
		return err
	}

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.answer.Answer(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}

	if askOutput != "" {
		output, err := json.MarshalIndent(answer, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		if err := os.WriteFile(askOutput, output, 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Printf("Answer written to: %s\n", askOutput)
		return nil
	}

	for _, s := range []*domain.Solution{answer.Official, answer.Community} {
		if s == nil {
			continue
		}
		printSolution(s)
	}
	fmt.Printf("(%s)\n", answer.Elapsed.Round(10*time.Millisecond))
	return nil
}

func printSolution(s *domain.Solution) {
	fmt.Printf("=== %s solution (confidence: %.2f) ===\n\n", s.SourceLabel, s.Confidence)
	fmt.Println(s.Answer)
	if len(s.References) > 0 {
		fmt.Println("\nReferences:")
		for i, r := range s.References {
			fmt.Printf("  [%d] %s (score: %.3f)\n", i+1, referenceName(r), r.Score)
		}
	}
	fmt.Println()
}
