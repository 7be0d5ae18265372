package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"devsolver/internal/domain"
)

var (
	queryText   string
	queryTech   string
	queryTopK   int
	querySource string
	queryJSON   bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search ingested documentation",
	Long: `Search a technology's documentation with hybrid lexical and semantic ranking.

Examples:
  devsolver query -q "merge two dataframes" --tech pandas
  devsolver query -q "groupby" --tech pandas --source community --top-k 10 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().StringVarP(&queryTech, "tech", "t", "", "technology to search (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().StringVarP(&querySource, "source", "s", "", "only search official or community documents")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
	queryCmd.MarkFlagRequired("tech")
}

func runQuery(cmd *cobra.Command, args []string) error {
	source := domain.SourceLabel(querySource)
	if source != "" && !source.Valid() {
		return fmt.Errorf("invalid source %q: must be official or community", querySource)
	}

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.search.HybridSearch(cmd.Context(), queryText, queryTech, queryTopK, source)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		if results == nil {
			results = []domain.ScoredResult{}
		}
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(results), queryText)
	for i, r := range results {
		fmt.Printf("--- [%d] %s #%d [%s] (score: %.3f) ---\n",
			i+1, referenceName(r), r.Chunk.Ordinal, r.SourceLabel, r.Score)
		text := []rune(r.Chunk.Content)
		if len(text) > 500 {
			text = append(text[:500], []rune("...")...)
		}
		fmt.Println(string(text))
		fmt.Println()
	}
	return nil
}
