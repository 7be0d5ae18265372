package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"devsolver/internal/adapter/store"
)

var statsTech string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what is stored per technology",
	Long: `Show document, chunk and embedding counts for one technology, or for
every technology in the store.

Examples:
  devsolver stats
  devsolver stats --tech pandas`,
	RunE: runStats,
}

var dropCmd = &cobra.Command{
	Use:   "drop <technology>",
	Short: "Remove a technology and all of its documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runDrop,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(dropCmd)
	statsCmd.Flags().StringVarP(&statsTech, "tech", "t", "", "technology (default: all)")
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	techs := []string{statsTech}
	if statsTech == "" {
		techs, err = a.search.Technologies(ctx)
		if err != nil {
			return fmt.Errorf("failed to list technologies: %w", err)
		}
		if len(techs) == 0 {
			fmt.Println("No technologies ingested yet. Run 'devsolver ingest' first.")
			return nil
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TECHNOLOGY\tDOCUMENTS\tCHUNKS\tEMBEDDINGS")
	for _, tech := range techs {
		stats, err := a.search.Stats(ctx, tech)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("technology %q has not been ingested", tech)
			}
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", stats.Technology, stats.Documents, stats.Chunks, stats.Embeddings)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nStore: %s\n", a.dbPath)
	return nil
}

func runDrop(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	tech := args[0]
	if err := a.store.DropTechnology(cmd.Context(), tech); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("technology %q has not been ingested", tech)
		}
		return err
	}
	if a.cache != nil {
		a.cache.Invalidate(tech)
	}
	fmt.Printf("Dropped %s\n", tech)
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
