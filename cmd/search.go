package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Soflution1/McpHub/internal/search"
)

// searchCmd runs an offline BM25 diagnostic query against the persistent
// schema cache without starting the proxy (spec §6: "search <q>"), useful
// for tuning prefixes and sanity-checking discover's behavior ahead of
// time.
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a BM25 query against the cached tool schemas offline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.log.Close()

		idx := rt.newIndex()
		limit, _ := cmd.Flags().GetInt("max-results")
		debug, _ := cmd.Flags().GetBool("debug")
		if debug {
			printDebugSearch(idx, args[0], limit)
			return nil
		}

		out, err := search.Discover(idx, args[0], limit)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

// printDebugSearch prints the per-term score breakdown for each hit,
// grounded on smart-mcp-proxy-mcpproxy-go's debug_search tool: useful for
// tuning k1/b against the tool set actually discovered, rather than
// against a hidden default.
func printDebugSearch(idx *search.Index, query string, limit int) {
	explanations := idx.Explain(query, limit)
	if len(explanations) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, exp := range explanations {
		fmt.Printf("%-30s score=%.4f  (%s)\n", exp.Document.Tool.Name, exp.Score, exp.Document.Server)
		for _, term := range exp.Terms {
			fmt.Printf("    %-20s tf=%d df=%d idf=%.4f contribution=%.4f\n", term.Term, term.TermFreq, term.DocFreq, term.IDF, term.Contribution)
		}
	}
}

func init() {
	searchCmd.Flags().Int("max-results", 10, "maximum number of results")
	searchCmd.Flags().Bool("debug", false, "print per-term BM25 score breakdown instead of the discover JSON payload")
}
