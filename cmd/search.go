package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/vecview/internal/ui"
)

var searchTopK int

var searchCmd = &cobra.Command{
	Use:   "search [collection] [text]",
	Short: "Find the chunks of a collection closest to a query",
	Long: `Embed the query text with the configured embedding model and list the
nearest chunks of a collection.

Requires an API key in embeddings.api_key or OPENAI_API_KEY. The model must
match the one the collection was ingested with.

Examples:
  vecview search c1 "quarterly revenue"
  vecview search c1 "quarterly revenue" --topk 10`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchTopK, "topk", 5, "Number of chunks to return")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args[1:], " ")

	matches, err := app.console.Search(cmd.Context(), args[0], query, searchTopK)
	if err != nil {
		return err
	}
	ui.RenderMatches(cmd.OutOrStdout(), matches, app.cfg.Inspect.PreviewChars)
	return nil
}
