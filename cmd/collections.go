package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/vecview/internal/ui"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List collections and their document counts",
	Args:  cobra.NoArgs,
	RunE:  runCollections,
}

func init() {
	rootCmd.AddCommand(collectionsCmd)
}

func runCollections(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	names, err := app.console.ListCollections(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(out, "No collections found")
		return nil
	}

	rows := make([]ui.CollectionRow, 0, len(names))
	for _, name := range names {
		row := ui.CollectionRow{Name: name}
		count, err := app.console.Count(ctx, name)
		if err != nil {
			app.logger.Warn("failed to count collection",
				slog.String("collection", name),
				slog.String("error", err.Error()))
		}
		row.Documents = count
		rows = append(rows, row)
	}

	ui.RenderCollections(out, rows)
	return nil
}
