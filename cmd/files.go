package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/vecview/internal/ui"
)

var refreshFiles bool

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List source filenames and the collections derived from them",
	Long: `Scan every collection, read the filename recorded in its first chunk,
and list the filenames with the collections that belong to them.

The mapping is cached for the configured TTL (5 minutes by default).
Use --refresh to rescan immediately.`,
	Args: cobra.NoArgs,
	RunE: runFiles,
}

func init() {
	rootCmd.AddCommand(filesCmd)
	filesCmd.Flags().BoolVar(&refreshFiles, "refresh", false, "Force a rescan of all collections")
}

func runFiles(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	filenames, summary, err := app.console.RefreshFiles(cmd.Context(), refreshFiles)
	if err != nil {
		return fmt.Errorf("failed to load file list: %w", err)
	}
	if len(filenames) == 0 {
		fmt.Fprintln(out, summary.String())
		return nil
	}

	rows := make([]ui.FileRow, len(filenames))
	for i, name := range filenames {
		rows[i] = ui.FileRow{Filename: name, Collections: app.console.CollectionsByFilename(name)}
	}
	ui.RenderFiles(out, rows, summary.String())
	return nil
}
