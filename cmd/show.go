package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/vecview/internal/ui"
)

var showCmd = &cobra.Command{
	Use:   "show [collection]",
	Short: "Show file info, embedding config and all segments of a collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var rawCmd = &cobra.Command{
	Use:   "raw [collection]",
	Short: "Reconstruct the source file content of a collection",
	Long: `Fetch every chunk of a collection, order them by their start index,
and print the joined content.`,
	Args: cobra.ExactArgs(1),
	RunE: runRaw,
}

var fileCmd = &cobra.Command{
	Use:   "file [filename]",
	Short: "Show the first collection derived from a source filename",
	Long: `Look up the collections derived from a filename and show the info
view and the reconstructed content of the first one.

Examples:
  vecview file report.pdf
  vecview file "meeting notes.md" --refresh`,
	Args: cobra.ExactArgs(1),
	RunE: runFile,
}

var refreshBeforeFile bool

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(rawCmd)
	rootCmd.AddCommand(fileCmd)
	fileCmd.Flags().BoolVar(&refreshBeforeFile, "refresh", false, "Force a rescan before looking up the filename")
}

func runShow(cmd *cobra.Command, args []string) error {
	view, err := app.console.ViewCollection(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), view.Text)
	return nil
}

func runRaw(cmd *cobra.Command, args []string) error {
	raw, err := app.console.Inspector().Raw(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), raw)
	return nil
}

func runFile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	filename := args[0]

	if _, _, err := app.console.RefreshFiles(ctx, refreshBeforeFile); err != nil {
		return fmt.Errorf("failed to load file list: %w", err)
	}

	view, err := app.console.ViewFile(ctx, filename)
	if err != nil {
		return err
	}

	styles := ui.DefaultStyles()
	collections := app.console.CollectionsByFilename(filename)

	fmt.Fprintln(out, styles.Header.Render(filename))
	fmt.Fprintln(out, styles.Dim.Render(fmt.Sprintf("%d collections, showing %s", len(collections), view.Collection)))
	fmt.Fprintln(out)
	fmt.Fprintln(out, view.Text)
	fmt.Fprintln(out)
	fmt.Fprintln(out, view.Raw)
	return nil
}
