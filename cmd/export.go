package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/vecview/internal/export"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export [collection]",
	Short: "Export the segments of a collection as JSON or CSV",
	Long: `Export every segment of a collection in document order.

Examples:
  vecview export c1
  vecview export c1 --format csv --output c1.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format: json or csv")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to a file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	if _, err := export.ContentType(exportFormat); err != nil {
		return err
	}

	segments, err := app.console.Inspector().Segments(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if exportOutput == "" {
		return export.ExportSegments(segments, exportFormat, cmd.OutOrStdout())
	}

	file, err := os.Create(exportOutput)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := export.ExportSegments(segments, exportFormat, file); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d segments to %s\n", len(segments), exportOutput)
	return nil
}
