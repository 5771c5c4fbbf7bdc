package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/vecview/internal/console"
	"github.com/Yates-Labs/vecview/internal/ui"
)

var assumeYes bool

var deleteCmd = &cobra.Command{
	Use:   "delete [filename]",
	Short: "Delete every collection derived from a source filename",
	Long: `Delete all collections mapped to a filename. Collections that fail to
delete stay mapped so the command can be retried.

Examples:
  vecview delete report.pdf
  vecview delete report.pdf --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	filename := args[0]
	styles := ui.DefaultStyles()

	if _, _, err := app.console.RefreshFiles(ctx, false); err != nil {
		return fmt.Errorf("failed to load file list: %w", err)
	}

	collections := app.console.CollectionsByFilename(filename)
	if len(collections) == 0 {
		return fmt.Errorf("%w: %s", console.ErrUnknownFilename, filename)
	}

	if !assumeYes {
		fmt.Fprintf(out, "Delete %d collections of %s?\n", len(collections), filename)
		for _, name := range collections {
			fmt.Fprintln(out, styles.Dim.Render("  "+name))
		}
		fmt.Fprint(out, "Confirm [y/N]: ")

		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
		default:
			fmt.Fprintln(out, "Delete cancelled")
			return nil
		}
	}

	result, err := app.console.DeleteFile(ctx, filename)
	if err != nil {
		return err
	}

	if len(result.Failed) > 0 {
		fmt.Fprintln(out, styles.Error.Render("✗ "+result.Message()))
		for _, name := range result.Failed {
			fmt.Fprintln(out, styles.Dim.Render("  failed: "+name))
		}
		return fmt.Errorf("%d collections of %s could not be deleted", len(result.Failed), filename)
	}
	fmt.Fprintln(out, styles.Success.Render("✓ "+result.Message()))
	return nil
}
