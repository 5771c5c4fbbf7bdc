package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Yates-Labs/vecview/internal/ui"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse files and collections interactively",
	Long: `Open an interactive browser with the filename list, the collections of
the selected file, and an info/raw view of the selected collection.

Keys:
  tab      switch focus          1 / 2   info / raw content
  /        filter filenames      r       rescan collections
  d        delete the selected file's collections (asks y/n)
  q        quit`,
	Args: cobra.NoArgs,
	RunE: runBrowse,
}

var watchBrowse bool

func init() {
	rootCmd.AddCommand(browseCmd)
	browseCmd.Flags().BoolVar(&watchBrowse, "watch", false, "Reload when the chromem directory changes on disk")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if watchBrowse || app.cfg.Chromem.Watch {
		stop, err := startWatcher(ctx)
		if err != nil {
			return err
		}
		defer stop()
	}
	return ui.Browse(ctx, app.console)
}
