package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Yates-Labs/vecview/internal/catalog"
	"github.com/Yates-Labs/vecview/internal/config"
	"github.com/Yates-Labs/vecview/internal/console"
	"github.com/Yates-Labs/vecview/internal/embed"
	"github.com/Yates-Labs/vecview/internal/inspect"
	"github.com/Yates-Labs/vecview/internal/logging"
	"github.com/Yates-Labs/vecview/internal/ui"
	"github.com/Yates-Labs/vecview/internal/vectordb"
)

var (
	configPath  string
	backendFlag string
	pathFlag    string
	debug       bool
)

// app holds what PersistentPreRunE builds for the running command.
var app struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  vectordb.Client
	console *console.Console
	cleanup func()
}

var rootCmd = &cobra.Command{
	Use:   "vecview",
	Short: "vecview - browse and maintain a persisted vector database",
	Long: `vecview inspects the collections of a vector database written by a
document ingestion pipeline.

It lists collections, maps source filenames to the collections derived from
them, shows a collection's chunks in document order, reconstructs the
source file content, and deletes every collection belonging to a file.

Backends: chromem (embedded, default), milvus, pgvector.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default ./vecview.yaml or $XDG_CONFIG_HOME/vecview/config.yaml)")
	flags.StringVar(&backendFlag, "backend", "", "Vector database backend: chromem, milvus or pgvector")
	flags.StringVar(&pathFlag, "path", "", "Path of the persisted chromem database")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
}

// Execute runs the root command
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, ui.DefaultStyles().Error.Render("Error: "+err.Error()))
}

func setup(cmd *cobra.Command, args []string) error {
	_ = teardown(cmd, args)

	cfg, err := config.Load(configPath, ".")
	if err != nil {
		return err
	}
	if backendFlag != "" {
		cfg.Backend = backendFlag
	}
	if pathFlag != "" {
		cfg.Chromem.Path = pathFlag
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	if cmd.Name() == "browse" {
		// The terminal belongs to the browser.
		cfg.Log.Stderr = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, cleanup, err := logging.Setup(cfg.LoggingConfig())
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(logger)

	client, c, err := openConsole(cmd.Context(), cfg, logger)
	if err != nil {
		cleanup()
		return err
	}

	app.cfg = cfg
	app.logger = logger
	app.client = client
	app.console = c
	app.cleanup = cleanup
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	var err error
	if app.console != nil {
		err = app.console.Close()
		app.console = nil
		app.client = nil
	}
	if app.cleanup != nil {
		app.cleanup()
		app.cleanup = nil
	}
	return err
}

func openConsole(ctx context.Context, cfg *config.Config, logger *slog.Logger) (vectordb.Client, *console.Console, error) {
	logger.Info("opening vector database",
		slog.String("backend", cfg.VectorDB().Backend),
		slog.String("path", cfg.Chromem.Path))

	client, err := vectordb.Open(ctx, cfg.VectorDB())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vector database: %w", err)
	}

	opts := []console.Option{console.WithLogger(logger)}
	if cfg.Embeddings.APIKey != "" {
		embedder, err := embed.NewOpenAIEmbedder(cfg.EmbedConfig())
		if err != nil {
			logger.Warn("search disabled", slog.String("error", err.Error()))
		} else {
			opts = append(opts, console.WithEmbedder(embedder))
		}
	}

	return client, console.New(client,
		catalog.New(client, cfg.CatalogConfig(), logger),
		inspect.New(client, cfg.InspectConfig(), logger),
		opts...), nil
}
