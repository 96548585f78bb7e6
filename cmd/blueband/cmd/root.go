// Package cmd provides the CLI commands for Blueband.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blueband-db/blueband/internal/blueband"
	"github.com/blueband-db/blueband/internal/cache"
	"github.com/blueband-db/blueband/internal/config"
	"github.com/blueband-db/blueband/internal/embed"
	"github.com/blueband-db/blueband/internal/logging"
	"github.com/blueband-db/blueband/internal/storage"
	"github.com/blueband-db/blueband/pkg/version"
)

var (
	configPath     string
	principalFlag  string
	debugMode      bool
	offlineMode    bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the blueband CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blueband",
		Short: "Persistent vector database for semantic search",
		Long: `Blueband ingests text documents, chunks them, embeds the chunks through
an external embedding proxy, and answers nearest-neighbour queries with a
two-tier similarity search over durable storage.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("blueband version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVar(&principalFlag, "principal", "local-admin", "Caller principal for admin operations")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.blueband/logs/")
	cmd.PersistentFlags().BoolVar(&offlineMode, "offline", false, "Use the deterministic local embedder (no proxy calls)")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(
		newServeCmd(),
		newCollectionCmd(),
		newDocumentCmd(),
		newSearchCmd(),
		newCacheCmd(),
		newStatsCmd(),
		newVersionCmd(),
	)

	return cmd
}

func setupLogging(*cobra.Command, []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	cfg.WriteToStderr = false

	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

// openService loads config and wires the full service stack. The returned
// closer releases the storage lock.
func openService() (*blueband.Service, *config.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, nil, err
	}

	var embedder embed.Client
	if offlineMode || cfg.Embedding.Offline {
		embedder = embed.NewStaticClient()
	} else {
		embedder = embed.NewCachedClient(embed.NewHTTPClient(cfg.EmbedderSettings()), 0)
	}

	service := blueband.New(store, cache.New(cfg.CacheSettings()), embedder)
	closer := func() { _ = store.Close() }
	return service, cfg, closer, nil
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
