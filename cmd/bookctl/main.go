// Command bookctl builds and queries static book package indexes on disk.
//
// Usage:
//
//	bookctl build <package> <units.json>
//	bookctl packages
//	bookctl search [--quick|--suggest] [--package p] <query>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/access"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/bookindex"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/logger"
)

// principal is the identity bookctl searches as. Every loaded package is
// granted to everyone, so it sees all of them.
const principal = "bookctl"

var (
	flagConfig  string
	flagDataDir string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:          "bookctl",
	Short:        "Build and query static book package indexes",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if flagVerbose {
			level = "debug"
		}
		logger.Setup(level, "text")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "configs/development.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "segment directory (overrides books.dataDir)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log at debug level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// openLibrary loads every segment under the configured data directory.
func openLibrary(ctx context.Context) (*bookindex.Library, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flagDataDir != "" {
		cfg.Books.DataDir = flagDataDir
	}
	rank, err := ranker.New(cfg.Search.Ranker)
	if err != nil {
		return nil, err
	}
	grants := access.NewGrants()
	library := bookindex.NewLibrary(bookindex.Config{
		DataDir:       cfg.Books.DataDir,
		NgramMinSize:  cfg.Indexer.NgramMinSize,
		NgramMaxSize:  cfg.Indexer.NgramMaxSize,
		Ranker:        rank,
		SnippetBefore: cfg.Search.SnippetBefore,
		SnippetAfter:  cfg.Search.SnippetAfter,
	}, grants, nil)
	if _, err := library.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading %s: %w", cfg.Books.DataDir, err)
	}
	for _, pkg := range library.Packages() {
		grants.Allow(pkg, access.Everyone)
	}
	return library, nil
}
