package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/golembase/indexer/pkg/config"
	"github.com/golembase/indexer/pkg/indexer"
	"github.com/golembase/indexer/pkg/log"
	"github.com/golembase/indexer/pkg/metrics"
	"github.com/golembase/indexer/pkg/repository"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "golembase-indexer",
	Short:   "Entity indexer for Golem Base / Arkiv storage transactions",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"golembase-indexer version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	config.BindFlags(rootCmd)
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(listEntityKeysCmd)
	rootCmd.AddCommand(reindexEntityCmd)
}

func initLogging() {
	cfg := config.FromFlags(rootCmd)
	log.Init(log.Config{
		Level:      cfg.LogLevel,
		JSONOutput: cfg.LogJSON,
	})
	metrics.SetVersion(Version)
}

func openRepository(ctx context.Context, cmd *cobra.Command) (*repository.Repository, config.Config, error) {
	cfg := config.FromFlags(cmd)
	repo, err := repository.OpenDSN(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, cfg, fmt.Errorf("connect to database: %w", err)
	}
	return repo, cfg, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the indexer continuously, ticking on an interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		repo, cfg, err := openRepository(ctx, cmd)
		if err != nil {
			return err
		}
		defer repo.Close()

		svc := indexer.New(repo, cfg)
		return svc.Run(ctx)
	},
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single tick cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		repo, cfg, err := openRepository(ctx, cmd)
		if err != nil {
			return err
		}
		defer repo.Close()

		svc := indexer.New(repo, cfg)
		return svc.Tick(ctx)
	},
}

var listEntityKeysCmd = &cobra.Command{
	Use:   "list-entity-keys",
	Short: "Print how many entities are tracked in each status (the keys themselves are not listed)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		repo, _, err := openRepository(ctx, cmd)
		if err != nil {
			return err
		}
		defer repo.Close()

		counts, err := repo.EntityCountsByStatus(ctx)
		if err != nil {
			return fmt.Errorf("count entities: %w", err)
		}
		for status, count := range counts {
			fmt.Printf("%s: %d\n", status, count)
		}
		return nil
	},
}

var reindexEntityCmd = &cobra.Command{
	Use:   "reindex-entity <key>",
	Short: "Rebuild one entity's derived state from its full operation history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args[0]) != 66 || args[0][:2] != "0x" {
			return fmt.Errorf("%q is not a 32-byte hex entity key", args[0])
		}
		key := common.HexToHash(args[0])

		ctx := context.Background()

		repo, cfg, err := openRepository(ctx, cmd)
		if err != nil {
			return err
		}
		defer repo.Close()

		svc := indexer.New(repo, cfg)
		return svc.ReindexEntity(ctx, key)
	},
}
