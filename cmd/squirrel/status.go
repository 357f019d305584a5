package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kamino/squirrel/internal/config"
	"github.com/kamino/squirrel/internal/storage"
	"github.com/kamino/squirrel/internal/storage/sqlite"
	"github.com/kamino/squirrel/pkg/types"
)

func newStatusCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize active memories in the local store by kind and tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(projectID)
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "restrict to a single project_id (default: all)")
	return cmd
}

func runStatus(projectID string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	store, err := sqlite.NewMemoryStore(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("squirrel: open database at %q: %w", cfg.Storage.DBPath, err)
	}
	defer store.Close()

	ctx := context.Background()
	filter := storage.ActiveMemoryFilter{ProjectID: projectID}
	memories, err := store.GetActiveMemories(ctx, filter, 0)
	if err != nil {
		return fmt.Errorf("squirrel: query active memories: %w", err)
	}

	byKind := map[types.MemoryKind]int{}
	byTier := map[types.MemoryTier]int{}
	for _, m := range memories {
		byKind[m.Kind]++
		byTier[m.Tier]++
	}

	fmt.Printf("%d active memories\n", len(memories))
	fmt.Println("\nby kind:")
	for _, k := range types.AllKinds {
		if n := byKind[k]; n > 0 {
			fmt.Printf("  %-12s %d\n", k, n)
		}
	}
	fmt.Println("\nby tier:")
	for _, t := range []types.MemoryTier{types.TierEmergency, types.TierLongTerm, types.TierShortTerm} {
		if n := byTier[t]; n > 0 {
			fmt.Printf("  %-12s %d\n", t, n)
		}
	}
	return nil
}
