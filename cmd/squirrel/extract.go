package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamino/squirrel/internal/config"
	"github.com/kamino/squirrel/internal/extractor"
	"github.com/kamino/squirrel/pkg/types"
)

// newExtractCmd runs the extractor once against a single episode file,
// bypassing serve entirely. Useful for debugging a misbehaving extractor
// endpoint against a captured episode without ingesting it for real.
func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <episode.json>",
		Short: "Run the configured extractor against a single episode file and print its MemoryOps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(args[0])
		},
	}
}

func runExtract(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("squirrel: read %s: %w", path, err)
	}

	var ep types.Episode
	if err := json.Unmarshal(data, &ep); err != nil {
		return fmt.Errorf("squirrel: parse %s as an episode: %w", path, err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.Extractor.StrongModel == "" || cfg.Extractor.BaseURL == "" {
		return fmt.Errorf("squirrel: SQRL_STRONG_MODEL and SQRL_EXTRACTOR_BASE_URL must be set to run extract")
	}

	extr := extractor.NewHTTPExtractor(extractor.Config{
		BaseURL: cfg.Extractor.BaseURL,
		Model:   cfg.Extractor.StrongModel,
	})

	ops, err := extr.Extract(context.Background(), &ep, nil)
	if err != nil {
		return fmt.Errorf("squirrel: extraction failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(ops)
}
