package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shehryarbajwa/hypercart/internal/config"
	"github.com/shehryarbajwa/hypercart/internal/logging"
	"github.com/shehryarbajwa/hypercart/internal/store"
)

func newCardsCmd(v *viper.Viper, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cards",
		Short: "Manage generated cards",
	}

	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export every stored card as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportCards(cmd.Context(), v, flags, out, cmd.OutOrStdout())
		},
	}
	export.Flags().StringVar(&out, "out", "-", "output file, - for stdout")

	cmd.AddCommand(export)
	return cmd
}

func exportCards(ctx context.Context, v *viper.Viper, flags *rootFlags, out string, stdout io.Writer) error {
	cfg, err := config.Load(v, flags.configFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	w := stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}

	n, err := store.NewCardStore(db, cfg.SnapshotDir).ExportCSV(ctx, w)
	if err != nil {
		return err
	}
	if out != "-" {
		fmt.Fprintf(stdout, "✓ Exported %d cards to %s\n", n, out)
	}
	return nil
}
