package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrypster/recollect/internal/notify"
)

var reanalyzeUser string

var reanalyzeCmd = &cobra.Command{
	Use:   "reanalyze",
	Short: "Re-run analysis over stored media",
	Long:  `Re-describes every stored record (or one user's records), replacing descriptions, transcripts, embeddings and object sightings.`,
	Args:  cobra.NoArgs,
	RunE:  runReanalyze,
}

func init() {
	reanalyzeCmd.Flags().StringVarP(&reanalyzeUser, "user", "u", "", "Only re-analyse this user's media")
}

func runReanalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	// A running server relays these to its websocket clients.
	if sharesStorage(cfg.Storage) {
		a.engine.OnStatusChange(notify.NewEventWriter(cfg.Storage.DataPath).PublishStatus)
	}

	described, total, err := a.engine.ReanalyzeAll(ctx, reanalyzeUser)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Described %d of %d records\n", described, total)
	return nil
}
