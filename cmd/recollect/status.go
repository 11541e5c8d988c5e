package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/scrypster/recollect/internal/remote"
	"github.com/scrypster/recollect/pkg/types"
)

var statusWait bool

var statusCmd = &cobra.Command{
	Use:   "status [media-id]",
	Short: "Show the processing status of a media record",
	Long: `Shows a record's processing status. With a remote URL configured the
centralized server is asked; otherwise the local store is read.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWait, "wait", "w", false, "Poll until analysis completes or fails")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	id := args[0]
	out := cmd.OutOrStdout()

	if cfg.Remote.URL != "" {
		client, err := remote.NewClient(cfg.Remote)
		if err != nil {
			return err
		}
		if !statusWait {
			st, err := client.Status(ctx, id)
			if err != nil {
				return err
			}
			printStatus(out, st.MediaID, st.Status, true)
			return nil
		}
		st, done, err := client.WaitForProcessing(ctx, id)
		if err != nil {
			return err
		}
		if st == nil {
			return fmt.Errorf("no status received for %s before the poll deadline", id)
		}
		printStatus(out, st.MediaID, st.Status, done)
		return nil
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if !statusWait {
		status, err := a.engine.Status(ctx, id)
		if err != nil {
			return err
		}
		printStatus(out, id, status, true)
		return nil
	}

	status, done := a.engine.WaitForStatus(ctx, id, cfg.Remote.PollInterval, cfg.Remote.PollTimeout)
	if status == "" {
		return fmt.Errorf("media %s not found", id)
	}
	printStatus(out, id, status, done)
	return nil
}

func printStatus(w io.Writer, id string, status types.ProcessingStatus, settled bool) {
	if !settled {
		fmt.Fprintf(w, "%s: %s (still running when polling stopped)\n", id, status)
		return
	}
	fmt.Fprintf(w, "%s: %s\n", id, status)
}
