package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/recollect/pkg/types"
)

var askTrace bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about your captured media",
	Long:  `Answers a question through the retrieval hierarchy and prints the answer, its confidence and the proof it rests on.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askTrace, "trace", false, "Print the retrieval trace as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	question := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	if !askTrace {
		printAnswer(out, a.engine.Search(ctx, question))
		return nil
	}

	res, debug := a.engine.SearchWithTrace(ctx, question)
	printAnswer(out, res)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(debug)
}

func printAnswer(w io.Writer, res *types.SearchResult) {
	fmt.Fprintln(w, res.Answer)
	fmt.Fprintf(w, "\nConfidence: %s (via %s)\n", res.ConfidenceLabel, res.Path)
	if len(res.ExpandedTerms) > 1 {
		fmt.Fprintf(w, "Searched for: %s\n", strings.Join(res.ExpandedTerms, ", "))
	}
	if len(res.Proof) == 0 {
		return
	}
	fmt.Fprintln(w, "Proof:")
	for _, p := range res.Proof {
		line := fmt.Sprintf("  - [%s] %s: %s", p.Type, p.MediaID, p.Detail)
		if p.Timestamp != nil {
			line += " (" + p.Timestamp.Format("2006-01-02 15:04") + ")"
		}
		fmt.Fprintln(w, line)
	}
}
