package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"TaskForce/internal/audit"
)

var journalFlags struct {
	kind    string
	subject string
}

var journalCmd = &cobra.Command{
	Use:   "journal <file>",
	Short: "Print a compressed session journal",
	Long: `Decodes a journal-<session>-<hour>.jsonl.zst file written by the server
and prints its entries in order, optionally filtered by kind or subject.`,
	Args: cobra.ExactArgs(1),
	RunE: runJournal,
}

func init() {
	journalCmd.Flags().StringVar(&journalFlags.kind, "kind", "", "only entries of this kind (task, trigger, phase, reward)")
	journalCmd.Flags().StringVar(&journalFlags.subject, "subject", "", "only entries about this task, trigger, phase or target")
	rootCmd.AddCommand(journalCmd)
}

func runJournal(cmd *cobra.Command, args []string) error {
	entries, err := audit.ReadJournal(args[0])
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	printEntries(cmd.OutOrStdout(), filterEntries(entries, journalFlags.kind, journalFlags.subject))
	return nil
}

func filterEntries(entries []audit.Entry, kind, subject string) []audit.Entry {
	if kind == "" && subject == "" {
		return entries
	}
	out := entries[:0:0]
	for _, e := range entries {
		if kind != "" && string(e.Kind) != kind {
			continue
		}
		if subject != "" && e.Subject != subject {
			continue
		}
		out = append(out, e)
	}
	return out
}

func printEntries(w io.Writer, entries []audit.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTICK\tKIND\tSUBJECT\tCHANGE")
	for _, e := range entries {
		change := e.To
		if e.From != "" {
			change = e.From + " -> " + e.To
		}
		if e.Kind == audit.KindReward {
			change = fmt.Sprintf("%s %+g", e.To, e.Amount)
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", e.Seq, e.Tick, e.Kind, e.Subject, change)
	}
	tw.Flush()
}
