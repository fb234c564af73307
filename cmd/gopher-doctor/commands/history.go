package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonyjoanes/gopher-doctor/internal/report"
	"github.com/tonyjoanes/gopher-doctor/internal/store"
)

var (
	historyLimit  int
	historyOutput string
	pruneOlder    time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history [namespace]",
	Short: "List saved diagnostic reports",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var namespace string
		if len(args) > 0 {
			namespace = args[0]
		}
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer s.Close()

		records, err := s.List(cmd.Context(), namespace, historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No saved reports.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAMESPACE\tCREATED\tCRITICAL\tWARNING\tSUMMARY")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				r.ID, r.Namespace, r.CreatedAt.Format(time.RFC3339), r.Critical, r.Warning, r.Summary)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one saved report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(historyOutput)
		if err != nil {
			return err
		}
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer s.Close()

		rec, err := s.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		r, err := rec.Report()
		if err != nil {
			return err
		}
		return report.Encode(cmd.OutOrStdout(), r, format)
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete saved reports older than a duration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if pruneOlder <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.Prune(cmd.Context(), pruneOlder)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d report(s).\n", n)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", store.DefaultListLimit, "Maximum number of reports to list")
	historyShowCmd.Flags().StringVarP(&historyOutput, "output", "o", "markdown", "Output format: markdown, json or yaml")
	historyPruneCmd.Flags().DurationVar(&pruneOlder, "older-than", 30*24*time.Hour, "Delete reports older than this")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
}
