package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-cli/internal/model"
	"github.com/sells-group/provider-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect import run history",
	Long:  "Commands for listing import runs, viewing one run, and listing the rows a run rejected.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List import runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		source, _ := cmd.Flags().GetString("source")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Source: source,
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs rejects --

var runsRejectsCmd = &cobra.Command{
	Use:   "rejects <run-id>",
	Short: "List the rows a run rejected",
	Long: "Lists rejected rows with their reason. With --payloads the raw payloads are printed as JSON Lines " +
		"so they can be fixed and replayed through normalize.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")
		payloads, _ := cmd.Flags().GetBool("payloads")

		rejects, err := st.ListRejects(ctx, store.RejectFilter{
			RunID: args[0],
			Kind:  model.RejectKind(kind),
			Limit: limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs rejects")
		}

		if len(rejects) == 0 {
			fmt.Fprintln(os.Stderr, "No rejects found.")
			return nil
		}

		if payloads {
			return writePayloads(os.Stdout, rejects)
		}
		formatRejects(os.Stdout, rejects)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("source", "", "filter by source name")
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsRejectsCmd.Flags().String("kind", "", "filter by reject kind (schema, validation)")
	runsRejectsCmd.Flags().Int("limit", 100, "max number of rejects to display")
	runsRejectsCmd.Flags().Bool("payloads", false, "print raw payloads as JSON Lines")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsRejectsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tROWS\tWRITTEN\tREJECTED\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t----\t-------\t--------\t-------\t--------")

	for _, r := range runs {
		dur := ""
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		source := r.Source
		if len(source) > 30 {
			source = source[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			source,
			r.Status,
			r.Stats.Rows,
			r.Stats.Written,
			r.Stats.Rejected(),
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRejects writes a tabular list of rejected rows to w.
func formatRejects(out io.Writer, rejects []model.Reject) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tSTATE\tPROVIDER_URL\tREASON")
	_, _ = fmt.Fprintln(w, "----\t-----\t------------\t------")
	for _, r := range rejects {
		reason := r.Reason
		if len(reason) > 80 {
			reason = reason[:77] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Kind, r.SourceState, r.ProviderURL, reason)
	}
	_ = w.Flush()
}

// writePayloads writes each reject's raw payload on its own line.
func writePayloads(out io.Writer, rejects []model.Reject) error {
	for _, r := range rejects {
		if len(r.Payload) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(out, "%s\n", r.Payload); err != nil {
			return err
		}
	}
	return nil
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
