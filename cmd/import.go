package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/provider-cli/internal/ingest"
	"github.com/sells-group/provider-cli/internal/sink"
)

var importCmd = &cobra.Command{
	Use:   "import [source...]",
	Short: "Import state licensing exports",
	Long: "Downloads each selected source export (or reads --file), builds normalized provider records, " +
		"upserts them into the store, and records the run. With no arguments every source is selected.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("import"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		states, _ := cmd.Flags().GetStringSlice("state")
		file, _ := cmd.Flags().GetString("file")
		force, _ := cmd.Flags().GetBool("force")
		noStore, _ := cmd.Flags().GetBool("no-store")
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		reg, err := initRegistry()
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var sinks sink.Multi
		if !noStore {
			sinks = append(sinks, sink.NewStore(st, cfg.Ingest.StoreBatch))
		}
		if out != "" {
			fileSink, err := openOutput(format, out, states)
			if err != nil {
				return err
			}
			sinks = append(sinks, fileSink)
		}

		eng := newEngine(st, initFetcher(reg), reg)
		results, runErr := eng.Run(ctx, ingest.RunOpts{
			Sources: args,
			States:  states,
			File:    file,
			Force:   force,
			Sink:    sinks,
		})
		if err := sinks.Close(ctx); err != nil && runErr == nil {
			runErr = eris.Wrap(err, "import: close sinks")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
		if runErr != nil {
			return runErr
		}

		failed := 0
		for _, r := range results {
			if r.Error != "" {
				failed++
			}
		}
		if failed > 0 {
			zap.L().Warn("some sources failed", zap.Int("failed", failed))
			return fmt.Errorf("%d of %d sources failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringSlice("state", nil, "only import sources for these states (e.g. NY,TX)")
	importCmd.Flags().String("file", "", "read this local export instead of downloading (one source only)")
	importCmd.Flags().Bool("force", false, "import even if the remote export is unchanged")
	importCmd.Flags().Bool("no-store", false, "do not upsert records into the store")
	importCmd.Flags().String("out", "", "also write records to this file (- for stdout)")
	importCmd.Flags().String("format", "jsonl", "output format for --out: jsonl or csv")
	rootCmd.AddCommand(importCmd)
}
