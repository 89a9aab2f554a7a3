package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/provider-cli/internal/model"
	"github.com/sells-group/provider-cli/internal/sink"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [payloads.jsonl]",
	Short: "Normalize raw adapter payloads",
	Long: "Reads JSON Lines of {\"source_state\",\"provider_url\",\"fields\"} from a file or stdin, " +
		"builds each into a provider record, and writes the records as JSON Lines or CSV. " +
		"Rejected payloads are logged and kept in the run log.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("normalize"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		upsert, _ := cmd.Flags().GetBool("store")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fileSink, err := openOutput(format, out, nil)
		if err != nil {
			return err
		}
		sinks := sink.Multi{fileSink}
		if upsert {
			sinks = append(sinks, sink.NewStore(st, cfg.Ingest.StoreBatch))
		}

		eng := newEngine(st, nil, nil)
		var run *model.Run
		if len(args) == 0 || args[0] == "-" {
			run, err = eng.ImportPayloadStream(ctx, "payload:stdin", os.Stdin, sinks)
		} else {
			run, err = eng.ImportPayloads(ctx, args[0], sinks)
		}
		if cerr := sinks.Close(ctx); cerr != nil && err == nil {
			err = eris.Wrap(cerr, "normalize: close output")
		}
		if err != nil {
			return err
		}

		zap.L().Info("normalize complete",
			zap.String("run_id", run.ID),
			zap.Int("rows", run.Stats.Rows),
			zap.Int("written", run.Stats.Written),
			zap.Int("warnings", run.Stats.Warnings),
			zap.Int("schema_errors", run.Stats.SchemaErrors),
			zap.Int("validation_errors", run.Stats.ValidationErrors),
		)
		return nil
	},
}

func init() {
	normalizeCmd.Flags().String("format", "jsonl", "output format: jsonl, csv, or none")
	normalizeCmd.Flags().String("out", "", "output file (default stdout)")
	normalizeCmd.Flags().Bool("store", false, "also upsert records into the store")
	rootCmd.AddCommand(normalizeCmd)
}
