package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-cli/internal/fetcher"
	"github.com/sells-group/provider-cli/internal/model"
	"github.com/sells-group/provider-cli/internal/sink"
)

// Payload is one adapter output: the jurisdiction, the natural key, and the
// raw field mapping.
type Payload struct {
	SourceState string         `json:"source_state"`
	ProviderURL string         `json:"provider_url"`
	Fields      map[string]any `json:"fields"`
}

// ImportPayloads runs a JSON Lines file of adapter payloads through the
// pipeline as a single run named "payload:<file>". A line that is not a
// payload object is rejected as a schema error.
func (e *Engine) ImportPayloads(ctx context.Context, path string, out sink.Sink) (*model.Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return e.ImportPayloadStream(ctx, "payload:"+filepath.Base(path), f, out)
}

// ImportPayloadStream is ImportPayloads over an arbitrary reader.
func (e *Engine) ImportPayloadStream(ctx context.Context, name string, r io.Reader, out sink.Sink) (*model.Run, error) {
	if out == nil {
		out = sink.Discard{}
	}
	log := zap.L().With(zap.String("source", name))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run, err := e.store.CreateRun(ctx, name)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: create run for %s", name)
	}
	log = log.With(zap.String("run_id", run.ID))

	start := time.Now()
	p := e.newProcessor(run.ID, out, log)
	lines, errs := fetcher.StreamJSONLines[Payload](ctx, r)
	for line := range lines {
		if line.Err != nil {
			p.stats.Rows++
			p.stats.SchemaErrors++
			log.Warn("row rejected", zap.Int("line", line.Num), zap.Error(line.Err))
			err := p.addReject(ctx, model.Reject{
				RunID:  run.ID,
				Kind:   model.RejectSchema,
				Reason: line.Err.Error(),
			})
			if err != nil {
				cancel()
				for range lines { //nolint:revive // drain so the stream goroutine exits
				}
				return e.finish(ctx, run, p, err, log)
			}
			continue
		}

		pl := line.Value
		if err := p.process(ctx, pl.SourceState, pl.ProviderURL, pl.Fields, pl); err != nil {
			cancel()
			for range lines { //nolint:revive // drain so the stream goroutine exits
			}
			return e.finish(ctx, run, p, err, log)
		}
	}
	runErr := <-errs
	if runErr == nil {
		runErr = ctx.Err()
	}
	run, err = e.finish(ctx, run, p, runErr, log)
	if err != nil {
		return run, err
	}

	log.Info("payload import complete",
		zap.Int("rows", p.stats.Rows),
		zap.Int("written", p.stats.Written),
		zap.Int("rejected", p.stats.Rejected()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return run, nil
}
