package ingest

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-cli/internal/model"
	"github.com/sells-group/provider-cli/internal/pipeline"
	"github.com/sells-group/provider-cli/internal/sink"
)

// processor builds the payloads of a single run. Its stats are only read
// after the run ends.
type processor struct {
	e       *Engine
	runID   string
	out     sink.Sink
	log     *zap.Logger
	stats   model.RunStats
	rejects []model.Reject
}

func (e *Engine) newProcessor(runID string, out sink.Sink, log *zap.Logger) *processor {
	return &processor{e: e, runID: runID, out: out, log: log}
}

// process builds one payload and writes the record. Schema and validation
// failures become rejects; only sink and store failures are returned.
func (p *processor) process(ctx context.Context, state, url string, fields map[string]any, payload any) error {
	p.stats.Rows++

	rec, warnings, err := p.e.builder.Build(state, url, fields)
	if err != nil {
		return p.reject(ctx, state, url, err, payload)
	}

	p.stats.Built++
	p.stats.Warnings += len(warnings)
	for _, w := range warnings {
		p.log.Debug("normalization warning",
			zap.String("provider_url", rec.ProviderURL),
			zap.String("field", w.Field),
			zap.String("reason", w.Reason),
		)
	}

	if err := p.out.Write(ctx, rec); err != nil {
		return eris.Wrapf(err, "ingest: write %s", rec.ProviderURL)
	}
	p.stats.Written++
	return nil
}

func (p *processor) reject(ctx context.Context, state, url string, buildErr error, payload any) error {
	r := model.Reject{
		RunID:       p.runID,
		SourceState: model.NormalizeState(state),
		ProviderURL: url,
		Reason:      buildErr.Error(),
	}

	var (
		schemaErr *pipeline.SchemaError
		validErr  *pipeline.ValidationError
	)
	switch {
	case errors.As(buildErr, &schemaErr):
		r.Kind = model.RejectSchema
		p.stats.SchemaErrors++
	case errors.As(buildErr, &validErr):
		r.Kind = model.RejectValidation
		p.stats.ValidationErrors++
	default:
		return eris.Wrap(buildErr, "ingest: build")
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			p.log.Warn("failed to encode rejected payload", zap.Error(err))
		} else {
			r.Payload = raw
		}
	}

	p.log.Warn("row rejected",
		zap.String("kind", string(r.Kind)),
		zap.String("state", r.SourceState),
		zap.String("provider_url", url),
		zap.String("reason", r.Reason),
	)

	return p.addReject(ctx, r)
}

// addReject buffers r and flushes once RejectBatch rejects are pending.
func (p *processor) addReject(ctx context.Context, r model.Reject) error {
	p.rejects = append(p.rejects, r)
	if len(p.rejects) >= p.e.opts.RejectBatch {
		return p.flushRejects(ctx)
	}
	return nil
}

func (p *processor) flushRejects(ctx context.Context) error {
	if len(p.rejects) == 0 {
		return nil
	}
	if err := p.e.store.RecordRejects(ctx, p.rejects); err != nil {
		return eris.Wrap(err, "ingest: record rejects")
	}
	p.rejects = p.rejects[:0]
	return nil
}
