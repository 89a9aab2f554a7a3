// Package ingest runs state licensing exports through the normalization
// pipeline: it fetches each source, maps its rows onto the field
// dictionary, builds records, writes them to the configured sinks, and
// records every run and rejected row in the store.
package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/provider-cli/internal/fetcher"
	"github.com/sells-group/provider-cli/internal/model"
	"github.com/sells-group/provider-cli/internal/pipeline"
	"github.com/sells-group/provider-cli/internal/sink"
	"github.com/sells-group/provider-cli/internal/source"
	"github.com/sells-group/provider-cli/internal/store"
)

// Defaults for Options.
const (
	DefaultWorkers     = 4
	DefaultRejectBatch = 200
)

// Options configures an Engine.
type Options struct {
	Workers     int    // sources imported concurrently
	RejectBatch int    // rejects buffered before they are recorded
	TempDir     string // where xlsx downloads are staged
}

// Engine orchestrates import runs.
type Engine struct {
	store   store.Store
	fetcher fetcher.Fetcher
	reg     *source.Registry
	builder *pipeline.Builder
	opts    Options
}

// NewEngine creates an import engine.
func NewEngine(st store.Store, f fetcher.Fetcher, reg *source.Registry, b *pipeline.Builder, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.RejectBatch <= 0 {
		opts.RejectBatch = DefaultRejectBatch
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if b == nil {
		b = pipeline.NewBuilder(nil)
	}
	return &Engine{store: st, fetcher: f, reg: reg, builder: b, opts: opts}
}

// RunOpts selects which sources to import and how.
type RunOpts struct {
	Sources []string // restrict to these source names
	States  []string // restrict to sources of these states
	File    string   // read a local export instead of downloading; needs exactly one source
	Force   bool     // import even when the remote export is unchanged
	Sink    sink.Sink
}

// Result is the outcome of one source.
type Result struct {
	Source  string     `json:"source"`
	Run     *model.Run `json:"run,omitempty"`
	Skipped bool       `json:"skipped,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// Run imports the selected sources concurrently. A failing source is logged
// and recorded; it does not stop the others. Results come back in selection
// order. The sink is not closed.
func (e *Engine) Run(ctx context.Context, opts RunOpts) ([]Result, error) {
	log := zap.L().With(zap.String("component", "ingest.engine"))

	defs, err := e.reg.Select(opts.Sources, opts.States)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		log.Info("no sources selected")
		return nil, nil
	}
	if opts.File != "" && len(defs) != 1 {
		return nil, eris.Errorf("ingest: --file needs exactly one source, %d selected", len(defs))
	}

	log.Info("selected sources", zap.Int("count", len(defs)))

	out := &lockedSink{s: opts.Sink}
	if opts.Sink == nil {
		out.s = sink.Discard{}
	}

	results := make([]Result, len(defs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i, d := range defs {
		g.Go(func() error {
			res := Result{Source: d.Name}
			run, err := e.importSource(gctx, d, opts, out)
			switch {
			case eris.Is(err, errUnchanged):
				res.Skipped = true
			case err != nil:
				res.Error = err.Error()
				log.Error("source import failed", zap.String("source", d.Name), zap.Error(err))
			}
			res.Run = run
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	var imported, skipped, failed int
	for _, r := range results {
		switch {
		case r.Skipped:
			skipped++
		case r.Error != "":
			failed++
		default:
			imported++
		}
	}
	log.Info("import complete",
		zap.Int("imported", imported),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	return results, ctx.Err()
}

var errUnchanged = eris.New("ingest: export unchanged")

// importSource opens the export for d and processes it as one run.
func (e *Engine) importSource(ctx context.Context, d *source.Definition, opts RunOpts, out sink.Sink) (*model.Run, error) {
	log := zap.L().With(zap.String("source", d.Name), zap.String("state", d.State))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		rows    <-chan source.Row
		errs    <-chan error
		newETag string
	)

	switch {
	case opts.File != "":
		rows, errs = source.StreamFile(ctx, d, opts.File)
	case !d.IsRemote():
		return nil, eris.Errorf("ingest: source %s has no download location; pass a local export", d.Name)
	default:
		etag := ""
		if !opts.Force {
			var err error
			if etag, err = e.store.GetSourceETag(ctx, d.Name); err != nil {
				return nil, eris.Wrapf(err, "ingest: etag for %s", d.Name)
			}
		}
		body, tag, changed, err := e.fetcher.DownloadIfChanged(ctx, d.Location, etag)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: download %s", d.Name)
		}
		if !changed {
			log.Info("export unchanged, skipping", zap.String("etag", etag))
			return nil, errUnchanged
		}
		newETag = tag

		if d.Format == source.FormatXLSX {
			path, err := e.stage(d, body)
			if err != nil {
				return nil, err
			}
			defer os.Remove(path) //nolint:errcheck
			rows, errs = source.StreamFile(ctx, d, path)
		} else {
			defer body.Close() //nolint:errcheck
			rows, errs = source.Stream(ctx, d, body)
		}
	}

	run, err := e.store.CreateRun(ctx, d.Name)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: create run for %s", d.Name)
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("starting import")

	start := time.Now()
	p := e.newProcessor(run.ID, out, log)
	for row := range rows {
		url, fields := d.Map(row)
		payload := map[string]any{
			"source_state": d.State,
			"provider_url": url,
			"fields":       fields,
			"source":       d.Name,
			"row":          row.Num,
		}
		if err := p.process(ctx, d.State, url, fields, payload); err != nil {
			cancel()
			for range rows { //nolint:revive // drain so the stream goroutine exits
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

	if newETag != "" {
		if err := e.store.SetSourceETag(ctx, d.Name, newETag); err != nil {
			log.Warn("failed to store etag", zap.Error(err))
		}
	}
	log.Info("import complete",
		zap.Int("rows", p.stats.Rows),
		zap.Int("written", p.stats.Written),
		zap.Int("rejected", p.stats.Rejected()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return run, nil
}

// stage copies an xlsx download to a temp file.
func (e *Engine) stage(d *source.Definition, body io.ReadCloser) (string, error) {
	defer body.Close() //nolint:errcheck

	f, err := os.CreateTemp(e.opts.TempDir, filepath.Base(d.Name)+"-*.xlsx")
	if err != nil {
		return "", eris.Wrap(err, "ingest: create temp file")
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()           //nolint:errcheck
		os.Remove(f.Name()) //nolint:errcheck
		return "", eris.Wrapf(err, "ingest: stage %s", d.Name)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name()) //nolint:errcheck
		return "", eris.Wrap(err, "ingest: close temp file")
	}
	return f.Name(), nil
}

// finish flushes pending rejects and records the run outcome. The run is
// recorded with a fresh context so a cancelled import still closes its run.
func (e *Engine) finish(ctx context.Context, run *model.Run, p *processor, runErr error, log *zap.Logger) (*model.Run, error) {
	recordCtx := context.WithoutCancel(ctx)
	if err := p.flushRejects(recordCtx); err != nil && runErr == nil {
		runErr = err
	}
	if err := e.store.FinishRun(recordCtx, run.ID, p.stats, runErr); err != nil {
		log.Error("failed to record run outcome", zap.Error(err))
	}

	now := time.Now().UTC()
	run.Stats = p.stats
	run.FinishedAt = &now
	run.Status = model.RunStatusComplete
	if runErr != nil {
		run.Status = model.RunStatusFailed
		run.Error = runErr.Error()
		return run, runErr
	}
	return run, nil
}

// lockedSink serializes writes from concurrent source imports.
type lockedSink struct {
	mu sync.Mutex
	s  sink.Sink
}

func (l *lockedSink) Write(ctx context.Context, rec *model.ProviderRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.Write(ctx, rec)
}

func (l *lockedSink) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.Close(ctx)
}
