package main

import (
	"context"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/provider-cli/internal/fetcher"
	"github.com/sells-group/provider-cli/internal/ingest"
	"github.com/sells-group/provider-cli/internal/model"
	"github.com/sells-group/provider-cli/internal/pipeline"
	"github.com/sells-group/provider-cli/internal/sink"
	"github.com/sells-group/provider-cli/internal/source"
	"github.com/sells-group/provider-cli/internal/store"
)

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "providers.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// initRegistry loads the built-in sources plus any configured mapping files.
func initRegistry() (*source.Registry, error) {
	return source.DefaultRegistry(model.DefaultDictionary(), cfg.Sources.Files...)
}

// initFetcher builds the HTTP fetcher, adding the configured rate for every
// source host without a built-in limiter.
func initFetcher(reg *source.Registry) *fetcher.HTTPFetcher {
	limiters := make(map[string]*rate.Limiter)
	defaults := fetcher.DefaultRateLimiters()
	for _, d := range reg.All() {
		if !d.IsRemote() {
			continue
		}
		host := hostOf(d.Location)
		if _, ok := defaults[host]; ok || host == "" {
			continue
		}
		limiters[host] = rate.NewLimiter(rate.Limit(cfg.Fetch.RatePerSec), 1)
	}

	headers := map[string]string{}
	if cfg.Fetch.AppToken != "" {
		headers["X-App-Token"] = cfg.Fetch.AppToken
	}
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries:   cfg.Fetch.MaxRetries,
		Headers:      headers,
		RateLimiters: limiters,
	})
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// newEngine wires an ingest engine from config.
func newEngine(st store.Store, f fetcher.Fetcher, reg *source.Registry) *ingest.Engine {
	return ingest.NewEngine(st, f, reg, pipeline.NewBuilder(nil), ingest.Options{
		Workers:     cfg.Ingest.Workers,
		RejectBatch: cfg.Ingest.RejectBatch,
		TempDir:     cfg.Ingest.TempDir,
	})
}

// stdout keeps sinks from closing the process's standard output.
type stdout struct{ io.Writer }

// openOutput creates a file sink. An empty path or "-" writes to stdout;
// format "none" discards.
func openOutput(format, path string, states []string) (sink.Sink, error) {
	if format == "none" {
		return sink.Discard{}, nil
	}

	var w io.Writer = stdout{os.Stdout}
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return nil, eris.Wrapf(err, "create %s", path)
		}
		w = f
	}

	switch format {
	case "csv":
		return sink.NewCSV(w, model.DefaultDictionary(), states...), nil
	case "jsonl", "":
		return sink.NewJSONL(w), nil
	default:
		if c, ok := w.(io.Closer); ok {
			c.Close() //nolint:errcheck
		}
		return nil, eris.Errorf("unknown output format %q (want jsonl, csv, or none)", format)
	}
}
