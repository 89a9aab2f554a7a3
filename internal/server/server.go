// Package server exposes the normalization pipeline over HTTP so
// out-of-process adapters can build records, and serves read-only views of
// the provider store and the ingest run log.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/provider-cli/internal/ingest"
	"github.com/sells-group/provider-cli/internal/model"
	"github.com/sells-group/provider-cli/internal/pipeline"
	"github.com/sells-group/provider-cli/internal/store"
)

// maxBodyBytes caps a single normalize request.
const maxBodyBytes = 10 << 20

// Options configures the HTTP surface.
type Options struct {
	CORSOrigins []string
}

// Server routes HTTP requests to the pipeline and the store. The store is
// optional; without it only /healthz and /v1/normalize are mounted.
type Server struct {
	builder *pipeline.Builder
	store   store.Store
	router  chi.Router
}

// New creates a Server.
func New(b *pipeline.Builder, st store.Store, opts Options) *Server {
	if b == nil {
		b = pipeline.NewBuilder(nil)
	}
	s := &Server{builder: b, store: st}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/normalize", s.handleNormalize)
		if st != nil {
			r.Get("/providers", s.handleListProviders)
			r.Get("/providers/{state}", s.handleGetProvider)
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{id}", s.handleGetRun)
			r.Get("/runs/{id}/rejects", s.handleListRejects)
		}
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			zap.L().Warn("health check: store unreachable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// normalizeResponse is the body of a successful normalize call.
type normalizeResponse struct {
	Record   map[string]any     `json:"record"`
	Warnings []pipeline.Warning `json:"warnings"`
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error   string                `json:"error"`
	Message string                `json:"message"`
	Issues  []pipeline.FieldIssue `json:"issues,omitempty"`
	Field   string                `json:"field,omitempty"`
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req ingest.Payload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "invalid request body"})
		return
	}

	rec, warnings, err := s.builder.Build(req.SourceState, req.ProviderURL, req.Fields)
	if err != nil {
		var (
			schemaErr *pipeline.SchemaError
			validErr  *pipeline.ValidationError
		)
		resp := errorResponse{Message: err.Error()}
		switch {
		case errors.As(err, &schemaErr):
			resp.Error = string(model.RejectSchema)
			resp.Issues = schemaErr.Issues
		case errors.As(err, &validErr):
			resp.Error = string(model.RejectValidation)
			resp.Field = validErr.Field
		default:
			zap.L().Error("normalize failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal error"})
			return
		}
		zap.L().Info("normalize rejected",
			zap.String("kind", resp.Error),
			zap.String("source_state", req.SourceState),
			zap.String("provider_url", req.ProviderURL),
			zap.String("reason", err.Error()),
		)
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	if warnings == nil {
		warnings = []pipeline.Warning{}
	}
	writeJSON(w, http.StatusOK, normalizeResponse{Record: rec.Map(), Warnings: warnings})
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, ok := paging(w, r)
	if !ok {
		return
	}
	recs, err := s.store.ListProviders(r.Context(), store.ProviderFilter{
		State:  q.Get("state"),
		Status: q.Get("status"),
		Search: q.Get("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Map())
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetProvider looks up one record by its natural key; the provider
// URL travels in the url query parameter.
func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	providerURL := r.URL.Query().Get("url")
	if providerURL == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "url is required"})
		return
	}
	rec, err := s.store.GetProvider(r.Context(), chi.URLParam(r, "state"), providerURL)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.Map())
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := paging(w, r)
	if !ok {
		return
	}
	runs, err := s.store.ListRuns(r.Context(), store.RunFilter{
		Source: r.URL.Query().Get("source"),
		Status: model.RunStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRejects(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := paging(w, r)
	if !ok {
		return
	}
	rejects, err := s.store.ListRejects(r.Context(), store.RejectFilter{
		RunID:  chi.URLParam(r, "id"),
		Kind:   model.RejectKind(r.URL.Query().Get("kind")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if rejects == nil {
		rejects = []model.Reject{}
	}
	writeJSON(w, http.StatusOK, rejects)
}

// paging parses limit and offset. Zero means the store default.
func paging(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: p.name + " must be a non-negative integer"})
			return 0, 0, false
		}
		*p.dst = n
	}
	return limit, offset, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "not found"})
		return
	}
	zap.L().Error("store query failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}
