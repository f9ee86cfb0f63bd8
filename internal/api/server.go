// Package api serves the crawl HTTP surface: synchronous crawls, job
// creation, creative read-back, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/jobs"
	"github.com/sells-group/adcrawl/internal/model"
	"github.com/sells-group/adcrawl/internal/store"
	"github.com/sells-group/adcrawl/pkg/webhook"
)

const maxBodyBytes = 1 << 20

// JobSubmitter starts crawl workflows.
type JobSubmitter interface {
	SubmitJobs(ctx context.Context) ([]jobs.Submission, error)
	SubmitForDomain(ctx context.Context, domain, webhookURL, method string) ([]jobs.Submission, error)
	SubmitForSearch(ctx context.Context, term, webhookURL, method string) ([]jobs.Submission, error)
}

// CreativeReader reads saved creatives back.
type CreativeReader interface {
	GetCreative(ctx context.Context, code string) (*model.Creative, error)
	ListCreatives(ctx context.Context, filter store.CreativeFilter) ([]store.CreativeSummary, error)
}

// Deps are the collaborators of the HTTP handlers. Jobs and Creatives may
// be nil; their endpoints then answer 503.
type Deps struct {
	// Crawler runs /crawl and /crawl-adv.
	Crawler jobs.Runner
	// Probe runs /crawl-url with a small request budget.
	Probe     jobs.Runner
	Jobs      JobSubmitter
	Creatives CreativeReader
	Webhook   webhook.Sender
	BaseURL   string
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	router chi.Router
	log    *zap.Logger
}

// New builds the router.
func New(deps Deps) *Server {
	s := &Server{deps: deps, router: chi.NewRouter(), log: zap.L().Named("api")}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	origins := s.deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/crawl", s.handleCrawlDomain)
	r.Post("/crawl-adv", s.handleCrawlSearch)
	r.Post("/crawl-url", s.handleCrawlURL)

	r.Route("/create-crawl-jobs", func(r chi.Router) {
		r.Post("/", s.handleCreateJobs)
		r.Post("/domain", s.handleCreateDomainJobs)
		r.Post("/advertiser", s.handleCreateSearchJobs)
	})

	r.Route("/creatives", func(r chi.Router) {
		r.Get("/", s.handleListCreatives)
		r.Get("/{code}", s.handleGetCreative)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleListCreatives(w http.ResponseWriter, r *http.Request) {
	if s.deps.Creatives == nil {
		writeError(w, http.StatusServiceUnavailable, "creative store not configured")
		return
	}
	q := r.URL.Query()
	filter := store.CreativeFilter{
		AdvertiserCode: q.Get("advertiser"),
		Domain:         q.Get("domain"),
	}
	if f := model.Format(q.Get("format")); f.Valid() {
		filter.Format = f
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	out, err := s.deps.Creatives.ListCreatives(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list creatives", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCreative(w http.ResponseWriter, r *http.Request) {
	if s.deps.Creatives == nil {
		writeError(w, http.StatusServiceUnavailable, "creative store not configured")
		return
	}
	code := chi.URLParam(r, "code")
	c, err := s.deps.Creatives.GetCreative(r.Context(), code)
	if err != nil {
		s.internalError(w, "get creative", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "creative not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error(op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}
