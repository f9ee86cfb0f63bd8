package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/crawler"
	"github.com/sells-group/adcrawl/internal/jobs"
	"github.com/sells-group/adcrawl/internal/model"
	"github.com/sells-group/adcrawl/internal/router"
)

type crawlRequest struct {
	Format        string `json:"format"`
	Domain        string `json:"domain"`
	Term          string `json:"term"`
	Webhook       string `json:"webhook"`
	WebhookMethod string `json:"webhookMethod"`
}

type crawlURLRequest struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

type jobsRequest struct {
	Domain        string `json:"domain"`
	Name          string `json:"name"`
	Webhook       string `json:"webhook"`
	WebhookMethod string `json:"webhookMethod"`
}

// parseCrawl validates a crawl body. Only the target field named by byTerm
// is read.
func parseCrawl(r *http.Request, byTerm bool) (jobs.Payload, int, string) {
	var req crawlRequest
	if err := decode(r, &req); err != nil {
		return jobs.Payload{}, http.StatusBadRequest, "invalid request body"
	}
	p := jobs.Payload{Webhook: req.Webhook, WebhookMethod: req.WebhookMethod}
	if byTerm {
		p.Term = strings.TrimSpace(req.Term)
	} else {
		p.Domain = strings.TrimSpace(req.Domain)
	}
	if req.Format == "" || p.Target() == "" {
		return p, http.StatusBadRequest, "Missing required params"
	}
	p.Format = model.Format(req.Format)
	if !p.Format.Valid() {
		return p, http.StatusBadRequest, "Invalid format"
	}
	return p, 0, ""
}

func (s *Server) handleCrawlDomain(w http.ResponseWriter, r *http.Request) {
	s.crawl(w, r, false)
}

func (s *Server) handleCrawlSearch(w http.ResponseWriter, r *http.Request) {
	s.crawl(w, r, true)
}

// crawl runs a crawl synchronously, then delivers the result to the
// optional webhook before answering.
func (s *Server) crawl(w http.ResponseWriter, r *http.Request, byTerm bool) {
	p, status, msg := parseCrawl(r, byTerm)
	if status != 0 {
		writeError(w, status, msg)
		return
	}
	log := s.log.With(zap.String("target", p.Target()), zap.String("format", string(p.Format)))
	log.Info("crawling")

	ctx := r.Context()
	stats, err := s.deps.Crawler.Run(ctx, p.Seed(s.deps.BaseURL))
	result := crawler.NewResult(stats, err)

	if p.Webhook != "" {
		if err := s.deps.Webhook.Send(ctx, p.Webhook, p.WebhookMethod, p.WebhookBody(result)); err != nil {
			s.internalError(w, "send webhook", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCrawlURL(w http.ResponseWriter, r *http.Request) {
	var req crawlURLRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "Missing required params")
		return
	}
	if _, err := router.ParseLabel(req.Label); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid label")
		return
	}
	stats, err := s.deps.Probe.Run(r.Context(), crawler.Request{URL: strings.TrimSpace(req.URL), Label: req.Label})
	writeJSON(w, http.StatusOK, crawler.NewResult(stats, err))
}

func (s *Server) handleCreateJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job scheduling not configured")
		return
	}
	subs, err := s.deps.Jobs.SubmitJobs(r.Context())
	if err != nil {
		s.internalError(w, "create crawl jobs", err)
		return
	}
	s.log.Info("created crawl jobs", zap.Int("count", len(subs)))
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleCreateDomainJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job scheduling not configured")
		return
	}
	var req jobsRequest
	if err := decode(r, &req); err != nil || strings.TrimSpace(req.Domain) == "" {
		writeError(w, http.StatusBadRequest, "Missing domain")
		return
	}
	subs, err := s.deps.Jobs.SubmitForDomain(r.Context(), req.Domain, req.Webhook, req.WebhookMethod)
	if err != nil {
		s.internalError(w, "create domain jobs", err)
		return
	}
	s.log.Info("created crawl jobs", zap.String("domain", req.Domain), zap.Int("count", len(subs)))
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleCreateSearchJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job scheduling not configured")
		return
	}
	var req jobsRequest
	if err := decode(r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Missing name")
		return
	}
	subs, err := s.deps.Jobs.SubmitForSearch(r.Context(), req.Name, req.Webhook, req.WebhookMethod)
	if err != nil {
		s.internalError(w, "create search jobs", err)
		return
	}
	s.log.Info("created crawl jobs", zap.String("name", req.Name), zap.Int("count", len(subs)))
	writeJSON(w, http.StatusOK, subs)
}
