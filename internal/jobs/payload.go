// Package jobs produces crawl jobs and runs them as Temporal workflows: one
// workflow per (target, format) crawl, with result delivery to an optional
// webhook.
package jobs

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/adcrawl/internal/crawler"
	"github.com/sells-group/adcrawl/internal/model"
	"github.com/sells-group/adcrawl/internal/router"
)

// Payload describes one crawl job. Exactly one of Domain and Term is set.
type Payload struct {
	Domain        string       `json:"domain,omitempty"`
	Term          string       `json:"term,omitempty"`
	Format        model.Format `json:"format"`
	Webhook       string       `json:"webhook,omitempty"`
	WebhookMethod string       `json:"webhook_method,omitempty"`
}

// Validate checks the target and format.
func (p Payload) Validate() error {
	domain, term := strings.TrimSpace(p.Domain), strings.TrimSpace(p.Term)
	switch {
	case domain == "" && term == "":
		return eris.Wrap(model.ErrDomainMissing, "jobs: payload needs a domain or term")
	case domain != "" && term != "":
		return eris.New("jobs: payload has both domain and term")
	}
	if !p.Format.Valid() {
		return eris.Errorf("jobs: invalid format %q", p.Format)
	}
	return nil
}

// Target is the domain or search term the job crawls.
func (p Payload) Target() string {
	if p.Domain != "" {
		return p.Domain
	}
	return p.Term
}

// Seed returns the listing request that starts the crawl.
func (p Payload) Seed(baseURL string) crawler.Request {
	u := router.ListingURL(baseURL, p.Format, p.Domain)
	if p.Domain == "" {
		u = router.SearchURL(baseURL, p.Format, p.Term)
	}
	return crawler.Request{URL: u, Label: string(router.LabelListing)}
}

// WebhookBody is the JSON delivered to the job's webhook. Domain jobs report
// the domain; search jobs report the term as name.
func (p Payload) WebhookBody(result crawler.Result) map[string]any {
	body := map[string]any{
		"format": p.Format,
		"stats":  result,
	}
	if p.Domain != "" {
		body["domain"] = p.Domain
	} else {
		body["name"] = p.Term
	}
	return body
}

// DomainPayloads expands domains into one payload per crawlable format.
func DomainPayloads(domains []model.Domain) []Payload {
	formats := model.AllFormats()
	out := make([]Payload, 0, len(domains)*len(formats))
	for _, d := range domains {
		for _, f := range formats {
			out = append(out, Payload{Domain: d.Domain, Format: f})
		}
	}
	return out
}

// TargetPayloads builds one payload per format for a single domain or term.
func TargetPayloads(domain, term, webhook, method string) []Payload {
	formats := model.AllFormats()
	out := make([]Payload, 0, len(formats))
	for _, f := range formats {
		out = append(out, Payload{Domain: domain, Term: term, Format: f, Webhook: webhook, WebhookMethod: method})
	}
	return out
}
