package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/model"
)

const parentClosePolicyAbandon = enumspb.PARENT_CLOSE_POLICY_ABANDON

// Submission identifies a started crawl workflow.
type Submission struct {
	WorkflowID string       `json:"workflow_id"`
	RunID      string       `json:"run_id"`
	Target     string       `json:"target"`
	Format     model.Format `json:"format,omitempty"`
}

// Producer submits crawl workflows to Temporal.
type Producer struct {
	client    client.Client
	taskQueue string
	domains   DomainLister
}

// NewProducer creates a Producer.
func NewProducer(c client.Client, taskQueue string, domains DomainLister) *Producer {
	return &Producer{client: c, taskQueue: taskQueue, domains: domains}
}

// SubmitJobs starts one crawl per active domain and format.
func (p *Producer) SubmitJobs(ctx context.Context) ([]Submission, error) {
	domains, err := p.domains.GetAllActiveDomains(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: list active domains")
	}
	return p.Submit(ctx, DomainPayloads(domains))
}

// SubmitForDomain starts one crawl per format for domain.
func (p *Producer) SubmitForDomain(ctx context.Context, domain, webhookURL, method string) ([]Submission, error) {
	return p.Submit(ctx, TargetPayloads(strings.TrimSpace(domain), "", webhookURL, method))
}

// SubmitForSearch starts one crawl per format for a search term.
func (p *Producer) SubmitForSearch(ctx context.Context, term, webhookURL, method string) ([]Submission, error) {
	return p.Submit(ctx, TargetPayloads("", strings.TrimSpace(term), webhookURL, method))
}

// Submit starts a CrawlWorkflow per payload. Payloads are validated first;
// a start failure aborts the remaining submissions.
func (p *Producer) Submit(ctx context.Context, payloads []Payload) ([]Submission, error) {
	for _, pl := range payloads {
		if err := pl.Validate(); err != nil {
			return nil, err
		}
	}

	out := make([]Submission, 0, len(payloads))
	for _, pl := range payloads {
		id := workflowID(pl)
		run, err := p.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
			ID:        id,
			TaskQueue: p.taskQueue,
		}, CrawlWorkflow, pl)
		if err != nil {
			return out, eris.Wrapf(err, "jobs: start workflow %s", id)
		}
		zap.L().Info("crawl job submitted",
			zap.String("workflow_id", run.GetID()),
			zap.String("run_id", run.GetRunID()),
		)
		out = append(out, Submission{
			WorkflowID: run.GetID(),
			RunID:      run.GetRunID(),
			Target:     pl.Target(),
			Format:     pl.Format,
		})
	}
	return out, nil
}

// Schedule starts ProduceJobsWorkflow on a cron schedule.
func (p *Producer) Schedule(ctx context.Context, cron string) (Submission, error) {
	if cron == "" {
		return Submission{}, eris.New("jobs: empty cron schedule")
	}
	run, err := p.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:           "adcrawl-produce-jobs",
		TaskQueue:    p.taskQueue,
		CronSchedule: cron,
	}, ProduceJobsWorkflow)
	if err != nil {
		return Submission{}, eris.Wrap(err, "jobs: schedule producer")
	}
	return Submission{WorkflowID: run.GetID(), RunID: run.GetRunID(), Target: "active-domains"}, nil
}

func workflowID(p Payload) string {
	return fmt.Sprintf("crawl-%s-%s-%s", slug(p.Target()), strings.ToLower(string(p.Format)), uuid.NewString()[:8])
}

func childWorkflowID(parentID string, i int, p Payload) string {
	return fmt.Sprintf("%s-%d-%s-%s", parentID, i, slug(p.Target()), strings.ToLower(string(p.Format)))
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
