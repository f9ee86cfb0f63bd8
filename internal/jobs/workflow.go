package jobs

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/adcrawl/internal/crawler"
)

const (
	// crawlTimeout bounds the whole run; a stalled worker is caught by the
	// heartbeat timeout.
	crawlTimeout          = 6 * time.Hour
	crawlHeartbeatTimeout = 2 * time.Minute
	webhookTimeout        = time.Minute
)

// CrawlWorkflow crawls one payload and delivers the result to its webhook.
// When the crawl activity itself fails (timeout, lost worker) the webhook
// still receives a result carrying the error. A webhook failure fails the
// workflow after the activity retries.
func CrawlWorkflow(ctx workflow.Context, p Payload) (crawler.Result, error) {
	var a *Activities
	log := workflow.GetLogger(ctx)

	crawlCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: crawlTimeout,
		HeartbeatTimeout:    crawlHeartbeatTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	var result crawler.Result
	crawlErr := workflow.ExecuteActivity(crawlCtx, a.Crawl, p).Get(ctx, &result)
	if crawlErr != nil {
		log.Error("crawl activity failed", "target", p.Target(), "format", string(p.Format), "error", crawlErr)
		result = crawler.NewResult(crawler.Stats{}, crawlErr)
	} else {
		log.Info("crawl activity done", "target", p.Target(), "format", string(p.Format), "error", result.Error)
	}

	if p.Webhook == "" {
		return result, crawlErr
	}
	hookCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: webhookTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})
	if err := workflow.ExecuteActivity(hookCtx, a.SendWebhook, WebhookInput{Payload: p, Result: result}).Get(ctx, nil); err != nil {
		return result, err
	}
	return result, crawlErr
}

// ProduceJobsWorkflow starts one CrawlWorkflow per active domain and format.
// Children are abandoned so they outlive a cron run of the producer.
func ProduceJobsWorkflow(ctx workflow.Context) (int, error) {
	var a *Activities
	log := workflow.GetLogger(ctx)

	listCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	var payloads []Payload
	if err := workflow.ExecuteActivity(listCtx, a.GetCrawlJobPayloads).Get(ctx, &payloads); err != nil {
		return 0, err
	}

	parentID := workflow.GetInfo(ctx).WorkflowExecution.ID
	started := 0
	for i, p := range payloads {
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID:        childWorkflowID(parentID, i, p),
			ParentClosePolicy: parentClosePolicyAbandon,
		})
		child := workflow.ExecuteChildWorkflow(childCtx, CrawlWorkflow, p)
		if err := child.GetChildWorkflowExecution().Get(ctx, nil); err != nil {
			log.Error("crawl job not started", "target", p.Target(), "format", string(p.Format), "error", err)
			continue
		}
		started++
	}
	log.Info("crawl jobs started", "count", started, "payloads", len(payloads))
	return started, nil
}
