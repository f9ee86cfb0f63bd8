package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/jobs"
)

var (
	jobsDomain        string
	jobsName          string
	jobsWebhook       string
	jobsWebhookMethod string
	jobsCron          string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Create crawl jobs on Temporal",
}

var jobsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Start crawl workflows for all active domains, one domain or one advertiser name",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if jobsDomain != "" && jobsName != "" {
			return eris.New("--domain and --name are mutually exclusive")
		}

		return withProducer(ctx, func(p *jobs.Producer) error {
			var (
				subs []jobs.Submission
				err  error
			)
			switch {
			case jobsDomain != "":
				subs, err = p.SubmitForDomain(ctx, jobsDomain, jobsWebhook, jobsWebhookMethod)
			case jobsName != "":
				subs, err = p.SubmitForSearch(ctx, jobsName, jobsWebhook, jobsWebhookMethod)
			default:
				subs, err = p.SubmitJobs(ctx)
			}
			if err != nil {
				return err
			}
			zap.L().Info("crawl jobs submitted", zap.Int("count", len(subs)))
			return json.NewEncoder(os.Stdout).Encode(subs)
		})
	},
}

var jobsScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Start the cron workflow that produces jobs for active domains",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cron := jobsCron
		if cron == "" {
			cron = cfg.Temporal.Cron
		}
		return withProducer(ctx, func(p *jobs.Producer) error {
			sub, err := p.Schedule(ctx, cron)
			if err != nil {
				return err
			}
			zap.L().Info("job production scheduled", zap.String("workflow_id", sub.WorkflowID), zap.String("cron", cron))
			return nil
		})
	},
}

// withProducer opens the store and a Temporal client for fn.
func withProducer(ctx context.Context, fn func(p *jobs.Producer) error) error {
	if err := cfg.Validate("jobs"); err != nil {
		return err
	}
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	tc, err := jobs.Dial(cfg.Temporal)
	if err != nil {
		return err
	}
	defer tc.Close()

	return fn(jobs.NewProducer(tc, cfg.Temporal.TaskQueue, st))
}

func init() {
	f := jobsSubmitCmd.Flags()
	f.StringVar(&jobsDomain, "domain", "", "create jobs for one domain (all formats)")
	f.StringVar(&jobsName, "name", "", "create jobs for one advertiser name search (all formats)")
	f.StringVar(&jobsWebhook, "webhook", "", "URL that receives each job result")
	f.StringVar(&jobsWebhookMethod, "webhook-method", "POST", "HTTP method for --webhook")

	jobsScheduleCmd.Flags().StringVar(&jobsCron, "cron", "", "cron spec (default from config)")

	jobsCmd.AddCommand(jobsSubmitCmd, jobsScheduleCmd)
	rootCmd.AddCommand(jobsCmd)
}
