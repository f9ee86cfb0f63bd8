package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/jobs"
	"github.com/sells-group/adcrawl/internal/staging"
	"github.com/sells-group/adcrawl/pkg/webhook"
)

// stagingPurgeInterval paces removal of expired staging rows on stagers
// that do not expire keys themselves.
const stagingPurgeInterval = time.Hour

var workerSchedule bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker that executes crawl jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initCrawlEnv(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		tc, err := jobs.Dial(cfg.Temporal)
		if err != nil {
			return err
		}
		defer tc.Close()

		if workerSchedule {
			sub, err := jobs.NewProducer(tc, cfg.Temporal.TaskQueue, env.Store).Schedule(ctx, cfg.Temporal.Cron)
			if err != nil {
				return err
			}
			zap.L().Info("job production scheduled",
				zap.String("workflow_id", sub.WorkflowID),
				zap.String("cron", cfg.Temporal.Cron),
			)
		}

		go staging.PurgeEvery(ctx, env.Stager, stagingPurgeInterval)

		sender := webhook.NewClient(cfg.Webhook.Token)
		w := jobs.NewWorker(tc, cfg.Temporal.TaskQueue, &jobs.Activities{
			Domains: env.Store,
			Crawler: watchCrawls(ctx, env, sender),
			Webhook: sender,
			BaseURL: cfg.Site.BaseURL,
		})
		if err := w.Start(); err != nil {
			return eris.Wrap(err, "start worker")
		}
		zap.L().Info("worker started", zap.String("task_queue", cfg.Temporal.TaskQueue))

		<-ctx.Done()
		zap.L().Info("stopping worker")
		w.Stop()
		return nil
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerSchedule, "schedule", false, "also start the cron workflow that produces jobs for active domains")
	rootCmd.AddCommand(workerCmd)
}
