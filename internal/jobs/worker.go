package jobs

import (
	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
)

// Config addresses the Temporal cluster.
type Config struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
	// Cron schedules ProduceJobsWorkflow; empty disables scheduling.
	Cron string `yaml:"cron" mapstructure:"cron"`
}

// Dial connects a Temporal client.
func Dial(cfg Config) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    NewLogger(zap.L().Named("temporal")),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "jobs: dial temporal %s", cfg.HostPort)
	}
	return c, nil
}

// NewWorker registers the crawl workflows and activities on taskQueue.
func NewWorker(c client.Client, taskQueue string, a *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{
		// A worker drives one browser; crawls run one at a time.
		MaxConcurrentActivityExecutionSize: 1,
	})
	w.RegisterWorkflow(CrawlWorkflow)
	w.RegisterWorkflow(ProduceJobsWorkflow)
	w.RegisterActivity(a)
	return w
}
