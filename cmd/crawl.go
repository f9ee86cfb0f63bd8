package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/crawler"
	"github.com/sells-group/adcrawl/internal/jobs"
	"github.com/sells-group/adcrawl/internal/model"
	"github.com/sells-group/adcrawl/internal/router"
	"github.com/sells-group/adcrawl/pkg/webhook"
)

var (
	crawlDomain        string
	crawlTerm          string
	crawlFormat        string
	crawlURL           string
	crawlLabel         string
	crawlWebhook       string
	crawlWebhookMethod string
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl one domain, search term or URL and print the run result",
	Example: `  adcrawl crawl --domain acme.com --format VIDEO
  adcrawl crawl --term "Acme Ads" --format IMAGE
  adcrawl crawl --url https://adstransparency.google.com/advertiser/AR1/creative/CR1 --label ADS_DETAIL`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		target, err := parseCrawlTarget(cfg.Site.BaseURL)
		if err != nil {
			return err
		}

		env, err := initCrawlEnv(ctx, "crawl")
		if err != nil {
			return err
		}
		defer env.Close()

		runner := env.Crawler
		if target.probe {
			runner = env.Probe
		}
		stats, runErr := runner.Run(ctx, target.seed)
		result := crawler.NewResult(stats, runErr)

		if target.payload.Webhook != "" {
			sender := webhook.NewClient(cfg.Webhook.Token)
			if err := sender.Send(ctx, target.payload.Webhook, target.payload.WebhookMethod, target.payload.WebhookBody(result)); err != nil {
				return eris.Wrap(err, "deliver webhook")
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return eris.Wrap(err, "write result")
		}
		if runErr != nil {
			zap.L().Error("crawl ended early", zap.Error(runErr))
		}
		return runErr
	},
}

type crawlTarget struct {
	seed    crawler.Request
	payload jobs.Payload
	probe   bool
}

// parseCrawlTarget turns the crawl flags into a seed request. --url runs
// the probe crawler; otherwise exactly one of --domain and --term is needed.
func parseCrawlTarget(baseURL string) (crawlTarget, error) {
	if crawlURL != "" {
		if crawlDomain != "" || crawlTerm != "" {
			return crawlTarget{}, eris.New("--url cannot be combined with --domain or --term")
		}
		if _, err := router.ParseLabel(crawlLabel); err != nil {
			return crawlTarget{}, err
		}
		return crawlTarget{
			seed:  crawler.Request{URL: crawlURL, Label: crawlLabel},
			probe: true,
		}, nil
	}

	p := jobs.Payload{
		Domain:        strings.TrimSpace(crawlDomain),
		Term:          strings.TrimSpace(crawlTerm),
		Format:        model.Format(strings.ToUpper(crawlFormat)),
		Webhook:       crawlWebhook,
		WebhookMethod: crawlWebhookMethod,
	}
	if err := p.Validate(); err != nil {
		return crawlTarget{}, err
	}
	return crawlTarget{seed: p.Seed(baseURL), payload: p}, nil
}

func init() {
	f := crawlCmd.Flags()
	f.StringVar(&crawlDomain, "domain", "", "advertiser domain to crawl")
	f.StringVar(&crawlTerm, "term", "", "search term (advertiser name) to crawl")
	f.StringVar(&crawlFormat, "format", string(model.FormatText), "creative format: TEXT, IMAGE or VIDEO")
	f.StringVar(&crawlURL, "url", "", "crawl a single page URL instead of a listing")
	f.StringVar(&crawlLabel, "label", "", "label for --url: SEARCH_PAGE or ADS_DETAIL")
	f.StringVar(&crawlWebhook, "webhook", "", "URL that receives the run result")
	f.StringVar(&crawlWebhookMethod, "webhook-method", "POST", "HTTP method for --webhook")
	rootCmd.AddCommand(crawlCmd)
}
