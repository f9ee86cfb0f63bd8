package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/api"
	"github.com/sells-group/adcrawl/internal/jobs"
	"github.com/sells-group/adcrawl/internal/staging"
	"github.com/sells-group/adcrawl/pkg/webhook"
)

var (
	servePort     int
	serveNoJobs   bool
	shutdownGrace = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the crawl HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initCrawlEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()
		go staging.PurgeEvery(ctx, env.Stager, stagingPurgeInterval)

		sender := webhook.NewClient(cfg.Webhook.Token)
		deps := api.Deps{
			Crawler:        watchCrawls(ctx, env, sender),
			Probe:          env.Probe,
			Creatives:      env.Store,
			Webhook:        sender,
			BaseURL:        cfg.Site.BaseURL,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}

		// Job creation endpoints need Temporal; without it they answer 503.
		if !serveNoJobs {
			tc, err := jobs.Dial(cfg.Temporal)
			if err != nil {
				zap.L().Warn("temporal unavailable, job endpoints disabled", zap.Error(err))
			} else {
				defer tc.Close()
				deps.Jobs = jobs.NewProducer(tc, cfg.Temporal.TaskQueue, env.Store)
			}
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.New(deps),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoJobs, "no-jobs", false, "do not connect to Temporal; job endpoints answer 503")
	rootCmd.AddCommand(serveCmd)
}
