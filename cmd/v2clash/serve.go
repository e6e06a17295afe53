package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/v2clash/internal/artifact"
	"github.com/John-Robertt/v2clash/internal/httpapi"
	"github.com/John-Robertt/v2clash/internal/metrics"
	"github.com/John-Robertt/v2clash/internal/template"
)

type serveFlags struct {
	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
}

func newServeCmd(rf *rootFlags) *cobra.Command {
	sf := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Clash configuration over HTTP",
		Long: `Start the HTTP server. GET /clash converts on every request; with
refresh and output set, the artifact file is also rebuilt on a cron schedule.

Examples:
  # Start with config.yaml in the working directory
  v2clash serve

  # Override listen address and rebuild the artifact every 10 minutes
  v2clash serve --listen 0.0.0.0:25500 --output /srv/clash.yaml --refresh "@every 10m"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, rf)
			if err != nil {
				return err
			}
			overrideString(cmd, "listen", &cfg.Listen)
			overrideString(cmd, "template", &cfg.Template)
			overrideString(cmd, "output", &cfg.Output)
			overrideString(cmd, "refresh", &cfg.Refresh)
			if cmd.Flags().Changed("watch-template") {
				cfg.WatchTemplate, _ = cmd.Flags().GetBool("watch-template")
			}

			a, err := newApp(cfg, cmd.ErrOrStderr(), metrics.New(nil))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, *sf)
		},
	}

	cmd.Flags().StringP("listen", "l", "", "override HTTP listen address")
	cmd.Flags().String("template", "", "override template path or URL")
	cmd.Flags().String("output", "", "override artifact path")
	cmd.Flags().String("refresh", "", "override artifact refresh schedule (cron or @every)")
	cmd.Flags().Bool("watch-template", false, "reload the template file when it changes")
	cmd.Flags().DurationVar(&sf.readHeaderTimeout, "read-header-timeout", 5*time.Second, "HTTP ReadHeaderTimeout")
	cmd.Flags().DurationVar(&sf.shutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown wait after a signal")
	return cmd
}

func (a *app) serve(ctx context.Context, sf serveFlags) error {
	log := a.log

	if store, ok := a.template.(*template.Store); ok {
		// Warm the cache. A broken template is only reported here; requests fail until it is fixed.
		if err := store.Reload(); err != nil {
			log.WithError(err).Warn("template not loadable at startup")
		}
		if a.cfg.WatchTemplate {
			log.WithField("path", store.Path()).Info("watching template")
			go func() {
				if err := store.Watch(ctx); err != nil {
					log.WithError(err).Error("template watcher exited")
				}
			}()
		}
	}

	opt := httpapi.Options{
		Converter: a.conv,
		Metrics:   a.metrics,
		Logger:    log,
		Version:   Version,
	}
	if a.cfg.Refresh != "" {
		r, err := artifact.NewRefresher(a.cfg.Refresh, a.conv.RefreshJob(), log)
		if err != nil {
			return err
		}
		// Shares the overlap guard with scheduled runs.
		go r.RunOnce(ctx)
		if err := r.Start(ctx); err != nil {
			return err
		}
		defer r.Stop()
		opt.NextRefresh = r.NextRun
	}

	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           httpapi.NewHandler(opt),
		ReadHeaderTimeout: sf.readHeaderTimeout,
	}

	log.WithField("addr", "http://"+a.cfg.Listen).Info("listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), sf.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
			_ = srv.Close()
		}

		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
