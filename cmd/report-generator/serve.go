package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/yourusername/report-generator/pkg/api"
	"github.com/yourusername/report-generator/pkg/config"
	"github.com/yourusername/report-generator/pkg/cron"
	"github.com/yourusername/report-generator/pkg/logging"
	"github.com/yourusername/report-generator/pkg/mail"
	"github.com/yourusername/report-generator/pkg/monitoring"
	"github.com/yourusername/report-generator/pkg/render"
	"github.com/yourusername/report-generator/pkg/report"
	"github.com/yourusername/report-generator/pkg/store"
)

// runServer wires every component and serves until a shutdown signal
func runServer() error {
	logger := logging.NewLoggerWithService(serviceName)

	cfg, err := config.Load(logger)
	if err != nil {
		return err
	}
	logger.WithField("version", config.Version).Info("Starting report generator")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(serviceName, reg)

	driver, err := render.NewDriver(cfg, logger)
	if err != nil {
		return err
	}

	opts := renderOptions(cfg)

	manager := render.NewManager(driver, cfg.DefaultDimensions(), logger, metrics)
	renderer := render.NewRenderer(manager, opts, logger, metrics)
	mailer := mail.New(cfg.SMTP, cfg.Common.SubjectPrefix, mail.NewDialer(cfg.SMTP), logger)

	// Interfaces stay nil when run history is disabled
	var (
		runStore  report.RunStore
		runLister api.RunLister
		pruner    cron.RunPruner
	)
	if cfg.Retention.DBPath != "" {
		st, err := store.NewStore(cfg.Retention.DBPath, logger)
		if err != nil {
			return fmt.Errorf("failed to open run history: %w", err)
		}
		defer st.Close()
		runStore, runLister, pruner = st, st, st
	} else {
		logger.Info("[STORE] Run history disabled")
	}

	if cfg.Retention.Days > 0 {
		scheduler, err := cron.NewScheduler(pruner, cron.Options{
			Expression:    cfg.Retention.Cron,
			Retention:     cfg.RetentionPeriod(),
			ScreenshotDir: opts.ScreenshotDir,
		}, logger)
		if err != nil {
			return err
		}
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	generator := report.NewGenerator(renderer, mailer, runStore, report.Settings{
		WebURL:         cfg.Common.WebURL,
		AllowedDomains: cfg.SMTP.AllowedDomains,
	}, logger, metrics)

	handler := api.NewHandler(generator, runLister, metrics, logger)
	router := api.SetupRouter(handler, metrics, logger)

	return api.Start(api.DefaultServerConfig(serviceName, cfg.ListenAddr()), router, logger)
}

// renderOptions maps config onto the navigation options. Diagnostic
// screenshots land directly in the download directory.
func renderOptions(cfg *config.Config) render.Options {
	opts := render.DefaultOptions()
	opts.Credentials = render.Credentials{Email: cfg.Auth.UserEmail, Password: cfg.Auth.UserPassword}
	opts.DataLoadTimeout = cfg.DataLoadTimeout()
	opts.SaveScreenshots = cfg.Chrome.SaveScreenshots
	opts.ScreenshotDir = cfg.Chrome.DownloadPath
	return opts
}
