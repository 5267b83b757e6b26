package scangate

import (
	"artifact-scan-gate/cmd"
	"artifact-scan-gate/internal/pkg/cache"
	"artifact-scan-gate/internal/pkg/metrics"
	"artifact-scan-gate/internal/pkg/properties"
	"artifact-scan-gate/internal/pkg/report"
	"artifact-scan-gate/internal/pkg/scanner"
	"artifact-scan-gate/internal/pkg/snyk"
	"context"
	"k8s.io/klog/v2"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	eventQueueSize  = 256
	shutdownTimeout = 15 * time.Second
)

func Run(cfg *cmd.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	settings, err := cfg.ValidationSettings()
	if err != nil {
		return err
	}

	store, err := properties.New(cfg.Store())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			klog.Errorf("Error closing property store: %v", err)
		}
	}()
	klog.Infof("Using %s property store", cfg.StoreType)

	m := metrics.New()
	testCache := cache.New(cfg.TestFrequency, cfg.ExtendTestDeadline, cache.WithObserver(func(o cache.Outcome) {
		m.CacheLookups.WithLabelValues(string(o)).Inc()
	}))
	client := snyk.NewClient(snyk.Config{
		APIURL:       cfg.APIURL,
		WebURL:       cfg.WebURL,
		Token:        cfg.APIToken,
		Organization: cfg.APIOrg,
		Timeout:      cfg.APITimeout,
		Retries:      cfg.APIRetries,
	})

	// Block and override events are logged, and posted to Slack when configured
	formatters := []report.ExportFormatter{&report.TextReport{}}
	if cfg.SlackEnabled() {
		formatters = append(formatters, report.NewSlackReport(report.SlackConfig{
			Token:     cfg.SlackToken,
			ChannelID: cfg.SlackChannelID,
		}))
	}
	dispatcher := report.NewDispatcher(eventQueueSize, formatters...)
	dispatcher.Start(context.Background(), cfg.NotifyConcurrency)
	defer dispatcher.Close()

	s := scanner.New(scanner.Config{
		Ecosystems:        cfg.Ecosystems(),
		Settings:          settings,
		BlockOnAPIFailure: cfg.BlockOnAPIFailure,
		APITimeout:        cfg.APITimeout,
	}, store, testCache, client, m, dispatcher)
	srv := NewServer(s, m)

	// Create the cancellation context and termination signal handler
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChannel
		klog.Info("Termination signal received, stopping server...")
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
