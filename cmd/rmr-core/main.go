package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mcjmccartney/rmr-core/internal/config"
	"github.com/mcjmccartney/rmr-core/internal/dedup"
	"github.com/mcjmccartney/rmr-core/internal/domain"
	"github.com/mcjmccartney/rmr-core/internal/feed"
	"github.com/mcjmccartney/rmr-core/internal/gateway"
	"github.com/mcjmccartney/rmr-core/internal/httpapi"
	"github.com/mcjmccartney/rmr-core/internal/integration"
	"github.com/mcjmccartney/rmr-core/internal/logger"
	"github.com/mcjmccartney/rmr-core/internal/session"
	"github.com/mcjmccartney/rmr-core/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("RMR_CONFIG_FILE"), "optional JSON config file, overlays the environment")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zapLogger, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	if cfg.DatabaseURL == "" {
		zapLogger.Fatal("RMR_DATABASE_URL is required")
	}
	remote, err := gateway.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("open gateway", zap.Error(err))
	}
	defer func() { _ = remote.Close() }()

	entityStore := store.New()
	if err := hydrate(remote, entityStore); err != nil {
		zapLogger.Fatal("hydrate store", zap.Error(err))
	}

	source, err := feed.BuildSourceFromDSN(cfg.FeedDSN)
	if err != nil {
		zapLogger.Fatal("build feed source", zap.Error(err))
	}
	subscriber, err := feed.NewSubscriber(source, entityStore, feed.SubscriberOptions{
		DebounceWindow:   cfg.DebounceWindow,
		Refetcher:        remote,
		MembershipPolicy: annualMembershipPolicy,
		Logger:           zapLogger.Named("feed"),
	})
	if err != nil {
		zapLogger.Fatal("build subscriber", zap.Error(err))
	}
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	err = subscriber.Start(startCtx)
	cancelStart()
	if err != nil {
		zapLogger.Fatal("start subscriber", zap.Error(err))
	}

	calendar := integration.NewHTTPCalendarClient(integration.CalendarClientOptions{
		BaseURL: cfg.CalendarBaseURL,
		APIKey:  cfg.CalendarAPIKey,
		Logger:  zapLogger.Named("calendar"),
	})
	notifier, err := integration.NewNotifier(integration.NotifierOptions{
		BookingTermsURL:   cfg.BookingTermsWebhookURL,
		SessionCreatedURL: cfg.SessionCreatedWebhookURL,
		SuppressionWindow: cfg.SuppressionWindow,
		Logger:            zapLogger.Named("webhook"),
	})
	if err != nil {
		zapLogger.Fatal("build notifier", zap.Error(err))
	}

	orchestrator, err := session.NewOrchestrator(remote, entityStore, calendar, notifier, zapLogger.Named("session"))
	if err != nil {
		zapLogger.Fatal("build orchestrator", zap.Error(err))
	}
	dedupService, err := dedup.NewService(remote, entityStore, dedup.ServiceOptions{
		Logger: zapLogger.Named("dedup"),
	})
	if err != nil {
		zapLogger.Fatal("build dedup service", zap.Error(err))
	}

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewServerWithConfig(orchestrator, dedupService, zapLogger.Named("http"),
			httpapi.ServerConfig{AuthToken: cfg.APIToken}),
	}

	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, func(next config.Config) {
			zapLogger.Info("config change noticed; restart to apply wiring changes",
				zap.String("path", *configPath), zap.String("httpAddr", next.HTTPAddr))
		}, zapLogger.Named("config"))
		if err != nil {
			zapLogger.Warn("config watcher unavailable", zap.Error(err))
		} else {
			defer func() { _ = watcher.Close() }()
		}
	}

	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-sweepDone:
				return
			case <-ticker.C:
				notifier.Sweep()
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("rmr-core listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		zapLogger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	// release subscriptions before the gateway closes so in-flight refetches
	// still have a backend
	if err := subscriber.Close(); err != nil {
		zapLogger.Warn("subscriber close", zap.Error(err))
	}
	if err := source.Close(); err != nil {
		zapLogger.Warn("feed source close", zap.Error(err))
	}
	close(sweepDone)
	notifier.Reset()
}

// hydrate fills the store with the remote state before subscriptions begin.
func hydrate(remote *gateway.Postgres, entityStore *store.Store) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	clients, err := remote.GetAllClients(ctx)
	if err != nil {
		return err
	}
	entityStore.Dispatch(store.SetClients(clients))

	sessions, err := remote.GetAllSessions(ctx)
	if err != nil {
		return err
	}
	entityStore.Dispatch(store.SetSessions(sessions))

	aliases, err := remote.GetAllAliases(ctx)
	if err != nil {
		return err
	}
	entityStore.Dispatch(store.SetAliases(aliases))

	payments, err := remote.GetAllPayments(ctx)
	if err != nil {
		return err
	}
	entityStore.Dispatch(store.SetPayments(payments))

	briefs, err := remote.GetAllBriefs(ctx)
	if err != nil {
		return err
	}
	entityStore.Dispatch(store.SetBriefs(briefs))

	questionnaires, err := remote.GetAllQuestionnaires(ctx)
	if err != nil {
		return err
	}
	entityStore.Dispatch(store.SetQuestionnaires(questionnaires))
	return nil
}

// annualMembershipPolicy keeps the membership flag on while the most recent
// payment is under a year old.
func annualMembershipPolicy(_ domain.Client, payments []domain.MembershipPayment) domain.MembershipStatus {
	var latest time.Time
	for _, payment := range payments {
		if payment.Date.After(latest) {
			latest = payment.Date
		}
	}
	if latest.IsZero() {
		return domain.MembershipStatus{}
	}
	expires := latest.AddDate(1, 0, 0)
	if time.Now().After(expires) {
		return domain.MembershipStatus{ExpiresAt: &expires}
	}
	return domain.MembershipStatus{Active: true, ExpiresAt: &expires}
}
