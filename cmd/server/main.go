package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/coffee-counter/internal/auth"
	"github.com/mamadbah2/coffee-counter/internal/config"
	"github.com/mamadbah2/coffee-counter/internal/observability/metrics"
	"github.com/mamadbah2/coffee-counter/internal/repository/memory"
	"github.com/mamadbah2/coffee-counter/internal/repository/mongodb"
	"github.com/mamadbah2/coffee-counter/internal/repository/sheets"
	"github.com/mamadbah2/coffee-counter/internal/repository/store"
	"github.com/mamadbah2/coffee-counter/internal/scheduler"
	"github.com/mamadbah2/coffee-counter/internal/server/handlers"
	"github.com/mamadbah2/coffee-counter/internal/server/router"
	coffeesvc "github.com/mamadbah2/coffee-counter/internal/service/coffee"
	"github.com/mamadbah2/coffee-counter/internal/service/metacount"
	reportingsvc "github.com/mamadbah2/coffee-counter/internal/service/reporting"
	"github.com/mamadbah2/coffee-counter/pkg/clients/webhook"
	"github.com/mamadbah2/coffee-counter/pkg/logger"
)

const (
	bagCollection  = "coffee_bag_db"
	useCollection  = "coffee_use_db"
	metaCollection = "coffee_meta_db"
)

type collections struct {
	bags, uses, meta store.Collection
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	verifier, err := auth.NewVerifier(cfg.Auth.PasswordHash)
	if err != nil {
		baseLogger.Fatal("invalid COFFEE_PASSWORD_HASH", zap.Error(err))
	}

	m := metrics.New()

	var colls collections
	switch cfg.Store.Backend {
	case config.BackendMemory:
		baseLogger.Warn("using in-memory store, data is lost on restart")
		colls = collections{bags: memory.NewCollection(), uses: memory.NewCollection(), meta: memory.NewCollection()}
	default:
		connectCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		mongoRepo, err := mongodb.NewMongoDBRepository(connectCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName, baseLogger.Named("repo.mongodb"))
		cancel()
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		colls = collections{
			bags: mongoRepo.Collection(bagCollection),
			uses: mongoRepo.Collection(useCollection),
			meta: mongoRepo.Collection(metaCollection),
		}
	}

	counts := metacount.NewStore(colls.meta, m, baseLogger.Named("svc.metacount"))
	coffeeSvc := coffeesvc.NewService(colls.bags, colls.uses, counts, m, baseLogger.Named("svc.coffee"))
	reportingSvc := reportingsvc.NewService(coffeeSvc, baseLogger.Named("svc.reporting"))

	var sinks []scheduler.Sink
	if cfg.Notify.WebhookURL != "" {
		client, err := webhook.NewClient(cfg.Notify.WebhookURL)
		if err != nil {
			baseLogger.Fatal("failed to init webhook client", zap.Error(err))
		}
		sinks = append(sinks, scheduler.WebhookSink(client))
		baseLogger.Info("webhook summary delivery enabled")
	} else {
		baseLogger.Warn("NOTIFY_WEBHOOK_URL missing, webhook summary delivery disabled")
	}
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		sinks = append(sinks, scheduler.SheetsSink(sheetsRepo))
		baseLogger.Info("sheets summary export enabled")
	}

	sched, err := scheduler.NewScheduler(cfg.Reporting, reportingSvc, sinks, m, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if len(sinks) > 0 {
		sched.Start()
	}

	engine := router.New(
		handlers.NewCoffeeHandler(coffeeSvc, baseLogger.Named("handlers.coffee")),
		handlers.NewSummaryHandler(reportingSvc, baseLogger.Named("handlers.summary")),
		verifier, m, baseLogger.Named("router"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if len(sinks) > 0 {
		sched.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
