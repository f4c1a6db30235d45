package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Ohseho81/autus-sub014/internal/consent"
	"github.com/Ohseho81/autus-sub014/internal/deliverylog"
	"github.com/Ohseho81/autus-sub014/internal/gateway"
	"github.com/Ohseho81/autus-sub014/internal/inbound"
	inboundhandler "github.com/Ohseho81/autus-sub014/internal/inbound/handler"
	"github.com/Ohseho81/autus-sub014/internal/ledger"
	"github.com/Ohseho81/autus-sub014/internal/outbox"
	"github.com/Ohseho81/autus-sub014/internal/outcomes"
	outcomeshandler "github.com/Ohseho81/autus-sub014/internal/outcomes/handler"
	"github.com/Ohseho81/autus-sub014/internal/platform/config"
	"github.com/Ohseho81/autus-sub014/internal/platform/httpserver"
	"github.com/Ohseho81/autus-sub014/internal/platform/logger"
	"github.com/Ohseho81/autus-sub014/internal/platform/middleware"
	platformredis "github.com/Ohseho81/autus-sub014/internal/platform/redis"
	"github.com/Ohseho81/autus-sub014/internal/policy"
	"github.com/Ohseho81/autus-sub014/internal/replay"
	replayhandler "github.com/Ohseho81/autus-sub014/internal/replay/handler"
	"github.com/Ohseho81/autus-sub014/internal/safety"
)

// main wires the dependency graph and owns process lifecycle. Business logic
// lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence: Postgres when configured, in-memory otherwise.
	var (
		ledgerStore   ledger.Store
		outboxStore   outbox.Store
		consentStore  consent.Store
		confirmStore  safety.ConfirmationStore
		alertStore    safety.AlertStore = safety.NewInMemoryAlertStore()
		deliveryStore deliverylog.Store = deliverylog.NewInMemoryStore()
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		db.SetMaxOpenConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		ledgerStore = ledger.NewPostgres(db)
		outboxStore = outbox.NewPostgres(db)
		consentStore = consent.NewPostgres(db)
		confirmStore = safety.NewPostgresConfirmationStore(db)
		log.Info("using postgres storage")
	} else {
		ledgerStore = ledger.NewInMemoryStore()
		outboxStore = outbox.NewInMemoryStore()
		consentStore = consent.NewInMemoryStore()
		confirmStore = safety.NewInMemoryConfirmationStore()
		log.Warn("DATABASE_URL not set, using in-memory storage")
	}

	table, err := policy.LoadRuleTable(cfg.RuleTablePath)
	if err != nil {
		return err
	}
	rules, err := policy.NewEngine(table)
	if err != nil {
		return err
	}
	replayEngine, err := replay.NewEngine(ledgerStore, rules)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	outboxMetrics := outbox.NewMetrics(registry)

	// Delivery event pipeline: channel-fed worker, optional Kafka fan-out.
	var publisher deliverylog.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := deliverylog.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		log.Info("delivery events published to kafka", "topic", cfg.Kafka.Topic)
	}
	deliveryLog := deliverylog.NewLog(log)
	deliveryWorker := deliverylog.NewWorker(deliveryLog, deliveryStore, publisher, log)

	consentService, err := consent.NewService(consentStore, log)
	if err != nil {
		return err
	}
	outboxService, err := outbox.NewService(outboxStore, log,
		outbox.WithConsentGate(consentService),
		outbox.WithServiceMetrics(outboxMetrics),
	)
	if err != nil {
		return err
	}

	directory, err := safety.LoadDirectory(cfg.OperatorDirectoryPath)
	if err != nil {
		return err
	}
	chain, err := safety.NewChain(confirmStore, alertStore, directory, outboxService, deliveryLog, log, safety.ChainConfig{})
	if err != nil {
		return err
	}

	var gw gateway.Gateway
	if cfg.Gateway.BaseURL != "" {
		gw = gateway.NewHTTP(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
	} else {
		gw = gateway.NewStub()
		log.Warn("GATEWAY_BASE_URL not set, using stub gateway")
	}
	templates, err := outbox.LoadTemplates(cfg.TemplateCatalogPath)
	if err != nil {
		return err
	}
	worker, err := outbox.NewWorker(outboxStore, templates, gw, deliveryLog, log,
		outbox.WorkerConfig{
			BatchSize:    cfg.Worker.BatchSize,
			MaxRetries:   cfg.Worker.MaxRetries,
			BackoffBase:  cfg.Worker.BackoffBase,
			RatePerSec:   cfg.Worker.RatePerSec,
			PollInterval: cfg.Worker.PollInterval,
		},
		outbox.WithConfirmationSink(chain),
		outbox.WithWorkerMetrics(outboxMetrics),
	)
	if err != nil {
		return err
	}

	// Callback dedup: shared window via Redis when configured.
	var deduper inbound.Deduper = inbound.NewMemoryDeduper()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		deduper = inbound.NewRedisDeduper(redisClient.Client)
		log.Info("callback dedup backed by redis")
	}

	inboundService, err := inbound.NewService(deduper, ledgerStore, chain, consentService, rules, deliveryLog, log)
	if err != nil {
		return err
	}
	validator := inbound.NewTokenValidator(cfg.CallbackSigningKey)

	outcomeService, err := outcomes.NewService(ledgerStore, rules, outboxService, deliveryLog, log)
	if err != nil {
		return err
	}
	assessor, err := outcomes.NewAssessor(ledgerStore, replayEngine, rules)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Mount("/v1", inboundhandler.New(inboundService, validator, log).Routes())
	router.Mount("/v1/outcomes", outcomeshandler.New(outcomeService, assessor, log).Routes())
	router.Mount("/v1/replay", replayhandler.New(replayEngine, log).Routes())

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deliveryWorker.Run(gctx) })
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return chain.Run(gctx) })
	g.Go(func() error {
		log.Info("starting notification core", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
