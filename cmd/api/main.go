package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/aggregator"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/api/handlers"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/archive"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/broker"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/broker/inmemory"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/classify"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/config"
	infraBQ "github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/infra/bigquery"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/logger"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/notify"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/pipeline"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store/memory"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/summary"
)

func main() {
	log := logger.New()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		txns      store.TransactionRepository
		summaries store.SummaryRepository
		runs      store.RunRepository
		ruleRepo  store.RuleRepository
	)
	if cfg.BigQueryProject != "" {
		bq, err := infraBQ.NewStore(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery store")
		}
		defer bq.Close()
		txns, summaries, runs, ruleRepo = bq, bq, bq, bq
	} else {
		log.Warn().Msg("BQ_PROJECT not set, using in-memory storage")
		mem := memory.NewStore()
		txns, summaries, runs, ruleRepo = mem, mem, mem, mem
	}

	rules := classify.NewRuleSet(ruleRepo)
	if err := rules.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load classification rules")
	}

	var resolver classify.Resolver
	if os.Getenv("GEMINI_API_KEY") != "" {
		resolver = classify.NewGeminiResolver(cfg.GeminiModel)
	}
	classifier := classify.NewClassifier(rules, classify.NewMemoryCache(cfg.CacheTTL), resolver, cfg.DefaultCategoryID, log)

	gateway := aggregator.NewClient(cfg.AggregatorURL, cfg.AggregatorToken, cfg.AggregatorTimeout)

	var archiver pipeline.Archiver
	if cfg.ArchiveBucket != "" {
		archiver = archive.NewGCSArchive(cfg.ArchiveBucket)
	}

	summaryAgg := summary.NewAggregator(txns, summaries, log)

	// The pipeline runs in-process behind the API. A standalone deployment
	// runs cmd/worker instead and keeps this binary HTTP-only.
	queue := inmemory.NewQueue(inmemory.Config{
		QueueDepth:  cfg.QueueDepth,
		Workers:     cfg.WorkersPerTopic,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.RetryBackoff,
	}, log)

	coord := pipeline.NewCoordinator(queue, gateway, classifier, txns, runs, summaryAgg, archiver, log)
	if err := coord.Register(queue); err != nil {
		log.Fatal().Err(err).Msg("Failed to register pipeline handlers")
	}

	var notifier notify.Notifier
	if cfg.SMTPAddr != "" {
		notifier = notify.NewEmailNotifier(cfg.SMTPAddr, cfg.SMTPUser, cfg.SMTPPassword, cfg.AlertFrom, cfg.AlertTo, log)
	}
	queue.OnDeadLetter(func(ctx context.Context, msg broker.Message, cause error) {
		coord.HandleDeadLetter(ctx, msg, cause)
		if notifier != nil {
			_ = notifier.NotifyDeadLetter(ctx, msg, cause)
		}
	})

	if err := queue.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start message queue")
	}

	router := handlers.NewRouter(
		handlers.NewIngestionsHandler(coord, runs, log),
		handlers.NewSummariesHandler(summaries, log),
		log,
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error draining message queue")
	}

	log.Info().Msg("API server exited")
}
