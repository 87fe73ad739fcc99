/**
 * Identity Extraction Worker - Main Entry Point
 *
 * Architecture:
 * - Redis list queue (or asynq) consumer for uploaded identity documents
 * - Extraction pipeline: regions -> OCR fusion -> date ranking -> field rules
 * - PostgreSQL persistence for records and job status
 * - HTTP API for synchronous extraction and record review
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/idextract-worker/internal/config"
	"github.com/adverant/nexus/idextract-worker/internal/extract"
	"github.com/adverant/nexus/idextract-worker/internal/fusion"
	"github.com/adverant/nexus/idextract-worker/internal/httpserver"
	"github.com/adverant/nexus/idextract-worker/internal/lexicon"
	"github.com/adverant/nexus/idextract-worker/internal/logging"
	"github.com/adverant/nexus/idextract-worker/internal/ocr"
	"github.com/adverant/nexus/idextract-worker/internal/processor"
	"github.com/adverant/nexus/idextract-worker/internal/queue"
	"github.com/adverant/nexus/idextract-worker/internal/regions"
	"github.com/adverant/nexus/idextract-worker/internal/storage"
)

// queueConsumer is what main needs from either consumer.
type queueConsumer interface {
	Stop() error
	GetStats(ctx context.Context) (map[string]int64, error)
}

func main() {
	if err := godotenv.Load(".env.idextract"); err != nil {
		log.Printf("Warning: .env.idextract not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.SetLevel(cfg.LogLevel)
	logger := logging.NewLogger("Worker")
	logger.Info("Identity extraction worker starting",
		"queue_backend", cfg.QueueBackend,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency,
		"http_addr", cfg.HTTPAddr)

	lex, err := lexicon.Load(cfg.LexiconPath)
	if err != nil {
		log.Fatalf("Failed to load lexicon: %v", err)
	}

	backends, err := ocr.NewSet(&ocr.SetConfig{
		PrimaryLangs:   cfg.OCRPrimaryLangs,
		GeneralLangs:   cfg.OCRGeneralLangs,
		TessdataPrefix: cfg.TessdataPrefix,
		VisionURL:      cfg.VisionOCRURL,
		VisionTimeout:  cfg.Timeout(),
	})
	if err != nil {
		log.Fatalf("Failed to initialize OCR backends: %v", err)
	}
	defer backends.Close()

	pipeline := extract.NewPipeline(&extract.PipelineConfig{
		Regions: regions.NewGenerator(cfg.ResizeTargetWidth),
		Fusion: fusion.NewEngine(&fusion.EngineConfig{
			Backends:    backends.Backends,
			Parallelism: cfg.OCRParallelism,
			Logger:      logging.NewLogger("Fusion"),
		}),
		Lexicon: lex,
		Logger:  logging.NewLogger("Pipeline"),
	})

	logger.Info("Connecting to PostgreSQL")
	store, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()
	store.SetClock(pipeline.Now)

	schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.EnsureSchema(schemaCtx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Pipeline:    pipeline,
		Store:       store,
		MaxFileSize: cfg.MaxImageSize,
		Logger:      logging.NewLogger("Processor"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize document processor: %v", err)
	}

	var consumer queueConsumer
	switch cfg.QueueBackend {
	case "asynq":
		c, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: cfg.Timeout(),
		})
		if err != nil {
			log.Fatalf("Failed to initialize asynq consumer: %v", err)
		}
		if err := c.Start(); err != nil {
			log.Fatalf("Failed to start asynq consumer: %v", err)
		}
		consumer = c
	default:
		c, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: cfg.Timeout(),
		})
		if err != nil {
			log.Fatalf("Failed to initialize queue consumer: %v", err)
		}
		if err := c.Start(); err != nil {
			log.Fatalf("Failed to start queue consumer: %v", err)
		}
		consumer = c
	}

	producer, err := queue.NewProducer(&queue.ProducerConfig{
		Backend:   cfg.QueueBackend,
		RedisURL:  cfg.RedisURL,
		QueueName: cfg.QueueName,
	})
	if err != nil {
		log.Fatalf("Failed to initialize job producer: %v", err)
	}
	defer producer.Close()

	checks := map[string]httpserver.HealthCheck{
		"queue": func(ctx context.Context) (interface{}, error) {
			return consumer.GetStats(ctx)
		},
		"database_pool": func(ctx context.Context) (interface{}, error) {
			return store.GetStats(), nil
		},
	}
	if backends.Vision != nil {
		checks["vision"] = func(ctx context.Context) (interface{}, error) {
			if err := backends.Vision.HealthCheck(ctx); err != nil {
				return nil, err
			}
			return "ok", nil
		}
	}

	server, err := httpserver.New(&httpserver.Config{
		Addr:             cfg.HTTPAddr,
		Pipeline:         pipeline,
		Store:            store,
		Producer:         producer,
		MaxImageSize:     cfg.MaxImageSize,
		RecordsListLimit: cfg.RecordsListLimit,
		ExtractTimeout:   cfg.Timeout(),
		Checks:           checks,
	})
	if err != nil {
		log.Fatalf("Failed to initialize HTTP server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	logger.Info("Worker is ready, waiting for jobs")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, initiating graceful shutdown", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error stopping HTTP server", "error", err)
	}

	if err := consumer.Stop(); err != nil {
		logger.Warn("Error stopping queue consumer", "error", err)
	}

	logger.Info("Shutdown complete")
}
