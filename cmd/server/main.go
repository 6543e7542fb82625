// Command server runs the document-processing pipeline: HTTP trigger API,
// durable queue workers, and the maintenance surface, against a Postgres
// database and a local artifact store.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"golang.org/x/sync/errgroup"

	"github.com/quillhq/docpipe/internal/api"
	"github.com/quillhq/docpipe/internal/config"
	"github.com/quillhq/docpipe/internal/fetchguard"
	"github.com/quillhq/docpipe/internal/platform/gemini"
	"github.com/quillhq/docpipe/internal/platform/logger"
	"github.com/quillhq/docpipe/internal/platform/postgres"
	"github.com/quillhq/docpipe/internal/platform/storage"
	"github.com/quillhq/docpipe/internal/processor"
	"github.com/quillhq/docpipe/internal/queue"
	"github.com/quillhq/docpipe/internal/service"
	"github.com/quillhq/docpipe/internal/worker"
	"github.com/quillhq/docpipe/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database", "error", closeErr)
		}
	}()

	// Stores
	projectStore := postgres.NewProjectStore(db, log)
	documentStore := postgres.NewDocumentStore(db, log)
	columnStore := postgres.NewColumnStore(db, log)
	runStore := postgres.NewRunStore(db, log)
	promptRunStore := postgres.NewPromptRunStore(db, log)
	jobStore := postgres.NewJobStore(db, log)

	queueClient := queue.NewClient(jobStore, cfg.Queue, log)

	files, err := storage.NewLocalFileStore(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("failed to set up file storage: %w", err)
	}

	guard := fetchguard.New(fetchguard.Config{
		Timeout:  cfg.Fetch.Timeout,
		MaxBytes: cfg.Fetch.MaxBytes,
	})

	var generator processor.TextGenerator
	var embedder processor.Embedder
	if cfg.LLM.GeminiAPIKey != "" {
		llm, llmErr := gemini.NewClient(ctx, log, cfg.LLM)
		if llmErr != nil {
			return fmt.Errorf("failed to set up LLM client: %w", llmErr)
		}
		generator, embedder = llm, llm
	} else {
		log.Warn("no Gemini API key configured; transform and embed columns will fail")
		disabled := gemini.Disabled()
		generator, embedder = disabled, disabled
	}

	registry := processor.NewRegistry(
		processor.NewExtractHandler(files),
		processor.NewChunkHandler(),
		processor.NewEmbedHandler(embedder),
		processor.NewTransformHandler(generator),
		processor.NewFetchHandler(guard, files),
		processor.NewThumbnailHandler(files),
	)

	// Services
	provisioner := service.NewProvisioner(columnStore, log)
	processing := service.NewProcessingService(
		projectStore, documentStore, columnStore, runStore, promptRunStore,
		queueClient, cfg.Queue.StuckRunAge, log)
	ingest := service.NewIngestService(
		projectStore, documentStore, files, provisioner, processing, log)

	// Workers
	processHandler := worker.NewProcessHandler(
		projectStore, documentStore, columnStore, runStore, promptRunStore,
		registry, generator, log)
	bulkHandler := worker.NewBulkHandler(
		documentStore, columnStore, runStore, queueClient, log)

	processWorker := worker.New(queueClient, queue.LaneProcess, processHandler, cfg.Queue.PollInterval, log)
	bulkWorker := worker.New(queueClient, queue.LaneBulk, bulkHandler, cfg.Queue.PollInterval, log)

	router := api.NewRouter(api.Handlers{
		Projects:  api.NewProjectHandler(projectStore, log),
		Columns:   api.NewColumnHandler(projectStore, columnStore, log),
		Documents: api.NewDocumentHandler(ingest, processing, log),
		Process:   api.NewProcessHandler(processing, log),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return processWorker.Run(gctx)
	})
	g.Go(func() error {
		return bulkWorker.Run(gctx)
	})
	g.Go(func() error {
		log.Info("http server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("server stopped")
	return nil
}

// openDatabase opens the Postgres pool through the pgx stdlib driver and
// applies the embedded goose migrations.
func openDatabase(cfg config.DatabaseConfig, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Info("database ready")
	return db, nil
}
