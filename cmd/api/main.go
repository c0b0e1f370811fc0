package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dkvirkvelia/bankledger/internal/api/handlers"
	"github.com/dkvirkvelia/bankledger/internal/api/middleware"
	"github.com/dkvirkvelia/bankledger/internal/archive"
	"github.com/dkvirkvelia/bankledger/internal/classify"
	"github.com/dkvirkvelia/bankledger/internal/config"
	"github.com/dkvirkvelia/bankledger/internal/ingest"
	"github.com/dkvirkvelia/bankledger/internal/logger"
	"github.com/dkvirkvelia/bankledger/internal/store"
	"github.com/dkvirkvelia/bankledger/internal/tasks"
	"github.com/dkvirkvelia/bankledger/internal/taxonomy"
)

// archiver is what the ingestion service and the statements endpoint need
// from the archive; both GCS and Noop satisfy it.
type archiver interface {
	Save(ctx context.Context, filename string, data []byte) error
	List(ctx context.Context) ([]string, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New("dev")
		l.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := logger.New(cfg.Env)
	ctx := context.Background()

	// Storage
	st, err := store.Open(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	if cfg.UsePostgres() {
		if err := store.RunMigrations(cfg.MigrationsDir, cfg.DatabaseURL, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	} else {
		if err := st.AutoMigrate(); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate sqlite schema")
		}
	}

	// Taxonomy: stored categories when seeded, the built-in set otherwise.
	provider := taxonomy.NewCache(taxonomy.NewFallback(taxonomy.NewStoreProvider(st), taxonomy.Static()))

	// Classification client
	var client classify.Client
	if cfg.GoogleAPIKey != "" {
		gemini, err := classify.NewGeminiClient(ctx, cfg.GoogleAPIKey, cfg.GeminiModel, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Gemini client")
		}
		client = gemini
	} else {
		log.Warn().Msg("No GOOGLE_API_KEY configured - classification is disabled")
		client = classify.Unavailable{}
	}

	// Statement archive
	var arc archiver
	if cfg.GCSBucket != "" {
		gcs, err := archive.NewGCS(ctx, cfg.GCSBucket, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS archiver")
		}
		defer gcs.Close()
		arc = gcs
	} else {
		log.Warn().Msg("No GCS_BUCKET configured - statement archiving is disabled")
		arc = archive.Noop{}
	}

	// Services
	ingestService := ingest.NewService(st, arc, log)
	orchestrator := classify.NewOrchestrator(st, client, provider, cfg.ClassifyBatchSize, cfg.ClassifyMaxParallel, log)
	registry := tasks.NewRegistry()
	runner := tasks.NewRunner(registry, st, client, provider, cfg.ClassifyBatchSize, log)

	// Handlers
	uploadHandler := handlers.NewUploadHandler(ingestService, cfg.MaxUploadBytes, log)
	classifyHandler := handlers.NewClassifyHandler(orchestrator, runner, registry, st, log)
	taxonomyHandler := handlers.NewTaxonomyHandler(provider, log)
	transactionsHandler := handlers.NewTransactionsHandler(st, provider, log)
	statementsHandler := handlers.NewStatementsHandler(arc, log)

	// Create router
	mux := http.NewServeMux()

	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			uploadHandler.Upload(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/classify", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			classifyHandler.Classify(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/classify/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			classifyHandler.StartTask(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/classify/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			classifyHandler.Status(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/classify/tasks/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/classify/tasks/")

		switch {
		case r.Method == http.MethodGet && rest != "" && !strings.Contains(rest, "/"):
			classifyHandler.GetTask(w, r, rest)
		case r.Method == http.MethodPost && strings.HasSuffix(rest, "/cancel"):
			taskID := strings.TrimSuffix(rest, "/cancel")
			if taskID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Task ID is required")
				return
			}
			classifyHandler.CancelTask(w, r, taskID)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/taxonomy", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			taxonomyHandler.List(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/transactions/")

		if r.Method == http.MethodPatch && strings.HasSuffix(rest, "/category") {
			id := strings.TrimSuffix(rest, "/category")
			if id == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Transaction ID is required")
				return
			}
			transactionsHandler.UpdateCategory(w, r, id)
			return
		}
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	mux.HandleFunc("/api/statements", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			statementsHandler.List(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	// Classification of a large backlog can exceed a minute; the write
	// timeout has to cover the synchronous bulk endpoint.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// A running classification task stops at its next batch boundary once
	// cancellation is requested; already-committed batches stay committed.
	if snap, ok := registry.Active(); ok {
		log.Info().Str("task_id", snap.TaskID).Msg("Cancelling active classification task")
		if _, err := registry.RequestCancel(snap.TaskID); err != nil {
			log.Error().Err(err).Msg("Failed to cancel active task")
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
