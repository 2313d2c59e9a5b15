package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"train-callbacks/api/rest/handlers"
	"train-callbacks/api/rest/routes"
	"train-callbacks/config"
	"train-callbacks/core/callbacks"
	"train-callbacks/core/models"
	"train-callbacks/core/monitoring"
	"train-callbacks/core/repository"
	"train-callbacks/core/spec"
	"train-callbacks/providers/aws"
	"train-callbacks/storage"
	"train-callbacks/training"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	runSpec, err := spec.LoadRunSpec(cfg.RunSpecPath)
	if err != nil {
		log.Fatalf("Failed to load run spec: %v", err)
	}
	if cfg.LogDir != "" {
		runSpec.LogDir = cfg.LogDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := models.Run{
		ID:        uuid.New().String(),
		Name:      runSpec.Name,
		LogDir:    runSpec.LogDir,
		Status:    models.RunStatusPending,
		Epochs:    runSpec.Epochs,
		CreatedAt: time.Now(),
		SpecYAML:  runSpec.SpecYAML,
	}

	// Initialize database
	var (
		deps      training.HookDeps
		events    handlers.EventLister
		summaries handlers.SummaryLister = storage.SummaryFileReader{Path: storage.SummaryFilePath(runSpec.LogDir, run.ID)}
		recorder  statusRecorder
	)
	if cfg.DatabaseEnabled() {
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		log.Println("Database connected successfully")

		runRepo := repository.NewRunRepository(db)
		if err := runRepo.CreateRun(ctx, &run); err != nil {
			log.Fatalf("Failed to create run: %v", err)
		}
		recorder = runRepo
		events = repository.NewEventRepository(db)
		deps.Artifacts = repository.NewArtifactRepository(db)

		if runSpec.Callbacks.Summary.Database {
			summaryRepo := repository.NewSummaryRepository(db)
			deps.Mirror = summaryRepo
			summaries = summaryRepo
		}
	}
	state := newRunState(run, recorder)

	// Resume from the newest checkpoint
	model := training.NewLinearModel(training.DefaultFeatures)
	epochs := runSpec.Epochs
	if runSpec.Resume {
		restored, err := storage.NewCheckpointManager(runSpec.LogDir).Restore(ctx, model)
		switch {
		case errors.Is(err, storage.ErrNoCheckpoint):
			log.Printf("No checkpoint in %s, starting from scratch", runSpec.LogDir)
		case err != nil:
			log.Fatalf("Failed to resume: %v", err)
		default:
			log.Printf("Resumed from epoch %d", restored)
			deps.EpochOffset = restored
			epochs = max(runSpec.Epochs-restored, 0)
		}
	}

	// Initialize price source
	if c := runSpec.Callbacks.Cost; c != nil && c.Provider == models.ProviderAWS {
		if c.Region == "" {
			c.Region = cfg.AWSRegion
		}
		awsClient, err := aws.NewClient(ctx, c.Region)
		if err != nil {
			log.Fatalf("Failed to create AWS client: %v", err)
		}
		deps.Prices = awsClient
	}

	hooks, err := training.BuildHooks(runSpec, deps)
	if err != nil {
		log.Fatalf("Failed to build callbacks: %v", err)
	}

	cbs, err := callbacks.New(hooks.List)
	if err != nil {
		log.Fatalf("Failed to build callbacks: %v", err)
	}
	log.Printf("Callbacks: %v", cbs.Names())

	data := training.Synthetic(runSpec.Samples, training.DefaultFeatures, runSpec.Seed)
	trainer, err := training.NewTrainer(model, data, training.Config{
		Epochs:       epochs,
		BatchSize:    runSpec.BatchSize,
		LearningRate: runSpec.LearningRate,
		Seed:         runSpec.Seed,
	}, cbs)
	if err != nil {
		log.Fatalf("Failed to create trainer: %v", err)
	}

	// Setup routes
	r := mux.NewRouter()
	runHandler := handlers.NewRunHandler(handlers.RunHandlerDeps{
		Run:         state,
		Checkpoints: storage.NewCheckpointManager(runSpec.LogDir),
		Summaries:   summaries,
		Events:      events,
		Progress:    hooks.Progress,
		CostTracker: hooks.Cost,
		Epochs:      cbs,
	})
	exporter := monitoring.NewMetricsExporter(hooks.Progress, hooks.Cost, cbs)
	routes.SetupRoutes(r, runHandler, handlers.NewMetricsHandler(hooks.Cost, exporter))

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Train
	log.Printf("Starting run %s (%s): %d epochs", run.ID, run.Name, epochs)
	state.setStatus(ctx, models.RunStatusRunning, "training_started", map[string]interface{}{
		"epochs":       epochs,
		"epoch_offset": deps.EpochOffset,
	})

	tc := callbacks.NewTrainContext(run.ID, model)
	tc.LogDir = runSpec.LogDir
	err = trainer.Train(ctx, tc)
	if closeErr := hooks.Writer.Close(); closeErr != nil {
		log.Printf("Failed to close summary file: %v", closeErr)
	}

	// Record the outcome even when the run was interrupted
	statusCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	switch {
	case err == nil:
		state.setStatus(statusCtx, models.RunStatusCompleted, "training_completed", nil)
		log.Printf("Run %s completed", run.ID)
	case errors.Is(err, context.Canceled):
		state.setStatus(statusCtx, models.RunStatusCancelled, "interrupted", nil)
		log.Printf("Run %s cancelled", run.ID)
	case errors.Is(err, monitoring.ErrBudgetExceeded):
		state.setStatus(statusCtx, models.RunStatusFailed, "budget_exceeded", map[string]interface{}{"error": err.Error()})
		log.Printf("Run %s stopped: %v", run.ID, err)
	default:
		state.setStatus(statusCtx, models.RunStatusFailed, "training_failed", map[string]interface{}{"error": err.Error()})
		log.Printf("Run %s failed: %v", run.ID, err)
	}

	log.Println("Shutting down server...")
	if err := server.Shutdown(statusCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")

	if err != nil {
		os.Exit(1)
	}
}
