package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"

	"github.com/packrat-app/packrat/internal/config"
	"github.com/packrat-app/packrat/internal/constants"
	"github.com/packrat-app/packrat/internal/datasets"
	"github.com/packrat-app/packrat/internal/fetch"
	"github.com/packrat-app/packrat/internal/handlers"
	"github.com/packrat-app/packrat/internal/kvstore"
	"github.com/packrat-app/packrat/internal/logger"
	"github.com/packrat-app/packrat/internal/narrative"
	"github.com/packrat-app/packrat/internal/search"
	"github.com/packrat-app/packrat/internal/tiles"
)

func main() {
	cfg := config.Load()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// The relational engine backs both the sqlite storage adapter and the
	// FTS search mode, so open it when either is configured.
	var db *sqlx.DB
	if cfg.StorageBackend == constants.BackendSQLite || cfg.SearchMode == constants.SearchModeFTS {
		var err error
		db, err = kvstore.OpenSQLite(cfg.DBPath)
		if err != nil {
			appLogger.Error("Failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	var adapter kvstore.Adapter
	switch cfg.StorageBackend {
	case constants.BackendBadger:
		badgerAdapter, err := kvstore.NewBadgerAdapter(filepath.Join(cfg.DataDir, "badger"))
		if err != nil {
			appLogger.Error("Failed to open badger store", "error", err)
			os.Exit(1)
		}
		adapter = badgerAdapter
	default:
		sqliteAdapter, err := kvstore.NewSQLiteAdapter(db, cfg.DataDir)
		if err != nil {
			appLogger.Error("Failed to open sqlite store", "error", err)
			os.Exit(1)
		}
		adapter = sqliteAdapter
	}
	defer adapter.Close()

	client := fetch.NewClient(nil, constants.MinRequestInterval)
	tileSource := fetch.NewHTTPTileSource(client, cfg.TileURL)
	articleSource := fetch.NewHTTPArticleSource(client, cfg.ArticleURL)
	tileManager := tiles.NewManager(adapter, tileSource, appLogger)

	registry := datasets.NewRegistry(datasets.DefaultCatalog())
	datasetManager := datasets.NewManager(adapter, tileManager, client, articleSource, registry, cfg.StorageBudget, appLogger)

	// Installs interrupted by a previous crash stay visible as failed,
	// never as installed.
	if err := datasetManager.MarkInterrupted(context.Background()); err != nil {
		appLogger.Error("Failed to recover interrupted installs", "error", err)
	}

	var engine search.Engine
	if cfg.SearchMode == constants.SearchModeMemory {
		engine = search.NewMemoryEngine(adapter, appLogger)
	} else {
		engine = search.NewFTSEngine(db, adapter, appLogger)
	}
	defer engine.Close()

	if err := engine.Init(context.Background()); err != nil {
		// Search degrades to empty results rather than blocking startup.
		appLogger.Error("Search index initialization failed", "error", err)
	}

	narrativeStore := narrative.NewStore(adapter)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := handlers.NewHandler(datasetManager, engine, narrativeStore, appLogger)
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}
