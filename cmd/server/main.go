package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"yuanyue-cms/internal/config"
	"yuanyue-cms/internal/data"
	"yuanyue-cms/internal/handler"
	"yuanyue-cms/internal/logger"
	"yuanyue-cms/internal/service"
	"yuanyue-cms/internal/storage"
	"yuanyue-cms/internal/view"
	"yuanyue-cms/web"
)

func main() {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig()
	if err != nil {
		// Use fmt.Printf here because the logger is not yet initialized.
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Initialization ---
	log := logger.New(cfg.Log)

	// --- Database Initialization and Migration ---
	log.Info(fmt.Sprintf("Connecting to the %s database...", cfg.DB.Driver))
	db, err := data.NewDB(cfg.DB)
	if err != nil {
		log.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()
	log.Info("Database connection successful.")

	if cfg.DB.Migrate {
		log.Info("Applying database migrations...")
		if err := data.ApplyMigrations(db, cfg.DB.Driver); err != nil {
			log.Fatal(err, "Failed to apply migrations")
		}
		log.Info("Migrations applied successfully.")
	}

	// --- Blob Store Initialization ---
	var (
		blobs   storage.BlobStore
		uploads *handler.UploadHandler
	)
	switch cfg.Storage.Backend {
	case "s3":
		log.Info(fmt.Sprintf("Using S3 bucket %q for images", cfg.Storage.Bucket))
		s3Store, err := storage.NewS3Store(context.Background(), cfg.Storage)
		if err != nil {
			log.Fatal(err, "Failed to initialize S3 store")
		}
		blobs = s3Store
	default:
		log.Info("Initializing SQLite blob store...")
		sqliteStore, err := storage.NewSQLiteStore(cfg.Storage.SQLite.FilePath, cfg.Storage.Bucket, cfg.Storage.SQLite.PublicPrefix)
		if err != nil {
			log.Fatal(err, "Failed to initialize SQLite blob store")
		}
		defer sqliteStore.Close()
		blobs = sqliteStore
		uploads = handler.NewUploadHandler(sqliteStore)
	}

	// --- View Template Initialization ---
	log.Info("Initializing view templates...")
	viewService, err := view.New(web.TemplateFS)
	if err != nil {
		log.Fatal(err, "Failed to initialize view templates")
	}
	log.Info("View templates initialized.")

	// --- Dependency Injection and Handler Initialization ---
	// Initialize the application layers, injecting dependencies from top to bottom.
	articleRepository := data.NewSQLArticleRepository(db)
	articleService := service.NewArticleService(articleRepository, blobs, service.Options{
		PlaceholderImage: cfg.Site.PlaceholderImage,
		DefaultAuthor:    cfg.Site.DefaultAuthor,
		DetailRoute:      cfg.Site.DetailRoute,
	}, log)

	// --- Router Setup ---
	router := handler.NewRouter(handler.Routes{
		Articles:       handler.NewArticleHandler(articleService, log, cfg.Site.MaxUploadBytes),
		Pages:          handler.NewPageHandler(articleService, viewService, log),
		SEO:            handler.NewSeoHandler(articleService, cfg.Server.BaseURL),
		Uploads:        uploads,
		Health:         handler.NewHealthHandler(articleRepository, log),
		View:           viewService,
		Log:            log,
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		DetailRoute:    cfg.Site.DetailRoute,
		UploadPrefix:   cfg.Storage.SQLite.PublicPrefix,
	})

	// --- Server Initialization and Graceful Shutdown ---
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if cfg.Server.TLS.Enabled {
			log.Info(fmt.Sprintf("Starting HTTPS server on %s", server.Addr))
			if err := server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal(err, "Could not start HTTPS server")
			}
		} else {
			log.Info(fmt.Sprintf("Starting HTTP server on %s", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal(err, "Could not start HTTP server")
			}
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Warn("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal(err, "Server forced to shutdown")
	}
	log.Info("Server exiting")
}
