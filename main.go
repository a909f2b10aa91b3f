package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkeller/form4ingest/config"
	_ "github.com/dkeller/form4ingest/docs"
	"github.com/dkeller/form4ingest/internal/cache"
	"github.com/dkeller/form4ingest/internal/database"
	"github.com/dkeller/form4ingest/internal/edgar"
	"github.com/dkeller/form4ingest/internal/form4"
	"github.com/dkeller/form4ingest/internal/handlers"
	"github.com/dkeller/form4ingest/internal/metrics"
	"github.com/dkeller/form4ingest/internal/repository"
	"github.com/dkeller/form4ingest/internal/services"
	"github.com/dkeller/form4ingest/internal/sgml"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Form 4 Ingestion API
// @version 1.0
// @description Filing ingestion and structured extraction engine for SEC Form 4 submissions.
// @BasePath /
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create context for initialization
	ctx := context.Background()

	// Initialize database connection and apply schema
	db, err := database.New(ctx, cfg.PGURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	// Initialize metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Initialize EDGAR client and the layered document cache
	edgarClient := edgar.NewClient(cfg.UserAgent)
	docCache := cache.NewDocumentCache(edgarClient, cfg.EdgarBaseURL, cfg.CacheDir,
		cfg.CacheMode == config.CacheModeWrite, m)

	// Initialize repositories and the idempotent writer
	entityRepo := repository.NewEntityRepository(db.Pool)
	securityRepo := repository.NewSecurityRepository(db.Pool)
	filingRepo := repository.NewFilingRepository(db.Pool)
	writer := repository.NewPersistenceWriter(db.Pool, entityRepo, securityRepo, filingRepo)

	// Initialize the extraction pipeline
	splitter := sgml.NewSplitter()
	extractor := form4.NewExtractor(filingRepo)
	resolver := services.NewReconciliationResolver(filingRepo)
	ingestSvc := services.NewIngestionService(docCache, splitter, extractor, resolver, writer, m)

	// Initialize handlers
	ingestHandler := handlers.NewIngestHandler(ingestSvc, filingRepo)

	// Setup Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Ingestion and filing routes
	router.POST("/admin/ingest", ingestHandler.Ingest)
	router.GET("/filings/:accession", ingestHandler.GetFiling)

	// Observability
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Give outstanding requests 5 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	fmt.Println("Server exited")
}
