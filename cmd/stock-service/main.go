package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cataloghandler "github.com/cellbank/cellbank-backend/internal/catalog/handler"
	catalogrepo "github.com/cellbank/cellbank-backend/internal/catalog/repository"
	"github.com/cellbank/cellbank-backend/internal/stock/events"
	"github.com/cellbank/cellbank-backend/internal/stock/handler"
	"github.com/cellbank/cellbank-backend/internal/stock/repository"
	"github.com/cellbank/cellbank-backend/internal/stock/service"
	"github.com/cellbank/cellbank-backend/pkg/config"
	"github.com/cellbank/cellbank-backend/pkg/database"
	"github.com/cellbank/cellbank-backend/pkg/httputil"
	"github.com/cellbank/cellbank-backend/pkg/logger"
	"github.com/cellbank/cellbank-backend/pkg/messaging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("stock-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("stock-service", cfg.Server.Environment)
	log.Info().Msg("starting Stock Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	nomenclatureRepo := catalogrepo.NewNomenclatureRepository(db)
	containerRepo := catalogrepo.NewContainerTypeRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	movementRepo := repository.NewMovementRepository(db)

	// Initialize services
	ledger := service.NewLedgerService(db, batchRepo, movementRepo, nomenclatureRepo, publisher, log, cfg.Scanner.WarningWindowDays)
	scanner := service.NewExpiryScanner(batchRepo, publisher, cfg.Scanner, log)

	// Initialize handlers
	nomenclatureHandler := cataloghandler.NewNomenclatureHandler(nomenclatureRepo, log)
	containerHandler := cataloghandler.NewContainerTypeHandler(containerRepo, log)
	batchHandler := handler.NewBatchHandler(ledger, log)
	allocationHandler := handler.NewAllocationHandler(ledger, log)
	movementHandler := handler.NewMovementHandler(ledger, log)
	reportHandler := handler.NewReportHandler(ledger, batchRepo, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the expiry scanner
	scanner.Start(ctx)
	defer scanner.Stop()

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			if origin == "http://localhost:3000" || origin == "http://localhost:5173" {
				return true
			}
			// Allow *.cellbank.io for production
			return len(origin) > 12 && origin[len(origin)-12:] == ".cellbank.io"
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID", "X-User-Email"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "stock-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/stock", func(r chi.Router) {
		// Catalog routes
		r.Route("/nomenclature", func(r chi.Router) {
			r.Get("/", nomenclatureHandler.List)
			r.Post("/", nomenclatureHandler.Create)
			r.Get("/{id}", nomenclatureHandler.Get)
			r.Put("/{id}", nomenclatureHandler.Update)
			r.Delete("/{id}", nomenclatureHandler.Deactivate)
			r.Get("/{id}/batches", batchHandler.ListByNomenclature)
			r.Get("/{id}/level", reportHandler.StockLevel)
		})
		r.Route("/container-types", func(r chi.Router) {
			r.Get("/", containerHandler.List)
			r.Post("/", containerHandler.Create)
			r.Get("/{id}", containerHandler.Get)
		})

		// Batch routes
		r.Route("/batches", func(r chi.Router) {
			r.Post("/", batchHandler.Receive)
			r.Get("/{id}", batchHandler.Get)
			r.Post("/{id}/consume", batchHandler.Consume)
			r.Post("/{id}/adjust", batchHandler.Adjust)
			r.Post("/{id}/dispose", batchHandler.Dispose)
			r.Get("/{id}/movements", movementHandler.History)
			r.Get("/{id}/reconciliation", movementHandler.Reconcile)
		})

		// Allocation routes
		r.Route("/allocations", func(r chi.Router) {
			r.Post("/", allocationHandler.Allocate)
			r.Post("/preview", allocationHandler.Preview)
		})

		// Reports
		r.Get("/reports/expiring", reportHandler.Expiring)
		r.Get("/reports/summary", reportHandler.Summary)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop the scanner
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
