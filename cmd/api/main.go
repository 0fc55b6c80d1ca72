package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/ticket-similarity-api/internal/bootstrap"
	"github.com/ticket-similarity-api/internal/handlers"
	"github.com/ticket-similarity-api/internal/middleware"
	"github.com/ticket-similarity-api/pkg/schema/db"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	ctx := context.Background()
	app, err := bootstrap.New(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	cfg := app.Config

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	// Create API group with prefix
	api := e.Group(cfg.APIPrefix)

	// Register handlers
	healthHandler := handlers.NewHealthHandler(db.GetPostgres(), app.Ingest, cfg.CorpusBackend)
	healthHandler.RegisterRoutes(api)

	ticketsHandler := handlers.NewTicketsHandler(app.Ingest, app.Similarity, cfg.CorpusBackend)
	ticketsHandler.RegisterRoutes(api)

	// Root health check
	e.GET("/", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"name":    cfg.APITitle,
			"version": cfg.APIVersion,
			"status":  "running",
		})
	})

	// Start server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		log.Printf("Starting %s v%s on %s", cfg.APITitle, cfg.APIVersion, addr)
		if err := e.Start(addr); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}

	if err := app.Close(shutdownCtx); err != nil {
		log.Printf("Error releasing resources: %v", err)
	}

	log.Println("Server stopped")
}
