package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"signup-api/internal/config"
	"signup-api/internal/container"
	"signup-api/internal/handler"
	"signup-api/internal/middleware"
	"signup-api/internal/service"
	"signup-api/pkg/errors"
	"signup-api/pkg/logger"
	"signup-api/pkg/telemetry"
)

// Resources holds all resources that need cleanup
type Resources struct {
	container *container.Container
	signup    service.SignupService
	telemetry func(context.Context) error
	server    *http.Server
	log       *logger.Logger
	mu        sync.Mutex
	closed    bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests
	if r.server != nil {
		r.log.Info("Shutting down HTTP server...")
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	// Let in-flight welcome emails finish before their clients go away
	if r.signup != nil {
		r.log.Info("Waiting for background welcome emails...")
		if err := r.signup.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Welcome emails still pending at shutdown")
			errs = append(errs, fmt.Errorf("signup service shutdown: %w", err))
		}
	}

	if r.container != nil {
		// Quick health check before closing (with short timeout)
		healthCtx, healthCancel := context.WithTimeout(ctx, 2*time.Second)
		if rc := r.container.GetRedisClient(); rc != nil {
			if err := rc.Health(healthCtx); err != nil {
				r.log.WithError(err).Warn("Redis health check failed before closing")
			}
		}
		healthCancel()

		r.log.Info("Closing Redis and database connections...")
		r.container.Close()
	}

	if r.telemetry != nil {
		if err := r.telemetry(ctx); err != nil {
			r.log.WithError(err).Error("Failed to flush traces")
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		r.log.WithField("error_count", len(errs)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errs), errs)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
	}).Info("Starting signup-api server")

	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Setup(ctx, "signup-api", cfg.OTelEndpoint)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize telemetry")
	}

	// Create dependency injection container
	startCtx, startCancel := context.WithTimeout(ctx, 15*time.Second)
	c, err := container.New(startCtx, cfg, log)
	startCancel()
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	// Setup router
	router := setupRouter(c)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
	}

	// Create resources manager for cleanup
	resources := &Resources{
		container: c,
		signup:    c.GetSignupService(),
		telemetry: shutdownTelemetry,
		server:    server,
		log:       log,
	}

	// Setup graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	// Wait for interrupt signal or server error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	log.Info("Initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router
func setupRouter(c *container.Container) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()

	r := chi.NewRouter()

	corsConfig := middleware.DefaultCORSConfig(cfg.AllowedOrigins)

	// Setup middlewares
	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID(log))
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.Session(c.GetSessionService(), log))

	// Create handlers
	healthHandler := handler.NewHealthHandler(c)
	signupHandler := handler.NewSignupHandler(c)
	googleHandler := handler.NewGoogleHandler(c)
	sessionHandler := handler.NewSessionHandler(c, corsConfig)
	mailHandler := handler.NewMailHandler(c)

	// Health check
	r.Get("/health", healthHandler.Check)

	r.Route("/api", func(r chi.Router) {
		// The watch stream is long-lived and hijacks the connection, so it
		// stays outside the timeout and compression middlewares.
		r.Get("/auth/watch", sessionHandler.Watch)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Compress(5))
			r.Use(chiMiddleware.Timeout(60 * time.Second))

			r.Post("/signup", signupHandler.SignUp)
			r.Get("/signup/form", signupHandler.FormStatus)

			r.Route("/auth", func(r chi.Router) {
				r.Get("/google/login", googleHandler.Login)
				r.Get("/google/callback", googleHandler.Callback)
				r.Get("/session", sessionHandler.Status)
				r.Post("/logout", sessionHandler.Logout)
			})

			r.Post("/send-welcome-email", mailHandler.SendWelcomeEmail)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		notFound := errors.NewNotFoundError("Endpoint not found")
		response := &errors.ErrorResponse{}
		response.Error.Type = notFound.Type
		response.Error.Message = notFound.Message
		response.Error.RequestID = middleware.RequestIDFromContext(r.Context())
		response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response)
	})

	log.Info("Router configured successfully")
	return r
}
