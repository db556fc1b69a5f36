package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"signup-api/internal/config"
	"signup-api/internal/repository"
	"signup-api/internal/service"
	"signup-api/internal/service/identity"
	"signup-api/internal/service/mail"
	"signup-api/internal/service/session"
	"signup-api/internal/service/signup"
	"signup-api/pkg/auth/google"
	"signup-api/pkg/database"
	"signup-api/pkg/logger"
	"signup-api/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           *database.PostgresDB
	RedisClient  *redis.Client
	Repositories *repository.Repositories
	Services     *service.Services
}

// New connects to Postgres and Redis and wires every service
func New(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Container, error) {
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Database connected successfully")

	redisClient, err := redis.NewClient(cfg.RedisURL, cfg.Environment, logger.Named("redis").Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("Redis client initialized successfully")

	return Wire(cfg, logger, db, redisClient), nil
}

// Wire builds the repositories and services on top of existing clients
func Wire(cfg *config.Config, logger *logger.Logger, db *database.PostgresDB, redisClient *redis.Client) *Container {
	documents := repository.NewDocumentRepository(db)
	repos := &repository.Repositories{
		Documents: documents,
		Profile:   repository.NewProfileRepository(documents),
	}

	identityClient := identity.NewClient(
		cfg.IdentityAPIURL,
		cfg.IdentityAPIKey,
		cfg.FrontendURL,
		tracedClient(30*time.Second),
		logger.Named("identity"),
	)
	googleClient := google.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.RedirectURL, tracedClient(30*time.Second))
	relay := mail.NewRelay(config.MailAPIURL, tracedClient(cfg.MailAPITimeout), logger.Named("mail"))

	sessions := session.NewService(redisClient, session.Config{
		Secret:       cfg.SessionSecret,
		TTL:          cfg.SessionTTL,
		SecureCookie: cfg.CookieSecure,
	}, logger.Named("session"))

	signupService := signup.NewService(signup.Dependencies{
		Identity:       identityClient,
		Google:         googleClient,
		Profiles:       repos.Profile,
		Mail:           relay,
		Sessions:       sessions,
		Forms:          signup.NewFormTracker(redisClient),
		WelcomeTimeout: cfg.WelcomeEmailTimeout,
	}, logger.Named("signup"))

	return &Container{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		RedisClient:  redisClient,
		Repositories: repos,
		Services: &service.Services{
			Signup:  signupService,
			Session: sessions,
			Mail:    relay,
		},
	}
}

// tracedClient returns an HTTP client whose requests are traced
func tracedClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// GetSignupService returns the signup service
func (c *Container) GetSignupService() service.SignupService {
	return c.Services.Signup
}

// GetSessionService returns the session service
func (c *Container) GetSessionService() service.SessionService {
	return c.Services.Session
}

// GetMailRelay returns the welcome email relay
func (c *Container) GetMailRelay() service.WelcomeSender {
	return c.Services.Mail
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// Close releases the database and Redis connections
func (c *Container) Close() {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.WithError(err).Error("Failed to close Redis connection")
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
