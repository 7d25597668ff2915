package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-qc/internal/application/port"
	"github.com/garyjia/invoice-qc/internal/application/service"
	"github.com/garyjia/invoice-qc/internal/config"
	"github.com/garyjia/invoice-qc/internal/history"
	"github.com/garyjia/invoice-qc/internal/repository"
	"github.com/garyjia/invoice-qc/internal/rules"
	"github.com/garyjia/invoice-qc/internal/validator"
	"github.com/garyjia/invoice-qc/pkg/database"
)

// Container owns the application's components. Start builds them in
// dependency order and Close tears them down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger
	now    func() time.Time

	// Infrastructure
	db      *database.DB
	history *repository.HistoryRepository

	// Application
	policy     rules.Policy
	engine     *validator.Engine
	validation service.ValidationService

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// Option customizes a Container
type Option func(*Container)

// WithClock fixes the evaluation clock, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(c *Container) {
		c.now = now
	}
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start initializes all components:
// 1. History database and repository (when configured)
// 2. Validation engine
// 3. Application services
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	db, err := ProvideDatabase(c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = db
	c.history = ProvideHistoryRepository(db, c.logger)
	if c.history != nil {
		// stored state must seed a tracker, or every request would fail
		if err := c.history.SeedTracker(ctx, history.New()); err != nil {
			c.closeDatabase()
			return fmt.Errorf("failed to read history store: %w", err)
		}
		c.logger.Info("History store initialized", zap.String("path", c.config.Database.Path))
	} else {
		c.logger.Info("History store disabled; each run starts empty")
	}

	c.policy = ProvidePolicy(c.config.Validation, c.now)
	engine, err := ProvideEngine(c.config.Validation, c.policy, c.logger)
	if err != nil {
		c.closeDatabase()
		return err
	}
	c.engine = engine
	c.logger.Info("Validation engine initialized",
		zap.Strings("rules", engine.Registry().Names()),
		zap.Strings("disabled_rules", c.config.Validation.DisabledRules))

	var store port.HistoryStore
	if c.history != nil {
		store = c.history
	}
	c.validation = service.NewValidationService(engine, store, c.policy.RetentionCutoff, c.logger.Named("service"))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close releases the history database
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.closeDatabase()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) closeDatabase() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		c.logger.Error("Failed to close database", zap.Error(err))
		return err
	}
	c.logger.Info("Database closed")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    c.ready.Load(),
		Components: make(map[string]ComponentHealth),
	}

	if c.engine != nil {
		status.Components["engine"] = ComponentHealth{
			Healthy: true,
			Message: fmt.Sprintf("rules: %d", len(c.engine.Registry().Names())),
		}
	} else {
		status.Components["engine"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	switch {
	case c.config.Database.Path == "":
		status.Components["history"] = ComponentHealth{Healthy: true, Message: "disabled"}
	case c.db == nil:
		status.Components["history"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	default:
		if err := c.db.PingContext(ctx); err != nil {
			status.Components["history"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["history"] = ComponentHealth{Healthy: true}
		}
	}

	return status
}

// Config returns the container's configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the root logger
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Engine returns the validation engine
func (c *Container) Engine() *validator.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine
}

// ValidationService returns the validation service
func (c *Container) ValidationService() service.ValidationService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validation
}

// HistoryRepository returns the history repository, or nil when the store
// is disabled
func (c *Container) HistoryRepository() *repository.HistoryRepository {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history
}
