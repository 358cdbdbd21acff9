// Package container wires the application's components together and
// manages their lifecycle.
package container

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/jinwill/docflow/internal/application/dispatcher"
	"github.com/jinwill/docflow/internal/application/engine"
	"github.com/jinwill/docflow/internal/application/port"
	"github.com/jinwill/docflow/internal/application/service"
	"github.com/jinwill/docflow/internal/config"
	"github.com/jinwill/docflow/internal/infrastructure/notify"
	"github.com/jinwill/docflow/internal/infrastructure/persistence/repository"
	"github.com/jinwill/docflow/internal/infrastructure/persistence/sqlite"
	"github.com/jinwill/docflow/migrations"
	"github.com/jinwill/docflow/pkg/database"
)

// Container builds and owns all application components.
// Components are initialized in dependency order and shut down in reverse.
type Container struct {
	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool

	config *config.Config
	logger *zap.Logger

	db        *database.DB
	txManager *sqlite.DB
	repos     *RepositoryBundle

	emailSender   port.MessageSender
	notifications service.NotificationService
	audit         service.AuditService
	documents     service.DocumentService

	dispatcher dispatcher.Dispatcher
	engine     engine.Engine
}

// RepositoryBundle groups all persistence repositories
type RepositoryBundle struct {
	Workflows     port.WorkflowRepository
	Steps         port.StepRepository
	Documents     port.DocumentRepository
	Audit         port.AuditRepository
	Notifications port.NotificationRepository
}

// NewContainer creates an unstarted container
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database, migrations, and repositories
// 2. Outbound notification delivery
// 3. Application services
// 4. Event dispatcher and workflow engine
func (c *Container) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	c.initNotify()

	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	c.initDispatcherAndEngine()
	c.logger.Info("Dispatcher and workflow engine initialized")

	c.ready.Store(true)
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	var errs []error

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		return fmt.Errorf("container closed with %d errors", len(errs))
	}
	return nil
}

func (c *Container) initDatabase() error {
	db, err := database.New(database.Config{
		Path:            c.config.Database.Path,
		MaxOpenConns:    c.config.Database.MaxOpenConns,
		MaxIdleConns:    c.config.Database.MaxIdleConns,
		ConnMaxLifetime: c.config.Database.ConnMaxLifetime,
	}, c.logger)
	if err != nil {
		return err
	}
	c.db = db

	migrator := database.NewMigrator(db, c.logger)
	if err := migrator.Run(migrations.FS); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	c.txManager = sqlite.NewDB(db.DB, c.logger)
	c.repos = &RepositoryBundle{
		Workflows:     repository.NewWorkflowRepository(db.DB, c.logger),
		Steps:         repository.NewStepRepository(db.DB, c.logger),
		Documents:     repository.NewDocumentRepository(db.DB, c.logger),
		Audit:         repository.NewAuditRepository(db.DB, c.logger),
		Notifications: repository.NewNotificationRepository(db.DB, c.logger),
	}
	return nil
}

func (c *Container) initNotify() {
	// No SMTP host means notifications are recorded but not delivered.
	if c.config.SMTP.Host == "" {
		c.logger.Info("SMTP not configured, notification delivery disabled")
		return
	}
	c.emailSender = notify.NewEmailSender(notify.SMTPConfig{
		Host:     c.config.SMTP.Host,
		Port:     c.config.SMTP.Port,
		Username: c.config.SMTP.Username,
		Password: c.config.SMTP.Password,
		From:     c.config.SMTP.From,
		Domain:   c.config.SMTP.Domain,
	}, c.logger)
}

func (c *Container) initServices() error {
	serviceLogger := &zapLoggerAdapter{logger: c.logger}

	c.notifications = service.NewNotificationService(c.repos.Notifications, c.emailSender, serviceLogger)
	c.audit = service.NewAuditService(c.repos.Audit, serviceLogger)
	c.documents = service.NewDocumentService(c.repos.Documents, serviceLogger)
	return nil
}

func (c *Container) initDispatcherAndEngine() {
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: c.logger}))
	c.notifications.Register(d)
	c.audit.Register(d)
	c.dispatcher = d

	c.engine = engine.New(
		c.repos.Workflows,
		c.repos.Steps,
		c.repos.Documents,
		c.txManager,
		&zapLoggerAdapter{logger: c.logger},
		engine.WithDispatcher(d),
	)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() engine.Engine {
	return c.engine
}

// Documents returns the document service.
func (c *Container) Documents() service.DocumentService {
	return c.documents
}

// Notifications returns the notification service.
func (c *Container) Notifications() service.NotificationService {
	return c.notifications
}

// Audit returns the audit service.
func (c *Container) Audit() service.AuditService {
	return c.audit
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Repositories returns the persistence repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repos
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.txManager
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// ServiceLogger returns the logger adapted for the application layer.
func (c *Container) ServiceLogger() service.Logger {
	return &zapLoggerAdapter{logger: c.logger}
}

// zapLoggerAdapter adapts zap.Logger to the narrow Logger interfaces
// used by the application layer.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
