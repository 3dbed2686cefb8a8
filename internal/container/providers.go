// Package container provides dependency injection and lifecycle management
// for the inspection flow engine following Clean Architecture principles.
package container

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/verisite/fieldflow/internal/application/dispatcher"
	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/application/service"
	"github.com/verisite/fieldflow/internal/domain/event"
	"github.com/verisite/fieldflow/internal/infrastructure/export"
	"github.com/verisite/fieldflow/internal/infrastructure/external/openai"
	"github.com/verisite/fieldflow/internal/infrastructure/external/static"
	"github.com/verisite/fieldflow/internal/infrastructure/persistence/repository"
	"github.com/verisite/fieldflow/internal/infrastructure/persistence/sqlite"
	"github.com/verisite/fieldflow/internal/infrastructure/storage"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// StorageBundle holds evidence blob and report export components.
type StorageBundle struct {
	BlobStore port.BlobStore
	Exporter  port.TimelineExporter
}

// ProvideDatabase creates the database connection and transaction manager.
// Returns DatabaseBundle containing sql.DB and TransactionManager.
// Also runs any pending database migrations automatically.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Open SQLite with WAL mode, busy timeout, and foreign keys enforced
	sqlDB, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Create transaction manager wrapper
	db := sqlite.NewDB(sqlDB, logger)

	// Run database migrations if a migrations directory is configured
	if cfg.MigrationsDir != "" {
		migrator := sqlite.NewMigrator(db, logger)
		if err := migrator.RunMigrations(cfg.MigrationsDir); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DatabaseBundle{
		SqlDB:          sqlDB,
		TransactionMgr: db,
	}, nil
}

// ProvideRepositories creates all repositories from the transaction manager.
// Returns RepositoryBundle containing all repository implementations.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Definition: repository.NewDefinitionRepository(db, logger),
		Instance:   repository.NewInstanceRepository(db, logger),
		Phase:      repository.NewPhaseRepository(db, logger),
		Movement:   repository.NewMovementRepository(db, logger),
		Completion: repository.NewCompletionRepository(db, logger),
		Evidence:   repository.NewEvidenceRepository(db, logger),
	}, nil
}

// ProvideSuggester creates the movement suggester. With OpenAI enabled it
// builds the chat-completion suggester; otherwise the static checklist
// suggester serves rule-of-thumb candidates so the engine runs keyless.
func ProvideSuggester(cfg *OpenAIConfig, logger *zap.Logger) (port.MovementSuggester, error) {
	if cfg == nil {
		return nil, fmt.Errorf("openai config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if !cfg.Enabled {
		logger.Info("OpenAI suggester disabled, using static checklists")
		return static.NewSuggester(cfg.MaxCandidates, logger), nil
	}

	prompts := openai.DefaultPrompts()
	if cfg.PromptsPath != "" {
		loaded, err := openai.LoadPrompts(cfg.PromptsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompts: %w", err)
		}
		prompts = loaded
	}

	// Config values take precedence over the prompt file's tuning
	if cfg.Temperature > 0 {
		prompts.Suggestion.Temperature = cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		prompts.Suggestion.MaxTokens = cfg.MaxTokens
	}

	suggester := openai.NewSuggester(
		cfg.APIKey,
		cfg.BaseURL,
		cfg.Model,
		cfg.Timeout,
		cfg.MaxCandidates,
		prompts,
		logger,
	)

	return suggester, nil
}

// ProvideStorage creates the evidence blob store and timeline exporter.
// Returns StorageBundle containing BlobStore and Exporter.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := os.MkdirAll(cfg.EvidenceDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create evidence dir: %w", err)
	}
	if err := os.MkdirAll(cfg.ReportsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports dir: %w", err)
	}

	blobStore := storage.NewFilesystemBlobStore(cfg.EvidenceDir, cfg.EvidenceBaseURL, logger)
	exporter := export.NewExcelTimelineExporter(cfg.ReportsDir, logger)

	return &StorageBundle{
		BlobStore: blobStore,
		Exporter:  exporter,
	}, nil
}

// ProvideDispatcher creates the event dispatcher and registers the
// audit-log handler that writes every flow event through zap.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Create dispatcher logger adapter
	dispatcherLogger := &dispatcherLoggerAdapter{logger: logger}

	disp := dispatcher.NewDispatcher(
		dispatcher.WithLogger(dispatcherLogger),
	)

	disp.SubscribeAll("audit-log", createAuditLogHandler(logger))

	return disp, nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Suggester  port.MovementSuggester
	BlobStore  port.BlobStore
	Exporter   port.TimelineExporter
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
// Returns ServiceBundle containing all service implementations.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Suggester == nil {
		return nil, fmt.Errorf("suggester is required")
	}
	if deps.BlobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if deps.Exporter == nil {
		return nil, fmt.Errorf("exporter is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Create logger adapter for services
	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	// InstanceService doubles as the PhaseAdvancer for MovementService:
	// the phase pointer has exactly one writer.
	instanceService := service.NewInstanceService(
		deps.Repos.Definition,
		deps.Repos.Instance,
		deps.Repos.Phase,
		deps.Repos.Movement,
		deps.Repos.Completion,
		deps.TxManager,
		deps.Dispatcher,
		serviceLogger,
	)

	movementService := service.NewMovementService(
		deps.Repos.Instance,
		deps.Repos.Phase,
		deps.Repos.Movement,
		deps.Repos.Completion,
		deps.Repos.Evidence,
		deps.BlobStore,
		instanceService,
		deps.TxManager,
		deps.Dispatcher,
		serviceLogger,
	)

	evidenceService := service.NewEvidenceService(
		deps.Repos.Instance,
		deps.Repos.Movement,
		deps.Repos.Completion,
		deps.Repos.Evidence,
		deps.BlobStore,
		deps.Dispatcher,
		serviceLogger,
	)

	expansionService := service.NewExpansionService(
		deps.Repos.Definition,
		deps.Repos.Instance,
		deps.Repos.Phase,
		deps.Repos.Movement,
		deps.Repos.Completion,
		deps.Suggester,
		deps.TxManager,
		deps.Dispatcher,
		serviceLogger,
	)

	definitionService := service.NewDefinitionService(
		deps.Repos.Definition,
		deps.Repos.Instance,
		serviceLogger,
	)

	reportService := service.NewReportService(
		deps.Repos.Definition,
		deps.Repos.Instance,
		deps.Repos.Phase,
		deps.Repos.Movement,
		deps.Repos.Completion,
		deps.Repos.Evidence,
		deps.BlobStore,
		deps.Exporter,
		serviceLogger,
	)

	return &ServiceBundle{
		Definition: definitionService,
		Instance:   instanceService,
		Movement:   movementService,
		Evidence:   evidenceService,
		Expansion:  expansionService,
		Report:     reportService,
	}, nil
}

// createAuditLogHandler creates the handler that records every flow event.
// Observer work only; it never mutates engine state.
func createAuditLogHandler(logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		if evt == nil {
			return fmt.Errorf("event cannot be nil")
		}

		logger.Info("Flow event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.String("flow_instance_id", evt.FlowInstanceID),
			zap.String("claim_id", evt.ClaimID),
			zap.String("correlation_id", evt.CorrelationID),
			zap.Any("payload", evt.Payload),
		)

		return nil
	}
}
