package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/adminsettings/internal/adapters/events"
	"github.com/atvirokodosprendimai/adminsettings/internal/adapters/httpapi"
	sqliteadapter "github.com/atvirokodosprendimai/adminsettings/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/adminsettings/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/ports"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/usecase"
	"github.com/atvirokodosprendimai/adminsettings/migrations"
)

const (
	outboxInterval  = 2 * time.Second
	outboxBatchSize = 100
	webhookTimeout  = 10 * time.Second
)

type Config struct {
	Addr             string
	DBPath           string
	BootstrapAPIKey  string
	BootstrapTenant  string
	BootstrapKeyName string
	BootstrapRole    string
	WebhookURL       string
	WebhookSecret    string
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewServer opens and migrates the database, wires the services and starts
// the outbox dispatcher. The returned closer stops the dispatcher and closes
// the database. Logs go to the logger carried by ctx.
func NewServer(ctx context.Context, cfg Config) (*http.Server, io.Closer, error) {
	logger := zerolog.Ctx(ctx)

	db, err := gormsqlite.Open(cfg.DBPath, gormsqlite.WithLogger(logger.With().Str("component", "gorm").Logger()))
	if err != nil {
		return nil, nil, fmt.Errorf("open settings sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	settingsStore := sqliteadapter.NewSettingsStore(db)
	ruleSchemaRepo := sqliteadapter.NewRuleSchemaRepository(db)
	apiKeyRepo := sqliteadapter.NewAPIKeyRepository(db)
	auditTrailRepo := sqliteadapter.NewAuditTrailRepository(db)
	outboxRepo := sqliteadapter.NewOutboxRepository(db)

	ruleService, err := usecase.NewRuleSchemaService(ruleSchemaRepo)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("rule schema service: %w", err)
	}
	settingsService := usecase.NewSettingsService(settingsStore, ruleService)
	authService := usecase.NewAuthService(apiKeyRepo)
	auditService := usecase.NewAuditService(auditTrailRepo)

	if cfg.BootstrapAPIKey != "" {
		tenant := cfg.BootstrapTenant
		if tenant == "" {
			tenant = "default"
		}
		name := cfg.BootstrapKeyName
		if name == "" {
			name = "bootstrap"
		}

		bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 5*time.Second)
		key, err := authService.Bootstrap(bootstrapCtx, cfg.BootstrapAPIKey, tenant, name, cfg.BootstrapRole)
		bootstrapCancel()
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("bootstrap api key: %w", err)
		}
		logger.Info().Str("tenant", key.TenantID).Str("key", key.Name).Str("role", key.Role).Msg("bootstrap api key ready")
	}

	dispatcher := usecase.NewOutboxDispatcher(outboxRepo, newPublisher(cfg, *logger), outboxInterval, outboxBatchSize)
	dispatcher.Start(logger.With().Str("component", "outbox").Logger().WithContext(context.Background()))

	handler := httpapi.NewHandler(
		settingsService,
		ruleService,
		auditService,
		authService,
		httpapi.WithLogger(logger.With().Str("component", "http").Logger()),
		httpapi.WithHealthCheck(db.Ping),
	)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{dispatcher, db}}, nil
}

// newPublisher always logs outbox events and also posts them to the webhook
// when one is configured.
func newPublisher(cfg Config, logger zerolog.Logger) ports.EventPublisher {
	logPublisher := events.NewLogPublisher(logger.With().Str("component", "events").Logger())
	if cfg.WebhookURL == "" {
		return logPublisher
	}
	return events.MultiPublisher{
		logPublisher,
		events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, webhookTimeout),
	}
}
