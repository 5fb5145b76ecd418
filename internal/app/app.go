package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/synthcheck/internal/adapters/events"
	"github.com/atvirokodosprendimai/synthcheck/internal/adapters/httpapi"
	sqliteadapter "github.com/atvirokodosprendimai/synthcheck/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/synthcheck/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/synthcheck/internal/adapters/tabular"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/ports"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/usecase"
	"github.com/atvirokodosprendimai/synthcheck/migrations"
)

type Config struct {
	Addr             string
	DBPath           string
	LogLevel         string
	BootstrapAPIKey  string
	BootstrapTenant  string
	BootstrapKeyName string
	WebhookURL       string
	WebhookSecret    string
	DispatchInterval time.Duration
	MaxUploadBytes   int64
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

func NewServer(ctx context.Context, cfg Config, log *logrus.Logger) (*http.Server, io.Closer, error) {
	if log == nil {
		log = SetupLogging(cfg.LogLevel)
	}

	db, err := gormsqlite.Open(cfg.DBPath, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
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

	fileRepo := sqliteadapter.NewFileRepository(db)
	runStore := sqliteadapter.NewRunStore(db)
	apiKeyRepo := sqliteadapter.NewAPIKeyRepository(db)
	outboxRepo := sqliteadapter.NewOutboxRepository(db)

	metadataService := usecase.NewMetadataService(fileRepo)
	fileService := usecase.NewFileService(fileRepo, cfg.MaxUploadBytes, metadataService)
	validationService := usecase.NewValidationService(fileRepo, metadataService, tabular.NewDecoder(), runStore, log)
	authService := usecase.NewAuthService(apiKeyRepo, log)

	interval := cfg.DispatchInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	dispatcher := usecase.NewOutboxDispatcher(outboxRepo, newPublisher(cfg, log), log, interval, 100)
	dispatcher.Start(context.Background())

	if cfg.BootstrapAPIKey != "" {
		if err := bootstrapKey(authService, cfg); err != nil {
			_ = dispatcher.Close()
			_ = db.Close()
			return nil, nil, err
		}
	}

	handler := httpapi.NewHandler(fileService, metadataService, validationService, authService, log, cfg.MaxUploadBytes)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{dispatcher, db}}, nil
}

func newPublisher(cfg Config, log *logrus.Logger) ports.EventPublisher {
	if cfg.WebhookURL != "" {
		log.WithField("url", cfg.WebhookURL).Info("outbox events delivered by webhook")
		return events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, 0, log)
	}
	return events.NewLogPublisher(log)
}

func bootstrapKey(auth *usecase.AuthService, cfg Config) error {
	name := cfg.BootstrapKeyName
	if name == "" {
		name = "bootstrap"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := auth.Register(ctx, cfg.BootstrapAPIKey, tenantOrDefault(cfg.BootstrapTenant), name); err != nil {
		return fmt.Errorf("bootstrap api key: %w", err)
	}
	return nil
}

func tenantOrDefault(tenant string) string {
	if tenant == "" {
		return "default"
	}
	return tenant
}
