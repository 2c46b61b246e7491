package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/strukturo/automate-go/internal/authz"
	"github.com/strukturo/automate-go/internal/engine"
	"github.com/strukturo/automate-go/internal/platform/auditlog"
	"github.com/strukturo/automate-go/internal/platform/auth"
	"github.com/strukturo/automate-go/internal/platform/env"
	"github.com/strukturo/automate-go/internal/platform/httpserver"
	"github.com/strukturo/automate-go/internal/platform/objectstore"
	"github.com/strukturo/automate-go/internal/platform/postgres"
	"github.com/strukturo/automate-go/internal/provision"
	pgrepo "github.com/strukturo/automate-go/internal/repo/postgres"
	"github.com/strukturo/automate-go/internal/service/report"
	"github.com/strukturo/automate-go/internal/service/trigger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("AUTOMATE_HTTP_ADDR", ":8084")
	shutdownTimeout, err := env.Duration("AUTOMATE_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	internalAuthSecret := env.String("AUTOMATE_INTERNAL_AUTH_SECRET", "")
	headersAuth, err := auth.NewGatewayHeadersAuthenticator(internalAuthSecret)
	if err != nil {
		logger.Error("invalid internal auth config", "error", err)
		os.Exit(2)
	}

	appTokenSecret := strings.TrimSpace(env.String("AUTOMATE_APP_TOKEN_SECRET", ""))
	if appTokenSecret == "" {
		logger.Error("missing app token secret", "env", "AUTOMATE_APP_TOKEN_SECRET")
		os.Exit(2)
	}
	appTokenTTL, err := env.Duration("AUTOMATE_APP_TOKEN_TTL", time.Hour)
	if err != nil {
		logger.Error("invalid app token ttl", "error", err)
		os.Exit(2)
	}
	tokenIssuer, err := auth.NewAppTokenIssuer(appTokenSecret, appTokenTTL)
	if err != nil {
		logger.Error("app token issuer init failed", "error", err)
		os.Exit(2)
	}

	engineClient, err := engine.NewClient(env.String("AUTOMATE_ENGINE_URL", "http://localhost:9800"))
	if err != nil {
		logger.Error("engine client init failed", "error", err)
		os.Exit(2)
	}
	authzClient, err := authz.NewClient(env.String("AUTOMATE_AUTHZ_URL", "http://localhost:9810"))
	if err != nil {
		logger.Error("authorization client init failed", "error", err)
		os.Exit(2)
	}

	archiveEnabled, err := env.Bool("AUTOMATE_RESULTS_ARCHIVE_ENABLED", false)
	if err != nil {
		logger.Error("invalid results archive flag", "error", err)
		os.Exit(2)
	}
	var archive report.ResultsArchiver
	var readinessChecks []httpserver.ReadinessCheck
	readinessChecks = append(readinessChecks, httpserver.ReadinessCheck{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
			defer cancel()
			return db.PingContext(checkCtx)
		},
	})
	if archiveEnabled {
		storeCfg, err := objectstore.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid object store config", "error", err)
			os.Exit(2)
		}
		storeClient, err := objectstore.NewMinIOClient(storeCfg)
		if err != nil {
			logger.Error("object store client init failed", "error", err)
			os.Exit(2)
		}
		startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
			cancel()
			logger.Error("object store unavailable", "error", err)
			os.Exit(1)
		}
		cancel()
		archive, err = objectstore.NewResultsArchive(storeClient, storeCfg.BucketResults)
		if err != nil {
			logger.Error("results archive init failed", "error", err)
			os.Exit(2)
		}
		readinessChecks = append(readinessChecks, httpserver.ReadinessCheck{
			Name: "minio",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return objectstore.CheckBuckets(checkCtx, storeClient, storeCfg)
			},
		})
	}

	automationStore := pgrepo.NewAutomationStore(db)
	runStore := pgrepo.NewRunStore(db)
	versionStore := pgrepo.NewVersionStore(db)
	auditAppender, err := auditlog.NewAppender(db)
	if err != nil {
		logger.Error("audit appender init failed", "error", err)
		os.Exit(2)
	}

	triggerService, err := trigger.NewService(
		automationStore,
		runStore,
		versionStore,
		engineClient,
		tokenIssuer,
		authzClient,
		auditAppender,
		logger,
	)
	if err != nil {
		logger.Error("trigger service init failed", "error", err)
		os.Exit(2)
	}
	reportService, err := report.NewService(runStore, archive, auditAppender, logger)
	if err != nil {
		logger.Error("report service init failed", "error", err)
		os.Exit(2)
	}

	provisionFile := strings.TrimSpace(env.String("AUTOMATE_PROVISION_FILE", ""))
	if provisionFile != "" {
		provisionCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := provision.ApplyFile(provisionCtx, automationStore, provisionFile, logger)
		cancel()
		if err != nil {
			logger.Error("provisioning failed", "file", provisionFile, "error", err)
			os.Exit(1)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("orchestrator"))
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks("orchestrator", readinessChecks...))

	api := newOrchestratorAPI(logger, triggerService, reportService, runStore, headersAuth, appTokenSecret)
	api.register(mux)

	cfg := httpserver.Config{
		Service:         "orchestrator",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "orchestrator", mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
