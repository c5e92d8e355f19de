package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"call-pipeline/internal/audit"
	"call-pipeline/internal/auth"
	"call-pipeline/internal/callrequest"
	"call-pipeline/internal/config"
	"call-pipeline/internal/lifecycle"
	"call-pipeline/internal/provider"
	"call-pipeline/internal/reconcile"
	"call-pipeline/internal/reporting"
	"call-pipeline/pkg/logger"
	"call-pipeline/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	st, err := openStorage(rootCtx, cfg)
	if err != nil {
		log.Error("storage init failed", "backend", cfg.Store.Backend, "err", err)
		os.Exit(1)
	}
	defer st.close()

	var claimer reconcile.Claimer
	if addr := cfg.RedisAddr(); addr != "" {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: addr})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		claimer = reconcile.NewRedisClaimer(rdb, cfg.Reconcile.LeaseTTL)
	} else {
		log.Warn("redis not configured, reconciliation is deduplicated per process only")
	}

	if cfg.Vapi.APIKey == "" {
		log.Warn("VAPI_PRIVATE_API_KEY not set, ended calls will be flagged for manual processing")
	}
	fetcher := provider.NewClient(provider.ClientOptions{
		BaseURL: cfg.Vapi.BaseURL,
		APIKey:  cfg.Vapi.APIKey,
		Timeout: cfg.Vapi.HTTPTimeout,
	})

	auditSvc := audit.NewService(st.audit)
	reconciler := reconcile.New(st.calls, fetcher, reconcile.Options{
		Policy:  cfg.RetryPolicy(),
		Claimer: claimer,
		Auditor: auditSvc,
	})
	runner := reconcile.NewAsyncRunner(reconciler)

	d := deps{
		auth:       authManager,
		db:         st.db,
		calls:      st.calls,
		lifecycle:  lifecycle.NewService(st.calls, runner),
		reconciler: reconciler,
		fetcher:    fetcher,
		reporting:  reporting.NewService(st.calls),
		audit:      auditSvc,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, d)

	// Manual reconciliation runs the full retry schedule inside the request.
	policy := cfg.RetryPolicy()
	writeTimeout := policy.Worst() + time.Duration(policy.MaxAttempts)*cfg.Vapi.HTTPTimeout + 30*time.Second

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Warn("reconciliations cancelled at shutdown", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

type storage struct {
	calls callrequest.Store
	audit audit.Repository
	// db is nil unless the postgres backend is selected.
	db    *sql.DB
	close func()
}

func openStorage(ctx context.Context, cfg config.Config) (storage, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return storage{}, err
		}
		if err := callrequest.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return storage{}, err
		}
		if err := audit.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return storage{}, err
		}
		return storage{
			calls: callrequest.NewPostgresStore(db),
			audit: audit.NewPostgresRepo(db),
			db:    db,
			close: func() { _ = db.Close() },
		}, nil

	case config.BackendFirestore:
		client, err := utils.OpenFirestore(ctx, utils.FirestoreConfig{
			ProjectID:       cfg.Firestore.ProjectID,
			CredentialsFile: cfg.Firestore.CredentialsFile,
		})
		if err != nil {
			return storage{}, err
		}
		// Audit events have no Firestore layout; they stay in process.
		return storage{
			calls: callrequest.NewFirestoreStore(client),
			audit: audit.NewMemoryRepo(),
			close: func() { _ = client.Close() },
		}, nil

	case config.BackendMemory:
		return storage{
			calls: callrequest.NewMemoryStore(),
			audit: audit.NewMemoryRepo(),
			close: func() {},
		}, nil
	}
	return storage{}, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
