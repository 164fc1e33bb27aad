package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reservation-caller/internal/audit"
	"reservation-caller/internal/auth"
	"reservation-caller/internal/calls"
	"reservation-caller/internal/config"
	"reservation-caller/internal/httpapi"
	"reservation-caller/internal/notify"
	"reservation-caller/internal/orchestrator"
	"reservation-caller/internal/telephony"
	"reservation-caller/pkg/logger"
	"reservation-caller/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local convenience; missing .env is fine.
	_ = godotenv.Load()

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

	repo, cleanup, err := buildRepository(rootCtx, cfg, log)
	if err != nil {
		log.Error("repository init failed", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	auditSvc := audit.NewService(audit.NewMemoryRepo(), log)
	repo.SetObserver(auditSvc)

	dispatcher := buildDispatcher(rootCtx, cfg, log)
	defer dispatcher.Close()

	var dialer telephony.Dialer
	var sigCheck httpapi.SignatureChecker
	if cfg.Twilio.Enabled() {
		td := telephony.NewTwilioDialer(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
		dialer = td
		sigCheck = td.ValidateSignature
		log.Info("twilio dialer configured", "from", cfg.Twilio.FromNumber)
	} else {
		log.Info("no telephony configured, dials will be simulated")
	}

	svc := orchestrator.NewService(repo, orchestrator.Options{
		Dialer:        dialer,
		Audit:         auditSvc,
		Notifier:      dispatcher,
		Log:           log,
		PublicBaseURL: cfg.App.PublicBaseURL,
		Retry: telephony.RetryConfig{
			Attempts:       cfg.Call.DialAttempts,
			InitialBackoff: cfg.Call.DialBackoff,
			MaxBackoff:     5 * cfg.Call.DialBackoff,
			AttemptTimeout: cfg.Call.DialAttemptTimeout,
		},
		Sweep: orchestrator.SweepConfig{
			DialTimeout:         cfg.Call.DialTimeout,
			ConversationTimeout: cfg.Call.ConversationTimeout,
		},
	})

	httpapi.RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:    authManager,
		Service: svc,
		Repo:    repo,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager), sigCheck, cfg.App.PublicBaseURL)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
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
}

// observableRepo is what main needs beyond the repository contract: a place
// to hang the blocked-transition observer.
type observableRepo interface {
	calls.Repository
	SetObserver(obs calls.TransitionObserver)
}

func buildRepository(ctx context.Context, cfg config.Config, log *slog.Logger) (observableRepo, func(), error) {
	if cfg.Store.UsePostgres() {
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, nil, err
		}
		repo := calls.NewPostgresRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("using postgres call store", "host", cfg.Store.Host, "db", cfg.Store.Name)
		return repo, func() { _ = db.Close() }, nil
	}

	if cfg.Store.FilePath != "" {
		repo, err := calls.NewFileRepo(cfg.Store.FilePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using file-mirrored call store", "path", cfg.Store.FilePath)
		return repo, func() {}, nil
	}

	log.Info("using in-memory call store")
	return calls.NewMemoryRepo(), func() {}, nil
}

func buildDispatcher(ctx context.Context, cfg config.Config, log *slog.Logger) *notify.Dispatcher {
	if cfg.Redis.Enabled() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Warn("redis unavailable, notifications fall back to log", "err", err)
		} else {
			return notify.NewDispatcher(notify.NewRedisSink(rdb), log, 256)
		}
	}
	return notify.NewDispatcher(notify.LogSink{Log: log}, log, 256)
}
