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

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/campusflow/campusflow/internal/app"
	"github.com/campusflow/campusflow/internal/approval"
	approvalhttp "github.com/campusflow/campusflow/internal/approval/http"
	"github.com/campusflow/campusflow/internal/auth"
	"github.com/campusflow/campusflow/internal/observability"
	"github.com/campusflow/campusflow/internal/platform/cache"
	"github.com/campusflow/campusflow/internal/platform/db"
	"github.com/campusflow/campusflow/internal/rbac"
	"github.com/campusflow/campusflow/internal/shared"
	"github.com/campusflow/campusflow/jobs"
)

type stores struct {
	assignments rbac.AssignmentRepository
	subjects    approval.RepositoryPort
	users       auth.Repository
	history     approval.HistoryPort
	audit       rbac.AuditPort
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	var (
		redisClient *redis.Client
		dbpool      *pgxpool.Pool
	)
	g, startCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		client, err := cache.New(startCtx, cfg.Redis())
		redisClient = client
		return err
	})
	if !cfg.UsesMemoryStore() {
		g.Go(func() error {
			pool, err := db.New(startCtx, cfg.PGDSN, cfg.Pool())
			dbpool = pool
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("connect backing stores", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if dbpool != nil {
		defer dbpool.Close()
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx, dbpool); err != nil {
				logger.Error("migrate database", slog.Any("error", err))
				os.Exit(1)
			}
		}
	}

	st, err := buildStores(cfg, dbpool, logger)
	if err != nil {
		logger.Error("prepare stores", slog.Any("error", err))
		os.Exit(1)
	}

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionSecret, cfg.SessionTTL)
	metrics := observability.NewMetrics()

	rbacService := rbac.NewService(st.assignments, st.audit)
	rbacService.SetLogger(logger)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	redisOpts := cfg.Redis().AsynqOpt()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	approvalService := approval.NewService(st.subjects, rbacService, st.history,
		approval.ServiceConfig{RepositoryTimeout: cfg.RepositoryTimeout}, logger)
	approvalService.SetPublisher(jobClient)
	approvalService.SetMetrics(metrics)

	authService := auth.NewService(st.users, sessionManager)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		AuthHandler:     auth.NewHandler(logger, authService),
		RBACHandler:     rbac.NewHandler(logger, rbacService, rbacMiddleware),
		ApprovalHandler: approvalhttp.NewHandler(logger, approvalService, cfg.RateLimitPerMinute),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
		Ready: func(r *http.Request) error {
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				return err
			}
			if dbpool != nil {
				return dbpool.Ping(r.Context())
			}
			return nil
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.AppStore))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func buildStores(cfg *app.Config, pool *pgxpool.Pool, logger *slog.Logger) (stores, error) {
	if pool != nil {
		return stores{
			assignments: rbac.NewRepository(pool),
			subjects:    approval.NewRepository(pool),
			users:       auth.NewRepository(pool),
			history:     shared.NewApprovalRecorder(pool, logger),
			audit:       shared.NewAuditLogger(pool),
		}, nil
	}

	users := auth.NewMemoryRepository()
	var seed []rbac.RoleAssignment
	email := strings.TrimSpace(cfg.BootstrapAdminEmail)
	if email != "" && cfg.BootstrapAdminPassword != "" {
		hash, err := auth.HashPassword(cfg.BootstrapAdminPassword)
		if err != nil {
			return stores{}, err
		}
		now := time.Now().UTC()
		users.Add(auth.User{ID: "admin", Email: email, DisplayName: "Administrator", PasswordHash: hash, IsActive: true, CreatedAt: now, UpdatedAt: now})
		seed = append(seed, rbac.RoleAssignment{UserID: "admin", Role: rbac.RoleSuperAdmin, IsActive: true, AssignedAt: now})
		logger.Info("bootstrap admin seeded", slog.String("email", email))
	}
	return stores{
		assignments: rbac.NewMemoryRepository(seed...),
		subjects:    approval.NewMemoryRepository(),
		users:       users,
		history:     shared.NewMemoryApprovalLog(),
	}, nil
}
