package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	nats "github.com/nats-io/nats.go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/example/identity-service/config"
	"github.com/example/identity-service/internal/adapters/google"
	httpadapter "github.com/example/identity-service/internal/adapters/http"
	apiv1 "github.com/example/identity-service/internal/adapters/http/api/v1"
	handlers "github.com/example/identity-service/internal/adapters/http/api/v1/handlers"
	authmw "github.com/example/identity-service/internal/adapters/http/middleware"
	natsadapter "github.com/example/identity-service/internal/adapters/nats"
	repo "github.com/example/identity-service/internal/adapters/postgres"
	"github.com/example/identity-service/internal/domain"
	"github.com/example/identity-service/internal/metrics"
	"github.com/example/identity-service/internal/telegramauth"
	"github.com/example/identity-service/internal/usecase"
	pkglog "github.com/example/identity-service/pkg/log"
)

type App struct {
	cfg      *config.Config
	logger   pkglog.Logger
	db       *gorm.DB
	natsConn *nats.Conn
	echo     *echo.Echo
	service  usecase.Service
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := pkglog.With(pkglog.New(cfg.AppEnv, cfg.LogLevel), pkglog.Fields{"service": cfg.AppName})

	db, err := gorm.Open(postgres.Open(buildDSN(cfg)), &gorm.Config{
		Logger:         loggerForGorm(cfg),
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).AutoMigrate(&domain.User{}, &domain.RefreshToken{}); err != nil {
		return nil, err
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
	if err != nil {
		logger.Warn().Err(err).Msg("nats connect failed, continuing without messaging")
	}

	users := repo.NewUserRepository(db)
	refreshRepo := repo.NewRefreshTokenRepository(db)

	signer, err := usecase.NewJWTSigner(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.TelegramBotToken == "" {
		logger.Warn().Msg("telegram bot token not set, telegram login disabled")
	}
	if cfg.GoogleClientID == "" {
		logger.Warn().Msg("google client id not set, google login disabled")
	}

	var userClient natsadapter.UserClient
	var rbacClient natsadapter.RBACClient
	if nc != nil {
		userClient = natsadapter.NewUserClient(nc, cfg.NATSUserCreateSubject)
		rbacClient = natsadapter.NewRBACClient(nc, cfg.NATSAssignRoleSubject)
	}

	m := metrics.New()
	service := usecase.NewAuthService(cfg, logger, usecase.Deps{
		Users:         users,
		Resolver:      usecase.NewIdentityResolver(users),
		RefreshTokens: usecase.NewRefreshTokenStore(refreshRepo, cfg.RefreshTTL),
		Telegram:      telegramauth.NewVerifier(cfg.TelegramBotToken, cfg.TelegramMaxAge),
		Google:        google.NewTokenInfoClient(cfg.GoogleClientID, cfg.GoogleTokenInfoURL, cfg.GoogleTimeout),
		Signer:        signer,
		UserClient:    userClient,
		RBACClient:    rbacClient,
		Recorder:      m,
	})
	handler := handlers.NewAuthHandler(service)
	authMW := authmw.NewAuthMiddleware(signer)
	router := httpadapter.NewRouter(cfg, apiv1.NewRouter(handler, authMW.Handler), m.Handler())

	if nc != nil {
		verifyHandler := natsadapter.NewVerifyHandler(signer)
		if _, err := verifyHandler.Subscribe(nc, cfg.NATSVerifySubject, cfg.AppName); err != nil {
			logger.Warn().Err(err).Str("subject", cfg.NATSVerifySubject).Msg("verify subscription failed")
		}
	}

	e := echo.New()
	router.Setup(e)

	return &App{cfg: cfg, logger: logger, db: db, natsConn: nc, echo: e, service: service}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go runJanitor(ctx, a.service, a.cfg.RefreshSweepInterval, a.logger)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.echo.Shutdown(shutdownCtx)
	}()
	go func() {
		addr := fmt.Sprintf("%s:%s", a.cfg.HTTPHost, a.cfg.HTTPPort)
		a.logger.Info().Str("addr", addr).Msg("http server starting")
		errCh <- a.echo.Start(addr)
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *App) Close() {
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func buildDSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
}

func loggerForGorm(cfg *config.Config) logger.Interface {
	level := logger.Warn
	if cfg.AppEnv == "local" {
		level = logger.Info
	}
	return logger.Default.LogMode(level)
}
