package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"requestportal/docs"
	"requestportal/internal/auth"
	"requestportal/internal/cache"
	"requestportal/internal/config"
	"requestportal/internal/db"
	"requestportal/internal/handler"
	"requestportal/internal/logger"
	"requestportal/internal/notify"
	"requestportal/internal/repository"
	"requestportal/internal/router"
	"requestportal/internal/service"
	"requestportal/internal/storage"
)

// @title Request Portal API
// @version 1.0
// @description Institutional request portal with email-verified registration, request submission, admin review and attachment uploads.
// @host localhost:5000
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN())
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB, cfg.ResetDB, zlog); err != nil {
		return err
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)
	requestRepo := repository.NewRequestRepository(gormDB)
	if err := requestRepo.EnsureCounter(ctx); err != nil {
		return err
	}

	// Pending registrations
	var pending auth.PendingStore
	switch cfg.PendingStore {
	case "redis":
		cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer cacheClient.Close()
		if err := cacheClient.Ping(ctx); err != nil {
			return err
		}
		pending = auth.NewRedisPendingStore(cacheClient)
	default:
		pending = auth.NewMemoryPendingStore()
	}
	go auth.RunSweeper(ctx, pending, cfg.PendingSweepInterval, zlog)

	// Outbound notifications
	mailer, err := notify.NewMailer(notify.MailerConfig{
		Provider:     cfg.MailProvider,
		From:         cfg.MailFrom,
		FromName:     cfg.MailFromName,
		SMTPHost:     cfg.SMTPHost,
		SMTPPort:     cfg.SMTPPort,
		SMTPUser:     cfg.SMTPUser,
		SMTPPassword: cfg.SMTPPass,
		ResendAPIKey: cfg.ResendAPIKey,
	}, zlog)
	if err != nil {
		return err
	}
	notifier := notify.NewMailNotifier(mailer, cfg.NotifyCC)

	dispatcherOpts := []notify.DispatcherOption{}
	if cfg.KafkaBroker != "" {
		dispatcherOpts = append(dispatcherOpts, notify.WithPublisher(
			notify.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic, cfg.KafkaUsername, cfg.KafkaPassword),
		))
		zlog.Info("publishing status events", zap.String("topic", cfg.KafkaTopic))
	}
	dispatcher := notify.NewDispatcher(notifier, zlog.Named("dispatcher"), dispatcherOpts...)
	dispatcher.Start(context.Background())
	defer dispatcher.Close()

	// Attachment storage
	var store storage.Storage
	if cfg.UploadBackend == "cloudinary" {
		store, err = storage.NewCloudinaryStorage(cfg.CloudinaryURL, "request-portal")
	} else {
		store, err = storage.NewDiskStorage(cfg.UploadDir)
	}
	if err != nil {
		return err
	}

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	authService := service.NewAuthService(
		userRepo,
		pending,
		auth.NewPasswordHasher(cfg.BcryptCost),
		jwtService,
		notifier,
		service.AuthSettings{
			InstitutionDomain: cfg.InstitutionDomain,
			PhoneRegion:       cfg.PhoneRegion,
			ResetURLBase:      cfg.AppBaseURL,
		},
		zlog.Named("auth"),
	)
	requestService := service.NewRequestService(requestRepo, dispatcher, zlog.Named("requests"))
	uploadService := service.NewUploadService(store, cfg.MaxUploadBytes, zlog.Named("upload"))

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 60 * time.Second

	router.Register(e, cfg, zlog, jwtService, userRepo, router.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Requests: handler.NewRequestHandler(requestService),
		Upload:   handler.NewUploadHandler(uploadService),
	})

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "https://"), "http://")
	}
	zlog.Info("swagger documentation available", zap.String("url", "http://"+docs.SwaggerInfo.Host+"/swagger/index.html"))

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.ServerPort
		zlog.Info("server starting", zap.String("addr", addr), zap.String("db_driver", cfg.DBDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
