//	@title			Dating App API
//	@version		1.0
//	@description	Members, authentication and photo management for the dating app.
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/datingapp/service/internal/auth"
	"github.com/datingapp/service/internal/config"
	"github.com/datingapp/service/internal/db"
	"github.com/datingapp/service/internal/logging"
	appMiddleware "github.com/datingapp/service/internal/middleware"
	"github.com/datingapp/service/internal/photo"
	"github.com/datingapp/service/internal/response"
	"github.com/datingapp/service/internal/storage"
	"github.com/datingapp/service/internal/user"

	_ "github.com/datingapp/service/docs/swagger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level: cfg.LogLevel,
		Dev:   !cfg.IsProduction(),
		File:  cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	objects, err := storage.NewMinioStorage(ctx, storage.MinioConfig{
		Endpoint:   cfg.Storage.Endpoint,
		AccessKey:  cfg.Storage.AccessKey,
		SecretKey:  cfg.Storage.SecretKey,
		Bucket:     cfg.Storage.Bucket,
		PublicBase: cfg.Storage.PublicBase,
		UseSSL:     cfg.Storage.UseSSL,
	}, logger)
	if err != nil {
		return fmt.Errorf("object storage init failed: %w", err)
	}
	images := storage.NewImageStore(objects, "photos/")

	// Wire dependencies: repository → service → handler
	photoRepo := photo.NewRepository(pool)
	photoSvc := photo.NewService(photoRepo, images, logger.Named("photo"), cfg.Photo.StoreTimeout)
	photoHandler := photo.NewHandler(photoSvc, logger.Named("photo"), cfg.Photo.MaxUploadBytes)

	userRepo := user.NewRepository(pool)
	userSvc := user.NewService(userRepo, photoRepo)
	userHandler := user.NewHandler(userSvc)

	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, userSvc, cfg)
	authHandler := auth.NewHandler(authSvc, logger.Named("auth"))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, pool, logger, authHandler, userHandler, photoHandler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		logger.Info("swagger UI available", zap.String("url", "http://localhost:"+cfg.Port+"/swagger/"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newRouter(
	cfg *config.Config,
	pool *pgxpool.Pool,
	logger *zap.Logger,
	authHandler *auth.Handler,
	userHandler *user.Handler,
	photoHandler *photo.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(logger.Named("http")))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		response.OK(w, map[string]string{"status": "ok"})
	})

	// Swagger UI at /swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireAuth(cfg.JWTSecret))

			r.Route("/users", func(r chi.Router) {
				r.Get("/", userHandler.ListUsers)
				r.Get("/me", userHandler.GetMe)
				r.Get("/{userId}", userHandler.GetUser)
				r.Route("/{userId}/photos", photoHandler.Routes)
			})
		})
	})

	return r
}
