package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"bakubin-auth/internal/config"
	"bakubin-auth/internal/db"
	"bakubin-auth/internal/email"
	apihttp "bakubin-auth/internal/http"
	"bakubin-auth/internal/metrics"
	"bakubin-auth/internal/repository"
	"bakubin-auth/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.RunMigrations {
		if err := db.MigrateUp(cfg.DatabaseURL); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Ping(ctx, pool); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}

	m := metrics.New()
	userRepo := repository.NewPgUserRepository(pool)
	auditRepo := repository.NewPgAuditRepository(pool)
	var tokenRepo repository.VerificationTokenRepository = repository.NewPgVerificationTokenRepository(pool)

	limiter := service.NewRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			limiter = service.NewRedisRateLimiter(redisClient, cfg.RateLimitWindow, cfg.RateLimitMax)
			if cfg.TokenStore == "redis" {
				tokenRepo = repository.NewRedisVerificationTokenRepository(redisClient)
			}
		}
		cancel()
	}
	if cfg.TokenStore == "redis" && cfg.RedisAddr == "" {
		logger.Warn("TOKEN_STORE=redis without REDIS_ADDR, using postgres")
	}

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	// Los workers se detienen después del servidor.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	var workers sync.WaitGroup
	auditRecorder := service.NewAuditRecorder(logger, auditRepo, m, cfg.AuditRetryQueue)
	tokenIssuer := service.NewTokenIssuer(tokenRepo)
	workers.Add(2)
	go func() {
		defer workers.Done()
		auditRecorder.Run(workerCtx)
	}()
	go func() {
		defer workers.Done()
		tokenIssuer.RunPurger(workerCtx, cfg.TokenPurgeEvery, logger, m)
	}()

	authSvc := service.NewAuthService(
		logger,
		userRepo,
		service.NewArgon2idHasher(),
		service.NewHashPool(cfg.HashWorkers, cfg.HashQueueWait),
		tokenIssuer,
		auditRecorder,
		emailSender,
		limiter,
		m,
		service.AuthOptions{
			BaseURL:               cfg.AppBaseURL,
			ExposeVerificationURL: !cfg.IsProduction(),
		},
	)
	router, err := apihttp.NewRouter(logger, apihttp.NewAuthHandler(logger, authSvc), m, cfg.TrustedProxies)
	if err != nil {
		logger.Fatal("router init", zap.Error(err))
	}

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
		stop()
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	cancelWorkers()
	workers.Wait()
	logger.Info("stopped", zap.Int("audit_pending", auditRecorder.Pending()))
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
