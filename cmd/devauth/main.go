// Command devauth runs the development authentication service with one
// seeded account.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"login-handshake/app"
	"login-handshake/internal/devauth"
)

func main() {
	logger, err := app.NewLogger(app.LogConfig{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: true,
	})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := devauth.Config{Logger: logger}
	if addr := os.Getenv("DEVAUTH_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer func() { _ = client.Close() }()
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal("redis unavailable", zap.String("addr", addr), zap.Error(err))
		}
		cfg.Store = devauth.NewRedisChallengeStore(client, "")
		logger.Info("storing challenges in redis", zap.String("addr", addr))
	}

	svc, err := devauth.New(cfg)
	if err != nil {
		logger.Fatal("failed to start devauth", zap.Error(err))
	}
	seed(logger, svc)

	addr := getEnv("DEVAUTH_HTTP_ADDR", ":4000")
	srv := &http.Server{
		Addr:              addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()
	logger.Info("devauth listening", zap.String("addr", addr))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func seed(logger *zap.Logger, svc *devauth.Service) {
	email := getEnv("DEVAUTH_EMAIL", "demo@example.com")
	password := getEnv("DEVAUTH_PASSWORD", "demo")

	var secret string
	if enabled, _ := strconv.ParseBool(os.Getenv("DEVAUTH_TOTP")); enabled {
		var err error
		if secret, err = devauth.GenerateTOTPSecret(devauth.DefaultIssuer, email); err != nil {
			logger.Fatal("failed to generate totp secret", zap.Error(err))
		}
	}

	if _, err := svc.AddUser(email, password, secret); err != nil {
		logger.Fatal("failed to seed user", zap.Error(err))
	}

	fields := []zap.Field{zap.String("email", email), zap.String("password", password)}
	if secret != "" {
		code, _ := devauth.TOTPCode(secret, time.Now())
		fields = append(fields, zap.String("totp_secret", secret), zap.String("current_code", code))
	}
	logger.Info("seeded account", fields...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
