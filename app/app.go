package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"login-handshake/delivery"
	"login-handshake/gateway"
	"login-handshake/login"
)

// App holds the application's dependencies: the configured gateway, the
// logger and the HTTP router built on them.
type App struct {
	Config  Config
	Router  http.Handler
	logger  *zap.Logger
	gateway login.Gateway
}

var _ delivery.AppDependencies = (*App)(nil)

// New builds the logger and the gateway described by cfg and sets up the
// router.
func New(ctx context.Context, cfg Config) (*App, error) {
	logger, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return NewWithLogger(ctx, cfg, logger)
}

// NewWithLogger is New with a caller supplied logger.
func NewWithLogger(ctx context.Context, cfg Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gw, err := NewGateway(ctx, cfg.Gateway, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		logger:  logger,
		gateway: gw,
	}
	a.Router = delivery.NewRouter(a)
	return a, nil
}

// NewGateway returns the login.Gateway selected by cfg.Kind. A JWKS URL adds
// session token verification to either kind.
func NewGateway(ctx context.Context, cfg GatewayConfig, logger *zap.Logger) (login.Gateway, error) {
	var verifier gateway.TokenVerifier
	if cfg.JWKSURL != "" {
		v, err := gateway.NewJWKSVerifier(ctx, cfg.JWKSURL, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to configure JWKS verifier: %w", err)
		}
		verifier = v
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}

	switch cfg.Kind {
	case GatewayKratos:
		logger.Info("using kratos gateway", zap.String("url", cfg.KratosURL))
		return gateway.NewKratos(gateway.KratosConfig{
			PublicURL:  cfg.KratosURL,
			HTTPClient: &http.Client{Timeout: timeout},
			TokenizeAs: cfg.TokenizeAs,
			Verifier:   verifier,
			Logger:     logger,
		})
	case GatewayREST, "":
		logger.Info("using rest gateway", zap.String("url", cfg.URL))
		return gateway.NewClient(gateway.ClientConfig{
			BaseURL:  cfg.URL,
			Path:     cfg.Path,
			Timeout:  timeout,
			Verifier: verifier,
			Logger:   logger,
		})
	default:
		return nil, fmt.Errorf("unknown gateway kind %q", cfg.Kind)
	}
}

func (a *App) Gateway() login.Gateway { return a.gateway }

func (a *App) Logger() *zap.Logger { return a.logger }

func (a *App) FlowTTL() time.Duration { return a.Config.Server.FlowTTL }

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (a *App) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	a.logger.Info("server listening", zap.String("addr", srv.Addr))

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

// Close flushes the logger.
func (a *App) Close() {
	_ = a.logger.Sync()
}
