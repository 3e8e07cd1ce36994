package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	oauth "github.com/threatgate/threatgate"
	"github.com/threatgate/threatgate/instrumentation"
	"github.com/threatgate/threatgate/internal/config"
	"github.com/threatgate/threatgate/mapping"
	"github.com/threatgate/threatgate/providers/oidc"
	"github.com/threatgate/threatgate/security"
)

// serveConfigPath is the configuration file the server loads at startup and
// watches for mapping changes afterwards.
var serveConfigPath string

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authorization server",
	Long: `Starts the HTTP server with the OAuth endpoints, loads the
user_mappings table from the configuration file, and watches the file so
mapping changes (including disabling a user) take effect without a restart.

The identity provider client secret can be supplied via the
THREATGATE_PROVIDER_CLIENT_SECRET environment variable or a .env file in
the working directory instead of the configuration file.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// A missing .env file is not an error; it is only a convenience for
	// keeping the provider client secret out of the config file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Server.LogLevel)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var inst *instrumentation.Instrumentation
	if cfg.Telemetry.Enabled {
		inst, err = instrumentation.New(instrumentation.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: version,
			Enabled:        true,
			LogClientIPs:   cfg.Telemetry.LogClientIPs,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize instrumentation: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := inst.Shutdown(shutdownCtx); err != nil {
				logger.Error("Instrumentation shutdown failed", "error", err)
			}
		}()
	}

	mappings := mapping.New(logger)
	if err := mappings.Replace(cfg.UserMappings); err != nil {
		return fmt.Errorf("failed to load user mappings: %w", err)
	}
	logger.Info("User mappings loaded", "count", mappings.Size())

	provider, err := oidc.NewProvider(ctx, &oidc.Config{
		IssuerURL:              cfg.Provider.IssuerURL,
		AuthorizationEndpoint:  cfg.Provider.AuthorizationEndpoint,
		TokenEndpoint:          cfg.Provider.TokenEndpoint,
		UserInfoEndpoint:       cfg.Provider.UserInfoEndpoint,
		ClientID:               cfg.Provider.ClientID,
		ClientSecret:           cfg.Provider.ClientSecret,
		RedirectURL:            cfg.Server.Issuer + "/oauth/callback",
		Scopes:                 cfg.Provider.Scopes,
		IdentityClaim:          cfg.Provider.IdentityClaim,
		IdentitySource:         oidc.IdentitySource(cfg.Provider.IdentitySource),
		RequestTimeout:         time.Duration(cfg.Provider.RequestTimeout),
		AllowInsecureTransport: cfg.Provider.AllowInsecureTransport,
		Logger:                 logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize identity provider: %w", err)
	}

	server, err := oauth.NewServer(oauth.ServerConfig{
		Issuer:                        cfg.Server.Issuer,
		Provider:                      provider,
		Mappings:                      mappings,
		Logger:                        logger,
		Instrumentation:               inst,
		AuthorizationCodeTTL:          time.Duration(cfg.Server.AuthorizationCodeTTL),
		AccessTokenTTL:                time.Duration(cfg.Server.AccessTokenTTL),
		SessionTTL:                    time.Duration(cfg.Server.SessionTTL),
		AllowUnregisteredRedirectURIs: cfg.Server.AllowUnregisteredRedirectURIs,
		MaxClientsPerIP:               cfg.Server.MaxClientsPerIP,
		RateLimit: oauth.RateLimitConfig{
			Disabled:        cfg.Server.RateLimit.Disabled,
			Rate:            cfg.Server.RateLimit.Rate,
			Burst:           cfg.Server.RateLimit.Burst,
			CleanupInterval: time.Duration(cfg.Server.RateLimit.Cleanup),
		},
		TrustProxy:        cfg.Server.TrustProxy,
		TrustedProxyCount: cfg.Server.TrustedProxyCount,
		DisableAuditLog:   cfg.Server.DisableAuditLog,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer server.Stop()

	// Reload the mapping table when the config file changes, so disabling a
	// user takes effect without a restart.
	watcher := mapping.NewWatcher(mappings, mapping.WatcherConfig{
		Path:   serveConfigPath,
		Logger: logger,
		OnReload: func(err error) {
			if err != nil {
				logger.Error("Mapping reload failed, previous table kept", "error", err)
				return
			}
			logger.Info("User mappings reloaded", "count", mappings.Size())
		},
	})
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to start mapping watcher: %w", err)
	}
	defer func() {
		if err := watcher.Stop(); err != nil {
			logger.Error("Mapping watcher stop failed", "error", err)
		}
	}()

	mux := http.NewServeMux()
	oauth.NewHandler(server).RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      security.RequestIDMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting threatgate",
			"addr", httpServer.Addr,
			"issuer", cfg.Server.Issuer,
			"version", version,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveConfigPath, "config", "config.yaml", "Path to the configuration file")
}
