// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/skycast/skycast/internal/account"
	"github.com/skycast/skycast/internal/auth"
	"github.com/skycast/skycast/internal/config"
	"github.com/skycast/skycast/internal/history"
	"github.com/skycast/skycast/internal/httpapi"
	"github.com/skycast/skycast/internal/logging"
	"github.com/skycast/skycast/internal/mail"
	"github.com/skycast/skycast/internal/observability"
	"github.com/skycast/skycast/internal/weather"
	"github.com/skycast/skycast/pkg/errutil"
)

const serviceName = "skycast"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API server. Configuration is read from the --config
file, a .env file, SKYCAST_* environment variables and flags, in that order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), resolveConfigPath(configFile), cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps starts the API server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, path string, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps = serveDefaults(deps)

	cfg, err := deps.ConfigLoader(path, cmd.Flags())
	if err != nil {
		return oops.With("operation", "load config").Wrap(err)
	}
	// Refuse to bind any listener without a usable configuration.
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.Setup(serviceName, version, cfg.Log.Format, cfg.Log.Level, deps.LogOutput)
	slog.SetDefault(logger)

	logger.Info("starting skycast",
		"addr", cfg.Server.Addr,
		"storage_driver", cfg.Storage.Driver,
		"mail_provider", cfg.Mail.Provider,
	)

	storage, err := deps.StorageOpener(ctx, cfg.Storage, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("driver", cfg.Storage.Driver).Wrap(err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if closeErr := storage.Close(closeCtx); closeErr != nil {
			errutil.LogErrorContext(closeCtx, logger, slog.LevelWarn, "error closing storage", closeErr)
		}
	}()
	logger.Info("connected to storage", "driver", cfg.Storage.Driver)

	registry := observability.NewRegistry()
	metrics := observability.NewMetrics(registry)

	authSvc, err := newAuthService(cfg, storage, logger)
	if err != nil {
		return err
	}
	defer authSvc.Wait()

	historySvc, err := history.NewService(storage.History, history.WithLogger(logger))
	if err != nil {
		return err
	}
	accountSvc, err := account.NewService(storage.Users, historySvc, logger)
	if err != nil {
		return err
	}
	weatherClient, err := weather.NewClient(cfg.Weather.APIURL, cfg.Weather.APIKey,
		weather.WithTimeout(cfg.Weather.Timeout),
		weather.WithRecorder(metrics),
		weather.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	mailer, err := newNotifier(cfg.Mail, logger)
	if err != nil {
		return err
	}

	api, err := deps.APIServerFactory(httpapi.Deps{
		Auth:     authSvc,
		Accounts: accountSvc,
		Weather:  weatherClient,
		History:  historySvc,
		Mailer:   mailer,
		Metrics:  metrics,
		Logger:   logger,
	}, httpapi.Config{
		Addr:           cfg.Server.Addr,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RateLimit:      cfg.Server.RateLimit,
		TrustedProxies: cfg.Server.TrustedProxies,
		ExposeTokens:   cfg.Mail.ExposeTokens,
	})
	if err != nil {
		return oops.With("operation", "create api server").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiErrChan, err := api.Start()
	if err != nil {
		return oops.Code("SERVER_START_FAILED").With("addr", cfg.Server.Addr).Wrap(err)
	}

	var obsServer ObservabilityServer
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, registry, authSvc.Ping, logger)
		obsErrChan, obsErr := obsServer.Start()
		if obsErr != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if stopErr := api.Stop(stopCtx); stopErr != nil {
				logger.Warn("failed to stop api server during cleanup", "error", stopErr)
			}
			return oops.Code("SERVER_START_FAILED").With("addr", cfg.Server.MetricsAddr).Wrap(obsErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Skycast listening on " + api.Addr())
	logger.Info("skycast ready", "addr", api.Addr())

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err, ok := <-apiErrChan:
		if ok && err != nil {
			serveErr = oops.Code("SERVER_FAILED").Wrap(err)
		}
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := api.Stop(shutdownCtx); err != nil {
		errutil.LogErrorContext(shutdownCtx, logger, slog.LevelWarn, "error stopping api server", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return serveErr
}

func serveDefaults(deps *ServeDeps) *ServeDeps {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ConfigLoader == nil {
		deps.ConfigLoader = func(path string, flags *pflag.FlagSet) (*config.Config, error) {
			return config.Load(path, flags)
		}
	}
	if deps.StorageOpener == nil {
		deps.StorageOpener = openStorage
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(d httpapi.Deps, c httpapi.Config) (APIServer, error) {
			return httpapi.New(d, c)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, g prometheus.Gatherer, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, g, ready, logger)
		}
	}
	if deps.LogOutput == nil {
		deps.LogOutput = os.Stderr
	}
	return deps
}

func newAuthService(cfg *config.Config, storage *Storage, logger *slog.Logger) (*auth.Service, error) {
	sessions, err := auth.NewSessionIssuer([]byte(cfg.Auth.JWTSecret),
		auth.WithSessionTTL(cfg.Auth.SessionTTL),
		auth.WithIssuer(cfg.Auth.Issuer),
	)
	if err != nil {
		return nil, err
	}
	return auth.NewService(storage.Users, auth.NewArgon2idHasher(), sessions,
		auth.WithLogger(logger),
		auth.WithHashWorkers(cfg.Auth.HashWorkers),
		auth.WithVerificationTTL(cfg.Auth.VerificationTTL),
		auth.WithResetTTL(cfg.Auth.ResetTTL),
	)
}

func newNotifier(cfg config.MailConfig, logger *slog.Logger) (mail.Notifier, error) {
	if cfg.Provider == mail.ProviderResend {
		return mail.NewResendNotifier(cfg.APIKey, cfg.From, cfg.PublicURL, mail.WithLogger(logger))
	}
	if cfg.ExposeTokens {
		logger.Warn("mail provider is log; verification tokens are logged and returned in responses")
	} else {
		logger.Warn("mail provider is log; account tokens are logged")
	}
	return mail.NewLogNotifier(logger), nil
}

// monitorServerErrors cancels ctx when a background server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errChan <-chan error, name string, logger *slog.Logger) {
	select {
	case err, ok := <-errChan:
		if ok && err != nil {
			logger.Error("server failed", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
