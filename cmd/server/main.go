package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/samber/do"
	"github.com/serroba/link-tracker/internal/auth"
	"github.com/serroba/link-tracker/internal/container"
	"github.com/serroba/link-tracker/internal/messaging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func registerPackages(injector *do.Injector, options *container.Options) {
	do.ProvideValue(injector, options)
	container.LoggerPackage(injector)
	container.MetricsPackage(injector)
	container.RedisPackage(injector)
	container.StorePackage(injector)
	container.RepositoryPackage(injector)
	container.LinksPackage(injector)
	container.MessagingPackage(injector)
	container.TrackingPackage(injector)
	container.ConsumerGroupPackage(injector)
	container.AnalyticsPackage(injector)
	container.RateLimitPackage(injector)
	container.AuthPackage(injector)
	container.HTTPPackage(injector)
}

func main() {
	// SERVICE_* variables may come from a local .env file.
	_ = godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, options *container.Options) {
		injector := do.New()
		registerPackages(injector, options)

		logger := do.MustInvoke[*zap.Logger](injector)

		var server *http.Server

		hooks.OnStart(func() {
			router := do.MustInvoke[*chi.Mux](injector)

			// Invoke API to trigger route registration
			_ = do.MustInvoke[huma.API](injector)

			// Without Redis the click bus is in-process, so clicks are consumed here.
			if options.AsyncTracking && options.RedisAddr == "" {
				group := do.MustInvoke[*messaging.ConsumerGroup](injector)
				if err := group.Start(context.Background()); err != nil {
					logger.Fatal("failed to start click consumers", zap.Error(err))
				}
			}

			server = &http.Server{
				Addr:              fmt.Sprintf(":%d", options.Port),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			logger.Info("server starting",
				zap.Int("port", options.Port),
				zap.String("base_url", options.PublicBaseURL()),
				zap.String("link_prefix", options.LinkPrefix),
				zap.Bool("async_tracking", options.AsyncTracking),
			)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("server failed", zap.Error(err))
			}
		})

		hooks.OnStop(func() {
			logger.Info("shutting down")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if server != nil {
				if err := server.Shutdown(ctx); err != nil {
					logger.Error("server shutdown error", zap.Error(err))
				}
			}

			if err := injector.Shutdown(); err != nil {
				logger.Error("service shutdown error", zap.Error(err))
			}

			logger.Info("shutdown complete")
		})
	})

	cli.Root().AddCommand(tokenCommand(), migrateCommand(), dropClickLogCommand(), uninstallCommand())

	cli.Run()
}

func tokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a report token signed with the report secret",
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, options *container.Options) {
			tokens, err := auth.NewTokens(options.ReportSecret)
			cobra.CheckErr(err)

			token, err := tokens.Issue(subject, ttl)
			cobra.CheckErr(err)

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
		}),
	}

	cmd.Flags().StringVar(&subject, "subject", "reports", "Subject recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime, 0 never expires")

	return cmd
}

func migrateCommand() *cobra.Command {
	return storageCommand("migrate", "Create missing tables and indexes", func(context.Context, *container.Storage) error {
		// Storage migrates when it is opened.
		return nil
	})
}

func dropClickLogCommand() *cobra.Command {
	return storageCommand("drop-click-log", "Remove the per-click log, keeping links and counters",
		func(ctx context.Context, storage *container.Storage) error {
			return storage.Migrator.DropClickLog(ctx)
		})
}

func uninstallCommand() *cobra.Command {
	return storageCommand("uninstall", "Remove every table the service owns",
		func(ctx context.Context, storage *container.Storage) error {
			return storage.Migrator.Uninstall(ctx)
		})
}

func storageCommand(use, short string, run func(context.Context, *container.Storage) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, options *container.Options) {
			injector := do.New()
			do.ProvideValue(injector, options)
			container.LoggerPackage(injector)
			container.StorePackage(injector)

			logger := do.MustInvoke[*zap.Logger](injector)

			err := runStorage(cmd.Context(), injector, run)
			if shutdownErr := injector.Shutdown(); shutdownErr != nil {
				logger.Error("storage shutdown error", zap.Error(shutdownErr))
			}

			if err != nil {
				logger.Fatal(use+" failed", zap.Error(err))
			}

			logger.Info(use+" complete", zap.String("database", options.Database))
		}),
	}
}

func runStorage(ctx context.Context, injector *do.Injector, run func(context.Context, *container.Storage) error) error {
	storage, err := do.Invoke[*container.Storage](injector)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	return run(ctx, storage)
}
