package container

import (
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/link-tracker/internal/analytics"
	"github.com/serroba/link-tracker/internal/auth"
	"github.com/serroba/link-tracker/internal/embed"
	"github.com/serroba/link-tracker/internal/handlers"
	"github.com/serroba/link-tracker/internal/health"
	"github.com/serroba/link-tracker/internal/links"
	"github.com/serroba/link-tracker/internal/metrics"
	"github.com/serroba/link-tracker/internal/middleware"
	"github.com/serroba/link-tracker/internal/ratelimit"
	"github.com/serroba/link-tracker/internal/store"
	"github.com/serroba/link-tracker/internal/tracking"
	"go.uber.org/zap"
)

// tokenFailuresLimiter names the limiter of failed report token attempts.
const tokenFailuresLimiter = "report-token-failures"

const (
	maxTokenFailures    = 10
	tokenFailuresWindow = 15 * time.Minute
)

// RateLimitPackage provides the policy limiter and the failed token attempt limiter. Counters
// live in Redis when it is configured so every instance shares them.
func RateLimitPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (ratelimit.Store, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.RedisAddr == "" {
			return store.NewRateLimitMemoryStore(), nil
		}

		return store.NewRateLimitRedisStore(do.MustInvoke[*redis.Client](i)), nil
	})

	do.Provide(injector, func(i *do.Injector) (*ratelimit.PolicyLimiter, error) {
		return ratelimit.NewPolicyLimiter(do.MustInvoke[ratelimit.Store](i), ratelimit.DefaultPolicy()), nil
	})

	do.ProvideNamed(injector, tokenFailuresLimiter, func(i *do.Injector) (ratelimit.Limiter, error) {
		return ratelimit.NewSlidingWindowLimiter(
			do.MustInvoke[ratelimit.Store](i), maxTokenFailures, tokenFailuresWindow,
		), nil
	})
}

// AuthPackage provides the report token service. Without a secret it resolves to nil and every
// guarded operation answers 401.
func AuthPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*auth.Tokens, error) {
		opts := do.MustInvoke[*Options](i)

		tokens, err := auth.NewTokens(opts.ReportSecret)
		if errors.Is(err, auth.ErrNoSecret) {
			do.MustInvoke[*zap.Logger](i).Warn("no report secret configured, management and report API is disabled")

			return nil, nil //nolint:nilnil // guarded routes reject every request
		}

		return tokens, err
	})
}

// HTTPPackage provides the router and the huma API with every route registered.
func HTTPPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*chi.Mux, error) {
		router := chi.NewMux()
		router.Use(chimiddleware.Recoverer)
		router.Handle("/metrics", do.MustInvoke[*metrics.Metrics](i).Handler())

		return router, nil
	})

	do.Provide(injector, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		router := do.MustInvoke[*chi.Mux](i)

		api := humachi.New(router, huma.DefaultConfig("Link Tracker", "1.0.0"))

		api.UseMiddleware(
			middleware.RequestMeta(api),
			middleware.PolicyRateLimiter(api,
				do.MustInvoke[*ratelimit.PolicyLimiter](i),
				ratelimit.NewOperationScopeResolver(),
				logger,
			),
			middleware.ReportToken(api,
				do.MustInvoke[*auth.Tokens](i),
				do.MustInvokeNamed[ratelimit.Limiter](i, tokenFailuresLimiter),
				logger,
			),
		)

		renderer := do.MustInvoke[*embed.Renderer](i)

		handlers.RegisterRoutes(api, opts.LinkPrefix, handlers.Handlers{
			Links: handlers.NewLinkHandler(
				do.MustInvoke[*links.Registry](i),
				do.MustInvoke[links.URLBuilder](i),
				renderer,
				logger,
			),
			Redirects: handlers.NewRedirectHandler(do.MustInvoke[*tracking.Resolver](i), logger),
			Reports:   handlers.NewReportHandler(do.MustInvoke[*analytics.Aggregator](i), logger),
			Embeds:    handlers.NewEmbedHandler(renderer, logger),
		})

		health.RegisterRoutes(api, health.NewHandler(healthCheckers(i, opts)))

		return api, nil
	})
}

func healthCheckers(i *do.Injector, opts *Options) map[string]health.Checker {
	checkers := make(map[string]health.Checker)

	if storage := do.MustInvoke[*Storage](i); storage.Health != nil {
		checkers["database"] = storage.Health
	}

	if opts.RedisAddr != "" {
		checkers["redis"] = health.NewRedisChecker(do.MustInvoke[*redis.Client](i))
	}

	return checkers
}
