package container

import (
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/link-tracker/internal/analytics"
	"github.com/serroba/link-tracker/internal/embed"
	"github.com/serroba/link-tracker/internal/links"
	"github.com/serroba/link-tracker/internal/messaging"
	"github.com/serroba/link-tracker/internal/metrics"
	"github.com/serroba/link-tracker/internal/tracking"
	"go.uber.org/zap"
)

// clickConsumerGroup is the Redis stream consumer group every click consumer joins.
const clickConsumerGroup = "link-tracker-clicks"

// maxClickAttempts bounds redelivery of a click event that keeps failing.
const maxClickAttempts = 5

// LinksPackage provides the link registry, short URL builder and embed renderer.
func LinksPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (links.URLBuilder, error) {
		opts := do.MustInvoke[*Options](i)

		return links.URLBuilder{BaseURL: opts.PublicBaseURL(), Prefix: opts.LinkPrefix}, nil
	})

	do.Provide(injector, func(i *do.Injector) (*links.Registry, error) {
		opts := do.MustInvoke[*Options](i)
		repo := do.MustInvoke[links.Repository](i)

		generate, err := links.NewCodeGenerator(opts.CodeLength)
		if err != nil {
			return nil, err
		}

		fallback, err := links.NewCodeGenerator(links.FallbackCodeLength)
		if err != nil {
			return nil, err
		}

		return links.NewRegistry(repo, links.NewCodeAllocator(repo, generate, fallback)), nil
	})

	do.Provide(injector, func(i *do.Injector) (*embed.Renderer, error) {
		opts := do.MustInvoke[*Options](i)

		return embed.NewRenderer(
			do.MustInvoke[links.Repository](i),
			do.MustInvoke[links.URLBuilder](i),
			opts.DateFormat,
		), nil
	})
}

// MessagingPackage provides the click bus: Redis streams when Redis is configured, an
// in-process channel otherwise.
func MessagingPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.Bus, error) {
		opts := do.MustInvoke[*Options](i)
		adapter := messaging.NewZapLoggerAdapter(do.MustInvoke[*zap.Logger](i))

		if opts.RedisAddr == "" {
			return messaging.NewInMemoryBus(adapter), nil
		}

		return messaging.NewRedisBus(do.MustInvoke[*redis.Client](i), clickConsumerGroup, adapter)
	})
}

// TrackingPackage provides the click recorder, the tracker chosen by Options.AsyncTracking
// and the short code resolver.
func TrackingPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*tracking.Recorder, error) {
		storage := do.MustInvoke[*Storage](i)

		return tracking.NewRecorder(
			storage.Clicks,
			do.MustInvoke[links.Repository](i),
			tracking.NewClassifier(),
			tracking.DefaultBreakerConfig(),
			do.MustInvoke[*metrics.Metrics](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})

	do.Provide(injector, func(i *do.Injector) (tracking.Tracker, error) {
		opts := do.MustInvoke[*Options](i)
		if !opts.AsyncTracking {
			return tracking.NewSyncTracker(do.MustInvoke[*tracking.Recorder](i)), nil
		}

		bus := do.MustInvoke[*messaging.Bus](i)
		publish := messaging.NewPublishFunc[tracking.ClickEvent](bus.Publisher(), tracking.TopicLinkClicked)

		return tracking.NewAsyncTracker(publish, do.MustInvoke[*metrics.Metrics](i), do.MustInvoke[*zap.Logger](i)), nil
	})

	do.Provide(injector, func(i *do.Injector) (*tracking.Resolver, error) {
		return tracking.NewResolver(
			do.MustInvoke[links.Repository](i),
			do.MustInvoke[tracking.Tracker](i),
			do.MustInvoke[*metrics.Metrics](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
}

// ConsumerGroupPackage provides the consumer group that records clicks from the bus.
func ConsumerGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		logger := do.MustInvoke[*zap.Logger](i)
		bus := do.MustInvoke[*messaging.Bus](i)

		group := messaging.NewConsumerGroup(bus.Subscriber(), logger)
		group.Add(messaging.NewConsumer(
			bus.Subscriber(),
			tracking.TopicLinkClicked,
			tracking.NewClickHandler(do.MustInvoke[*tracking.Recorder](i)),
			logger,
			messaging.WithMaxAttempts(maxClickAttempts),
		))

		return group, nil
	})
}

// AnalyticsPackage provides the report aggregator.
func AnalyticsPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*analytics.Aggregator, error) {
		storage := do.MustInvoke[*Storage](i)

		return analytics.NewAggregator(
			storage.Analytics,
			do.MustInvoke[links.Repository](i),
			do.MustInvoke[links.URLBuilder](i),
			do.MustInvoke[*metrics.Metrics](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
}
