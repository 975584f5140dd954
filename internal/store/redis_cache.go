package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/link-tracker/internal/links"
)

// RedisCacheRepository wraps a links.Repository with Redis caching for redirect lookups.
// Only FindPublishedByCode is served from the cache; writes go to the underlying store and
// evict the affected codes.
type RedisCacheRepository struct {
	links.Repository

	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCacheRepository creates a new Redis-cached repository decorator.
func NewRedisCacheRepository(store links.Repository, client *redis.Client, ttl time.Duration) *RedisCacheRepository {
	return &RedisCacheRepository{
		Repository: store,
		client:     client,
		prefix:     "link:code:",
		ttl:        ttl,
	}
}

// FindPublishedByCode checks the cache first and populates it on a miss.
func (r *RedisCacheRepository) FindPublishedByCode(ctx context.Context, code links.Code) (*links.Link, error) {
	if link, err := r.getFromCache(ctx, code); err == nil {
		return link, nil
	}

	link, err := r.Repository.FindPublishedByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	r.cacheLink(ctx, link)

	return link, nil
}

// Update stores the link and evicts both its previous and its new code.
func (r *RedisCacheRepository) Update(ctx context.Context, link *links.Link) error {
	previous, err := r.Repository.GetByID(ctx, link.ID)
	if err != nil {
		return err
	}

	if err := r.Repository.Update(ctx, link); err != nil {
		return err
	}

	r.evict(ctx, previous.ShortCode, link.ShortCode)

	return nil
}

func (r *RedisCacheRepository) Delete(ctx context.Context, id int64) error {
	previous, err := r.Repository.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := r.Repository.Delete(ctx, id); err != nil {
		return err
	}

	r.evict(ctx, previous.ShortCode)

	return nil
}

// ResetCounters zeroes counters in the store and drops every cached link.
func (r *RedisCacheRepository) ResetCounters(ctx context.Context) (int64, error) {
	n, err := r.Repository.ResetCounters(ctx)
	if err != nil {
		return 0, err
	}

	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		r.client.Del(ctx, iter.Val())
	}

	return n, nil
}

func (r *RedisCacheRepository) getFromCache(ctx context.Context, code links.Code) (*links.Link, error) {
	result, err := r.client.HGetAll(ctx, r.prefix+string(code)).Result()
	if err != nil {
		return nil, err
	}

	if len(result) == 0 {
		return nil, links.ErrNotFound
	}

	id, err := strconv.ParseInt(result["id"], 10, 64)
	if err != nil {
		return nil, err
	}

	link := &links.Link{
		ID:             id,
		Title:          result["title"],
		DestinationURL: result["destination_url"],
		ShortCode:      links.Code(result["short_code"]),
		Campaign:       result["campaign"],
		Status:         links.Status(result["status"]),
		CreatedAt:      parseNanos(result["created_at"]),
		UpdatedAt:      parseNanos(result["updated_at"]),
	}

	link.TotalClicks, _ = strconv.ParseInt(result["total_clicks"], 10, 64)
	link.UniqueVisitors, _ = strconv.ParseInt(result["unique_visitors"], 10, 64)

	if ts := result["last_clicked_at"]; ts != "" {
		t := parseNanos(ts)
		link.LastClickedAt = &t
	}

	return link, nil
}

func (r *RedisCacheRepository) cacheLink(ctx context.Context, link *links.Link) {
	pipe := r.client.Pipeline()
	key := r.prefix + string(link.ShortCode)

	lastClicked := ""
	if link.LastClickedAt != nil {
		lastClicked = strconv.FormatInt(link.LastClickedAt.UnixNano(), 10)
	}

	pipe.HSet(ctx, key, map[string]interface{}{
		"id":              link.ID,
		"title":           link.Title,
		"destination_url": link.DestinationURL,
		"short_code":      string(link.ShortCode),
		"campaign":        link.Campaign,
		"status":          string(link.Status),
		"total_clicks":    link.TotalClicks,
		"unique_visitors": link.UniqueVisitors,
		"last_clicked_at": lastClicked,
		"created_at":      link.CreatedAt.UnixNano(),
		"updated_at":      link.UpdatedAt.UnixNano(),
	})

	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	_, _ = pipe.Exec(ctx)
}

func (r *RedisCacheRepository) evict(ctx context.Context, codes ...links.Code) {
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		if code != "" {
			keys = append(keys, r.prefix+string(code))
		}
	}

	if len(keys) > 0 {
		r.client.Del(ctx, keys...)
	}
}

// Shutdown is a no-op for RedisCacheRepository (client managed externally).
func (r *RedisCacheRepository) Shutdown() error {
	return nil
}

func parseNanos(s string) time.Time {
	nanos, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}

	return time.Unix(0, nanos).UTC()
}

// Compile-time check.
var _ links.Repository = (*RedisCacheRepository)(nil)
