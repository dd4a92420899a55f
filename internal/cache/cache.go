// Package cache keeps short-lived copies of content query results in Redis.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/standupsite/site/internal/content"
)

// Options configures the cache
type Options struct {
	TTL    time.Duration
	Prefix string
}

// Fetcher serves query results from Redis and falls back to the wrapped fetcher
type Fetcher struct {
	next   content.Fetcher
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// New wraps next with a Redis cache. A nil client disables caching and next
// is returned as is.
func New(next content.Fetcher, rdb *redis.Client, opts Options) content.Fetcher {
	if rdb == nil {
		return next
	}
	return NewFetcher(next, rdb, opts)
}

// NewFetcher wraps next with a Redis cache
func NewFetcher(next content.Fetcher, rdb *redis.Client, opts Options) *Fetcher {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "content"
	}
	return &Fetcher{next: next, rdb: rdb, ttl: ttl, prefix: prefix}
}

// Key derives the cache key of a query. Keys are namespaced by document kind
// so a change to one kind can be purged on its own.
func Key(prefix string, q content.Query) string {
	params, _ := json.Marshal(q.Params()) // map keys are sorted by encoding/json
	sum := sha1.Sum([]byte(q.GROQ() + "\x00" + string(params)))
	return fmt.Sprintf("%s:%s:%x", prefix, q.Type, sum[:])
}

// Fetch returns the cached result when present, otherwise fetches and stores it
func (f *Fetcher) Fetch(ctx context.Context, q content.Query, target any) error {
	key := Key(f.prefix, q)

	bs, err := f.rdb.Get(ctx, key).Bytes()
	if err == nil {
		if err := json.Unmarshal(bs, target); err == nil {
			return nil
		}
		log.Warn().Str("key", key).Msg("cache: undecodable entry, refetching")
	} else if err != redis.Nil {
		log.Warn().Err(err).Str("key", key).Msg("cache: get failed")
	}

	var raw json.RawMessage
	if err := f.next.Fetch(ctx, q, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}

	if err := f.rdb.SetEx(ctx, key, []byte(raw), f.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache: set failed")
	}

	return json.Unmarshal(raw, target)
}

// Invalidate drops cached results for a document kind, or for every kind
// when docType is empty or unknown
func (f *Fetcher) Invalidate(ctx context.Context, docType string) error {
	pattern := f.prefix + ":*"
	if content.IsKind(docType) {
		pattern = f.prefix + ":" + docType + ":*"
	}

	iter := f.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := f.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}

	log.Info().Str("kind", docType).Int("keys", len(keys)).Msg("cache invalidated")
	return nil
}

// NewClient connects to Redis at addr. It returns nil when addr is empty or
// the server does not answer a ping, and callers run without a cache.
func NewClient(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("redis unavailable, caching disabled")
		client.Close()
		return nil
	}
	return client
}
