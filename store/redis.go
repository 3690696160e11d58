package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisScanBatch bounds SCAN page size and DEL batch size during Clear.
const redisScanBatch = 100

// RedisOptions configures a Redis-backed Store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// Namespace prefixes every key (e.g. "docpipe:").
	Namespace string

	// TTL expires every written key; zero means no expiry.
	TTL time.Duration
}

// Redis is a Store backed by a Redis server. Used durably it shares images
// across processes; used as a session store (NewRedisSession) each session
// gets its own namespace that expires with the session.
type Redis struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedis creates a Redis store. The connection is established lazily.
func NewRedis(opts RedisOptions) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		namespace: opts.Namespace,
		ttl:       opts.TTL,
	}
}

// NewRedisSession creates a Redis store scoped to a fresh session ID.
// Keys expire after opts.TTL, which models the end of the session.
func NewRedisSession(opts RedisOptions) *Redis {
	opts.Namespace = sessionNamespace(opts.Namespace, uuid.NewString())
	return NewRedis(opts)
}

func sessionNamespace(base, id string) string {
	return base + "session:" + id + ":"
}

// Namespace returns the key prefix applied to every key.
func (r *Redis) Namespace() string {
	return r.namespace
}

// Ping verifies the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.namespace+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %q: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.namespace+key, value, r.ttl).Err(); err != nil {
		return mapRedisError(key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.namespace+key).Err(); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, prefix string) error {
	match := escapeGlob(r.namespace+prefix) + "*"
	iter := r.client.Scan(ctx, 0, match, redisScanBatch).Iterator()

	batch := make([]string, 0, redisScanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == redisScanBatch {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("clearing %q: %w", prefix, err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning %q: %w", prefix, err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("clearing %q: %w", prefix, err)
		}
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// mapRedisError translates maxmemory rejections into ErrQuotaExceeded.
func mapRedisError(key string, err error) error {
	if isRedisOOM(err) {
		return fmt.Errorf("%w: writing %q: %v", ErrQuotaExceeded, key, err)
	}
	return fmt.Errorf("writing %q: %w", key, err)
}

func isRedisOOM(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "OOM ")
}

// escapeGlob escapes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
