package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/lumitrade/aiquorum/internal/signal"
)

const redisKeyPrefix = "aiquorum:"

// redisEntry wraps a cached signal with write-time metadata.
type redisEntry struct {
	Signal   *signal.ConsensusSignal `json:"signal"`
	CachedAt time.Time               `json:"cached_at"`
}

// Redis is the optional shared cache backend. Expiry is delegated to the
// server-side TTL; a Redis failure degrades to a miss, never an error.
type Redis struct {
	client *redis.Client
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedis builds a Redis-backed store against addr.
func NewRedis(addr, password string, db int, ttl time.Duration) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &Redis{client: client, ttl: ttl}
}

// Get fetches and decodes the cached signal.
func (r *Redis) Get(key Key) (*signal.ConsensusSignal, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	raw, err := r.client.Get(ctx, redisKeyPrefix+key.String()).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("key", key.String()).Msg("Redis cache read failed")
		}
		r.misses.Add(1)
		return nil, false
	}

	var entry redisEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Signal == nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("Redis cache entry corrupt")
		r.misses.Add(1)
		return nil, false
	}
	r.hits.Add(1)
	return entry.Signal, true
}

// Set stores the signal under the server-side TTL.
func (r *Redis) Set(key Key, sig *signal.ConsensusSignal) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	data, err := json.Marshal(redisEntry{Signal: sig, CachedAt: time.Now().UTC()})
	if err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("Redis cache encode failed")
		return
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key.String(), data, r.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("Redis cache write failed")
	}
}

// Purge removes every signal entry this process wrote.
func (r *Redis) Purge() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"signal:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			log.Warn().Err(err).Str("key", iter.Val()).Msg("Redis cache purge delete failed")
		}
	}
	if err := iter.Err(); err != nil {
		log.Warn().Err(err).Msg("Redis cache purge scan failed")
	}
}

// Stats returns hit/miss counters. Entries is left at zero; counting a shared
// keyspace per process would mislead.
func (r *Redis) Stats() Stats {
	return Stats{
		Hits:   r.hits.Load(),
		Misses: r.misses.Load(),
	}
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
