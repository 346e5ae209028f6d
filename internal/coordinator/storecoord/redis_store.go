package storecoord

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store over a single go-redis client, using a
// sorted set per namespace as the staleness index and a plain string key
// with a TTL per published snapshot (see DESIGN.md for why go-redis was
// pulled in here specifically).
type RedisStore struct {
	client *redis.Client
}

// RedisConfig mirrors the network.redis configuration block (§6).
type RedisConfig struct {
	Host                 string
	Port                 int
	Username             string
	Password             string
	Database             int
	TLS                  bool
	ConnectTimeout       time.Duration
	ReadTimeout          time.Duration
}

// NewRedisStore constructs a client from cfg without connecting; call
// ConnectAndValidate to perform the startup health probe.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.ReadTimeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &RedisStore{client: redis.NewClient(opts)}
}

// ConnectAndValidate pings the server; a non-nil error means startup
// should abort (§4.8: "succeed only if the store responds to a health
// probe; throw otherwise").
func (s *RedisStore) ConnectAndValidate(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("storecoord: redis health probe failed: %w", err)
	}
	return nil
}

// PublishSnapshot sets the keyed snapshot with TTL and upserts serverID
// into the sorted index with score updatedAtMillis, as one pipeline.
func (s *RedisStore) PublishSnapshot(ctx context.Context, serverKey, indexKey string, ttl time.Duration, updatedAtMillis int64, serverID string, payload []byte) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, serverKey, payload, ttl)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(updatedAtMillis), Member: serverID})
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("storecoord: publish snapshot: %w", err)
	}
	return nil
}

// EvictStaleServers removes index entries with score <= cutoffMillis.
func (s *RedisStore) EvictStaleServers(ctx context.Context, indexKey string, cutoffMillis int64) (int64, error) {
	n, err := s.client.ZRemRangeByScore(ctx, indexKey, "-inf", fmt.Sprintf("%d", cutoffMillis)).Result()
	if err != nil {
		return 0, fmt.Errorf("storecoord: evict stale servers: %w", err)
	}
	return n, nil
}

// GetActiveServerIDs returns index entries with score >= cutoffMillis.
func (s *RedisStore) GetActiveServerIDs(ctx context.Context, indexKey string, cutoffMillis int64) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", cutoffMillis),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("storecoord: get active server ids: %w", err)
	}
	return ids, nil
}

// GetSnapshots batch-fetches serverKeys via MGET; a missing key yields a
// nil slot rather than an error.
func (s *RedisStore) GetSnapshots(ctx context.Context, serverKeys []string) ([][]byte, error) {
	if len(serverKeys) == 0 {
		return nil, nil
	}
	vals, err := s.client.MGet(ctx, serverKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("storecoord: get snapshots: %w", err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok {
			out[i] = []byte(str)
		}
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
