// Package redis provides the L2 cache layer backed by rueidis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgercache/pkg/cache"

	"github.com/redis/rueidis"
)

// Cache is a cache.Layer (and cache.BatchLayer) backed by Redis.
type Cache struct {
	client rueidis.Client
	name   string
	config Config
	ttl    cache.LayerConfig
}

// Config holds Redis connection settings. Exactly one of Addr, ClusterAddrs
// or SentinelAddrs selects the topology.
type Config struct {
	Name string

	// Addr is the server address for single-node mode, e.g. "localhost:6379".
	Addr string

	// ClusterAddrs enables cluster mode when non-empty.
	ClusterAddrs []string

	// SentinelAddrs enables sentinel mode when non-empty.
	SentinelAddrs     []string
	SentinelMasterSet string
	SentinelUsername  string
	SentinelPassword  string

	Username string
	Password string

	// DB is the database number. Cluster mode supports DB 0 only.
	DB int

	// KeyPrefix namespaces every key, e.g. "ledgercache:".
	KeyPrefix string

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// DefaultTTL applies when Set is called with a zero ttl.
	DefaultTTL time.Duration

	// MaxTTL caps every entry's ttl. Zero means uncapped.
	MaxTTL time.Duration
}

// DefaultConfig returns single-node defaults.
func DefaultConfig() Config {
	return Config{
		Name:         "redis",
		Addr:         "localhost:6379",
		KeyPrefix:    "ledgercache:",
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
		DefaultTTL:   time.Hour,
	}
}

// ClusterConfig returns a configuration for Redis Cluster mode.
func ClusterConfig(name string, clusterAddrs []string, password string) Config {
	config := DefaultConfig()
	config.Name = name
	config.ClusterAddrs = clusterAddrs
	config.Password = password
	config.Addr = ""
	config.DB = 0 // cluster supports DB 0 only
	return config
}

// SentinelConfig returns a configuration for Redis Sentinel mode.
func SentinelConfig(name string, sentinelAddrs []string, masterSet, password string) Config {
	config := DefaultConfig()
	config.Name = name
	config.SentinelAddrs = sentinelAddrs
	config.SentinelMasterSet = masterSet
	config.Password = password
	config.Addr = ""
	return config
}

// New connects to Redis and verifies the connection with a ping.
func New(config Config) (*Cache, error) {
	if config.Name == "" {
		config.Name = "redis"
	}

	var initAddress []string
	switch {
	case len(config.ClusterAddrs) > 0:
		initAddress = config.ClusterAddrs
	case len(config.SentinelAddrs) > 0:
		initAddress = config.SentinelAddrs
	case config.Addr != "":
		initAddress = []string{config.Addr}
	default:
		return nil, errors.New("redis: no addresses configured (set Addr, ClusterAddrs, or SentinelAddrs)")
	}

	clientOpts := rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
		MaxFlushDelay:    100 * time.Microsecond,
	}

	if len(config.SentinelAddrs) > 0 {
		clientOpts.Sentinel = rueidis.SentinelOption{
			MasterSet: config.SentinelMasterSet,
			Username:  config.SentinelUsername,
			Password:  config.SentinelPassword,
		}
	}

	client, err := rueidis.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}

	return &Cache{
		client: client,
		name:   config.Name,
		config: config,
		ttl: cache.LayerConfig{
			Name:       config.Name,
			DefaultTTL: config.DefaultTTL,
			MaxTTL:     config.MaxTTL,
		},
	}, nil
}

// Get retrieves the raw bytes stored under key.
func (r *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := r.client.B().Get().Key(r.config.KeyPrefix + key).Build()
	resp := r.client.Do(ctx, cmd)

	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, cache.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("redis get: failed to read response: %w", err)
	}
	return data, nil
}

// Set stores value under key with SET EX semantics.
func (r *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := r.client.B().Set().
		Key(r.config.KeyPrefix + key).
		Value(rueidis.BinaryString(value)).
		Ex(r.ttl.EffectiveTTL(ttl)).
		Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (r *Cache) Delete(ctx context.Context, key string) error {
	cmd := r.client.B().Del().Key(r.config.KeyPrefix + key).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Name returns the layer identifier.
func (r *Cache) Name() string { return r.name }

// Close shuts down the client.
func (r *Cache) Close() error {
	r.client.Close()
	return nil
}

// GetMulti pipelines one GET per key through DoMulti. Missing keys are
// absent from the result; per-key read failures are joined into the error
// alongside the partial result.
func (r *Cache) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = r.client.B().Get().Key(r.config.KeyPrefix + key).Build()
	}

	results := r.client.DoMulti(ctx, cmds...)

	found := make(map[string][]byte, len(keys))
	var errs []error
	for i, resp := range results {
		if err := resp.Error(); err != nil {
			if !rueidis.IsRedisNil(err) {
				errs = append(errs, fmt.Errorf("key %s: %w", keys[i], err))
			}
			continue
		}
		data, err := resp.AsBytes()
		if err != nil {
			errs = append(errs, fmt.Errorf("key %s: failed to read: %w", keys[i], err))
			continue
		}
		found[keys[i]] = data
	}

	if len(errs) > 0 {
		return found, errors.Join(errs...)
	}
	return found, nil
}

// SetMulti pipelines one SET EX per item through DoMulti.
func (r *Cache) SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}

	effective := r.ttl.EffectiveTTL(ttl)
	cmds := make([]rueidis.Completed, 0, len(items))
	keys := make([]string, 0, len(items))
	for key, value := range items {
		keys = append(keys, key)
		cmds = append(cmds, r.client.B().Set().
			Key(r.config.KeyPrefix+key).
			Value(rueidis.BinaryString(value)).
			Ex(effective).
			Build())
	}

	results := r.client.DoMulti(ctx, cmds...)

	var errs []error
	for i, resp := range results {
		if err := resp.Error(); err != nil {
			errs = append(errs, fmt.Errorf("key %s: %w", keys[i], err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// DeleteMulti removes keys with a single DEL.
func (r *Cache) DeleteMulti(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	fullKeys := make([]string, len(keys))
	for i, key := range keys {
		fullKeys[i] = r.config.KeyPrefix + key
	}

	cmd := r.client.B().Del().Key(fullKeys...).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis batch delete: %w", err)
	}
	return nil
}

// Ping verifies connectivity, for health checks.
func (r *Cache) Ping(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
