package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is the key prefix used when none is given.
const DefaultRedisPrefix = "examcache"

// RedisStore keeps namespaces in Redis.
//
// Per namespace it uses:
//
//	<prefix>:ns:<name>:entries  hash   key → JSON entry
//	<prefix>:ns:<name>:sizes    hash   key → body size
//	<prefix>:ns:<name>:order    zset   key scored by insertion sequence
//	<prefix>:ns:<name>:bytes    string running byte total
//	<prefix>:ns:<name>:seq      string insertion sequence
//
// and a set <prefix>:namespaces listing known namespaces. Put and Delete
// run as Lua scripts that check the registry first, so a handle whose
// namespace was dropped fails with ErrNamespaceDropped instead of
// recreating unlisted keys.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a namespace store with Redis backend.
func NewRedisStore(redisClient *redis.Client, prefix string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisStore) registryKey() string {
	return s.prefix + ":namespaces"
}

func (s *RedisStore) nsKey(name, part string) string {
	return fmt.Sprintf("%s:ns:%s:%s", s.prefix, name, part)
}

// Open registers the namespace and returns a handle to it.
func (s *RedisStore) Open(ctx context.Context, name string) (Namespace, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := s.redis.SAdd(ctx, s.registryKey(), name).Err(); err != nil {
		CacheErrors.WithLabelValues("open").Inc()
		return nil, fmt.Errorf("redis sadd: %w", err)
	}
	return &redisNamespace{store: s, name: name}, nil
}

// Names lists registered namespaces in lexical order.
func (s *RedisStore) Names(ctx context.Context) ([]string, error) {
	names, err := s.redis.SMembers(ctx, s.registryKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Drop deletes every key of the namespace and unregisters it.
func (s *RedisStore) Drop(ctx context.Context, name string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx,
			s.nsKey(name, "entries"),
			s.nsKey(name, "sizes"),
			s.nsKey(name, "order"),
			s.nsKey(name, "bytes"),
			s.nsKey(name, "seq"),
		)
		pipe.SRem(ctx, s.registryKey(), name)
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("drop").Inc()
		return fmt.Errorf("redis drop %q: %w", name, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

type redisNamespace struct {
	store *RedisStore
	name  string
}

func (n *redisNamespace) Name() string {
	return n.name
}

func (n *redisNamespace) key(part string) string {
	return n.store.nsKey(n.name, part)
}

// Get retrieves an entry by key.
func (n *redisNamespace) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := n.store.redis.HGet(ctx, n.key("entries"), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	return &entry, nil
}

// putScript replaces an entry and moves it to the newest position.
// The prior size is read and subtracted inside the script so the byte
// counter stays exact under concurrent writers. Returns 0 when the
// namespace is no longer registered.
//
// KEYS: registry, entries, sizes, order, bytes, seq
// ARGV: name, key, entry JSON, size
var putScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then
  return 0
end
local old = tonumber(redis.call('HGET', KEYS[3], ARGV[2]) or '0')
local seq = redis.call('INCR', KEYS[6])
redis.call('HSET', KEYS[2], ARGV[2], ARGV[3])
redis.call('HSET', KEYS[3], ARGV[2], ARGV[4])
redis.call('ZADD', KEYS[4], seq, ARGV[2])
redis.call('INCRBY', KEYS[5], tonumber(ARGV[4]) - old)
return 1
`)

// deleteScript removes an entry. The counter is only decremented when the
// entry was actually present. Returns -1 when the namespace is no longer
// registered, 0 on a miss and 1 on removal.
//
// KEYS: registry, entries, sizes, order, bytes
// ARGV: name, key
var deleteScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then
  return -1
end
local size = tonumber(redis.call('HGET', KEYS[3], ARGV[2]) or '0')
if redis.call('HDEL', KEYS[2], ARGV[2]) == 0 then
  return 0
end
redis.call('HDEL', KEYS[3], ARGV[2])
redis.call('ZREM', KEYS[4], ARGV[2])
redis.call('DECRBY', KEYS[5], size)
return 1
`)

// Put stores the entry and moves it to the newest position.
func (n *redisNamespace) Put(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	keys := []string{
		n.store.registryKey(),
		n.key("entries"),
		n.key("sizes"),
		n.key("order"),
		n.key("bytes"),
		n.key("seq"),
	}
	ok, err := putScript.Run(ctx, n.store.redis, keys, n.name, entry.Key, data, entry.Size()).Int64()
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis put: %w", err)
	}
	if ok == 0 {
		CacheErrors.WithLabelValues("put").Inc()
		return ErrNamespaceDropped
	}

	return nil
}

// Delete removes an entry and adjusts the running byte total.
func (n *redisNamespace) Delete(ctx context.Context, key string) error {
	keys := []string{
		n.store.registryKey(),
		n.key("entries"),
		n.key("sizes"),
		n.key("order"),
		n.key("bytes"),
	}
	res, err := deleteScript.Run(ctx, n.store.redis, keys, n.name, key).Int64()
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	if res < 0 {
		return ErrNamespaceDropped
	}

	return nil
}

// Entries lists entries by ascending insertion sequence.
func (n *redisNamespace) Entries(ctx context.Context) ([]EntryInfo, error) {
	rdb := n.store.redis

	keys, err := rdb.ZRange(ctx, n.key("order"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	sizes, err := rdb.HMGet(ctx, n.key("sizes"), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget sizes: %w", err)
	}

	infos := make([]EntryInfo, 0, len(keys))
	for i, key := range keys {
		raw, ok := sizes[i].(string)
		if !ok {
			// removed between ZRANGE and HMGET
			continue
		}
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: size of %q: %v", ErrInvalidEntry, key, err)
		}
		infos = append(infos, EntryInfo{Key: key, Size: size})
	}

	return infos, nil
}

// Stats reads the entry count and the running byte total.
func (n *redisNamespace) Stats(ctx context.Context) (Stats, error) {
	rdb := n.store.redis

	count, err := rdb.ZCard(ctx, n.key("order")).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("redis zcard: %w", err)
	}

	total, err := rdb.Get(ctx, n.key("bytes")).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, fmt.Errorf("redis get bytes: %w", err)
	}

	return Stats{Entries: int(count), Bytes: total}, nil
}
