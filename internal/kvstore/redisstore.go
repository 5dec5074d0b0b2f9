package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes a lock key only if it still holds the fencing
// token we wrote when acquiring it, so a goroutine that stalled past its
// own TTL can never release a lock some other holder has since claimed.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// RedisStore is the production Store backend (spec §9: "the only
// cross-process coordination is KV's scoped-lock primitive"), backed by
// github.com/redis/go-redis/v9. It maps directly onto the KV schema in
// spec §6: every Store key becomes a Redis key in the same namespace,
// SET NX PX implements TTL'd locks, and a small Lua script makes lock
// release compare-and-delete so a stale holder can never clobber a
// newer lock.
type RedisStore struct {
	client *goredis.Client
}

func NewRedisStore(client *goredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string, out any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (r *RedisStore) Set(ctx context.Context, key string, v any, opts SetOptions) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, opts.TTL).Err()
}

func (r *RedisStore) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *RedisStore) WithLock(ctx context.Context, key string, opts LockOptions, fn func(ctx context.Context) (any, error)) (any, error) {
	token := uuid.NewString()
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Second
	}
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		if opts.OnBusy == OnBusySkip {
			return nil, nil
		}
		return nil, ErrLockBusy
	}
	defer r.releaseBestEffort(key, token)
	return fn(ctx)
}

// releaseBestEffort is used internally by WithLock; release failures are
// swallowed because the lock's TTL will reclaim it regardless (spec §7:
// "Release/extend errors are swallowed").
func (r *RedisStore) releaseBestEffort(key, token string) {
	release := context.Background()
	_ = r.client.Eval(release, releaseScript, []string{key}, token).Err()
}
