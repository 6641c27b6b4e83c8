package counter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/suplatzigram/go-engagement-cache/internal/kv"
)

// toggleScript flips set membership and adjusts the counter in one atomic
// unit, so concurrent toggles from different sessions never lose updates.
// The counter is clamped at zero: the count and the set are adjusted
// independently elsewhere (warm-up writes, manual repair), so a decrement can
// race a cold counter.
var toggleScript = redis.NewScript(`
local session = ARGV[1]
if redis.call("SISMEMBER", KEYS[2], session) == 1 then
	redis.call("SREM", KEYS[2], session)
	local count = redis.call("DECR", KEYS[1])
	if count < 0 then
		redis.call("SET", KEYS[1], "0")
		count = 0
	end
	return {0, count}
end
redis.call("SADD", KEYS[2], session)
return {1, redis.call("INCR", KEYS[1])}
`)

// RedisStore is the production Store, backed by the external cache.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis connection.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Counts(ctx context.Context, postIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(postIDs))
	if len(postIDs) == 0 {
		return counts, nil
	}

	keys := make([]string, len(postIDs))
	for i, id := range postIDs {
		keys[i] = countKey(id)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: mget counts: %v", kv.ErrUnavailable, err)
	}

	for i, val := range vals {
		counts[postIDs[i]] = 0
		raw, ok := val.(string)
		if !ok {
			continue // no record yet
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue // malformed value counts as absent
		}
		counts[postIDs[i]] = n
	}
	return counts, nil
}

func (s *RedisStore) Liked(ctx context.Context, postIDs []string, sessionID string) (map[string]bool, error) {
	liked := make(map[string]bool, len(postIDs))
	if len(postIDs) == 0 {
		return liked, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.BoolCmd, len(postIDs))
	for i, id := range postIDs {
		cmds[i] = pipe.SIsMember(ctx, setKey(id), sessionID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: sismember batch: %v", kv.ErrUnavailable, err)
	}

	for i, cmd := range cmds {
		liked[postIDs[i]] = cmd.Val()
	}
	return liked, nil
}

func (s *RedisStore) Toggle(ctx context.Context, postID, sessionID string) (Result, error) {
	vals, err := toggleScript.Run(ctx, s.client, []string{countKey(postID), setKey(postID)}, sessionID).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: toggle %s: %v", kv.ErrUnavailable, postID, err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("%w: toggle %s: unexpected script reply %v", kv.ErrUnavailable, postID, vals)
	}

	likedFlag, ok1 := vals[0].(int64)
	count, ok2 := vals[1].(int64)
	if !ok1 || !ok2 {
		return Result{}, fmt.Errorf("%w: toggle %s: unexpected script reply types %T/%T", kv.ErrUnavailable, postID, vals[0], vals[1])
	}

	return Result{Liked: likedFlag == 1, Count: count}, nil
}
