package tree

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const maxTxRetries = 50

// NewRedis stores leaves in Redis: a sorted set indexes leaf paths so a
// subtree is one lexicographic range, a hash holds the encoded values, and
// changed paths are published on "<prefix>:changed" so every instance sharing
// the prefix sees every write.
func NewRedis(ctx context.Context, rdb *redis.Client, prefix string, log *zap.Logger) (*DB, error) {
	if prefix == "" {
		prefix = "tree"
	}
	b := &redisBackend{
		rdb:     rdb,
		index:   prefix + ":index",
		values:  prefix + ":values",
		channel: prefix + ":changed",
		log:     log,
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return open(b, log)
}

type redisBackend struct {
	rdb     *redis.Client
	index   string
	values  string
	channel string
	log     *zap.Logger
}

// lexRanger is satisfied by both *redis.Client and *redis.Tx.
type lexRanger interface {
	ZRangeByLex(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
}

// members lists the leaf paths at or below path.
func (r *redisBackend) members(ctx context.Context, c lexRanger, path string) ([]string, error) {
	if path == "" {
		return c.ZRangeByLex(ctx, r.index, &redis.ZRangeBy{Min: "-", Max: "+"}).Result()
	}
	exact := c.ZRangeByLex(ctx, r.index, &redis.ZRangeBy{Min: "[" + path, Max: "[" + path})
	if err := exact.Err(); err != nil {
		return nil, err
	}
	// '0' is the byte after '/', so this range is exactly "path/..."
	below := c.ZRangeByLex(ctx, r.index, &redis.ZRangeBy{Min: "[" + path + separator, Max: "(" + path + "0"})
	if err := below.Err(); err != nil {
		return nil, err
	}
	return append(exact.Val(), below.Val()...), nil
}

func (r *redisBackend) scan(ctx context.Context, path string, withValues bool) (map[string][]byte, error) {
	paths, err := r.members(ctx, r.rdb, path)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(paths))
	if len(paths) == 0 {
		return out, nil
	}
	if !withValues {
		for _, p := range paths {
			out[p] = nil
		}
		return out, nil
	}
	vals, err := r.rdb.HMGet(ctx, r.values, paths...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// indexed but value gone: a concurrent replace is in flight
			continue
		}
		out[paths[i]] = []byte(s)
	}
	return out, nil
}

func (r *redisBackend) replace(ctx context.Context, path string, leaves map[string][]byte) error {
	txf := func(tx *redis.Tx) error {
		stale, err := r.members(ctx, tx, path)
		if err != nil {
			return err
		}
		stale = append(stale, ancestors(path)...)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(stale) > 0 {
				members := make([]any, len(stale))
				for i, p := range stale {
					members[i] = p
				}
				pipe.ZRem(ctx, r.index, members...)
				pipe.HDel(ctx, r.values, stale...)
			}
			if len(leaves) > 0 {
				zs := make([]redis.Z, 0, len(leaves))
				fields := make(map[string]any, len(leaves))
				for p, raw := range leaves {
					zs = append(zs, redis.Z{Score: 0, Member: p})
					fields[p] = raw
				}
				pipe.ZAdd(ctx, r.index, zs...)
				pipe.HSet(ctx, r.values, fields)
			}
			pipe.Publish(ctx, r.channel, path)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, r.index)
		if errors.Is(err, redis.TxFailedErr) {
			select {
			case <-time.After(time.Duration(i+1) * time.Millisecond):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return err
	}
	return fmt.Errorf("replace %q: too much contention", path)
}

func (r *redisBackend) changes(ctx context.Context) (<-chan string, error) {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan string)
	go func() {
		<-ctx.Done()
		pubsub.Close()
	}()
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
		r.log.Info("redis change feed closed", zap.String("channel", r.channel))
	}()
	return out, nil
}

func (r *redisBackend) close() error { return nil }
