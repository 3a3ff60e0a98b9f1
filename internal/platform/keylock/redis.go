package keylock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/coursesync-backend/internal/platform/httpx"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
)

// Only the token that took the lease may drop it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisConfig struct {
	Prefix    string
	TTL       time.Duration
	RetryWait time.Duration
}

// Redis holds a lease per key (SET NX PX) so several server instances can
// share one lock space. A lease expires after TTL if its holder dies.
type Redis struct {
	log *logger.Logger
	rdb *goredis.Client
	cfg RedisConfig
}

func NewRedis(log *logger.Logger, rdb *goredis.Client, cfg RedisConfig) (*Redis, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "coursesync:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 25 * time.Millisecond
	}
	return &Redis{log: log.With("component", "RedisKeyLock"), rdb: rdb, cfg: cfg}, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.cfg.Prefix + key
	token := uuid.NewString()

	for {
		ok, err := r.rdb.SetNX(ctx, redisKey, token, r.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %q: %w", key, err)
		}
		if ok {
			break
		}
		if err := httpx.Sleep(ctx, httpx.JitterSleep(r.cfg.RetryWait)); err != nil {
			return nil, err
		}
	}

	return func() {
		// The caller's ctx may already be cancelled; release on a fresh one.
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, r.rdb, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
			r.log.Warn("Failed to release redis lock", "key", redisKey, "error", err)
		}
	}, nil
}
