package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
	pkgerrors "github.com/digvijay2003/contract-intelligence-api/internal/pkg/errors"
)

// checkAndIncrScript admits only when every counter is under its
// ceiling, then increments them all in the same script execution, so
// rejected requests are never counted.
var checkAndIncrScript = goredis.NewScript(`
for i, key in ipairs(KEYS) do
  local limit = tonumber(ARGV[i * 2 - 1])
  local current = tonumber(redis.call('GET', key) or '0')
  if current >= limit then
    return i
  end
end
for i, key in ipairs(KEYS) do
  local ttl = tonumber(ARGV[i * 2])
  local current = redis.call('INCR', key)
  if current == 1 then
    redis.call('PEXPIRE', key, ttl)
  end
end
return 0
`)

// CounterStore keeps fixed-window quota counters in redis so multiple
// API instances share the same ceilings.
type CounterStore struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewCounterStore(log *logger.Logger) (*CounterStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &CounterStore{
		log: log.With("service", "RedisCounterStore"),
		rdb: rdb,
	}, nil
}

// CheckAndIncr checks every (key, limit) pair and increments all
// counters atomically when none is at its ceiling. It returns the
// zero-based index of the first exceeded counter, or -1 when the
// request was admitted. ttls give each counter its window length.
func (s *CounterStore) CheckAndIncr(ctx context.Context, keys []string, limits []int64, ttls []time.Duration) (int, error) {
	if len(keys) == 0 {
		return -1, nil
	}
	if len(keys) != len(limits) || len(keys) != len(ttls) {
		return -1, fmt.Errorf("keys/limits/ttls length mismatch")
	}

	argv := make([]interface{}, 0, len(keys)*2)
	for i := range keys {
		argv = append(argv, limits[i], ttls[i].Milliseconds())
	}

	res, err := checkAndIncrScript.Run(ctx, s.rdb, keys, argv...).Int()
	if err != nil {
		return -1, fmt.Errorf("%w: redis check-and-incr: %v", pkgerrors.ErrServiceUnavailable, err)
	}
	if res == 0 {
		return -1, nil
	}
	return res - 1, nil
}

func (s *CounterStore) Close() error {
	return s.rdb.Close()
}
