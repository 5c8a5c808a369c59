package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/tollgate/internal/auth/cache"
)

// DefaultOpTimeout bounds every store round trip so a slow shared cache
// cannot stall the authentication surface. Callers' contexts still apply;
// this is a ceiling, not a floor.
const DefaultOpTimeout = 250 * time.Millisecond

const blacklistPrefix = "bl:"

// incrWindowScript increments a counter and stamps the window TTL only when
// the key is first created. Running it as a script makes the
// increment-and-expire a single atomic round trip, and guarantees later hits
// never extend the window.
var incrWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

type Config struct {
	Addr     string
	Password string
	DB       int

	// OpTimeout is the per-operation deadline. Zero means DefaultOpTimeout.
	OpTimeout time.Duration
}

// Store implements cache.Store on top of a shared Redis instance.
type Store struct {
	client    *redis.Client
	opTimeout time.Duration
}

func NewStore(cfg Config) *Store {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultOpTimeout
	}
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		opTimeout: cfg.OpTimeout,
	}
}

// Blacklist sets bl:<tokenID> with the given TTL. SET NX makes the write a
// test-and-set: the first caller for an identifier gets first=true, every
// later or concurrent caller gets first=false.
func (s *Store) Blacklist(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		// Token is already past its natural expiry; nothing to remember.
		return true, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	first, err := s.client.SetNX(ctx, blacklistPrefix+tokenID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
	}
	return first, nil
}

func (s *Store) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Exists(ctx, blacklistPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
	}
	return n > 0, nil
}

func (s *Store) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	count, err := incrWindowScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
	}
	return count, nil
}

func (s *Store) CounterValue(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}
