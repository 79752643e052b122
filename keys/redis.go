package keys

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyringSwapScript = `
local current = redis.call("GET", KEYS[1]) or ""
if current ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2])
redis.call("SET", KEYS[2], ARGV[3])
return 1
`

var keyringSwapLua = redis.NewScript(keyringSwapScript)

// RedisRepository stores each keyring as a JSON blob next to a key holding
// the current key id, which the swap script compares against.
type RedisRepository struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisRepository returns a Repository backed by redisClient.
func NewRedisRepository(redisClient redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "gs"
	}
	return &RedisRepository{redis: redisClient, prefix: prefix}
}

func (r *RedisRepository) currentKey(set string) string {
	return r.prefix + ":keys:" + set + ":current"
}

func (r *RedisRepository) ringKey(set string) string {
	return r.prefix + ":keys:" + set
}

// Load returns ErrKeyringNotFound when the set was never initialized.
func (r *RedisRepository) Load(ctx context.Context, set string) (*Keyring, error) {
	data, err := r.redis.Get(ctx, r.ringKey(set)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyringNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	return UnmarshalKeyring(data)
}

// CompareAndSwap implements Repository with a single Lua script.
func (r *RedisRepository) CompareAndSwap(ctx context.Context, set, expectedCurrentID string, next *Keyring) error {
	data, err := MarshalKeyring(next)
	if err != nil {
		return err
	}

	swapped, err := keyringSwapLua.Run(
		ctx,
		r.redis,
		[]string{r.currentKey(set), r.ringKey(set)},
		expectedCurrentID,
		next.Current.ID,
		data,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	if swapped == 0 {
		return ErrConflict
	}
	return nil
}
