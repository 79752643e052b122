package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldUserID    = "uid"
	fieldJWT       = "jwt"
	fieldDB        = "db"
	fieldLineage   = "lh"
	fieldExpiresAt = "exp"
	fieldCreatedAt = "cat"
)

const (
	advanceStatusNotFound int64 = 0
	advanceStatusMismatch int64 = 1
	advanceStatusAdvanced int64 = 2
)

const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "uid", ARGV[1], "jwt", ARGV[2], "db", ARGV[3], "lh", ARGV[4], "exp", ARGV[5], "cat", ARGV[6])
redis.call("PEXPIREAT", KEYS[1], ARGV[5])
redis.call("SADD", KEYS[2], ARGV[4])
redis.call("PEXPIREAT", KEYS[2], ARGV[7])
redis.call("SADD", KEYS[3], ARGV[8])
return 1
`

var createSessionLua = redis.NewScript(createSessionScript)

const advanceLineageScript = `
local exp = redis.call("HGET", KEYS[1], "exp")
if not exp or tonumber(exp) <= tonumber(ARGV[4]) then
  return {0}
end
if redis.call("HGET", KEYS[1], "lh") ~= ARGV[1] then
  return {1}
end
redis.call("HSET", KEYS[1], "lh", ARGV[2], "exp", ARGV[3])
redis.call("PEXPIREAT", KEYS[1], ARGV[3])
redis.call("SADD", KEYS[2], ARGV[2])
redis.call("PEXPIREAT", KEYS[2], ARGV[5])
return {2, redis.call("HGETALL", KEYS[1])}
`

var advanceLineageLua = redis.NewScript(advanceLineageScript)

const updatePayloadScript = `
local exp = redis.call("HGET", KEYS[1], "exp")
if not exp or tonumber(exp) <= tonumber(ARGV[1]) then
  return 0
end
if ARGV[2] == "1" then
  redis.call("HSET", KEYS[1], "jwt", ARGV[3])
end
if ARGV[4] == "1" then
  redis.call("HSET", KEYS[1], "db", ARGV[5])
end
return 1
`

var updatePayloadLua = redis.NewScript(updatePayloadScript)

const revokeSessionScript = `
local uid = redis.call("HGET", KEYS[1], "uid")
if not uid then
  return 0
end
local exp = redis.call("HGET", KEYS[1], "exp")
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. uid, ARGV[2])
if tonumber(exp) <= tonumber(ARGV[3]) then
  return 0
end
return 1
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Prefix string
	// HistoryRetention keeps lineage history this long past the session's expiry.
	HistoryRetention time.Duration
	Now              func() time.Time
}

// RedisStore keeps each session in a hash, its lineage history in a set and
// a per-user index set. Mutations run as Lua scripts so each is atomic.
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisStore returns a Store backed by redisClient.
func NewRedisStore(redisClient redis.UniversalClient, cfg RedisConfig) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "gs"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RedisStore{
		redis:     redisClient,
		prefix:    cfg.Prefix,
		retention: cfg.HistoryRetention,
		now:       cfg.Now,
	}
}

func (s *RedisStore) key(handle string) string {
	return s.prefix + ":s:" + handle
}

func (s *RedisStore) historyKey(handle string) string {
	return s.prefix + ":h:" + handle
}

func (s *RedisStore) userPrefix() string {
	return s.prefix + ":u:"
}

func (s *RedisStore) userKey(userID string) string {
	return s.userPrefix() + userID
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (s *RedisStore) CreateSession(ctx context.Context, row Row) error {
	created, err := createSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(row.Handle), s.historyKey(row.Handle), s.userKey(row.UserID)},
		row.UserID,
		string(row.JWTPayload),
		string(row.DBPayload),
		row.LineageHash,
		row.ExpiresAt.UnixMilli(),
		row.CreatedAt.UnixMilli(),
		row.ExpiresAt.Add(s.retention).UnixMilli(),
		row.Handle,
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	if created == 0 {
		return ErrDuplicateHandle
	}
	return nil
}

func (s *RedisStore) GetSession(ctx context.Context, handle string) (*Row, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(handle)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	row, err := rowFromHash(handle, fields)
	if err != nil {
		return nil, err
	}
	if !s.now().Before(row.ExpiresAt) {
		return nil, ErrNotFound
	}
	return row, nil
}

func (s *RedisStore) AdvanceLineage(ctx context.Context, handle, expectedHash, nextHash string, nextExpiry time.Time) (AdvanceResult, *Row, error) {
	reply, err := advanceLineageLua.Run(
		ctx,
		s.redis,
		[]string{s.key(handle), s.historyKey(handle)},
		expectedHash,
		nextHash,
		nextExpiry.UnixMilli(),
		s.now().UnixMilli(),
		nextExpiry.Add(s.retention).UnixMilli(),
	).Slice()
	if err != nil {
		return 0, nil, unavailable(err)
	}
	if len(reply) == 0 {
		return 0, nil, unavailable(errors.New("empty advance reply"))
	}

	status, ok := reply[0].(int64)
	if !ok {
		return 0, nil, unavailable(fmt.Errorf("unexpected advance status %T", reply[0]))
	}
	switch status {
	case advanceStatusNotFound:
		return NotFound, nil, nil
	case advanceStatusMismatch:
		return Mismatch, nil, nil
	case advanceStatusAdvanced:
	default:
		return 0, nil, unavailable(fmt.Errorf("unexpected advance status %d", status))
	}

	if len(reply) < 2 {
		return 0, nil, unavailable(errors.New("advance reply missing row"))
	}
	flat, ok := reply[1].([]interface{})
	if !ok {
		return 0, nil, unavailable(fmt.Errorf("unexpected advance row %T", reply[1]))
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		fields[k] = v
	}
	row, err := rowFromHash(handle, fields)
	if err != nil {
		return 0, nil, err
	}
	return Advanced, row, nil
}

func (s *RedisStore) IsLineageHistorical(ctx context.Context, handle, hash string) (bool, error) {
	seen, err := s.redis.SIsMember(ctx, s.historyKey(handle), hash).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return seen, nil
}

func (s *RedisStore) UpdatePayload(ctx context.Context, handle string, jwtPayload, dbPayload json.RawMessage) error {
	updated, err := updatePayloadLua.Run(
		ctx,
		s.redis,
		[]string{s.key(handle)},
		s.now().UnixMilli(),
		presentFlag(jwtPayload),
		string(jwtPayload),
		presentFlag(dbPayload),
		string(dbPayload),
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	if updated == 0 {
		return ErrNotFound
	}
	return nil
}

func presentFlag(v json.RawMessage) string {
	if v == nil {
		return "0"
	}
	return "1"
}

func (s *RedisStore) Revoke(ctx context.Context, handles ...string) (int, error) {
	revoked := 0
	nowMillis := s.now().UnixMilli()
	for _, handle := range handles {
		n, err := revokeSessionLua.Run(
			ctx,
			s.redis,
			[]string{s.key(handle)},
			s.userPrefix(),
			handle,
			nowMillis,
		).Int()
		if err != nil {
			return revoked, unavailable(err)
		}
		revoked += n
	}
	return revoked, nil
}

// HandlesForUser reads the user index and drops handles whose rows are gone.
func (s *RedisStore) HandlesForUser(ctx context.Context, userID string) ([]string, error) {
	userKey := s.userKey(userID)
	members, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(members))
	for i, handle := range members {
		cmds[i] = pipe.HGet(ctx, s.key(handle), fieldExpiresAt)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	nowMillis := s.now().UnixMilli()
	live := make([]string, 0, len(members))
	var stale []interface{}
	for i, cmd := range cmds {
		exp, err := cmd.Int64()
		if err == nil && exp > nowMillis {
			live = append(live, members[i])
			continue
		}
		if errors.Is(err, redis.Nil) {
			stale = append(stale, members[i])
		}
	}
	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, unavailable(err)
		}
	}
	return live, nil
}

// SessionCount scans session keys. This is an O(n) operation meant for
// tests and admin tooling, never for request paths.
func (s *RedisStore) SessionCount(ctx context.Context) (int, error) {
	nowMillis := s.now().UnixMilli()
	total := 0
	err := s.scan(ctx, s.prefix+":s:*", func(keys []string) error {
		pipe := s.redis.Pipeline()
		cmds := make([]*redis.StringCmd, len(keys))
		for i, k := range keys {
			cmds[i] = pipe.HGet(ctx, k, fieldExpiresAt)
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		for _, cmd := range cmds {
			if exp, err := cmd.Int64(); err == nil && exp > nowMillis {
				total++
			}
		}
		return nil
	})
	return total, err
}

// HistoricalCount sums the sizes of all lineage history sets. O(n).
func (s *RedisStore) HistoricalCount(ctx context.Context) (int, error) {
	total := 0
	err := s.scan(ctx, s.prefix+":h:*", func(keys []string) error {
		pipe := s.redis.Pipeline()
		cmds := make([]*redis.IntCmd, len(keys))
		for i, k := range keys {
			cmds[i] = pipe.SCard(ctx, k)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		for _, cmd := range cmds {
			total += int(cmd.Val())
		}
		return nil
	})
	return total, err
}

func (s *RedisStore) scan(ctx context.Context, pattern string, visit func([]string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return unavailable(err)
		}
		if len(keys) > 0 {
			if err := visit(keys); err != nil {
				return unavailable(err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, unavailable(err)
	}
	return time.Since(start), nil
}

func rowFromHash(handle string, fields map[string]string) (*Row, error) {
	expMillis, err := strconv.ParseInt(fields[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, unavailable(fmt.Errorf("corrupt session %s: exp: %v", handle, err))
	}
	createdMillis, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, unavailable(fmt.Errorf("corrupt session %s: cat: %v", handle, err))
	}
	return &Row{
		Handle:      handle,
		UserID:      fields[fieldUserID],
		JWTPayload:  json.RawMessage(fields[fieldJWT]),
		DBPayload:   json.RawMessage(fields[fieldDB]),
		LineageHash: fields[fieldLineage],
		ExpiresAt:   time.UnixMilli(expMillis),
		CreatedAt:   time.UnixMilli(createdMillis),
	}, nil
}
