package test

import (
	"sync"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type redisEnv struct {
	engine *goSession.Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *testClock
}

func testConfig() goSession.Config {
	cfg := goSession.DefaultConfig()
	cfg.AccessToken.TTL = 15 * time.Minute
	cfg.RefreshToken.TTL = 24 * time.Hour
	cfg.RefreshToken.HistoryRetention = 48 * time.Hour
	cfg.SigningKeys.AccessKeyValidity = time.Hour
	cfg.SigningKeys.RefreshKeyValidity = 12 * time.Hour
	return cfg
}

// newRedisEnv builds an engine on miniredis. mutate may adjust the config.
func newRedisEnv(t *testing.T, mutate func(*goSession.Config), opts ...func(*goSession.Builder)) *redisEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	clock := newTestClock()
	mr.SetTime(clock.Now())

	b := goSession.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return &redisEnv{engine: engine, mr: mr, rdb: rdb, clock: clock}
}

// advance moves the engine clock and miniredis together so key expiry agrees.
func (e *redisEnv) advance(d time.Duration) {
	e.clock.Advance(d)
	e.mr.SetTime(e.clock.Now())
	e.mr.FastForward(d)
}
