//go:build integration
// +build integration

package test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis Hook that counts the number of Redis round-trips
// (individual commands and pipeline calls).
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func (h *cmdCounter) Commands() int64  { return h.commands.Load() }
func (h *cmdCounter) Pipelines() int64 { return h.pipelines.Load() }

func newCountedEnv(t *testing.T, mutate func(*goSession.Config)) (*redisEnv, *cmdCounter) {
	t.Helper()
	env := newRedisEnv(t, mutate)
	counter := &cmdCounter{}
	env.rdb.AddHook(counter)
	return env, counter
}

// TestVerifyRedisBudget checks that verification without blacklisting never
// reaches Redis.
func TestVerifyRedisBudget(t *testing.T) {
	ctx := context.Background()
	env, counter := newCountedEnv(t, nil)

	bundle, err := env.engine.CreateSession(ctx, "u1", nil, nil, false)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	counter.Reset()
	if _, err := env.engine.VerifySession(ctx, bundle.AccessToken.Value, "", false); err != nil {
		t.Fatalf("VerifySession: %v", err)
	}
	if cmds := counter.Commands(); cmds != 0 {
		t.Errorf("VerifySession used %d Redis commands; expected none", cmds)
	}
}

// TestBlacklistVerifyRedisBudget checks that blacklisting costs one read.
func TestBlacklistVerifyRedisBudget(t *testing.T) {
	ctx := context.Background()
	env, counter := newCountedEnv(t, func(cfg *goSession.Config) {
		cfg.AccessToken.Blacklisting = true
	})

	bundle, err := env.engine.CreateSession(ctx, "u1", nil, nil, false)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	counter.Reset()
	if _, err := env.engine.VerifySession(ctx, bundle.AccessToken.Value, "", false); err != nil {
		t.Fatalf("VerifySession: %v", err)
	}
	if cmds := counter.Commands(); cmds > 1 {
		t.Errorf("VerifySession used %d Redis commands; budget is 1", cmds)
	}
}

// TestRefreshRedisBudget checks that a refresh is one read plus one Lua call
// once the script is cached.
func TestRefreshRedisBudget(t *testing.T) {
	ctx := context.Background()
	env, counter := newCountedEnv(t, nil)

	bundle, err := env.engine.CreateSession(ctx, "u1", nil, nil, false)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	// Warm the script cache.
	next, err := env.engine.RefreshSession(ctx, bundle.RefreshToken.Value)
	if err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}

	counter.Reset()
	if _, err := env.engine.RefreshSession(ctx, next.RefreshToken.Value); err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}
	cmds := counter.Commands()
	if cmds > 2 {
		t.Errorf("RefreshSession used %d Redis commands; budget is 2 (read + EVALSHA)", cmds)
	}
	t.Logf("RefreshSession: %d commands, %d pipelines", cmds, counter.Pipelines())
}
