package test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/redis/go-redis/v9"
)

// ExampleNew demonstrates engine construction with production-style dependencies.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	engine, _ := goSession.New().
		WithConfig(goSession.HighSecurityConfig()).
		WithRedis(rdb).
		Build()
	_ = engine
}

// ExampleEngine_RefreshSession shows how to react to a replayed refresh token.
func ExampleEngine_RefreshSession() {
	var engine *goSession.Engine
	_, err := engine.RefreshSession(context.Background(), "refresh-token")

	var theft *goSession.TokenTheftError
	switch {
	case errors.As(err, &theft):
		// The session is already revoked; alert the user behind theft.UserID.
		_ = theft.UserID
	case errors.Is(err, goSession.ErrStoreUnavailable):
		// Retry later; the refresh token was not consumed.
	}
}

// ExampleEngine_CreateSession opens a session with a JWT payload.
func ExampleEngine_CreateSession() {
	var engine *goSession.Engine
	bundle, err := engine.CreateSession(context.Background(), "user-1", json.RawMessage(`{"role":"admin"}`), nil, true)
	if err != nil {
		return
	}
	_ = bundle.AntiCSRFToken
}

// ExampleEngine_RotateSigningKeys drives key rotation from a ticker.
func ExampleEngine_RotateSigningKeys() {
	var engine *goSession.Engine
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		if _, err := engine.RotateSigningKeys(context.Background()); err != nil {
			return
		}
	}
}
