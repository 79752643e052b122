package flows

import (
	"context"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/keys"
)

// KeyedTokens is the TokenService used by the Engine: access and refresh
// tokens are signed by separate key sets so they rotate independently.
type KeyedTokens struct {
	Codec       *jwt.Codec
	AccessKeys  *keys.Store
	RefreshKeys *keys.Store
}

func (t KeyedTokens) SignAccess(ctx context.Context, claims jwt.AccessClaims) (string, error) {
	key, err := t.AccessKeys.Current(ctx)
	if err != nil {
		return "", err
	}
	return t.Codec.EncodeAccess(claims, key)
}

func (t KeyedTokens) SignRefresh(ctx context.Context, claims jwt.RefreshClaims) (string, error) {
	key, err := t.RefreshKeys.Current(ctx)
	if err != nil {
		return "", err
	}
	return t.Codec.EncodeRefresh(claims, key)
}

func (t KeyedTokens) DecodeAccess(ctx context.Context, token string) (*jwt.AccessClaims, error) {
	return t.Codec.DecodeAccess(ctx, token, t.AccessKeys)
}

func (t KeyedTokens) DecodeRefresh(ctx context.Context, token string) (*jwt.RefreshClaims, error) {
	return t.Codec.DecodeRefresh(ctx, token, t.RefreshKeys)
}

func (t KeyedTokens) CurrentAccessKeyID(ctx context.Context) (string, error) {
	key, err := t.AccessKeys.Current(ctx)
	if err != nil {
		return "", err
	}
	return key.ID, nil
}
