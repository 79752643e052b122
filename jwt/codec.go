package jwt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/keys"
	"github.com/golang-jwt/jwt/v5"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrMalformed        = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	// ErrKeyUnavailable means the key could not be resolved because the key
	// repository failed, not because the token is bad.
	ErrKeyUnavailable = errors.New("signing key unavailable")
)

var (
	errMissingKeyID      = errors.New("missing kid")
	errAlgorithmMismatch = errors.New("token algorithm does not match key")
)

// KeyResolver finds a verification key by id.
type KeyResolver interface {
	ForVerification(ctx context.Context, kid string) (keys.SigningKey, error)
}

// Config defines token codec validation rules.
type Config struct {
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	Now          func() time.Time
}

// Codec encodes and verifies tokens. It holds no keys; callers pass the
// signing key on encode and a resolver on decode.
type Codec struct {
	config Config
	parser *jwt.Parser
}

// AccessClaims is the access token body.
type AccessClaims struct {
	SessionHandle     string          `json:"sid"`
	Payload           json.RawMessage `json:"data,omitempty"`
	LineageHash       string          `json:"rth"`
	ParentLineageHash string          `json:"prth,omitempty"`
	AntiCSRFToken     string          `json:"csrf,omitempty"`
	Use               string          `json:"use"`
	jwt.RegisteredClaims

	// KeyID is taken from the verified header; it is never serialized.
	KeyID string `json:"-"`
}

// RefreshClaims is the refresh token body. LineageSecret is the random value
// whose hash the session store holds as the current lineage hash.
type RefreshClaims struct {
	SessionHandle     string `json:"sid"`
	LineageSecret     string `json:"lin"`
	ParentLineageHash string `json:"plh,omitempty"`
	AntiCSRF          bool   `json:"acs,omitempty"`
	Use               string `json:"use"`
	jwt.RegisteredClaims

	KeyID string `json:"-"`
}

// NewCodec validates cfg and builds a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithTimeFunc(cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}

	return &Codec{config: cfg, parser: jwt.NewParser(options...)}, nil
}

// EncodeAccess signs claims with key. Timestamps must already be set.
func (c *Codec) EncodeAccess(claims AccessClaims, key keys.SigningKey) (string, error) {
	claims.Use = TypeAccess
	c.stamp(&claims.RegisteredClaims)
	return c.sign(claims, key)
}

// EncodeRefresh signs claims with key. Timestamps must already be set.
func (c *Codec) EncodeRefresh(claims RefreshClaims, key keys.SigningKey) (string, error) {
	claims.Use = TypeRefresh
	c.stamp(&claims.RegisteredClaims)
	return c.sign(claims, key)
}

// DecodeAccess verifies an access token against keys from resolver.
func (c *Codec) DecodeAccess(ctx context.Context, token string, resolver KeyResolver) (*AccessClaims, error) {
	claims := &AccessClaims{}
	kid, err := c.parse(ctx, token, resolver, claims)
	if err != nil {
		return nil, err
	}
	if claims.Use != TypeAccess || claims.SessionHandle == "" || claims.Subject == "" {
		return nil, ErrMalformed
	}
	claims.KeyID = kid
	return claims, nil
}

// DecodeRefresh verifies a refresh token against keys from resolver.
func (c *Codec) DecodeRefresh(ctx context.Context, token string, resolver KeyResolver) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	kid, err := c.parse(ctx, token, resolver, claims)
	if err != nil {
		return nil, err
	}
	if claims.Use != TypeRefresh || claims.SessionHandle == "" || claims.LineageSecret == "" {
		return nil, ErrMalformed
	}
	claims.KeyID = kid
	return claims, nil
}

func (c *Codec) stamp(rc *jwt.RegisteredClaims) {
	if c.config.Issuer != "" {
		rc.Issuer = c.config.Issuer
	}
	if c.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{c.config.Audience}
	}
}

func (c *Codec) sign(claims jwt.Claims, key keys.SigningKey) (string, error) {
	method, err := signingMethod(key.Algorithm)
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = key.ID
	return token.SignedString(key.SignKey())
}

func (c *Codec) parse(ctx context.Context, tokenStr string, resolver KeyResolver, claims jwt.Claims) (string, error) {
	var kid string
	token, err := c.parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ = t.Header["kid"].(string)
		if kid == "" {
			return nil, errMissingKeyID
		}
		key, err := resolver.ForVerification(ctx, kid)
		if err != nil {
			return nil, err
		}
		method, err := signingMethod(key.Algorithm)
		if err != nil {
			return nil, err
		}
		if t.Method.Alg() != method.Alg() {
			return nil, errAlgorithmMismatch
		}
		return key.VerifyKey(), nil
	})
	if err != nil {
		return "", classify(err)
	}
	if !token.Valid {
		return "", ErrSignatureInvalid
	}

	if iat, _ := claims.GetIssuedAt(); iat != nil {
		if iat.Time.After(c.config.Now().Add(c.config.MaxFutureIAT)) {
			return "", ErrSignatureInvalid
		}
	}
	return kid, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, keys.ErrRepositoryUnavailable), errors.Is(err, keys.ErrKeyGeneration):
		return fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		// unknown kid, retired key, bad signature and claim violations all
		// look the same to callers
		return ErrSignatureInvalid
	}
}

func signingMethod(alg keys.Algorithm) (jwt.SigningMethod, error) {
	switch alg {
	case keys.AlgorithmHS256:
		return jwt.SigningMethodHS256, nil
	case keys.AlgorithmEd25519:
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, keys.ErrUnsupportedAlgorithm
	}
}
