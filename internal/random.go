package internal

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"github.com/google/uuid"
)

const (
	lineageSecretSize = 32
	antiCSRFSize      = 32
)

var errLineageSecretSize = errors.New("invalid lineage secret size")

// NewSessionHandle returns an opaque random session handle.
func NewSessionHandle(random io.Reader) (string, error) {
	id, err := uuid.NewRandomFromReader(random)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewLineageSecret returns a base64url secret carried inside refresh tokens.
func NewLineageSecret(random io.Reader) (string, error) {
	var secret [lineageSecretSize]byte
	if _, err := io.ReadFull(random, secret[:]); err != nil {
		return "", err
	}
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(secret[:]), nil
}

// HashLineageSecret maps a refresh token secret to the lineage hash the
// session store keeps. Only the hash is ever persisted.
func HashLineageSecret(secret string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(secret)
	if err != nil {
		return "", err
	}
	if len(raw) != lineageSecretSize {
		return "", errLineageSecretSize
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// NewAntiCSRFToken returns a random token bound into access tokens.
func NewAntiCSRFToken(random io.Reader) (string, error) {
	var b [antiCSRFSize]byte
	if _, err := io.ReadFull(random, b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
