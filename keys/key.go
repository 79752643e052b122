package keys

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Algorithm names the signature scheme a key is generated for.
type Algorithm string

const (
	AlgorithmHS256   Algorithm = "hs256"
	AlgorithmEd25519 Algorithm = "ed25519"
)

const hmacSecretSize = 32

var (
	// ErrKeyNotFound is returned when a key id is unknown or past its retention window.
	ErrKeyNotFound = errors.New("signing key not found")
	// ErrUnsupportedAlgorithm is returned for algorithms other than hs256 and ed25519.
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	// ErrKeyGeneration wraps random-source failures while minting a key.
	ErrKeyGeneration = errors.New("signing key generation failed")
)

// SigningKey is immutable once generated.
type SigningKey struct {
	ID         string
	Algorithm  Algorithm
	Secret     []byte
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
	CreatedAt  time.Time
}

// Generate mints a new key of the given algorithm using random as the entropy source.
func Generate(alg Algorithm, random io.Reader, now time.Time) (SigningKey, error) {
	id, err := uuid.NewRandomFromReader(random)
	if err != nil {
		return SigningKey{}, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	key := SigningKey{
		ID:        id.String(),
		Algorithm: alg,
		CreatedAt: now.UTC(),
	}

	switch alg {
	case AlgorithmHS256:
		secret := make([]byte, hmacSecretSize)
		if _, err := io.ReadFull(random, secret); err != nil {
			return SigningKey{}, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
		}
		key.Secret = secret
	case AlgorithmEd25519:
		pub, priv, err := ed25519.GenerateKey(random)
		if err != nil {
			return SigningKey{}, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
		}
		key.PrivateKey = priv
		key.PublicKey = pub
	default:
		return SigningKey{}, ErrUnsupportedAlgorithm
	}

	return key, nil
}

// SignKey returns the material golang-jwt expects when signing.
func (k SigningKey) SignKey() any {
	if k.Algorithm == AlgorithmHS256 {
		return k.Secret
	}
	return k.PrivateKey
}

// VerifyKey returns the material golang-jwt expects when verifying.
func (k SigningKey) VerifyKey() any {
	if k.Algorithm == AlgorithmHS256 {
		return k.Secret
	}
	return k.PublicKey
}

// PublicKeyPEM encodes the public half of an ed25519 key. Symmetric keys have
// no public half and return an empty string.
func (k SigningKey) PublicKeyPEM() (string, error) {
	if k.Algorithm != AlgorithmEd25519 {
		return "", nil
	}
	der, err := x509.MarshalPKIXPublicKey(k.PublicKey)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
