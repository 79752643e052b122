package keys

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RetiredKey is a superseded key that may still verify tokens it signed.
type RetiredKey struct {
	Key          SigningKey
	SupersededAt time.Time
}

// Keyring is an immutable snapshot of the current key and its retired
// predecessors, newest first. Never mutate a Keyring after publishing it.
type Keyring struct {
	Current SigningKey
	Retired []RetiredKey
}

// Lookup resolves kid against the snapshot. Retired keys resolve only while
// now is before SupersededAt+retention.
func (r *Keyring) Lookup(kid string, now time.Time, retention time.Duration) (SigningKey, bool) {
	if r == nil || kid == "" {
		return SigningKey{}, false
	}
	if r.Current.ID == kid {
		return r.Current, true
	}
	for _, retired := range r.Retired {
		if retired.Key.ID != kid {
			continue
		}
		if now.Before(retired.SupersededAt.Add(retention)) {
			return retired.Key, true
		}
		return SigningKey{}, false
	}
	return SigningKey{}, false
}

// ExpiresAt reports when the current key will stop signing, given the
// rotation validity. A zero validity means the key never rotates.
func (r *Keyring) ExpiresAt(validity time.Duration) time.Time {
	if r == nil || validity <= 0 {
		return time.Time{}
	}
	return r.Current.CreatedAt.Add(validity)
}

func (r *Keyring) rotate(next SigningKey, now time.Time, retention time.Duration) *Keyring {
	retired := make([]RetiredKey, 0, len(r.Retired)+1)
	retired = append(retired, RetiredKey{Key: r.Current, SupersededAt: now})
	for _, k := range r.Retired {
		if now.Before(k.SupersededAt.Add(retention)) {
			retired = append(retired, k)
		}
	}
	return &Keyring{Current: next, Retired: retired}
}

type keyRecord struct {
	ID           string    `json:"id"`
	Algorithm    Algorithm `json:"alg"`
	Material     []byte    `json:"material"`
	CreatedAt    time.Time `json:"created_at"`
	SupersededAt time.Time `json:"superseded_at,omitzero"`
}

type keyringRecord struct {
	Current keyRecord   `json:"current"`
	Retired []keyRecord `json:"retired,omitempty"`
}

func toRecord(k SigningKey) keyRecord {
	rec := keyRecord{ID: k.ID, Algorithm: k.Algorithm, CreatedAt: k.CreatedAt}
	if k.Algorithm == AlgorithmHS256 {
		rec.Material = k.Secret
	} else {
		rec.Material = k.PrivateKey.Seed()
	}
	return rec
}

func fromRecord(rec keyRecord) (SigningKey, error) {
	k := SigningKey{ID: rec.ID, Algorithm: rec.Algorithm, CreatedAt: rec.CreatedAt}
	switch rec.Algorithm {
	case AlgorithmHS256:
		if len(rec.Material) == 0 {
			return SigningKey{}, errors.New("empty hs256 secret")
		}
		k.Secret = rec.Material
	case AlgorithmEd25519:
		if len(rec.Material) != ed25519.SeedSize {
			return SigningKey{}, errors.New("invalid ed25519 seed size")
		}
		k.PrivateKey = ed25519.NewKeyFromSeed(rec.Material)
		k.PublicKey = k.PrivateKey.Public().(ed25519.PublicKey)
	default:
		return SigningKey{}, ErrUnsupportedAlgorithm
	}
	return k, nil
}

// MarshalKeyring serializes a keyring for a Repository. Private material is
// included; repositories must be treated as secret storage.
func MarshalKeyring(r *Keyring) ([]byte, error) {
	rec := keyringRecord{Current: toRecord(r.Current)}
	for _, retired := range r.Retired {
		kr := toRecord(retired.Key)
		kr.SupersededAt = retired.SupersededAt
		rec.Retired = append(rec.Retired, kr)
	}
	return json.Marshal(rec)
}

// UnmarshalKeyring is the inverse of MarshalKeyring.
func UnmarshalKeyring(data []byte) (*Keyring, error) {
	var rec keyringRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode keyring: %w", err)
	}
	current, err := fromRecord(rec.Current)
	if err != nil {
		return nil, fmt.Errorf("decode current key: %w", err)
	}
	ring := &Keyring{Current: current}
	for _, kr := range rec.Retired {
		k, err := fromRecord(kr)
		if err != nil {
			return nil, fmt.Errorf("decode retired key %s: %w", kr.ID, err)
		}
		ring.Retired = append(ring.Retired, RetiredKey{Key: k, SupersededAt: kr.SupersededAt})
	}
	return ring, nil
}
