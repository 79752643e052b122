package keys

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrKeyringNotFound is returned by a Repository that holds no keyring for a set yet.
	ErrKeyringNotFound = errors.New("keyring not found")
	// ErrConflict is returned by Repository.CompareAndSwap when another writer won.
	ErrConflict = errors.New("keyring changed concurrently")
	// ErrRepositoryUnavailable wraps backend failures of a Repository.
	ErrRepositoryUnavailable = errors.New("keyring repository unavailable")
)

// Repository persists keyrings so several engine instances share them.
type Repository interface {
	Load(ctx context.Context, set string) (*Keyring, error)
	// CompareAndSwap stores next only if the persisted current key id equals
	// expectedCurrentID. An empty expectedCurrentID means "no keyring yet".
	CompareAndSwap(ctx context.Context, set, expectedCurrentID string, next *Keyring) error
}

// Config controls one key set.
type Config struct {
	// Set names the keyring inside a shared Repository, e.g. "access".
	Set       string
	Algorithm Algorithm
	// Retention is how long a superseded key keeps verifying.
	Retention time.Duration
	// ReloadInterval bounds how often an unknown kid, or a current key past
	// Validity, may trigger a repository reload.
	ReloadInterval time.Duration
	// Validity is the age at which the current key is due for rotation.
	// Zero disables the stale-key reload in Current.
	Validity time.Duration
	Now            func() time.Time
	Random         io.Reader
}

// RotationResult reports what RotateIfDue did.
type RotationResult struct {
	Rotated       bool
	KeyID         string
	PreviousKeyID string
}

// Store serves signing keys from an atomically swapped Keyring snapshot.
// Readers never block; mu only serializes writers.
type Store struct {
	cfg        Config
	repo       Repository
	ring       atomic.Pointer[Keyring]
	mu         sync.Mutex
	lastReload atomic.Int64
}

// NewStore validates cfg and returns a Store. repo may be nil for a
// process-local keyring.
func NewStore(cfg Config, repo Repository) (*Store, error) {
	if cfg.Algorithm != AlgorithmHS256 && cfg.Algorithm != AlgorithmEd25519 {
		return nil, ErrUnsupportedAlgorithm
	}
	if cfg.Retention <= 0 {
		return nil, errors.New("key retention must be > 0")
	}
	if cfg.Set == "" {
		cfg.Set = "default"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Random == nil {
		cfg.Random = rand.Reader
	}
	if cfg.ReloadInterval <= 0 {
		cfg.ReloadInterval = time.Second
	}
	return &Store{cfg: cfg, repo: repo}, nil
}

// Current returns the active signing key, generating one on first use.
// Once the current key is past Validity the repository is consulted, at
// most once per ReloadInterval, since another instance may have rotated.
// A failed reload keeps the snapshot key.
func (s *Store) Current(ctx context.Context) (SigningKey, error) {
	ring, err := s.Snapshot(ctx)
	if err != nil {
		return SigningKey{}, err
	}
	if s.repo == nil || s.cfg.Validity <= 0 {
		return ring.Current, nil
	}
	now := s.cfg.Now()
	if now.Sub(ring.Current.CreatedAt) < s.cfg.Validity || !s.reloadAllowed(now) {
		return ring.Current, nil
	}
	if latest, err := s.reload(ctx); err == nil {
		ring = latest
	}
	return ring.Current, nil
}

// Snapshot returns the published keyring, initializing it if needed.
func (s *Store) Snapshot(ctx context.Context) (*Keyring, error) {
	if ring := s.ring.Load(); ring != nil {
		return ring, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ring := s.ring.Load(); ring != nil {
		return ring, nil
	}

	ring, err := s.initialize(ctx)
	if err != nil {
		return nil, err
	}
	s.ring.Store(ring)
	return ring, nil
}

func (s *Store) initialize(ctx context.Context) (*Keyring, error) {
	if s.repo != nil {
		ring, err := s.repo.Load(ctx, s.cfg.Set)
		if err == nil {
			return ring, nil
		}
		if !errors.Is(err, ErrKeyringNotFound) {
			return nil, err
		}
	}

	key, err := Generate(s.cfg.Algorithm, s.cfg.Random, s.cfg.Now())
	if err != nil {
		return nil, err
	}
	ring := &Keyring{Current: key}
	if s.repo == nil {
		return ring, nil
	}

	err = s.repo.CompareAndSwap(ctx, s.cfg.Set, "", ring)
	if errors.Is(err, ErrConflict) {
		// another instance initialized the set first
		return s.repo.Load(ctx, s.cfg.Set)
	}
	if err != nil {
		return nil, err
	}
	return ring, nil
}

// ForVerification resolves kid to the current key or a retired key still
// inside its retention window. Unknown ids trigger at most one repository
// reload per ReloadInterval.
func (s *Store) ForVerification(ctx context.Context, kid string) (SigningKey, error) {
	ring, err := s.Snapshot(ctx)
	if err != nil {
		return SigningKey{}, err
	}

	now := s.cfg.Now()
	if key, ok := ring.Lookup(kid, now, s.cfg.Retention); ok {
		return key, nil
	}
	if s.repo == nil || !s.reloadAllowed(now) {
		return SigningKey{}, ErrKeyNotFound
	}

	ring, err = s.reload(ctx)
	if err != nil {
		return SigningKey{}, err
	}
	if key, ok := ring.Lookup(kid, now, s.cfg.Retention); ok {
		return key, nil
	}
	return SigningKey{}, ErrKeyNotFound
}

func (s *Store) reloadAllowed(now time.Time) bool {
	last := s.lastReload.Load()
	if now.UnixNano()-last < int64(s.cfg.ReloadInterval) {
		return false
	}
	return s.lastReload.CompareAndSwap(last, now.UnixNano())
}

func (s *Store) reload(ctx context.Context) (*Keyring, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adoptLatestLocked(ctx)
}

// adoptLatestLocked publishes the repository keyring when it is at least as
// new as the local one. Caller holds mu.
func (s *Store) adoptLatestLocked(ctx context.Context) (*Keyring, error) {
	local := s.ring.Load()
	latest, err := s.repo.Load(ctx, s.cfg.Set)
	if errors.Is(err, ErrKeyringNotFound) {
		return local, nil
	}
	if err != nil {
		return nil, err
	}
	if local != nil && latest.Current.CreatedAt.Before(local.Current.CreatedAt) {
		return local, nil
	}
	s.ring.Store(latest)
	return latest, nil
}

// RotateIfDue replaces the current key when it is at least validity old.
// The superseded key stays verifiable for Retention. validity <= 0 disables
// rotation.
func (s *Store) RotateIfDue(ctx context.Context, now time.Time, validity time.Duration) (RotationResult, error) {
	ring, err := s.Snapshot(ctx)
	if err != nil {
		return RotationResult{}, err
	}
	if validity <= 0 {
		return RotationResult{KeyID: ring.Current.ID}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo != nil {
		if ring, err = s.adoptLatestLocked(ctx); err != nil {
			return RotationResult{}, err
		}
	} else {
		ring = s.ring.Load()
	}

	if now.Sub(ring.Current.CreatedAt) < validity {
		return RotationResult{KeyID: ring.Current.ID}, nil
	}

	key, err := Generate(s.cfg.Algorithm, s.cfg.Random, now)
	if err != nil {
		return RotationResult{}, err
	}
	next := ring.rotate(key, now, s.cfg.Retention)

	if s.repo != nil {
		err := s.repo.CompareAndSwap(ctx, s.cfg.Set, ring.Current.ID, next)
		if errors.Is(err, ErrConflict) {
			latest, err := s.adoptLatestLocked(ctx)
			if err != nil {
				return RotationResult{}, err
			}
			return RotationResult{KeyID: latest.Current.ID}, nil
		}
		if err != nil {
			return RotationResult{}, err
		}
	}

	s.ring.Store(next)
	return RotationResult{Rotated: true, KeyID: key.ID, PreviousKeyID: ring.Current.ID}, nil
}
