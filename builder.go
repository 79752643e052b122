package goSession

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/keys"
	"github.com/MrEthical07/goSession/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder can be used once.
type Builder struct {
	config Config

	redis   redis.UniversalClient
	pool    *pgxpool.Pool
	store   session.Store
	keyRepo keys.Repository

	now    func() time.Time
	random io.Reader
	logger *zap.Logger

	auditSink AuditSink

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis stores sessions and keyrings in Redis and enables the refresh
// throttle backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgres stores sessions and keyrings in Postgres. The schema must be
// migrated first (see the db package). When Redis is also configured it only
// backs the refresh throttle.
func (b *Builder) WithPostgres(pool *pgxpool.Pool) *Builder {
	b.pool = pool
	return b
}

// WithStore overrides the session store, e.g. with session.NewMemoryStore in
// tests. It takes precedence over WithRedis and WithPostgres.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithKeyRepository overrides where keyrings are shared between instances.
func (b *Builder) WithKeyRepository(repo keys.Repository) *Builder {
	b.keyRepo = repo
	return b
}

// WithClock injects the wall clock used for expiry and rotation.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRandom injects the source of session handles, lineage secrets,
// anti-CSRF tokens and key material. Defaults to crypto/rand.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, initializes both signing key sets and
// returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	cfg.SigningKeys.Algorithm = strings.ToLower(cfg.SigningKeys.Algorithm)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RefreshThrottle.Enabled && b.redis == nil {
		return nil, errors.New("RefreshThrottle requires redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	random := b.random
	if random == nil {
		random = rand.Reader
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("gosession")

	// -------- SESSION STORE --------
	store := b.store
	switch {
	case store != nil:
	case b.pool != nil:
		store = session.NewPostgresStore(b.pool, now)
	case b.redis != nil:
		store = session.NewRedisStore(b.redis, session.RedisConfig{
			Prefix:           cfg.Session.RedisPrefix,
			HistoryRetention: cfg.RefreshToken.HistoryRetention,
			Now:              now,
		})
	default:
		return nil, errors.New("session store required: use WithRedis, WithPostgres or WithStore")
	}

	// -------- SIGNING KEYS --------
	repo := b.keyRepo
	switch {
	case repo != nil:
	case b.pool != nil:
		repo = keys.NewPostgresRepository(b.pool)
	case b.redis != nil:
		repo = keys.NewRedisRepository(b.redis, cfg.Session.RedisPrefix)
	default:
		logger.Warn("signing keys are process-local; run a single instance or configure a key repository")
	}

	alg := keys.Algorithm(cfg.SigningKeys.Algorithm)
	accessKeys, err := keys.NewStore(keys.Config{
		Set:            "access",
		Algorithm:      alg,
		Retention:      cfg.AccessToken.TTL + cfg.AccessToken.Leeway,
		ReloadInterval: cfg.SigningKeys.ReloadInterval,
		Validity:       cfg.SigningKeys.AccessKeyValidity,
		Now:            now,
		Random:         random,
	}, repo)
	if err != nil {
		return nil, err
	}
	refreshKeys, err := keys.NewStore(keys.Config{
		Set:            "refresh",
		Algorithm:      alg,
		Retention:      cfg.RefreshToken.TTL,
		ReloadInterval: cfg.SigningKeys.ReloadInterval,
		Validity:       cfg.SigningKeys.RefreshKeyValidity,
		Now:            now,
		Random:         random,
	}, repo)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if _, err := accessKeys.Current(ctx); err != nil {
		return nil, infraError(err)
	}
	if _, err := refreshKeys.Current(ctx); err != nil {
		return nil, infraError(err)
	}

	// -------- TOKENS --------
	codec, err := jwt.NewCodec(jwt.Config{
		Issuer:   cfg.AccessToken.Issuer,
		Audience: cfg.AccessToken.Audience,
		Leeway:   cfg.AccessToken.Leeway,
		Now:      now,
	})
	if err != nil {
		return nil, err
	}
	tokens := flows.KeyedTokens{Codec: codec, AccessKeys: accessKeys, RefreshKeys: refreshKeys}

	engine := &Engine{
		config:      cfg,
		store:       store,
		accessKeys:  accessKeys,
		refreshKeys: refreshKeys,
		tokens:      tokens,
		metrics:     NewMetrics(cfg.Metrics),
		logger:      logger,
		now:         now,
	}

	if cfg.RefreshThrottle.Enabled {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			Enabled:     true,
			Prefix:      cfg.Session.RedisPrefix,
			MaxAttempts: cfg.RefreshThrottle.MaxAttempts,
			Window:      cfg.RefreshThrottle.Window,
		})
	}

	sink := b.auditSink
	if sink == nil && cfg.Audit.Enabled {
		sink = NewZapAuditSink(logger)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		MustDeliver: securityCritical,
		Logger:      logger,
	}, sink)

	engine.initFlowDeps(random)

	b.built = true

	return engine, nil
}
