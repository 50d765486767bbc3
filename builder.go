package teamgate

import (
	"errors"
	"log/slog"

	"github.com/avrelium/teamgate/internal/audit"
	"github.com/avrelium/teamgate/jwt"
	"github.com/avrelium/teamgate/password"
	"github.com/avrelium/teamgate/session"
	"github.com/avrelium/teamgate/store"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A builder is single-use: Build may be called
// once.
type Builder struct {
	config Config

	store store.Store
	redis redis.UniversalClient

	principals PrincipalSource
	messenger  Messenger
	email      EmailPublisher
	tokens     TokenService
	auditSink  AuditSink
	logger     *slog.Logger

	built bool
}

// New creates a builder carrying the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the whole configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the relational store holding users and teams. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis sets the Redis client backing sessions, pending-MFA markers and
// email token events. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPrincipalSource sets the caller identity source. Defaults to an
// anonymous source.
func (b *Builder) WithPrincipalSource(src PrincipalSource) *Builder {
	b.principals = src
	return b
}

// WithMessenger sets the SMS transport. Without one, SMS deliveries fail
// and fall back to email.
func (b *Builder) WithMessenger(m Messenger) *Builder {
	b.messenger = m
	return b
}

// WithEmailPublisher replaces the default Redis pub/sub email publisher.
func (b *Builder) WithEmailPublisher(p EmailPublisher) *Builder {
	b.email = p
	return b
}

// WithTokenService replaces the default numeric one-time token service.
func (b *Builder) WithTokenService(s TokenService) *Builder {
	b.tokens = s
	return b
}

// WithAuditSink sets the audit event consumer.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the dispatch latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires defaults and constructs the
// engine with its pipelines.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if b.store == nil {
		return nil, errors.New("store is required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	method, err := jwt.ParseSigningMethod(b.config.JWT.SigningMethod)
	if err != nil {
		return nil, err
	}
	jwtManager, err := jwt.NewManager(jwt.Config{
		SigningMethod: method,
		PrivateKey:    b.config.JWT.PrivateKey,
		PublicKey:     b.config.JWT.PublicKey,
		Issuer:        b.config.JWT.Issuer,
		Audience:      b.config.JWT.Audience,
		Leeway:        b.config.JWT.Leeway,
		ClaimPrefix:   b.config.Claims.Prefix,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	principals := b.principals
	if principals == nil {
		principals = anonymousPrincipals{}
	}
	tokens := b.tokens
	if tokens == nil {
		tokens = newOtpTokenService(b.config.Mfa)
	}
	email := b.email
	if email == nil {
		email = NewRedisEmailPublisher(b.redis, b.config.Mfa.EmailChannel)
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:     b.config,
		store:      b.store,
		principals: principals,
		hasher:     hasher,
		tokens:     tokens,
		totp:       newTOTPManager(b.config.Mfa),
		messenger:  b.messenger,
		email:      email,
		jwtManager: jwtManager,
		sessions:   session.NewStore(b.redis, b.config.Session.RedisPrefix),
		pending:    newMfaMarkerStore(b.redis, b.config.Mfa.MarkerTTL),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    b.config.Audit.Enabled,
			BufferSize: b.config.Audit.BufferSize,
			DropIfFull: b.config.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(b.config.Metrics),
		logger:  logger,
	}

	engine.loginPipe = NewPipeline(engine, "login", engine.handleLogin, loginValidator())
	engine.verifyPipe = NewPipeline(engine, "verify_otp", engine.handleVerifyOtp, verifyOtpValidator())
	engine.resendPipe = NewPipeline(engine, "resend_otp", engine.handleResendOtp)

	return engine, nil
}
