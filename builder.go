package goIdentity

import (
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
	internalmetrics "github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/MrEthical07/goIdentity"

// Builder assembles an Engine. It is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	roles  *permission.Config
	store  CredentialStore
	sender Sender
	sink   AuditSink
	logger *slog.Logger
	tp     trace.TracerProvider
	now    func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for OTP rate limits, registration
// challenges, the login throttle and the denylist.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRoles sets the initial role table.
func (b *Builder) WithRoles(cfg *permission.Config) *Builder {
	b.roles = cfg
	return b
}

func (b *Builder) WithCredentialStore(s CredentialStore) *Builder {
	b.store = s
	return b
}

// WithSender sets the OTP delivery channel. Defaults to NoopSender.
func (b *Builder) WithSender(s Sender) *Builder {
	b.sender = s
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithTracerProvider sets the provider spans are recorded with. Defaults to
// the global otel provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tp = tp
	return b
}

// WithClock overrides time.Now for token stamps, OTP expiry and rate windows.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if b.roles == nil {
		return nil, errors.New("role table required")
	}

	defaultRole := b.roles.DefaultRole()
	if cfg.Roles.DefaultRole != "" {
		defaultRole = cfg.Roles.DefaultRole
	}
	if _, ok := b.roles.Role(defaultRole); !ok {
		return nil, errors.New("default role must exist in the role table")
	}

	hierarchy := cfg.hierarchy()
	hierarchy.Critical = append(hierarchy.Critical, defaultRole)
	roles, err := permission.NewManager(b.roles, hierarchy)
	if err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	tp := b.tp
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	sender := b.sender
	if sender == nil {
		sender = NoopSender{}
	}

	hasher, err := password.New(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}

	method := jwt.SigningMethod(cfg.JWT.SigningMethod)
	codec, err := jwt.NewCodec(jwt.Config{
		Access: jwt.KeyConfig{
			SigningMethod: method,
			PrivateKey:    cloneBytes(cfg.JWT.AccessKey),
			PublicKey:     cloneBytes(cfg.JWT.AccessPublicKey),
		},
		Refresh: jwt.KeyConfig{
			SigningMethod: method,
			PrivateKey:    cloneBytes(cfg.JWT.RefreshKey),
			PublicKey:     cloneBytes(cfg.JWT.RefreshPublicKey),
		},
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		Leeway:     cfg.JWT.Leeway,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cfg,
		store:       b.store,
		roles:       roles,
		defaultRole: defaultRole,
		codec:       codec,
		hasher:      hasher,
		sender:      sender,
		logger:      logger.With("component", "goidentity"),
		tracer:      tp.Tracer(instrumentationName),
		now:         now,
		limiter: rate.New(b.redis, rate.Config{
			Prefix:                cfg.Redis.Prefix,
			OTPLimit:              cfg.OTP.RateLimit,
			OTPWindow:             cfg.OTP.RateWindow,
			MaxLoginFailures:      cfg.Security.MaxLoginFailures,
			LoginCooldownDuration: cfg.Security.LoginCooldown,
		}),
		challenges: stores.NewChallengeStore(b.redis, cfg.Redis.Prefix, cfg.OTP.TTL, cfg.OTP.MaxAttempts),
		metrics: internalmetrics.New(internalmetrics.Config{
			Enabled:                 cfg.Metrics.Enabled,
			EnableLatencyHistograms: cfg.Metrics.EnableLatencyHistograms,
		}),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.sink, logger),
	}
	if cfg.Revocation.Enabled {
		engine.denylist = stores.NewDenylist(b.redis, cfg.Redis.Prefix)
	}

	b.built = true
	return engine, nil
}
