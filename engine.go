package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
	internalmetrics "github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/permission"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the authentication service. It is safe for concurrent use once
// built and holds no per-user state in process.
type Engine struct {
	config      Config
	store       CredentialStore
	roles       *permission.Manager
	defaultRole string
	codec       *jwt.Codec
	hasher      *password.Chain
	sender      Sender
	limiter     *rate.Limiter
	challenges  *stores.ChallengeStore
	denylist    *stores.Denylist
	audit       *internalaudit.Dispatcher
	metrics     *internalmetrics.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time

	// assignMu orders role assignments against role deletion so a deleted
	// role is never left assigned.
	assignMu sync.RWMutex
}

// Close flushes the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports audit events discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return internalmetrics.New(internalmetrics.Config{}).Snapshot()
	}
	return e.metrics.Snapshot()
}

// Roles exposes the live role table for administration and decisions.
func (e *Engine) Roles() *permission.Manager {
	return e.roles
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

/*
====================================
HELPERS
====================================
*/

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "goidentity."+name, trace.WithAttributes(attrs...))
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	span.End()
}

// storeErr maps CredentialStore failures onto the public taxonomy.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStoreNotFound):
		return ErrNotFound
	case errors.Is(err, ErrStoreDuplicate):
		return ErrDuplicateIdentity
	case errors.Is(err, ErrOTPNotIssued), errors.Is(err, ErrOTPMismatch), errors.Is(err, ErrOTPExpired):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
}

func rateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// identity builds the public snapshot of u with its current role name.
func (e *Engine) identity(u *User) Identity {
	roleName := ""
	if r, ok := e.roles.Current().Role(u.RoleID); ok {
		roleName = r.Name
	}
	return Identity{
		ID:          u.ID,
		Email:       u.Email,
		Phone:       u.Phone,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		RoleID:      u.RoleID,
		RoleName:    roleName,
		Department:  u.Department,
		Team:        u.Team,
		Active:      u.Active,
		Verified:    u.Verified,
		Social:      u.Social,
		CreatedAt:   u.CreatedAt,
		LastSeenAt:  u.LastSeenAt,
	}
}

// touch records last-seen. Failure is logged, never surfaced: the field is
// not safety-critical.
func (e *Engine) touch(ctx context.Context, u *User) {
	now := e.now()
	if err := e.store.TouchLastSeen(ctx, u.ID, now); err != nil {
		e.logger.WarnContext(ctx, "touch last seen failed", "user_id", u.ID, "error", err)
		return
	}
	u.LastSeenAt = now
}
