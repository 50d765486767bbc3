package teamgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avrelium/teamgate/internal"
	"github.com/avrelium/teamgate/internal/audit"
	"github.com/avrelium/teamgate/jwt"
	"github.com/avrelium/teamgate/password"
	"github.com/avrelium/teamgate/session"
	"github.com/avrelium/teamgate/store"
)

// Engine is the orchestrator behind every pipeline. Construct it through
// [New]; the zero value is not usable.
type Engine struct {
	config     Config
	store      store.Store
	principals PrincipalSource

	hasher    *password.Argon2
	tokens    TokenService
	totp      *totpManager
	messenger Messenger
	email     EmailPublisher

	jwtManager *jwt.Manager
	sessions   *session.Store
	pending    *mfaMarkerStore

	audit   *audit.Dispatcher
	metrics *Metrics
	logger  *slog.Logger

	loginPipe  *Pipeline[*LoginCommand, SignInData]
	verifyPipe *Pipeline[*VerifyOtpCommand, SignInData]
	resendPipe *Pipeline[*ResendOtpCommand, SignInData]
}

// Close flushes the audit dispatcher. The stores passed to the builder stay
// open; their lifecycle belongs to the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current counter and histogram values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	if event.DeviceID == "" {
		event.DeviceID = deviceIDFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

// issueSession creates the session record and signs the matching bearer
// credential. The credential and the stored record always agree.
func (e *Engine) issueSession(ctx context.Context, user *store.User, deviceID string, twoFactorVerified, rememberMe bool) (*SessionCredential, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	lifetime := e.config.Session.Lifetime
	if rememberMe {
		lifetime = e.config.Session.RememberMeLifetime
	}

	now := time.Now()
	sess := &session.Session{
		SessionID:         sid.String(),
		UserID:            user.ID,
		TeamID:            user.TeamID,
		DeviceID:          deviceID,
		TwoFactorVerified: twoFactorVerified,
		Persistent:        rememberMe,
		CreatedAt:         now.Unix(),
		ExpiresAt:         now.Add(lifetime).Unix(),
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	token, err := e.jwtManager.Issue(jwt.SessionClaims{
		UserID:            user.ID,
		TeamID:            user.TeamID,
		DeviceID:          deviceID,
		SessionID:         sess.SessionID,
		TwoFactorVerified: twoFactorVerified,
		Persistent:        rememberMe,
	}, lifetime)
	if err != nil {
		// Best effort: the orphaned record expires on its own either way.
		_, _ = e.sessions.Delete(ctx, user.ID, sess.SessionID)
		return nil, fmt.Errorf("sign credential: %w", err)
	}

	e.metrics.Inc(MetricSessionCreated)

	return &SessionCredential{
		Token:             token,
		SessionID:         sess.SessionID,
		UserID:            user.ID,
		TeamID:            user.TeamID,
		DeviceID:          deviceID,
		TwoFactorVerified: twoFactorVerified,
		Persistent:        rememberMe,
		ExpiresAt:         time.Unix(sess.ExpiresAt, 0),
	}, nil
}

// ParseCredential verifies a bearer token and confirms its session is still
// live. Revoked or expired sessions fail with [session.ErrNotFound].
func (e *Engine) ParseCredential(ctx context.Context, token string) (*jwt.SessionClaims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		return nil, err
	}

	// A session id we never generated does not reach the store.
	if _, err := internal.ParseSessionID(claims.SessionID); err != nil {
		return nil, fmt.Errorf("invalid session id: %w", err)
	}

	if _, err := e.sessions.Get(ctx, claims.SessionID); err != nil {
		return nil, err
	}
	return claims, nil
}

// SignOut revokes the session behind a bearer token. Revoking an already
// dead session is not an error.
func (e *Engine) SignOut(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		return err
	}

	existed, err := e.sessions.Delete(ctx, claims.UserID, claims.SessionID)
	if err != nil {
		return err
	}
	if existed {
		e.metrics.Inc(MetricSessionRevoked)
	}

	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventLogout,
		UserID:    claims.UserID,
		TeamID:    claims.TeamID,
		SessionID: claims.SessionID,
		Success:   true,
	})
	return nil
}

// SignOutAll revokes every live session of a user and returns how many were
// removed.
func (e *Engine) SignOutAll(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	n, err := e.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		e.metrics.Inc(MetricSessionRevoked)
	}

	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventLogout,
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"revoked": fmt.Sprintf("%d", n)},
	})
	return n, nil
}

var errNilRequest = errors.New("nil request")
