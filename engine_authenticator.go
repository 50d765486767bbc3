package teamgate

import (
	"context"
	"errors"
	"time"
)

// SetupAuthenticator starts TOTP enrollment: it generates and stores a
// fresh shared secret and returns the provisioning material. The
// authenticator only becomes the user's provider after
// [Engine.EnableAuthenticator] verifies a first code.
func (e *Engine) SetupAuthenticator(ctx context.Context, userID string) (*AuthenticatorSetup, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}

	user, err := tx.Users().FindByID(ctx, userID)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	raw, encoded, err := e.totp.GenerateSecret()
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Users().SetAuthenticatorSecret(ctx, user.ID, raw); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	account := user.Email
	if account == "" {
		account = user.Username
	}

	return &AuthenticatorSetup{
		SecretBase32: encoded,
		URI:          e.totp.ProvisionURI(encoded, account),
	}, nil
}

// EnableAuthenticator completes enrollment by verifying the first code from
// the user's device, then switches the user's provider to the
// authenticator.
func (e *Engine) EnableAuthenticator(ctx context.Context, userID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}

	user, err := tx.Users().FindByID(ctx, userID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if len(user.AuthenticatorSecret) == 0 {
		_ = tx.Rollback()
		return ErrAuthenticatorNotEnrolled
	}

	ok, err := e.totp.VerifyCode(user.AuthenticatorSecret, code, time.Now())
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if !ok {
		_ = tx.Rollback()
		return errors.New("invalid authenticator code")
	}

	user.Provider = ProviderAuthenticator
	user.TwoFactorEnabled = true
	if err := tx.Users().Update(ctx, user); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	e.metrics.Inc(MetricOtpVerifySuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventMfaEnrolled,
		UserID:    user.ID,
		TeamID:    user.TeamID,
		Success:   true,
		Metadata:  map[string]string{"provider": ProviderAuthenticator.String()},
	})
	return nil
}

// ValidateAuthenticator checks a current TOTP code without touching any
// state. Enrollment must have completed first.
func (e *Engine) ValidateAuthenticator(ctx context.Context, userID, code string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}

	user, err := e.store.Users().FindByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(user.AuthenticatorSecret) == 0 {
		return false, ErrAuthenticatorNotEnrolled
	}

	return e.totp.VerifyCode(user.AuthenticatorSecret, code, time.Now())
}
