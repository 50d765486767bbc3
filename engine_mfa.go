package teamgate

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avrelium/teamgate/store"
)

func verifyOtpValidator() Validator[*VerifyOtpCommand] {
	return ValidatorFunc[*VerifyOtpCommand](func(_ context.Context, cmd *VerifyOtpCommand) []Failure {
		if strings.TrimSpace(cmd.Code) == "" {
			return []Failure{{Key: "code", Message: "code is required"}}
		}
		return nil
	})
}

// VerifyOtp runs the code verification pipeline. On success the pending
// challenge is consumed and a two-factor-verified session is issued. A
// failed attempt also consumes the outstanding code; the caller must go
// through ResendOtp before trying again.
func (e *Engine) VerifyOtp(ctx context.Context, cmd *VerifyOtpCommand) (Result[SignInData], error) {
	if e == nil {
		return Result[SignInData]{}, ErrEngineNotReady
	}
	if cmd == nil {
		return Result[SignInData]{}, errNilRequest
	}
	return e.verifyPipe.Dispatch(ctx, cmd)
}

// ResendOtp runs the re-delivery pipeline. The new code overwrites the
// user's single token slot, invalidating any previously delivered code.
func (e *Engine) ResendOtp(ctx context.Context, cmd *ResendOtpCommand) (Result[SignInData], error) {
	if e == nil {
		return Result[SignInData]{}, ErrEngineNotReady
	}
	if cmd == nil {
		return Result[SignInData]{}, errNilRequest
	}
	return e.resendPipe.Dispatch(ctx, cmd)
}

func (e *Engine) handleVerifyOtp(ctx context.Context, cmd *VerifyOtpCommand, _ store.Tx) (Result[SignInData], error) {
	base := cmd.Base()
	user := base.PrincipalUser

	pending, err := e.pending.Exists(ctx, user.TeamID, user.ID, base.DeviceID)
	if err != nil {
		return Result[SignInData]{}, err
	}
	if !pending {
		return FailAs[SignInData](Unauthorized("no pending multi-factor challenge")), nil
	}

	// The provider switch is closed: anything outside the enum fails the
	// verification instead of guessing a channel.
	verified := false
	switch user.Provider {
	case ProviderAuthenticator:
		if len(user.AuthenticatorSecret) > 0 {
			verified, err = e.totp.VerifyCode(user.AuthenticatorSecret, cmd.Code, time.Now())
		} else {
			// Enrollment is missing, so delivery fell back to an email
			// token living in the slot.
			verified, err = e.consumeOtp(ctx, user, cmd.Code)
		}
	case ProviderSms, ProviderEmail:
		// A fallback-rescoped email token lives in the same slot, so both
		// channels verify identically.
		verified, err = e.consumeOtp(ctx, user, cmd.Code)
	default:
		verified = false
	}
	if err != nil {
		return Result[SignInData]{}, err
	}

	if !verified {
		e.metrics.Inc(MetricOtpVerifyFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType: auditEventOtpVerified,
			UserID:    user.ID,
			TeamID:    user.TeamID,
			Success:   false,
			Error:     "code mismatch",
		})
		return FailAs[SignInData](Unauthorized("invalid code")), nil
	}

	if err := e.pending.Clear(ctx, user.TeamID, user.ID, base.DeviceID); err != nil {
		return Result[SignInData]{}, err
	}

	cred, err := e.issueSession(ctx, user, base.DeviceID, true, cmd.RememberMe)
	if err != nil {
		return Result[SignInData]{}, err
	}

	e.metrics.Inc(MetricOtpVerifySuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventOtpVerified,
		UserID:    user.ID,
		TeamID:    user.TeamID,
		SessionID: cred.SessionID,
		Success:   true,
	})
	return Succeed(SignInData{Step: StepAuthenticated, Credential: cred}), nil
}

func (e *Engine) handleResendOtp(ctx context.Context, cmd *ResendOtpCommand, tx store.Tx) (Result[SignInData], error) {
	base := cmd.Base()
	user := base.PrincipalUser

	if !user.TwoFactorEnabled {
		return FailAs[SignInData](BadRequest("multi-factor authentication is not enabled")), nil
	}

	pending, err := e.pending.Exists(ctx, user.TeamID, user.ID, base.DeviceID)
	if err != nil {
		return Result[SignInData]{}, err
	}
	if !pending {
		return FailAs[SignInData](Unauthorized("no pending multi-factor challenge")), nil
	}

	mfa, err := e.sendOtp(ctx, tx, user, cmd.Provider)
	if err != nil {
		return Result[SignInData]{}, err
	}

	// Re-arm the challenge window alongside the fresh code.
	if err := e.pending.Set(ctx, user.TeamID, user.ID, base.DeviceID); err != nil {
		return Result[SignInData]{}, err
	}

	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventOtpResent,
		UserID:    user.ID,
		TeamID:    user.TeamID,
		Success:   true,
		Metadata:  map[string]string{"provider": mfa.Provider.String()},
	})
	return PartialAs(
		PreconditionRequired("multi-factor verification required"),
		SignInData{Step: StepMfaRequired, Mfa: mfa},
	), nil
}

// sendOtp delivers a one-time code on the requested channel. Every delivery
// problem reroutes to email with the reason reported in ExtraInfo; only an
// email publish failure is fatal.
func (e *Engine) sendOtp(ctx context.Context, tx store.Tx, user *store.User, override *MfaProvider) (*MfaResult, error) {
	provider := user.Provider
	if override != nil {
		provider = *override
	}

	if provider == ProviderAuthenticator {
		if len(user.AuthenticatorSecret) > 0 {
			// Nothing to deliver: the code comes from the user's device.
			return &MfaResult{Provider: ProviderAuthenticator}, nil
		}
		return e.fallbackToEmail(ctx, tx, user, "authenticator not enrolled")
	}

	if provider == ProviderSms && user.PhoneNumber == "" {
		return e.fallbackToEmail(ctx, tx, user, "phone number missing")
	}
	if !providerEnabled(e.tokens.EnabledProviders(user), provider) {
		return e.fallbackToEmail(ctx, tx, user, "no valid provider")
	}

	token, err := e.tokens.Generate(ctx, user, provider)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}
	if err := tx.Users().SetOtpToken(ctx, user.ID, provider, token); err != nil {
		return nil, err
	}

	switch provider {
	case ProviderSms:
		if e.messenger == nil {
			return e.fallbackToEmail(ctx, tx, user, "sms transport unavailable")
		}
		message := fmt.Sprintf(e.config.Mfa.SmsTemplate, token)
		if err := e.messenger.SendSms(ctx, user.PhoneNumber, message); err != nil {
			return e.fallbackToEmail(ctx, tx, user, "sms delivery failed: "+err.Error())
		}
		e.metrics.Inc(MetricOtpSent)
		return &MfaResult{Provider: ProviderSms}, nil

	case ProviderEmail:
		if err := e.publishEmailToken(ctx, user, token); err != nil {
			return nil, err
		}
		e.metrics.Inc(MetricOtpSent)
		return &MfaResult{Provider: ProviderEmail}, nil

	default:
		return e.fallbackToEmail(ctx, tx, user, "no valid provider")
	}
}

// fallbackToEmail regenerates the code scoped to the email channel and
// overwrites the slot, so whatever was delivered before can no longer
// verify.
func (e *Engine) fallbackToEmail(ctx context.Context, tx store.Tx, user *store.User, reason string) (*MfaResult, error) {
	token, err := e.tokens.Generate(ctx, user, ProviderEmail)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}
	if err := tx.Users().SetOtpToken(ctx, user.ID, ProviderEmail, token); err != nil {
		return nil, err
	}
	if err := e.publishEmailToken(ctx, user, token); err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricOtpFallback)
	return &MfaResult{Provider: ProviderEmail, ExtraInfo: reason}, nil
}

func (e *Engine) publishEmailToken(ctx context.Context, user *store.User, token string) error {
	now := time.Now()
	event := EmailTokenEvent{
		EventID:   uuid.NewString(),
		UserID:    user.ID,
		TeamID:    user.TeamID,
		Email:     user.Email,
		Token:     token,
		IssuedAt:  now,
		ExpiresAt: now.Add(e.config.Mfa.MarkerTTL),
	}
	if err := e.email.PublishEmailToken(ctx, event); err != nil {
		return fmt.Errorf("%w: %w", ErrEmailPublish, err)
	}
	return nil
}

// consumeOtp empties the single token slot before comparing. The clear runs
// outside the request's unit of work so it survives the rollback of a failed
// attempt: every verification, right or wrong, burns the outstanding code,
// and a retry needs re-delivery through ResendOtp.
func (e *Engine) consumeOtp(ctx context.Context, user *store.User, code string) (bool, error) {
	token := user.OtpToken
	if err := e.store.Users().ClearOtpToken(ctx, user.ID); err != nil {
		return false, err
	}
	if token == "" {
		return false, nil
	}

	submitted := strings.TrimSpace(code)
	return subtle.ConstantTimeCompare([]byte(token), []byte(submitted)) == 1, nil
}

func providerEnabled(enabled []MfaProvider, provider MfaProvider) bool {
	for _, p := range enabled {
		if p == provider {
			return true
		}
	}
	return false
}
