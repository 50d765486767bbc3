package teamgate

import (
	"context"
	"errors"
	"strings"

	"github.com/avrelium/teamgate/store"
)

// invalidCredentialsInfo is shared by the unknown-identifier and
// wrong-password branches so callers cannot tell accounts apart.
const invalidCredentialsInfo = "invalid credentials"

func loginValidator() Validator[*LoginCommand] {
	return ValidatorFunc[*LoginCommand](func(_ context.Context, cmd *LoginCommand) []Failure {
		var failures []Failure
		if cmd.ID == "" && cmd.Email == "" && cmd.Username == "" {
			failures = append(failures, Failure{
				Key:     "identifier",
				Message: "an id, email or username is required",
			})
		}
		if cmd.Password == "" {
			failures = append(failures, Failure{
				Key:     "password",
				Message: "password is required",
			})
		}
		if cmd.Provider != nil {
			switch *cmd.Provider {
			case ProviderSms, ProviderEmail, ProviderAuthenticator:
			default:
				failures = append(failures, Failure{
					Key:     "provider",
					Message: "unknown mfa provider",
				})
			}
		}
		return failures
	})
}

// Login runs the credential sign-in pipeline. The outcome is Success with a
// credential, PreconditionRequired with the step to complete, or a failure.
func (e *Engine) Login(ctx context.Context, cmd *LoginCommand) (Result[SignInData], error) {
	if e == nil {
		return Result[SignInData]{}, ErrEngineNotReady
	}
	if cmd == nil {
		return Result[SignInData]{}, errNilRequest
	}
	return e.loginPipe.Dispatch(ctx, cmd)
}

func (e *Engine) handleLogin(ctx context.Context, cmd *LoginCommand, tx store.Tx) (Result[SignInData], error) {
	user, err := resolveLoginUser(ctx, tx, cmd)
	if err != nil {
		return Result[SignInData]{}, err
	}
	if user == nil {
		e.metrics.Inc(MetricLoginNotFound)
		e.emitAudit(ctx, AuditEvent{
			EventType: auditEventLogin,
			Success:   false,
			Error:     "unknown identifier",
		})
		return FailAs[SignInData](NotFound(invalidCredentialsInfo)), nil
	}

	ok, err := e.hasher.Verify(cmd.Password, user.PasswordHash)
	if err != nil {
		return Result[SignInData]{}, err
	}
	if !ok {
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType: auditEventLogin,
			UserID:    user.ID,
			TeamID:    user.TeamID,
			Success:   false,
			Error:     "password mismatch",
		})
		return FailAs[SignInData](Unauthorized(invalidCredentialsInfo)), nil
	}

	e.maybeUpgradeHash(ctx, tx, user, cmd.Password)

	if !user.EmailConfirmed {
		e.metrics.Inc(MetricEmailConfirmationRequired)
		e.emitAudit(ctx, AuditEvent{
			EventType: auditEventLogin,
			UserID:    user.ID,
			TeamID:    user.TeamID,
			Success:   false,
			Error:     "email unconfirmed",
		})
		return PartialAs(
			PreconditionRequired("email confirmation required"),
			SignInData{Step: StepEmailConfirmationRequired},
		), nil
	}

	if user.TwoFactorEnabled {
		mfa, err := e.sendOtp(ctx, tx, user, cmd.Provider)
		if err != nil {
			return Result[SignInData]{}, err
		}

		deviceID := cmd.Base().DeviceID
		if err := e.pending.Set(ctx, user.TeamID, user.ID, deviceID); err != nil {
			return Result[SignInData]{}, err
		}

		e.metrics.Inc(MetricMfaRequired)
		e.emitAudit(ctx, AuditEvent{
			EventType: auditEventOtpSent,
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

	cred, err := e.issueSession(ctx, user, cmd.Base().DeviceID, false, cmd.RememberMe)
	if err != nil {
		return Result[SignInData]{}, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventLogin,
		UserID:    user.ID,
		TeamID:    user.TeamID,
		SessionID: cred.SessionID,
		Success:   true,
	})
	return Succeed(SignInData{Step: StepAuthenticated, Credential: cred}), nil
}

// resolveLoginUser applies the identifier preference order: id, then email,
// then username, then the email field retried as a username. A nil user
// with a nil error means no candidate matched.
func resolveLoginUser(ctx context.Context, tx store.Tx, cmd *LoginCommand) (*store.User, error) {
	users := tx.Users()

	if id := strings.TrimSpace(cmd.ID); id != "" {
		user, err := users.FindByID(ctx, id)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrUserNotFound) {
			return nil, err
		}
	}

	email := strings.TrimSpace(cmd.Email)
	if email != "" {
		user, err := users.FindByEmail(ctx, email)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrUserNotFound) {
			return nil, err
		}
	}

	if username := strings.TrimSpace(cmd.Username); username != "" {
		user, err := users.FindByUsername(ctx, username)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrUserNotFound) {
			return nil, err
		}
	}

	// A caller may have typed a username into the email field.
	if email != "" {
		user, err := users.FindByUsername(ctx, email)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrUserNotFound) {
			return nil, err
		}
	}

	return nil, nil
}

// maybeUpgradeHash re-hashes a verified password when the stored hash uses
// weaker parameters. Failures are logged and swallowed: the sign-in already
// succeeded.
func (e *Engine) maybeUpgradeHash(ctx context.Context, tx store.Tx, user *store.User, plaintext string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}

	needs, err := e.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}

	rehashed, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.logger.WarnContext(ctx, "password upgrade hash failed", "user_id", user.ID, "error", err.Error())
		return
	}

	user.PasswordHash = rehashed
	if err := tx.Users().Update(ctx, user); err != nil {
		e.logger.WarnContext(ctx, "password upgrade write failed", "user_id", user.ID, "error", err.Error())
	}
}
