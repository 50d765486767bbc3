package teamgate

import "errors"

var (
	// ErrEngineNotReady is returned when an engine method is called before
	// Build wired the required collaborators.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrConfigInvalid is returned by Build when configuration validation
	// fails.
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrEmailPublish wraps a hard failure of the email event publisher.
	// Email is the terminal fallback channel, so this is never rerouted.
	ErrEmailPublish = errors.New("email event publish failed")
	// ErrAuthenticatorNotEnrolled is returned when an authenticator
	// operation runs against a user without an enrolled secret.
	ErrAuthenticatorNotEnrolled = errors.New("authenticator not enrolled")
	// ErrMarkerUnavailable wraps pending-MFA marker backend failures.
	ErrMarkerUnavailable = errors.New("pending mfa marker backend unavailable")
)
