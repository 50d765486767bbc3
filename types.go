package teamgate

import (
	"context"
	"time"

	"github.com/avrelium/teamgate/store"
)

// MfaProvider re-exports the closed provider enum owned by the store
// package so engine callers do not need a second import.
type MfaProvider = store.MfaProvider

const (
	// ProviderNone is an alias for store.ProviderNone.
	ProviderNone = store.ProviderNone
	// ProviderSms is an alias for store.ProviderSms.
	ProviderSms = store.ProviderSms
	// ProviderEmail is an alias for store.ProviderEmail.
	ProviderEmail = store.ProviderEmail
	// ProviderAuthenticator is an alias for store.ProviderAuthenticator.
	ProviderAuthenticator = store.ProviderAuthenticator
)

// Principal is the caller's verified identity snapshot. It is supplied by
// an external credential layer through a PrincipalSource; the core only
// reads it and never performs credential verification itself.
type Principal struct {
	IsAuthenticated bool

	UserID       string
	TeamID       string
	TeamPosition int

	Email    string
	Username string

	IsSuper       bool
	IsMaintenance bool
	IsCustomer    bool
	IsLeader      bool

	DeviceID string
}

// PrincipalSource supplies the current caller's Principal. Implementations
// typically read a verified session cookie or bearer token upstream of the
// pipeline.
type PrincipalSource interface {
	Current(ctx context.Context) Principal
}

// anonymousPrincipals is the default source when none is configured.
type anonymousPrincipals struct{}

func (anonymousPrincipals) Current(context.Context) Principal { return Principal{} }

// Request is the principal-bearing base embedded in every command and
// query. The pipeline's principal-attachment stage fills the claim fields
// unconditionally; the optional resolution stages fill PrincipalUser and
// PrincipalTeam.
type Request struct {
	IsAuthenticated bool

	UserID       string
	TeamID       string
	TeamPosition int

	Email    string
	Username string

	IsSuper       bool
	IsMaintenance bool
	IsCustomer    bool
	IsLeader      bool

	DeviceID string

	PrincipalUser *store.User
	PrincipalTeam *store.Team
}

// Base exposes the embedded Request to the generic pipeline code.
func (r *Request) Base() *Request { return r }

func (r *Request) applyPrincipal(p Principal) {
	r.IsAuthenticated = p.IsAuthenticated
	r.UserID = p.UserID
	r.TeamID = p.TeamID
	r.TeamPosition = p.TeamPosition
	r.Email = p.Email
	r.Username = p.Username
	r.IsSuper = p.IsSuper
	r.IsMaintenance = p.IsMaintenance
	r.IsCustomer = p.IsCustomer
	r.IsLeader = p.IsLeader
	r.DeviceID = p.DeviceID
}

// Carrier is implemented by every request type by embedding Request.
type Carrier interface {
	Base() *Request
}

// UserAware marks request types whose acting user must be hydrated before
// the handler runs. Membership is checked once per request type at
// pipeline construction, never per instance.
type UserAware interface {
	Carrier
	ResolvesUser()
}

// TeamAware marks request types whose team aggregate must be hydrated
// before the handler runs.
type TeamAware interface {
	Carrier
	ResolvesTeam()
}

// preconditionCommitter marks request types whose unit of work must commit
// even on a PreconditionRequired outcome. Login is the canonical case: a
// freshly generated MFA token has to persist although the sign-in has not
// succeeded yet.
type preconditionCommitter interface {
	commitsOnPrecondition()
}

/*
====================================
COMMANDS
====================================
*/

// LoginCommand carries the credential sign-in input. Identifier preference
// order: ID, then Email, then Username, then the email field treated as a
// possible username.
type LoginCommand struct {
	Request

	ID       string
	Email    string
	Username string
	Password string

	// Provider optionally overrides the user's preferred MFA channel for
	// this delivery.
	Provider *MfaProvider

	RememberMe bool
}

func (*LoginCommand) commitsOnPrecondition() {}

// VerifyOtpCommand carries a submitted one-time code. The acting user and
// team are hydrated by the pipeline from the pending-MFA principal.
type VerifyOtpCommand struct {
	Request

	Code       string
	RememberMe bool
}

// ResolvesUser marks the command user-aware.
func (*VerifyOtpCommand) ResolvesUser() {}

// ResolvesTeam marks the command team-aware.
func (*VerifyOtpCommand) ResolvesTeam() {}

// ResendOtpCommand requests re-delivery of a one-time code, optionally on
// a different channel. Re-delivery overwrites the user's single token
// slot, silently invalidating any previously delivered code.
type ResendOtpCommand struct {
	Request

	Provider *MfaProvider
}

// ResolvesUser marks the command user-aware.
func (*ResendOtpCommand) ResolvesUser() {}

// ResolvesTeam marks the command team-aware.
func (*ResendOtpCommand) ResolvesTeam() {}

func (*ResendOtpCommand) commitsOnPrecondition() {}

/*
====================================
SIGN-IN DATA
====================================
*/

// SignInStep is the terminal state of one Authenticate call.
type SignInStep uint8

const (
	// StepAuthenticated means a session credential was issued.
	StepAuthenticated SignInStep = iota
	// StepMfaRequired means a one-time code was delivered and must be
	// verified before a credential is issued.
	StepMfaRequired
	// StepEmailConfirmationRequired means the account's email address has
	// not been confirmed; no token was generated and no session issued.
	StepEmailConfirmationRequired
)

// String returns the canonical step name.
func (s SignInStep) String() string {
	switch s {
	case StepAuthenticated:
		return "authenticated"
	case StepMfaRequired:
		return "mfa_required"
	default:
		return "email_confirmation_required"
	}
}

// MfaResult reports which channel a one-time code was delivered on.
// ExtraInfo carries the original failure reason when delivery fell back to
// email.
type MfaResult struct {
	Provider  MfaProvider
	ExtraInfo string
}

// SignInData is the payload of login and verification results.
type SignInData struct {
	Step       SignInStep
	Mfa        *MfaResult
	Credential *SessionCredential
}

// SessionCredential is the artifact issued after a completed sign-in. The
// bearer token carries the same claims as the stored session record.
type SessionCredential struct {
	Token     string
	SessionID string

	UserID   string
	TeamID   string
	DeviceID string

	TwoFactorVerified bool
	Persistent        bool

	ExpiresAt time.Time
}

// AuthenticatorSetup is returned by authenticator enrollment: the base32
// shared secret plus the otpauth:// provisioning URI rendered as a QR code
// by the caller.
type AuthenticatorSetup struct {
	SecretBase32 string
	URI          string
}

/*
====================================
COLLABORATORS
====================================
*/

// Messenger dispatches outbound text messages. A returned error marks the
// delivery as failed and triggers the email fallback.
type Messenger interface {
	SendSms(ctx context.Context, number, message string) error
}

// TokenService generates opaque one-time tokens and reports which
// providers are currently valid for a user. Verification of database
// tokens is owned by the engine's closed provider switch.
type TokenService interface {
	Generate(ctx context.Context, user *store.User, provider MfaProvider) (string, error)
	EnabledProviders(user *store.User) []MfaProvider
}
