// Package store defines the persistent User and Team aggregates together
// with the repository and unit-of-work contracts consumed by the teamgate
// pipeline and engine.
//
// Implementations must guarantee that every mutation performed through a
// [Tx] becomes visible only after Commit, and that Rollback discards all of
// them. Reads through [Store] run outside any transaction.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned when no user matches the requested key.
	ErrUserNotFound = errors.New("user not found")
	// ErrTeamNotFound is returned when no team matches the requested id.
	ErrTeamNotFound = errors.New("team not found")
	// ErrDuplicate is returned when a create collides with an existing row.
	ErrDuplicate = errors.New("duplicate record")
	// ErrTxDone is returned when a finished transaction is used again.
	ErrTxDone = errors.New("transaction already finished")
)

// MfaProvider is the closed set of second-factor delivery channels. Adding
// a provider is a compile-time change everywhere it is switched on.
type MfaProvider uint8

const (
	// ProviderNone means no second factor is configured.
	ProviderNone MfaProvider = iota
	// ProviderSms delivers one-time codes via text message.
	ProviderSms
	// ProviderEmail delivers one-time codes via an email event.
	ProviderEmail
	// ProviderAuthenticator uses a previously enrolled TOTP secret; no
	// server-side token is ever generated for it.
	ProviderAuthenticator
)

// String returns the canonical lower-case provider name.
func (p MfaProvider) String() string {
	switch p {
	case ProviderSms:
		return "sms"
	case ProviderEmail:
		return "email"
	case ProviderAuthenticator:
		return "authenticator"
	default:
		return "none"
	}
}

// ParseMfaProvider maps a provider name back to its enum value.
func ParseMfaProvider(name string) (MfaProvider, bool) {
	switch name {
	case "sms":
		return ProviderSms, true
	case "email":
		return ProviderEmail, true
	case "authenticator":
		return ProviderAuthenticator, true
	case "none", "":
		return ProviderNone, true
	default:
		return ProviderNone, false
	}
}

// User is the persistent account aggregate. A user belongs to exactly one
// team. OtpToken is the single one-time-token slot: issuing a new token
// overwrites the previous value (last write wins, no version guard).
type User struct {
	ID           string
	TeamID       string
	Email        string
	Username     string
	PhoneNumber  string
	PasswordHash string

	EmailConfirmed   bool
	TwoFactorEnabled bool

	// Provider is the user's preferred second-factor channel.
	Provider MfaProvider

	// AuthenticatorSecret is the enrolled TOTP shared secret, empty until
	// authenticator enrollment is confirmed.
	AuthenticatorSecret []byte

	// OtpToken and OtpProvider form the single live token slot. The
	// provider records which channel the outstanding token was scoped to
	// (fallback rescopes it to email).
	OtpToken    string
	OtpProvider MfaProvider

	TeamPosition int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Team is the tenant aggregate. LeaderID references the member authorized
// to perform team-level mutations.
type Team struct {
	ID       string
	Name     string
	LeaderID string
	Color    string

	// Members is loaded eagerly by TeamRepo.Get.
	Members []User

	CreatedAt time.Time
}

// UserRepo provides user reads and writes. Mutating methods called on a
// [Tx] repo take effect only at Commit.
type UserRepo interface {
	// GetByKey loads the acting user by its composite (team, user) key.
	GetByKey(ctx context.Context, teamID, userID string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)

	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error

	// SetOtpToken overwrites the user's token slot unconditionally.
	SetOtpToken(ctx context.Context, userID string, provider MfaProvider, token string) error
	// ClearOtpToken empties the slot regardless of its current value.
	ClearOtpToken(ctx context.Context, userID string) error
	// SetAuthenticatorSecret stores the enrolled TOTP secret.
	SetAuthenticatorSecret(ctx context.Context, userID string, secret []byte) error
}

// TeamRepo provides team reads and writes.
type TeamRepo interface {
	// Get loads the team with its member list.
	Get(ctx context.Context, teamID string) (*Team, error)
	Create(ctx context.Context, team *Team) error
	Update(ctx context.Context, team *Team) error
}

// Tx is the unit of work opened by the pipeline's transaction stage. All
// handler writes go through it; the stage decides between Commit and
// Rollback based on the handler outcome.
type Tx interface {
	Users() UserRepo
	Teams() TeamRepo
	Commit() error
	Rollback() error
}

// Store is the persistence entry point: transaction-free reads for the
// resolution stages plus Begin for the transaction stage.
type Store interface {
	Users() UserRepo
	Teams() TeamRepo
	Begin(ctx context.Context) (Tx, error)
	Close() error
}
