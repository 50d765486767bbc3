package teamgate

import (
	"errors"
	"fmt"
	"time"
)

// Config is the process-wide configuration tree. It is assembled once at
// startup, validated by Build, and treated as immutable afterwards.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Password PasswordConfig
	Mfa      MfaConfig
	Claims   ClaimsConfig
	Team     TeamConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls session credential signing.
type JWTConfig struct {
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls issued session lifetimes and the Redis key
// layout. RememberMeLifetime applies when the caller asked for a
// persistent session.
type SessionConfig struct {
	RedisPrefix        string
	Lifetime           time.Duration
	RememberMeLifetime time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id parameters. UpgradeOnLogin re-hashes
// a verified password transparently when the parameters were strengthened.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
MFA CONFIG
====================================
*/

// MfaConfig controls one-time-token generation, the SMS message template
// (rendered with the code via %s), the email event channel, the pending
// challenge marker TTL, and the TOTP parameters used by the authenticator
// provider.
type MfaConfig struct {
	OtpDigits    int
	SmsTemplate  string
	EmailChannel string
	MarkerTTL    time.Duration

	TotpDigits    int
	TotpPeriod    int
	TotpSkew      int
	TotpAlgorithm string
	TotpIssuer    string
}

/*
====================================
CLAIMS CONFIG
====================================
*/

// ClaimsConfig carries the prefix applied to every custom claim name in
// issued tokens.
type ClaimsConfig struct {
	Prefix string
}

/*
====================================
TEAM CONFIG
====================================
*/

// TeamConfig carries the default team branding and the position bounds of
// each authorization tier. Positions are integer ranks; a rank inside a
// tier's inclusive range grants that tier's role flag.
type TeamConfig struct {
	DefaultColor string

	CustomerMin    int
	CustomerMax    int
	MaintenanceMin int
	MaintenanceMax int
	SuperMin       int
	SuperMax       int
}

// RoleFlags derives the tier role flags for a team position.
func (c TeamConfig) RoleFlags(position int) (isCustomer, isMaintenance, isSuper bool) {
	isCustomer = position >= c.CustomerMin && position <= c.CustomerMax
	isMaintenance = position >= c.MaintenanceMin && position <= c.MaintenanceMax
	isSuper = position >= c.SuperMin && position <= c.SuperMax
	return isCustomer, isMaintenance, isSuper
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "ed25519",
			Issuer:        "teamgate",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:        "tgs",
			Lifetime:           12 * time.Hour,
			RememberMeLifetime: 30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Mfa: MfaConfig{
			OtpDigits:     6,
			SmsTemplate:   "Your sign-in code is %s",
			EmailChannel:  "teamgate:mfa:email",
			MarkerTTL:     5 * time.Minute,
			TotpDigits:    6,
			TotpPeriod:    30,
			TotpSkew:      1,
			TotpAlgorithm: "SHA1",
			TotpIssuer:    "teamgate",
		},
		Claims: ClaimsConfig{Prefix: "tg_"},
		Team: TeamConfig{
			DefaultColor:   "#1f6f8b",
			CustomerMin:    0,
			CustomerMax:    99,
			MaintenanceMin: 100,
			MaintenanceMax: 199,
			SuperMin:       200,
			SuperMax:       299,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = append([]byte(nil), cfg.JWT.PrivateKey...)
	out.JWT.PublicKey = append([]byte(nil), cfg.JWT.PublicKey...)
	return out
}

// Validate checks the configuration invariants shared by every engine.
func (c Config) Validate() error {
	var problems []error

	switch c.JWT.SigningMethod {
	case "ed25519", "hs256":
	default:
		problems = append(problems, fmt.Errorf("jwt: unknown signing method %q", c.JWT.SigningMethod))
	}
	if c.Session.Lifetime <= 0 {
		problems = append(problems, errors.New("session: lifetime must be positive"))
	}
	if c.Session.RememberMeLifetime < c.Session.Lifetime {
		problems = append(problems, errors.New("session: remember-me lifetime shorter than base lifetime"))
	}
	if c.Mfa.OtpDigits < 4 || c.Mfa.OtpDigits > 10 {
		problems = append(problems, fmt.Errorf("mfa: otp digits %d out of range [4,10]", c.Mfa.OtpDigits))
	}
	if c.Mfa.MarkerTTL <= 0 {
		problems = append(problems, errors.New("mfa: marker ttl must be positive"))
	}
	if c.Mfa.TotpPeriod <= 0 || c.Mfa.TotpDigits <= 0 {
		problems = append(problems, errors.New("mfa: totp period and digits must be positive"))
	}
	if c.Team.CustomerMin > c.Team.CustomerMax ||
		c.Team.MaintenanceMin > c.Team.MaintenanceMax ||
		c.Team.SuperMin > c.Team.SuperMax {
		problems = append(problems, errors.New("team: tier position bounds inverted"))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, errors.Join(problems...))
	}
	return nil
}
