package teamgate

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig is the flat environment binding for Config. Keys are prefixed
// TEAMGATE_; unset keys keep the built-in defaults.
type envConfig struct {
	JWTSigningMethod string `env:"TEAMGATE_JWT_SIGNING_METHOD"`
	JWTPrivateKey    string `env:"TEAMGATE_JWT_PRIVATE_KEY"` // base64
	JWTPublicKey     string `env:"TEAMGATE_JWT_PUBLIC_KEY"`  // base64
	JWTIssuer        string `env:"TEAMGATE_JWT_ISSUER"`

	SessionPrefix      string        `env:"TEAMGATE_SESSION_PREFIX"`
	SessionLifetime    time.Duration `env:"TEAMGATE_SESSION_LIFETIME"`
	SessionRememberFor time.Duration `env:"TEAMGATE_SESSION_REMEMBER_LIFETIME"`

	OtpDigits    int           `env:"TEAMGATE_MFA_OTP_DIGITS"`
	SmsTemplate  string        `env:"TEAMGATE_MFA_SMS_TEMPLATE"`
	EmailChannel string        `env:"TEAMGATE_MFA_EMAIL_CHANNEL"`
	MarkerTTL    time.Duration `env:"TEAMGATE_MFA_MARKER_TTL"`
	TotpIssuer   string        `env:"TEAMGATE_MFA_TOTP_ISSUER"`

	ClaimPrefix string `env:"TEAMGATE_CLAIM_PREFIX"`

	TeamDefaultColor string `env:"TEAMGATE_TEAM_DEFAULT_COLOR"`

	AuditEnabled   bool `env:"TEAMGATE_AUDIT_ENABLED" envDefault:"true"`
	MetricsEnabled bool `env:"TEAMGATE_METRICS_ENABLED" envDefault:"true"`
}

// ConfigFromEnv loads configuration from environment variables on top of
// the built-in defaults.
func ConfigFromEnv() (Config, error) {
	var bound envConfig
	if err := env.Parse(&bound); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := defaultConfig()
	if bound.JWTSigningMethod != "" {
		cfg.JWT.SigningMethod = bound.JWTSigningMethod
	}
	if bound.JWTPrivateKey != "" {
		key, err := base64.StdEncoding.DecodeString(bound.JWTPrivateKey)
		if err != nil {
			return Config{}, fmt.Errorf("decode jwt private key: %w", err)
		}
		cfg.JWT.PrivateKey = key
	}
	if bound.JWTPublicKey != "" {
		key, err := base64.StdEncoding.DecodeString(bound.JWTPublicKey)
		if err != nil {
			return Config{}, fmt.Errorf("decode jwt public key: %w", err)
		}
		cfg.JWT.PublicKey = key
	}
	if bound.JWTIssuer != "" {
		cfg.JWT.Issuer = bound.JWTIssuer
	}
	if bound.SessionPrefix != "" {
		cfg.Session.RedisPrefix = bound.SessionPrefix
	}
	if bound.SessionLifetime > 0 {
		cfg.Session.Lifetime = bound.SessionLifetime
	}
	if bound.SessionRememberFor > 0 {
		cfg.Session.RememberMeLifetime = bound.SessionRememberFor
	}
	if bound.OtpDigits > 0 {
		cfg.Mfa.OtpDigits = bound.OtpDigits
	}
	if bound.SmsTemplate != "" {
		cfg.Mfa.SmsTemplate = bound.SmsTemplate
	}
	if bound.EmailChannel != "" {
		cfg.Mfa.EmailChannel = bound.EmailChannel
	}
	if bound.MarkerTTL > 0 {
		cfg.Mfa.MarkerTTL = bound.MarkerTTL
	}
	if bound.TotpIssuer != "" {
		cfg.Mfa.TotpIssuer = bound.TotpIssuer
	}
	if bound.ClaimPrefix != "" {
		cfg.Claims.Prefix = bound.ClaimPrefix
	}
	if bound.TeamDefaultColor != "" {
		cfg.Team.DefaultColor = bound.TeamDefaultColor
	}
	cfg.Audit.Enabled = bound.AuditEnabled
	cfg.Metrics.Enabled = bound.MetricsEnabled

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
