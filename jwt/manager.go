package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Config holds the signing keys and validation parameters. ClaimPrefix is
// prepended to every custom claim name in issued tokens.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	ClaimPrefix   string
}

// Manager signs and verifies session credentials. Safe for concurrent use.
type Manager struct {
	config Config
}

// SessionClaims is the decoded content of a session credential.
type SessionClaims struct {
	UserID            string
	TeamID            string
	DeviceID          string
	SessionID         string
	TwoFactorVerified bool
	Persistent        bool
	IssuedAt          time.Time
	ExpiresAt         time.Time
}

// NewManager validates cfg and returns a token manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// Issue signs a credential for claims with the given lifetime.
func (j *Manager) Issue(claims SessionClaims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("invalid credential lifetime")
	}

	now := time.Now()
	prefix := j.config.ClaimPrefix

	payload := jwt.MapClaims{
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(ttl)),
	}
	payload[prefix+"uid"] = claims.UserID
	payload[prefix+"tid"] = claims.TeamID
	payload[prefix+"sid"] = claims.SessionID
	payload[prefix+"tfv"] = claims.TwoFactorVerified
	payload[prefix+"prs"] = claims.Persistent
	if claims.DeviceID != "" {
		payload[prefix+"did"] = claims.DeviceID
	}
	if j.config.Issuer != "" {
		payload["iss"] = j.config.Issuer
	}
	if j.config.Audience != "" {
		payload["aud"] = j.config.Audience
	}

	token := jwt.NewWithClaims(j.getMethod(), payload)

	signKey, err := j.getSignKey()
	if err != nil {
		return "", err
	}

	return token.SignedString(signKey)
}

// Parse verifies the signature and registered claims of tokenStr and decodes
// the session claims.
func (j *Manager) Parse(tokenStr string) (*SessionClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return j.getVerifyKey()
	})
	if err != nil {
		return nil, err
	}

	payload, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	prefix := j.config.ClaimPrefix
	claims := &SessionClaims{
		UserID:            stringClaim(payload, prefix+"uid"),
		TeamID:            stringClaim(payload, prefix+"tid"),
		DeviceID:          stringClaim(payload, prefix+"did"),
		SessionID:         stringClaim(payload, prefix+"sid"),
		TwoFactorVerified: boolClaim(payload, prefix+"tfv"),
		Persistent:        boolClaim(payload, prefix+"prs"),
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	if iat, err := payload.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := payload.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	return claims, nil
}

func stringClaim(payload jwt.MapClaims, name string) string {
	v, _ := payload[name].(string)
	return v
}

func boolClaim(payload jwt.MapClaims, name string) bool {
	v, _ := payload[name].(bool)
	return v
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

// ParseSigningMethod normalizes a configured method string.
func ParseSigningMethod(raw string) (SigningMethod, error) {
	switch SigningMethod(strings.ToLower(strings.TrimSpace(raw))) {
	case MethodEd25519:
		return MethodEd25519, nil
	case MethodHS256:
		return MethodHS256, nil
	default:
		return "", fmt.Errorf("unsupported signing method %q", raw)
	}
}
