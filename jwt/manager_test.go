package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"
)

func newEdManager(t *testing.T) *Manager {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	mgr, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "teamgate-test",
		Leeway:        time.Second,
		ClaimPrefix:   "tg_",
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	return mgr
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	mgr := newEdManager(t)

	in := SessionClaims{
		UserID:            "user-1",
		TeamID:            "team-1",
		DeviceID:          "device-1",
		SessionID:         "sess-1",
		TwoFactorVerified: true,
		Persistent:        true,
	}

	token, err := mgr.Issue(in, time.Hour)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	out, err := mgr.Parse(token)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if out.UserID != in.UserID || out.TeamID != in.TeamID ||
		out.DeviceID != in.DeviceID || out.SessionID != in.SessionID {
		t.Fatalf("claims mismatch: %+v", out)
	}
	if !out.TwoFactorVerified || !out.Persistent {
		t.Fatalf("flag claims mismatch: %+v", out)
	}
	if out.ExpiresAt.IsZero() || out.IssuedAt.IsZero() {
		t.Fatalf("expected registered timestamps, got %+v", out)
	}
}

func TestParseRejectsForeignKey(t *testing.T) {
	issuer := newEdManager(t)
	verifier := newEdManager(t)

	token, err := issuer.Issue(SessionClaims{UserID: "u", SessionID: "s"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if _, err := verifier.Parse(token); err == nil {
		t.Fatal("expected signature verification to fail across key pairs")
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	mgr := newEdManager(t)

	token, err := mgr.Issue(SessionClaims{UserID: "u", SessionID: "s"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %s", token)
	}
	parts[1] = parts[1][:len(parts[1])-2] + "xx"

	if _, err := mgr.Parse(strings.Join(parts, ".")); err == nil {
		t.Fatal("expected tampered token to be rejected")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	mgr, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		ClaimPrefix:   "tg_",
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	token, err := mgr.Issue(SessionClaims{UserID: "u", SessionID: "s"}, time.Millisecond)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, err := mgr.Parse(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestHS256RoundTrip(t *testing.T) {
	mgr, err := NewManager(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		ClaimPrefix:   "tg_",
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	token, err := mgr.Issue(SessionClaims{UserID: "u", SessionID: "s"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	claims, err := mgr.Parse(token)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if claims.UserID != "u" || claims.SessionID != "s" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	if _, err := NewManager(Config{SigningMethod: "rs256"}); err == nil {
		t.Fatal("expected unsupported method to be rejected")
	}
	if _, err := NewManager(Config{SigningMethod: MethodHS256}); err == nil {
		t.Fatal("expected hs256 without key to be rejected")
	}
	if _, err := NewManager(Config{SigningMethod: MethodEd25519}); err == nil {
		t.Fatal("expected ed25519 without public key to be rejected")
	}
}

func TestParseSigningMethod(t *testing.T) {
	if m, err := ParseSigningMethod(" Ed25519 "); err != nil || m != MethodEd25519 {
		t.Fatalf("ParseSigningMethod ed25519: %v %v", m, err)
	}
	if _, err := ParseSigningMethod("none"); err == nil {
		t.Fatal("expected unknown method to fail")
	}
}
