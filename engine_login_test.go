package teamgate

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/avrelium/teamgate/jwt"
	"github.com/avrelium/teamgate/password"
	"github.com/avrelium/teamgate/store"
)

func TestLoginUnknownAndWrongPasswordLookIdentical(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, nil)
	ctx := context.Background()

	unknown, err := f.engine.Login(ctx, &LoginCommand{Email: "nobody@example.com", Password: "whatever-pass"})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if unknown.Status != StatusNotFound {
		t.Fatalf("unknown identifier status = %s, want not_found", unknown.Status)
	}

	wrongPass, err := f.engine.Login(ctx, &LoginCommand{Email: "alice@example.com", Password: "wrong-password"})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if wrongPass.Status != StatusUnauthorized {
		t.Fatalf("wrong password status = %s, want unauthorized", wrongPass.Status)
	}

	// Anti-enumeration: both branches must carry the same message.
	if unknown.Info != wrongPass.Info {
		t.Fatalf("info differs: %q vs %q", unknown.Info, wrongPass.Info)
	}
}

func TestLoginWithoutMfaIssuesSession(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, nil)

	result, err := f.engine.Login(context.Background(), &LoginCommand{
		Email:    "alice@example.com",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("status = %s, want success", result.Status)
	}
	if result.Value.Step != StepAuthenticated {
		t.Fatalf("step = %s, want authenticated", result.Value.Step)
	}

	cred := result.Value.Credential
	if cred == nil || cred.Token == "" || cred.SessionID == "" {
		t.Fatalf("expected a full credential, got %+v", cred)
	}
	if cred.TwoFactorVerified {
		t.Fatal("direct sign-in must not claim two-factor verification")
	}

	claims, err := f.engine.ParseCredential(context.Background(), cred.Token)
	if err != nil {
		t.Fatalf("ParseCredential error: %v", err)
	}
	if claims.UserID != "u1" || claims.TeamID != "t1" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestLoginIdentifierPreferenceEmailAsUsername(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, nil)

	// The username typed into the email field still resolves.
	result, err := f.engine.Login(context.Background(), &LoginCommand{
		Email:    "alice",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("status = %s, want success", result.Status)
	}
}

func TestLoginValidationFailure(t *testing.T) {
	f := newTestEngine(t)

	result, err := f.engine.Login(context.Background(), &LoginCommand{})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if result.Status != StatusBadRequest {
		t.Fatalf("status = %s, want bad_request", result.Status)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("expected identifier and password errors, got %+v", result.Errors)
	}
}

func TestLoginUnconfirmedEmailHaltsBeforeMfa(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, func(u *store.User) {
		u.EmailConfirmed = false
		u.TwoFactorEnabled = true
		u.Provider = ProviderEmail
	})

	result, err := f.engine.Login(context.Background(), &LoginCommand{
		Email:    "alice@example.com",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if result.Status != StatusPreconditionRequired {
		t.Fatalf("status = %s, want precondition_required", result.Status)
	}
	if result.Value.Step != StepEmailConfirmationRequired {
		t.Fatalf("step = %s, want email_confirmation_required", result.Value.Step)
	}
	if result.Value.Mfa != nil || result.Value.Credential != nil {
		t.Fatalf("no delivery or credential expected: %+v", result.Value)
	}
	if len(f.email.published()) != 0 {
		t.Fatal("no token may be published for an unconfirmed email")
	}

	user, _ := f.store.userSnapshot("u1")
	if user.OtpToken != "" {
		t.Fatal("no token may be stored for an unconfirmed email")
	}
}

func TestLoginEmailMfaPublishesOneToken(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, func(u *store.User) {
		u.TwoFactorEnabled = true
		u.Provider = ProviderEmail
	})

	ctx := WithDeviceID(context.Background(), "dev-1")
	result, err := f.engine.Login(ctx, &LoginCommand{
		Email:    "alice@example.com",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if result.Status != StatusPreconditionRequired || result.Value.Step != StepMfaRequired {
		t.Fatalf("unexpected outcome: %s / %s", result.Status, result.Value.Step)
	}
	if result.Value.Mfa == nil || result.Value.Mfa.Provider != ProviderEmail {
		t.Fatalf("unexpected delivery report: %+v", result.Value.Mfa)
	}
	if result.Value.Mfa.ExtraInfo != "" {
		t.Fatalf("direct email delivery must not carry a fallback reason: %q", result.Value.Mfa.ExtraInfo)
	}

	events := f.email.published()
	if len(events) != 1 {
		t.Fatalf("expected exactly one published token, got %d", len(events))
	}
	if events[0].EventID == "" || events[0].Email != "alice@example.com" {
		t.Fatalf("malformed event: %+v", events[0])
	}

	// Commit-on-precondition: the token slot must be persisted.
	user, _ := f.store.userSnapshot("u1")
	if user.OtpToken == "" || user.OtpToken != events[0].Token {
		t.Fatalf("stored token %q does not match published token %q", user.OtpToken, events[0].Token)
	}
	if user.OtpProvider != ProviderEmail {
		t.Fatalf("stored provider = %s, want email", user.OtpProvider)
	}
}

func TestLoginUpgradesWeakPasswordHash(t *testing.T) {
	f := newTestEngineConfigured(t, func(cfg *Config) {
		cfg.Password.Time = 2
	})

	// The stored hash was produced with a cheaper time cost than the
	// engine's configuration.
	weakHasher, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("weak hasher: %v", err)
	}
	weakHash, err := weakHasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("weak hash: %v", err)
	}
	f.seedUser(t, func(u *store.User) { u.PasswordHash = weakHash })

	result, err := f.engine.Login(context.Background(), &LoginCommand{
		Email:    "alice@example.com",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("status = %s, want success", result.Status)
	}

	after, _ := f.store.userSnapshot("u1")
	if after.PasswordHash == weakHash {
		t.Fatal("stored hash was not upgraded")
	}
	if !strings.Contains(after.PasswordHash, "t=2,") {
		t.Fatalf("upgraded hash does not carry the new time cost: %s", after.PasswordHash)
	}
	if ok, err := f.engine.hasher.Verify(testPassword, after.PasswordHash); err != nil || !ok {
		t.Fatalf("upgraded hash does not verify: ok=%v err=%v", ok, err)
	}
}

func TestLoginRememberMeExtendsLifetime(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, nil)

	short, err := f.engine.Login(context.Background(), &LoginCommand{
		Email:    "alice@example.com",
		Password: testPassword,
	})
	if err != nil || !short.Succeeded() {
		t.Fatalf("Login error: %v status=%v", err, short.Status)
	}

	long, err := f.engine.Login(context.Background(), &LoginCommand{
		Email:      "alice@example.com",
		Password:   testPassword,
		RememberMe: true,
	})
	if err != nil || !long.Succeeded() {
		t.Fatalf("Login error: %v status=%v", err, long.Status)
	}

	if !long.Value.Credential.Persistent {
		t.Fatal("remember-me credential must be persistent")
	}
	gap := long.Value.Credential.ExpiresAt.Sub(short.Value.Credential.ExpiresAt)
	if gap < 24*time.Hour {
		t.Fatalf("remember-me lifetime too short, gap=%s", gap)
	}
}

func TestParseCredentialRejectsForeignSessionID(t *testing.T) {
	f := newTestEngine(t)

	// A correctly signed token whose session id was never generated by this
	// engine must not reach the session store.
	token, err := f.engine.jwtManager.Issue(jwt.SessionClaims{
		UserID:    "u1",
		TeamID:    "t1",
		SessionID: "not!a!session!id",
	}, time.Hour)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	_, err = f.engine.ParseCredential(context.Background(), token)
	if err == nil || !strings.Contains(err.Error(), "invalid session id") {
		t.Fatalf("expected an invalid session id error, got %v", err)
	}
}

func TestSignOutRevokesSession(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, nil)
	ctx := context.Background()

	result, err := f.engine.Login(ctx, &LoginCommand{Email: "alice@example.com", Password: testPassword})
	if err != nil || !result.Succeeded() {
		t.Fatalf("Login error: %v status=%v", err, result.Status)
	}
	token := result.Value.Credential.Token

	if err := f.engine.SignOut(ctx, token); err != nil {
		t.Fatalf("SignOut error: %v", err)
	}
	if _, err := f.engine.ParseCredential(ctx, token); err == nil {
		t.Fatal("expected credential to be dead after sign-out")
	}

	// Revoking again is not an error.
	if err := f.engine.SignOut(ctx, token); err != nil {
		t.Fatalf("second SignOut error: %v", err)
	}
}

func TestSignOutAllRevokesEverySession(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := f.engine.Login(ctx, &LoginCommand{Email: "alice@example.com", Password: testPassword})
		if err != nil || !result.Succeeded() {
			t.Fatalf("Login #%d error: %v status=%v", i, err, result.Status)
		}
	}

	n, err := f.engine.SignOutAll(ctx, "u1")
	if err != nil {
		t.Fatalf("SignOutAll error: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d sessions, want 3", n)
	}
}
