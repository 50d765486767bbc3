package teamgate

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/avrelium/teamgate/store"
)

/*
====================================
IN-MEMORY STORE
====================================
*/

// memStore is an in-memory store.Store with staged transactional writes:
// mutations buffer inside the transaction and only apply on Commit, so
// rollback semantics hold without a real database.
type memStore struct {
	mu    sync.Mutex
	users map[string]*store.User
	teams map[string]*store.Team

	begun     int
	commits   int
	rollbacks int
}

func newMemStore() *memStore {
	return &memStore{
		users: make(map[string]*store.User),
		teams: make(map[string]*store.Team),
	}
}

func (s *memStore) addUser(u store.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := u
	s.users[u.ID] = &clone
}

func (s *memStore) addTeam(t store.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := t
	s.teams[t.ID] = &clone
}

func (s *memStore) userSnapshot(id string) (store.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, false
	}
	return *u, true
}

func (s *memStore) Users() store.UserRepo { return &memUserRepo{s: s} }
func (s *memStore) Teams() store.TeamRepo { return &memTeamRepo{s: s} }
func (s *memStore) Close() error          { return nil }

func (s *memStore) Begin(context.Context) (store.Tx, error) {
	s.mu.Lock()
	s.begun++
	s.mu.Unlock()
	return &memTx{s: s}, nil
}

type memTx struct {
	s    *memStore
	ops  []func()
	done bool
}

func (t *memTx) Users() store.UserRepo { return &memUserRepo{s: t.s, tx: t} }
func (t *memTx) Teams() store.TeamRepo { return &memTeamRepo{s: t.s} }

func (t *memTx) Commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	for _, op := range t.ops {
		op()
	}
	t.s.commits++
	return nil
}

func (t *memTx) Rollback() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	t.ops = nil
	t.s.rollbacks++
	return nil
}

// memUserRepo reads directly and stages writes on the transaction when one
// is present.
type memUserRepo struct {
	s  *memStore
	tx *memTx
}

func (r *memUserRepo) stage(op func()) {
	if r.tx != nil {
		r.tx.ops = append(r.tx.ops, op)
		return
	}
	op()
}

func (r *memUserRepo) find(match func(*store.User) bool) (*store.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if match(u) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (r *memUserRepo) GetByKey(_ context.Context, teamID, userID string) (*store.User, error) {
	return r.find(func(u *store.User) bool { return u.ID == userID && u.TeamID == teamID })
}

func (r *memUserRepo) FindByID(_ context.Context, id string) (*store.User, error) {
	return r.find(func(u *store.User) bool { return u.ID == id })
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*store.User, error) {
	return r.find(func(u *store.User) bool { return u.Email == email })
}

func (r *memUserRepo) FindByUsername(_ context.Context, username string) (*store.User, error) {
	return r.find(func(u *store.User) bool { return u.Username == username })
}

func (r *memUserRepo) Create(_ context.Context, user *store.User) error {
	clone := *user
	r.stage(func() { r.s.users[clone.ID] = &clone })
	return nil
}

func (r *memUserRepo) Update(_ context.Context, user *store.User) error {
	clone := *user
	r.stage(func() {
		if _, ok := r.s.users[clone.ID]; ok {
			r.s.users[clone.ID] = &clone
		}
	})
	return nil
}

func (r *memUserRepo) SetOtpToken(_ context.Context, userID string, provider store.MfaProvider, token string) error {
	r.stage(func() {
		if u, ok := r.s.users[userID]; ok {
			u.OtpToken = token
			u.OtpProvider = provider
			u.UpdatedAt = time.Now()
		}
	})
	return nil
}

func (r *memUserRepo) ClearOtpToken(_ context.Context, userID string) error {
	r.stage(func() {
		if u, ok := r.s.users[userID]; ok {
			u.OtpToken = ""
			u.OtpProvider = store.ProviderNone
		}
	})
	return nil
}

func (r *memUserRepo) SetAuthenticatorSecret(_ context.Context, userID string, secret []byte) error {
	copied := append([]byte(nil), secret...)
	r.stage(func() {
		if u, ok := r.s.users[userID]; ok {
			u.AuthenticatorSecret = copied
		}
	})
	return nil
}

type memTeamRepo struct {
	s *memStore
}

func (r *memTeamRepo) Get(_ context.Context, teamID string) (*store.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	team, ok := r.s.teams[teamID]
	if !ok {
		return nil, store.ErrTeamNotFound
	}

	clone := *team
	clone.Members = nil
	for _, u := range r.s.users {
		if u.TeamID == teamID {
			clone.Members = append(clone.Members, *u)
		}
	}
	return &clone, nil
}

func (r *memTeamRepo) Create(_ context.Context, team *store.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	clone := *team
	r.s.teams[team.ID] = &clone
	return nil
}

func (r *memTeamRepo) Update(_ context.Context, team *store.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	clone := *team
	r.s.teams[team.ID] = &clone
	return nil
}

/*
====================================
FAKE COLLABORATORS
====================================
*/

type fakePrincipals struct {
	mu sync.Mutex
	p  Principal
}

func (f *fakePrincipals) Current(context.Context) Principal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.p
}

func (f *fakePrincipals) set(p Principal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.p = p
}

type sentSms struct {
	number  string
	message string
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentSms
	err  error
}

func (f *fakeMessenger) SendSms(_ context.Context, number, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentSms{number: number, message: message})
	return nil
}

type fakeEmailPublisher struct {
	mu     sync.Mutex
	events []EmailTokenEvent
	err    error
}

func (f *fakeEmailPublisher) PublishEmailToken(_ context.Context, event EmailTokenEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEmailPublisher) published() []EmailTokenEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]EmailTokenEvent(nil), f.events...)
}

/*
====================================
ENGINE FIXTURE
====================================
*/

const testPassword = "correct horse battery"

type engineFixture struct {
	engine     *Engine
	store      *memStore
	redis      *miniredis.Miniredis
	messenger  *fakeMessenger
	email      *fakeEmailPublisher
	principals *fakePrincipals
	audit      *ChannelSink
}

func testEngineConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	// Cheapest parameters the hasher accepts, to keep tests fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEngine(t *testing.T) *engineFixture {
	t.Helper()
	return newTestEngineConfigured(t, nil)
}

func newTestEngineConfigured(t *testing.T, mutate func(*Config)) *engineFixture {
	t.Helper()

	cfg := testEngineConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fixture := &engineFixture{
		store:      newMemStore(),
		redis:      mr,
		messenger:  &fakeMessenger{},
		email:      &fakeEmailPublisher{},
		principals: &fakePrincipals{},
		audit:      NewChannelSink(64),
	}

	engine, err := New().
		WithConfig(cfg).
		WithStore(fixture.store).
		WithRedis(client).
		WithPrincipalSource(fixture.principals).
		WithMessenger(fixture.messenger).
		WithEmailPublisher(fixture.email).
		WithAuditSink(fixture.audit).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	fixture.engine = engine
	return fixture
}

// seedUser inserts the standard test user and team. The password hash
// matches testPassword.
func (f *engineFixture) seedUser(t *testing.T, mutate func(*store.User)) store.User {
	t.Helper()

	hash, err := f.engine.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash test password: %v", err)
	}

	user := store.User{
		ID:             "u1",
		TeamID:         "t1",
		Email:          "alice@example.com",
		Username:       "alice",
		PhoneNumber:    "+15550000001",
		PasswordHash:   hash,
		EmailConfirmed: true,
		Provider:       ProviderNone,
		TeamPosition:   10,
		CreatedAt:      time.Now(),
	}
	if mutate != nil {
		mutate(&user)
	}

	f.store.addTeam(store.Team{
		ID:       "t1",
		Name:     "Alpha",
		LeaderID: "u1",
		Color:    "#1f6f8b",
	})
	f.store.addUser(user)
	return user
}

// pendingPrincipal points the principal source at the seeded user, the way
// a verified pending-MFA cookie would.
func (f *engineFixture) pendingPrincipal(user store.User, deviceID string) {
	f.principals.set(Principal{
		IsAuthenticated: true,
		UserID:          user.ID,
		TeamID:          user.TeamID,
		Email:           user.Email,
		Username:        user.Username,
		DeviceID:        deviceID,
	})
}
