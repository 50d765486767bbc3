// Package sqlite provides the SQLite-backed implementation of the teamgate
// persistence contracts, including the transactional unit of work used by
// the pipeline's transaction stage.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/avrelium/teamgate/store"
	"github.com/avrelium/teamgate/store/sqlite/migrations"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so the repository code
// serves transaction-free reads and unit-of-work writes alike.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists users and teams in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations. WAL mode keeps readers unblocked by the unit of
// work; the busy timeout papers over short write contention.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Users returns the transaction-free user repository.
func (s *Store) Users() store.UserRepo { return &userRepo{q: s.db} }

// Teams returns the transaction-free team repository.
func (s *Store) Teams() store.TeamRepo { return &teamRepo{q: s.db} }

// Begin opens the unit of work for one request.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &sqlTx{tx: tx}, nil
}

type sqlTx struct {
	tx   *sql.Tx
	mu   sync.Mutex
	done bool
}

func (t *sqlTx) Users() store.UserRepo { return &userRepo{q: t.tx} }
func (t *sqlTx) Teams() store.TeamRepo { return &teamRepo{q: t.tx} }

func (t *sqlTx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	return t.tx.Commit()
}

func (t *sqlTx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	return t.tx.Rollback()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func isConstraintErr(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3lib.SQLITE_CONSTRAINT
	}
	return false
}

/*
====================================
USERS
====================================
*/

const userColumns = `id, team_id, email, username, phone_number, password_hash,
	email_confirmed, two_factor_enabled, provider, authenticator_secret,
	otp_token, otp_provider, team_position, created_at, updated_at`

type userRepo struct {
	q dbtx
}

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var (
		u         store.User
		confirmed int
		twoFactor int
		provider  int
		otpProv   int
		secret    []byte
		created   int64
		updated   int64
	)
	err := row.Scan(
		&u.ID, &u.TeamID, &u.Email, &u.Username, &u.PhoneNumber, &u.PasswordHash,
		&confirmed, &twoFactor, &provider, &secret,
		&u.OtpToken, &otpProv, &u.TeamPosition, &created, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.EmailConfirmed = confirmed != 0
	u.TwoFactorEnabled = twoFactor != 0
	u.Provider = store.MfaProvider(provider)
	u.OtpProvider = store.MfaProvider(otpProv)
	u.AuthenticatorSecret = secret
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}

func (r *userRepo) GetByKey(ctx context.Context, teamID, userID string) (*store.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE team_id = ? AND id = ?`, teamID, userID)
	return scanUser(row)
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*store.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? LIMIT 1`, email)
	return scanUser(row)
}

func (r *userRepo) FindByUsername(ctx context.Context, username string) (*store.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? LIMIT 1`, username)
	return scanUser(row)
}

func (r *userRepo) Create(ctx context.Context, u *store.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TeamID, u.Email, u.Username, u.PhoneNumber, u.PasswordHash,
		boolToInt(u.EmailConfirmed), boolToInt(u.TwoFactorEnabled), int(u.Provider),
		u.AuthenticatorSecret, u.OtpToken, int(u.OtpProvider), u.TeamPosition,
		toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("%w: user %s", store.ErrDuplicate, u.ID)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepo) Update(ctx context.Context, u *store.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET team_id = ?, email = ?, username = ?, phone_number = ?,
		 password_hash = ?, email_confirmed = ?, two_factor_enabled = ?, provider = ?,
		 authenticator_secret = ?, otp_token = ?, otp_provider = ?, team_position = ?,
		 updated_at = ? WHERE id = ?`,
		u.TeamID, u.Email, u.Username, u.PhoneNumber,
		u.PasswordHash, boolToInt(u.EmailConfirmed), boolToInt(u.TwoFactorEnabled), int(u.Provider),
		u.AuthenticatorSecret, u.OtpToken, int(u.OtpProvider), u.TeamPosition,
		toMillis(u.UpdatedAt), u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireRow(res, store.ErrUserNotFound)
}

func (r *userRepo) SetOtpToken(ctx context.Context, userID string, provider store.MfaProvider, token string) error {
	// Last write wins: no guard against a concurrent overwrite.
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET otp_token = ?, otp_provider = ?, updated_at = ? WHERE id = ?`,
		token, int(provider), toMillis(time.Now().UTC()), userID,
	)
	if err != nil {
		return fmt.Errorf("set otp token: %w", err)
	}
	return requireRow(res, store.ErrUserNotFound)
}

func (r *userRepo) ClearOtpToken(ctx context.Context, userID string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET otp_token = '', otp_provider = 0, updated_at = ? WHERE id = ?`,
		toMillis(time.Now().UTC()), userID,
	)
	if err != nil {
		return fmt.Errorf("clear otp token: %w", err)
	}
	return requireRow(res, store.ErrUserNotFound)
}

func (r *userRepo) SetAuthenticatorSecret(ctx context.Context, userID string, secret []byte) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET authenticator_secret = ?, updated_at = ? WHERE id = ?`,
		secret, toMillis(time.Now().UTC()), userID,
	)
	if err != nil {
		return fmt.Errorf("set authenticator secret: %w", err)
	}
	return requireRow(res, store.ErrUserNotFound)
}

/*
====================================
TEAMS
====================================
*/

type teamRepo struct {
	q dbtx
}

func (r *teamRepo) Get(ctx context.Context, teamID string) (*store.Team, error) {
	var (
		t       store.Team
		created int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, leader_id, color, created_at FROM teams WHERE id = ?`, teamID).
		Scan(&t.ID, &t.Name, &t.LeaderID, &t.Color, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTeamNotFound
		}
		return nil, fmt.Errorf("scan team: %w", err)
	}
	t.CreatedAt = fromMillis(created)

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE team_id = ? ORDER BY team_position, id`, teamID)
	if err != nil {
		return nil, fmt.Errorf("load team members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		member, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		t.Members = append(t.Members, *member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team members: %w", err)
	}
	return &t, nil
}

func (r *teamRepo) Create(ctx context.Context, t *store.Team) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO teams (id, name, leader_id, color, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.LeaderID, t.Color, toMillis(t.CreatedAt),
	)
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("%w: team %s", store.ErrDuplicate, t.ID)
		}
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

func (r *teamRepo) Update(ctx context.Context, t *store.Team) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE teams SET name = ?, leader_id = ?, color = ? WHERE id = ?`,
		t.Name, t.LeaderID, t.Color, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update team: %w", err)
	}
	return requireRow(res, store.ErrTeamNotFound)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}
