// Package sqlstore is a goIdentity.CredentialStore over database/sql. It runs
// on PostgreSQL through lib/pq and on SQLite through modernc.org/sqlite, with
// schema migrations embedded per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects the SQL flavor and driver.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Store implements goIdentity.CredentialStore. Identifier uniqueness is
// enforced by the schema; empty identifiers are stored as NULL.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ goIdentity.CredentialStore = (*Store)(nil)

// New wraps an open database.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

// Open opens and pings the database for d. It does not migrate.
func Open(ctx context.Context, d Dialect, dsn string) (*Store, error) {
	var driver string
	switch d {
	case Postgres:
		driver = "postgres"
	case SQLite:
		driver = "sqlite"
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	default:
		return nil, fmt.Errorf("sqlstore: unsupported dialect %q", d)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d == SQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(db, d), nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

/*
====================================
QUERIES
====================================
*/

const userColumns = `id, email, phone, username, password_hash, display_name, avatar_url,
	role_id, department, team, active, verified,
	google_id, facebook_id, apple_id, microsoft_id,
	otp_hash, otp_expires_at, created_at, last_seen_at`

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*goIdentity.User, error) {
	var (
		u                                  goIdentity.User
		email, phone, username             sql.NullString
		google, facebook, apple, microsoft sql.NullString
		otpExpires, createdAt, lastSeen    int64
	)
	err := row.Scan(
		&u.ID, &email, &phone, &username, &u.PasswordHash, &u.DisplayName, &u.AvatarURL,
		&u.RoleID, &u.Department, &u.Team, &u.Active, &u.Verified,
		&google, &facebook, &apple, &microsoft,
		&u.OTPHash, &otpExpires, &createdAt, &lastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goIdentity.ErrStoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Email, u.Phone, u.Username = email.String, phone.String, username.String
	u.Social = goIdentity.SocialLinks{
		GoogleID:    google.String,
		FacebookID:  facebook.String,
		AppleID:     apple.String,
		MicrosoftID: microsoft.String,
	}
	u.OTPExpiresAt = fromMillis(otpExpires)
	u.CreatedAt = fromMillis(createdAt)
	u.LastSeenAt = fromMillis(lastSeen)
	return &u, nil
}

func (s *Store) findOne(ctx context.Context, column, value string) (*goIdentity.User, error) {
	if value == "" {
		return nil, goIdentity.ErrStoreNotFound
	}
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`),
		value,
	)
	return scanUser(row)
}

func (s *Store) FindByID(ctx context.Context, id string) (*goIdentity.User, error) {
	return s.findOne(ctx, "id", id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*goIdentity.User, error) {
	return s.findOne(ctx, "email", email)
}

func (s *Store) FindByPhone(ctx context.Context, phone string) (*goIdentity.User, error) {
	return s.findOne(ctx, "phone", phone)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*goIdentity.User, error) {
	return s.findOne(ctx, "username", username)
}

func (s *Store) FindBySocial(ctx context.Context, id goIdentity.SocialIdentity) (*goIdentity.User, error) {
	column, ok := socialColumn(id)
	if !ok {
		return nil, goIdentity.ErrStoreNotFound
	}
	return s.findOne(ctx, column, id.ExternalID())
}

// socialColumn maps the concrete identity type to its column.
func socialColumn(id goIdentity.SocialIdentity) (string, bool) {
	switch id.(type) {
	case goIdentity.GoogleIdentity:
		return "google_id", true
	case goIdentity.FacebookIdentity:
		return "facebook_id", true
	case goIdentity.AppleIdentity:
		return "apple_id", true
	case goIdentity.MicrosoftIdentity:
		return "microsoft_id", true
	default:
		return "", false
	}
}

func (s *Store) IdentityExists(ctx context.Context, p goIdentity.IdentityProbe) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT EXISTS (SELECT 1 FROM users WHERE
		email = ? OR phone = ? OR username = ?
		OR google_id = ? OR facebook_id = ? OR apple_id = ? OR microsoft_id = ?)`),
		nullable(p.Email), nullable(p.Phone), nullable(p.Username),
		nullable(p.Social.GoogleID), nullable(p.Social.FacebookID),
		nullable(p.Social.AppleID), nullable(p.Social.MicrosoftID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to probe identifiers: %w", err)
	}
	return exists, nil
}

func (s *Store) CreateUser(ctx context.Context, u *goIdentity.User) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, nullable(u.Email), nullable(u.Phone), nullable(u.Username),
		u.PasswordHash, u.DisplayName, u.AvatarURL,
		u.RoleID, u.Department, u.Team, u.Active, u.Verified,
		nullable(u.Social.GoogleID), nullable(u.Social.FacebookID),
		nullable(u.Social.AppleID), nullable(u.Social.MicrosoftID),
		u.OTPHash, toMillis(u.OTPExpiresAt), toMillis(u.CreatedAt), toMillis(u.LastSeenAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return goIdentity.ErrStoreDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) LinkSocial(ctx context.Context, userID string, id goIdentity.SocialIdentity) error {
	column, ok := socialColumn(id)
	if !ok || id.ExternalID() == "" {
		return fmt.Errorf("sqlstore: unsupported social identity %T", id)
	}
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE users SET `+column+` = ? WHERE id = ? AND (`+column+` IS NULL OR `+column+` = ?)`),
		id.ExternalID(), userID, id.ExternalID(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return goIdentity.ErrStoreDuplicate
		}
		return fmt.Errorf("failed to link social identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	// Either the user is missing or the provider is linked to another id.
	if _, err := s.FindByID(ctx, userID); err != nil {
		return err
	}
	return goIdentity.ErrStoreDuplicate
}

func (s *Store) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	return s.exec(ctx, `UPDATE users SET last_seen_at = ? WHERE id = ?`, toMillis(at), userID)
}

func (s *Store) SetPasswordHash(ctx context.Context, userID, hash string) error {
	return s.exec(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, userID)
}

func (s *Store) SetOTPChallenge(ctx context.Context, userID, codeHash string, expiresAt time.Time) error {
	return s.exec(ctx, `UPDATE users SET otp_hash = ?, otp_expires_at = ? WHERE id = ?`,
		codeHash, toMillis(expiresAt), userID)
}

// ConsumeOTPChallenge clears a matching live challenge in one statement. When
// nothing matched, the row is read back only to report why.
func (s *Store) ConsumeOTPChallenge(ctx context.Context, userID, codeHash string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE users
		SET otp_hash = '', otp_expires_at = 0, verified = ?
		WHERE id = ? AND otp_hash <> '' AND otp_hash = ? AND otp_expires_at > ?`),
		true, userID, codeHash, toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("failed to consume otp: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var (
		stored  string
		expires int64
	)
	err = s.db.QueryRowContext(ctx,
		s.rebind(`SELECT otp_hash, otp_expires_at FROM users WHERE id = ?`), userID,
	).Scan(&stored, &expires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return goIdentity.ErrStoreNotFound
	case err != nil:
		return fmt.Errorf("failed to read otp: %w", err)
	case stored == "":
		return goIdentity.ErrOTPNotIssued
	case toMillis(now) >= expires:
		// Only clear the challenge we looked at; a newer one stays live.
		if err := s.exec(ctx, `UPDATE users SET otp_hash = '', otp_expires_at = 0 WHERE id = ? AND otp_hash = ?`,
			userID, stored); err != nil && !errors.Is(err, goIdentity.ErrStoreNotFound) {
			return err
		}
		return goIdentity.ErrOTPExpired
	default:
		return goIdentity.ErrOTPMismatch
	}
}

func (s *Store) SetRole(ctx context.Context, userID, roleID string) error {
	return s.exec(ctx, `UPDATE users SET role_id = ? WHERE id = ?`, roleID, userID)
}

func (s *Store) SetActive(ctx context.Context, userID string, active bool) error {
	return s.exec(ctx, `UPDATE users SET active = ? WHERE id = ?`, active, userID)
}

// SetProfile records the organisational placement used by scoped grants.
func (s *Store) SetProfile(ctx context.Context, userID, department, team string) error {
	return s.exec(ctx, `UPDATE users SET department = ?, team = ? WHERE id = ?`, department, team, userID)
}

func (s *Store) CountByRole(ctx context.Context, roleID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM users WHERE role_id = ?`), roleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count users by role: %w", err)
	}
	return n, nil
}

// exec runs a single-row update and reports ErrStoreNotFound when no row
// matched.
func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return goIdentity.ErrStoreNotFound
	}
	return nil
}

/*
====================================
HELPERS
====================================
*/

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// toMillis stores zero times as 0.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
