package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lsc-studio/lscauth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"

	usersEmailConstraint = "users_email_key"
)

var errNoDB = errors.New("database connection unavailable")

// Store persists lscauth state in PostgreSQL.
type Store struct {
	db *sql.DB
}

var (
	_ lscauth.Store  = (*Store)(nil)
	_ lscauth.Pinger = (*Store)(nil)
)

// Open connects with the pgx driver and applies pool defaults.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// New wraps an open database handle. The schema must already be migrated.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Ping implements lscauth.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errNoDB
	}
	return s.db.PingContext(ctx)
}

/* ==== USERS ==== */

const userColumns = `id, email, password_hash, platform_role, status, email_verified, organizations, created_at, updated_at`

// FindUserByEmail implements lscauth.Store.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*lscauth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email)
	return scanUser(row)
}

// FindUserByID implements lscauth.Store.
func (s *Store) FindUserByID(ctx context.Context, id string) (*lscauth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	return scanUser(row)
}

// CreateUser implements lscauth.Store.
func (s *Store) CreateUser(ctx context.Context, user *lscauth.User) error {
	if s.db == nil {
		return errNoDB
	}
	orgs, err := marshalOrganizations(user.Organizations)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into users (id, email, password_hash, platform_role, status, email_verified, organizations, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, user.ID, user.Email, user.PasswordHash, user.PlatformRole, string(user.Status), user.EmailVerified, orgs, user.CreatedAt, user.UpdatedAt)
	return mapWriteError(err)
}

// UpdateUser implements lscauth.Store.
func (s *Store) UpdateUser(ctx context.Context, user *lscauth.User) error {
	if s.db == nil {
		return errNoDB
	}
	orgs, err := marshalOrganizations(user.Organizations)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set email = $2, password_hash = $3, platform_role = $4, status = $5,
		    email_verified = $6, organizations = $7, updated_at = $8
		where id = $1
	`, user.ID, user.Email, user.PasswordHash, user.PlatformRole, string(user.Status), user.EmailVerified, orgs, user.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*lscauth.User, error) {
	var (
		u       lscauth.User
		status  string
		rawOrgs []byte
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.PlatformRole, &status, &u.EmailVerified, &rawOrgs, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lscauth.ErrNotFound
		}
		return nil, err
	}
	u.Status = lscauth.AccountStatus(status)
	if len(rawOrgs) > 0 {
		if err := json.Unmarshal(rawOrgs, &u.Organizations); err != nil {
			return nil, fmt.Errorf("decode organizations: %w", err)
		}
	}
	return &u, nil
}

func marshalOrganizations(orgs []lscauth.Membership) ([]byte, error) {
	if len(orgs) == 0 {
		return []byte("[]"), nil
	}
	raw, err := json.Marshal(orgs)
	if err != nil {
		return nil, fmt.Errorf("marshal organizations: %w", err)
	}
	return raw, nil
}

/* ==== REFRESH TOKENS ==== */

// FindRefreshTokenByHash implements lscauth.Store.
func (s *Store) FindRefreshTokenByHash(ctx context.Context, tokenHash string) (*lscauth.RefreshToken, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var (
		t       lscauth.RefreshToken
		revoked sql.NullTime
	)
	row := s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, device_info, ip_address, expires_at, created_at, revoked_at
		from refresh_tokens
		where token_hash = $1
	`, tokenHash)
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.DeviceInfo, &t.IPAddress, &t.ExpiresAt, &t.CreatedAt, &revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lscauth.ErrNotFound
		}
		return nil, err
	}
	if revoked.Valid {
		at := revoked.Time
		t.RevokedAt = &at
	}
	return &t, nil
}

// CreateRefreshToken implements lscauth.Store.
func (s *Store) CreateRefreshToken(ctx context.Context, token *lscauth.RefreshToken) error {
	if s.db == nil {
		return errNoDB
	}
	return insertRefreshToken(ctx, s.db, token)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRefreshToken(ctx context.Context, db execer, token *lscauth.RefreshToken) error {
	_, err := db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token_hash, device_info, ip_address, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, token.ID, token.UserID, token.TokenHash, token.DeviceInfo, token.IPAddress, token.ExpiresAt, token.CreatedAt)
	return mapWriteError(err)
}

// RevokeRefreshToken implements lscauth.Store.
func (s *Store) RevokeRefreshToken(ctx context.Context, id string, at time.Time) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `update refresh_tokens set revoked_at = $2 where id = $1 and revoked_at is null`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RotateRefreshToken revokes oldID and inserts next in one transaction. A zero-row revoke
// means another caller won the race; nothing is inserted then.
func (s *Store) RotateRefreshToken(ctx context.Context, oldID string, at time.Time, next *lscauth.RefreshToken) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `update refresh_tokens set revoked_at = $2 where id = $1 and revoked_at is null`, oldID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if err := insertRefreshToken(ctx, tx, next); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// RevokeRefreshTokens implements lscauth.Store.
func (s *Store) RevokeRefreshTokens(ctx context.Context, userID string, at time.Time) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `update refresh_tokens set revoked_at = $2 where user_id = $1 and revoked_at is null`, userID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredRefreshTokens implements lscauth.Store.
func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteWhere(ctx, `delete from refresh_tokens where expires_at <= $1`, now)
}

/* ==== VERIFICATION TOKENS ==== */

// FindVerificationTokensUnexpired implements lscauth.Store.
func (s *Store) FindVerificationTokensUnexpired(ctx context.Context, now time.Time) ([]lscauth.VerificationToken, error) {
	return s.findVerification(ctx, `
		select id, user_id, email, token_hash, expires_at, created_at
		from verification_tokens
		where expires_at > $1
		order by created_at
	`, now)
}

// FindVerificationTokensExpired implements lscauth.Store.
func (s *Store) FindVerificationTokensExpired(ctx context.Context, now time.Time) ([]lscauth.VerificationToken, error) {
	return s.findVerification(ctx, `
		select id, user_id, email, token_hash, expires_at, created_at
		from verification_tokens
		where expires_at <= $1
		order by created_at
	`, now)
}

func (s *Store) findVerification(ctx context.Context, query string, now time.Time) ([]lscauth.VerificationToken, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lscauth.VerificationToken
	for rows.Next() {
		var t lscauth.VerificationToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Email, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateVerificationToken implements lscauth.Store.
func (s *Store) CreateVerificationToken(ctx context.Context, token *lscauth.VerificationToken) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into verification_tokens (id, user_id, email, token_hash, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, token.ID, token.UserID, token.Email, token.TokenHash, token.ExpiresAt, token.CreatedAt)
	return mapWriteError(err)
}

// DeleteVerificationToken implements lscauth.Store.
func (s *Store) DeleteVerificationToken(ctx context.Context, id string) error {
	_, err := s.deleteWhere(ctx, `delete from verification_tokens where id = $1`, id)
	return err
}

// DeleteVerificationTokens implements lscauth.Store.
func (s *Store) DeleteVerificationTokens(ctx context.Context, userID string) (int64, error) {
	return s.deleteWhere(ctx, `delete from verification_tokens where user_id = $1`, userID)
}

// DeleteExpiredVerificationTokens implements lscauth.Store.
func (s *Store) DeleteExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteWhere(ctx, `delete from verification_tokens where expires_at <= $1`, now)
}

// CompleteEmailVerification consumes the token and activates the user in one transaction.
func (s *Store) CompleteEmailVerification(ctx context.Context, userID, tokenID string, at time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `delete from verification_tokens where id = $1 and user_id = $2`, tokenID, userID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	res, err = tx.ExecContext(ctx, `
		update users
		set status = $2, email_verified = true, updated_at = $3
		where id = $1
	`, userID, string(lscauth.StatusActive), at)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

/* ==== PASSWORD RESET TOKENS ==== */

// FindPasswordResetTokensUnexpired implements lscauth.Store.
func (s *Store) FindPasswordResetTokensUnexpired(ctx context.Context, now time.Time) ([]lscauth.PasswordResetToken, error) {
	return s.findReset(ctx, `
		select id, user_id, email, token_hash, expires_at, created_at, used
		from password_reset_tokens
		where used = false and expires_at > $1
		order by created_at
	`, now)
}

// FindPasswordResetTokensExpired implements lscauth.Store.
func (s *Store) FindPasswordResetTokensExpired(ctx context.Context, now time.Time) ([]lscauth.PasswordResetToken, error) {
	return s.findReset(ctx, `
		select id, user_id, email, token_hash, expires_at, created_at, used
		from password_reset_tokens
		where used = false and expires_at <= $1
		order by created_at
	`, now)
}

func (s *Store) findReset(ctx context.Context, query string, now time.Time) ([]lscauth.PasswordResetToken, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lscauth.PasswordResetToken
	for rows.Next() {
		var t lscauth.PasswordResetToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Email, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &t.Used); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreatePasswordResetToken implements lscauth.Store.
func (s *Store) CreatePasswordResetToken(ctx context.Context, token *lscauth.PasswordResetToken) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into password_reset_tokens (id, user_id, email, token_hash, expires_at, created_at, used)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, token.ID, token.UserID, token.Email, token.TokenHash, token.ExpiresAt, token.CreatedAt, token.Used)
	return mapWriteError(err)
}

// DeletePasswordResetToken implements lscauth.Store.
func (s *Store) DeletePasswordResetToken(ctx context.Context, id string) error {
	_, err := s.deleteWhere(ctx, `delete from password_reset_tokens where id = $1`, id)
	return err
}

// DeletePasswordResetTokens implements lscauth.Store.
func (s *Store) DeletePasswordResetTokens(ctx context.Context, userID string) (int64, error) {
	return s.deleteWhere(ctx, `delete from password_reset_tokens where user_id = $1`, userID)
}

// DeleteExpiredPasswordResetTokens implements lscauth.Store.
func (s *Store) DeleteExpiredPasswordResetTokens(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteWhere(ctx, `delete from password_reset_tokens where expires_at <= $1`, now)
}

// CompletePasswordReset marks the token used, stores the new hash and revokes every
// refresh token of the user in one transaction. It reports false when the token was
// already used.
func (s *Store) CompletePasswordReset(ctx context.Context, tokenID, userID, passwordHash string, at time.Time) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `update password_reset_tokens set used = true where id = $1 and used = false`, tokenID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	res, err = tx.ExecContext(ctx, `update users set password_hash = $2, updated_at = $3 where id = $1`, userID, passwordHash, at)
	if err != nil {
		return false, err
	}
	if err := requireRow(res); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `update refresh_tokens set revoked_at = $2 where user_id = $1 and revoked_at is null`, userID, at); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

/* ==== AUDIT LOG ==== */

// AppendAuditLog implements lscauth.Store.
func (s *Store) AppendAuditLog(ctx context.Context, entry lscauth.AuditLogEntry) error {
	if s.db == nil {
		return errNoDB
	}
	metaJSON := []byte("{}")
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metaJSON = raw
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (id, action, user_id, ip_address, user_agent, success, error, metadata, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.Action, nullString(entry.UserID), nullString(entry.IPAddress), nullString(entry.UserAgent),
		entry.Success, nullString(entry.Error), metaJSON, entry.CreatedAt)
	return mapWriteError(err)
}

/* ==== HELPERS ==== */

func (s *Store) deleteWhere(ctx context.Context, query string, arg any) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, query, arg)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return lscauth.ErrNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			if pgErr.ConstraintName == usersEmailConstraint {
				return lscauth.ErrDuplicateEmail
			}
			return lscauth.ErrDuplicateToken
		case pgErrForeignKeyViolation:
			return lscauth.ErrNotFound
		}
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
