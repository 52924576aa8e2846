// Package postgres is the PostgreSQL implementation of lscauth.Store.
//
// It works on a *sql.DB opened with the pgx stdlib driver:
//
//	db, err := postgres.Open(dsn)
//	if err := postgres.Migrate(db); err != nil { ... }
//	store := postgres.New(db)
//
// Every conditional update (refresh revocation, rotation, reset completion) is a single
// guarded statement inside a transaction, so concurrent callers observe exactly one winner
// through RowsAffected. Unique violations map to lscauth.ErrDuplicateEmail on the users
// email constraint and to lscauth.ErrDuplicateToken elsewhere.
package postgres
