/*
Package sqlstore provides a SQL-backed implementation of leave.Store.

PURPOSE:
  Persists users (with their leave ledger), leave requests, and the audit
  trail. The same code runs against SQLite (default, single file or
  :memory:) and PostgreSQL; queries are written with ? placeholders and
  rebound for the active driver by sqlx.

KEY TABLES:
  users:          identity + annual_leave_quota + remaining_leaves
  leave_requests: one row per request, status is the only mutable column
  leave_audit:    one row per ledger-affecting event

TRANSACTIONS:
  WithTx opens a database transaction and hands a txStore to the caller.
  Every statement inside the callback runs on that transaction; commit on
  nil, rollback otherwise.

CONCURRENCY:
  PostgreSQL: LockUser issues SELECT ... FOR UPDATE on the user row.
  SQLite: the pool is capped at one connection, so transactions are
  serialized by the database handle itself.

USAGE:
  store, err := sqlstore.Open("sqlite3", "./leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  if err := store.Migrate(); err != nil {
      log.Fatal(err)
  }

SEE ALSO:
  - leave/store.go: interface definitions
  - leave/memstore: in-memory implementation for tests
  - migrate.go: embedded schema migrations
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/leave-engine/leave"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store implements leave.Store on top of sqlx.
type Store struct {
	db     *sqlx.DB
	driver string
	dsn    string
}

// Open connects to the database. For sqlite3 the dsn is a file path or
// ":memory:"; for postgres it must be a postgres:// URL.
func Open(driver, dsn string) (*Store, error) {
	connStr := dsn
	switch driver {
	case DriverSQLite:
		connStr = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{db: db, driver: driver, dsn: dsn}, nil
}

// New wraps an existing connection. The driver name selects the
// placeholder style and locking behaviour.
func New(db *sqlx.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// COLUMNS
// =============================================================================

const (
	userColumns    = `id, name, email, password_hash, role, annual_leave_quota, remaining_leaves, created_at, updated_at`
	requestColumns = `id, user_id, start_date, end_date, leave_type, status, reason, number_of_days, created_at, updated_at`
	auditColumns   = `id, request_id, user_id, actor_id, action, from_status, to_status, delta, created_at`
)

// queries is shared by Store (pool) and txStore (transaction).
type queries struct {
	q      sqlx.ExtContext
	driver string
}

func (q queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q.q, dest, q.q.Rebind(query), args...)
}

func (q queries) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q.q, dest, q.q.Rebind(query), args...)
}

func (q queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := q.q.ExecContext(ctx, q.q.Rebind(query), args...)
	return res, mapError(err)
}

// execOne runs a statement that must touch exactly one row.
func (q queries) execOne(ctx context.Context, notFound error, query string, args ...any) error {
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (q queries) getUser(ctx context.Context, where string, arg any, forUpdate bool) (*leave.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	if forUpdate && q.driver == DriverPostgres {
		query += ` FOR UPDATE`
	}
	var u leave.User
	if err := q.get(ctx, &u, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &leave.NotFoundError{Kind: "user", ID: fmt.Sprint(arg)}
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (q queries) getRequest(ctx context.Context, id string) (*leave.Request, error) {
	var r leave.Request
	err := q.get(ctx, &r, `SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &leave.NotFoundError{Kind: "leave request", ID: id}
		}
		return nil, fmt.Errorf("get leave request: %w", err)
	}
	return &r, nil
}

// =============================================================================
// STORE - reads and user creation outside a transaction
// =============================================================================

func (s *Store) queries() queries { return queries{q: s.db, driver: s.driver} }

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	return s.queries().getRequest(ctx, id)
}

func (s *Store) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.RequestView, error) {
	var (
		conds []string
		args  []any
	)
	if f.UserID != "" {
		conds = append(conds, "r.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		conds = append(conds, "r.status = ?")
		args = append(args, f.Status)
	}
	if !f.From.IsZero() && !f.To.IsZero() {
		// Overlap test on the normalized (start <= end) range.
		conds = append(conds,
			"(CASE WHEN r.start_date <= r.end_date THEN r.start_date ELSE r.end_date END) <= ?",
			"(CASE WHEN r.start_date <= r.end_date THEN r.end_date ELSE r.start_date END) >= ?",
		)
		args = append(args, f.To, f.From)
	}

	query := `SELECT r.id, r.user_id, r.start_date, r.end_date, r.leave_type, r.status, r.reason,
		r.number_of_days, r.created_at, r.updated_at,
		COALESCE(u.name, '') AS user_name, COALESCE(u.email, '') AS user_email
		FROM leave_requests r LEFT JOIN users u ON u.id = r.user_id`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY r.created_at DESC, r.id DESC`

	views := make([]leave.RequestView, 0)
	if err := s.queries().selectAll(ctx, &views, query, args...); err != nil {
		return nil, fmt.Errorf("list leave requests: %w", err)
	}
	return views, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*leave.User, error) {
	return s.queries().getUser(ctx, "id = ?", id, false)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*leave.User, error) {
	return s.queries().getUser(ctx, "email = ?", email, false)
}

func (s *Store) ListUsers(ctx context.Context) ([]leave.User, error) {
	users := make([]leave.User, 0)
	err := s.queries().selectAll(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Store) CreateUser(ctx context.Context, u leave.User) error {
	_, err := s.queries().exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.AnnualLeaveQuota,
		u.RemainingLeaves, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, requestID string) ([]leave.AuditEntry, error) {
	entries := make([]leave.AuditEntry, 0)
	err := s.queries().selectAll(ctx, &entries,
		`SELECT `+auditColumns+` FROM leave_audit WHERE request_id = ? ORDER BY created_at, id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return entries, nil
}

// =============================================================================
// TRANSACTION SUPPORT
// =============================================================================

// WithTx executes fn within a database transaction.
// If fn returns error, the transaction is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&txStore{queries{q: tx, driver: s.driver}}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements leave.Tx within a transaction.
type txStore struct {
	queries
}

func (ts *txStore) LockUser(ctx context.Context, id string) (*leave.User, error) {
	return ts.getUser(ctx, "id = ?", id, true)
}

func (ts *txStore) UpdateUser(ctx context.Context, u leave.User) error {
	err := ts.execOne(ctx, &leave.NotFoundError{Kind: "user", ID: u.ID},
		`UPDATE users SET name = ?, email = ?, password_hash = ?, role = ?,
			annual_leave_quota = ?, remaining_leaves = ?, updated_at = ?
		WHERE id = ?`,
		u.Name, u.Email, u.PasswordHash, u.Role, u.AnnualLeaveQuota,
		u.RemainingLeaves, u.UpdatedAt, u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (ts *txStore) DeleteUser(ctx context.Context, id string) error {
	if _, err := ts.exec(ctx, `DELETE FROM leave_audit WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("delete user audit: %w", err)
	}
	if _, err := ts.exec(ctx, `DELETE FROM leave_requests WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("delete user requests: %w", err)
	}
	err := ts.execOne(ctx, &leave.NotFoundError{Kind: "user", ID: id}, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (ts *txStore) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	return ts.getRequest(ctx, id)
}

func (ts *txStore) InsertRequest(ctx context.Context, r leave.Request) error {
	_, err := ts.exec(ctx, `INSERT INTO leave_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.StartDate, r.EndDate, r.LeaveType, r.Status, r.Reason,
		r.NumberOfDays, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert leave request: %w", err)
	}
	return nil
}

func (ts *txStore) UpdateRequestStatus(ctx context.Context, id string, status leave.Status, at time.Time) error {
	err := ts.execOne(ctx, &leave.NotFoundError{Kind: "leave request", ID: id},
		`UPDATE leave_requests SET status = ?, updated_at = ? WHERE id = ?`, status, at, id)
	if err != nil {
		return fmt.Errorf("update leave status: %w", err)
	}
	return nil
}

func (ts *txStore) DeleteRequest(ctx context.Context, id string) error {
	err := ts.execOne(ctx, &leave.NotFoundError{Kind: "leave request", ID: id},
		`DELETE FROM leave_requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete leave request: %w", err)
	}
	return nil
}

func (ts *txStore) AppendAudit(ctx context.Context, e leave.AuditEntry) error {
	_, err := ts.exec(ctx, `INSERT INTO leave_audit (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, e.UserID, e.ActorID, e.Action, e.FromStatus, e.ToStatus, e.Delta, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}
