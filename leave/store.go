/*
store.go - Persistence interfaces for the user ledger and leave requests

PURPOSE:
  Defines the boundary between the workflow and the database. Reads that
  only render data go through Store directly; every write that touches a
  user's balance runs inside Store.WithTx so the request status and the
  ledger row are committed together or not at all.

KEY INTERFACES:
  Store: read views, user creation, and the transaction entry point
  Tx:    the unit of work (lock user row, mutate request + ledger, audit)

ATOMICITY:
  WithTx(fn) commits when fn returns nil and rolls back otherwise. There
  is no repair path for a half-applied transition: it must never happen.

NOT FOUND:
  Lookups by id return a *NotFoundError (errors.Is(err, ErrNotFound)).
  A duplicate email returns an error wrapping ErrConflict.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite / PostgreSQL via sqlx
  - leave/memstore: in-memory, copy-on-write transactions (tests/dev)

SEE ALSO:
  - service.go: the only caller of WithTx
  - lock.go: per-user serialization around WithTx
*/
package leave

import (
	"context"
	"time"
)

// RequestFilter narrows ListRequests. Zero values mean "any".
// From/To select requests whose date range overlaps [From, To].
type RequestFilter struct {
	UserID string
	Status Status
	From   Date
	To     Date
}

// Store handles persistence of users, requests, and the audit trail.
type Store interface {
	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Tx) error) error

	GetRequest(ctx context.Context, id string) (*Request, error)

	// ListRequests returns requests joined with owner name/email, newest first.
	ListRequests(ctx context.Context, filter RequestFilter) ([]RequestView, error)

	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)

	// CreateUser inserts a new user. Duplicate email -> ErrConflict.
	CreateUser(ctx context.Context, u User) error

	// ListAudit returns the audit trail of one request, oldest first.
	ListAudit(ctx context.Context, requestID string) ([]AuditEntry, error)
}

// Tx is one unit of work. Implementations must make every read inside
// the transaction observe the writes made before it in the same Tx.
type Tx interface {
	// LockUser reads the user row for update. Concurrent transactions
	// locking the same user are serialized.
	LockUser(ctx context.Context, id string) (*User, error)

	// UpdateUser writes every mutable user field, ledger included.
	UpdateUser(ctx context.Context, u User) error

	// DeleteUser removes the user together with their requests and audit rows.
	DeleteUser(ctx context.Context, id string) error

	GetRequest(ctx context.Context, id string) (*Request, error)
	InsertRequest(ctx context.Context, r Request) error
	UpdateRequestStatus(ctx context.Context, id string, status Status, at time.Time) error
	DeleteRequest(ctx context.Context, id string) error

	AppendAudit(ctx context.Context, e AuditEntry) error
}
