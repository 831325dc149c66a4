/*
Package leave is the leave-balance accounting and approval workflow.

PURPOSE:
  Employees apply for leave, administrators approve or reject it, and
  every status change that affects a user's balance is applied together
  with the ledger mutation as a single unit of work.

KEY CONCEPTS IN THIS FILE (types.go):
  - User: ledger row (annual quota + remaining balance) plus identity fields
  - Request: a leave request with its lifecycle status
  - Principal: the authenticated caller handed in by the identity provider
  - AuditEntry: one ledger-affecting event, written in the same transaction

DESIGN PRINCIPLES:
  1. Precision: balances and day counts use decimal.Decimal (half days)
  2. Immutability: UserID and NumberOfDays never change after creation
  3. Explicit callers: every operation receives the Principal as an argument

SEE ALSO:
  - daycount.go: day-count calculator
  - transition.go: status state machine and ledger deltas
  - service.go: the workflow operations
  - store.go: persistence interfaces
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROLES & PRINCIPAL
// =============================================================================

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// Principal is the identity + role claim produced by the identity provider.
type Principal struct {
	ID   string
	Role Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// =============================================================================
// USER LEDGER
// =============================================================================

// User is a principal together with its leave ledger.
// RemainingLeaves may be fractional in half-day units and is mutated
// independently of AnnualLeaveQuota by approvals and quota adjustments.
type User struct {
	ID               string          `db:"id" json:"id"`
	Name             string          `db:"name" json:"name"`
	Email            string          `db:"email" json:"email"`
	PasswordHash     string          `db:"password_hash" json:"-"`
	Role             Role            `db:"role" json:"role"`
	AnnualLeaveQuota int             `db:"annual_leave_quota" json:"annualLeaveQuota"`
	RemainingLeaves  decimal.Decimal `db:"remaining_leaves" json:"remainingLeaves"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updatedAt"`
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type LeaveType string

const (
	LeaveFull LeaveType = "full"
	LeaveHalf LeaveType = "half"
)

func (t LeaveType) Valid() bool { return t == LeaveFull || t == LeaveHalf }

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Request is a single employee's proposed absence.
type Request struct {
	ID           string          `db:"id" json:"id"`
	UserID       string          `db:"user_id" json:"userId"`
	StartDate    Date            `db:"start_date" json:"startDate"`
	EndDate      Date            `db:"end_date" json:"endDate"`
	LeaveType    LeaveType       `db:"leave_type" json:"leaveType"`
	Status       Status          `db:"status" json:"status"`
	Reason       string          `db:"reason" json:"reason"`
	NumberOfDays decimal.Decimal `db:"number_of_days" json:"numberOfDays"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// Covers reports whether the request's date range includes any day of [from, to].
func (r Request) Covers(from, to Date) bool {
	start, end := r.StartDate, r.EndDate
	if end.Before(start) {
		start, end = end, start
	}
	return !end.Before(from) && !start.After(to)
}

// RequestView is a request joined with its owner's display fields.
type RequestView struct {
	Request
	UserName  string `db:"user_name" json:"userName"`
	UserEmail string `db:"user_email" json:"userEmail"`
}

// =============================================================================
// AUDIT
// =============================================================================

type AuditAction string

const (
	AuditApplied       AuditAction = "applied"
	AuditStatusChanged AuditAction = "status_changed"
	AuditDeleted       AuditAction = "deleted"
	AuditQuotaAdjusted AuditAction = "quota_adjusted"
)

// AuditEntry records who changed what and by how much.
// Delta is the change applied to the owner's RemainingLeaves.
type AuditEntry struct {
	ID         string          `db:"id" json:"id"`
	RequestID  string          `db:"request_id" json:"requestId,omitempty"`
	UserID     string          `db:"user_id" json:"userId"`
	ActorID    string          `db:"actor_id" json:"actorId"`
	Action     AuditAction     `db:"action" json:"action"`
	FromStatus Status          `db:"from_status" json:"fromStatus,omitempty"`
	ToStatus   Status          `db:"to_status" json:"toStatus,omitempty"`
	Delta      decimal.Decimal `db:"delta" json:"delta"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}
