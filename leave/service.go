/*
service.go - Leave request lifecycle and balance ledger

PURPOSE:
  Orchestrates every operation that reads or mutates a user's leave
  balance. Each mutation follows the same shape:

    1. Authorize the caller
    2. Lock the owning user (Locker)
    3. Open a transaction (Store.WithTx)
    4. Re-read the request and user inside the transaction
    5. Compute the balance delta (Transition / CountDays)
    6. Write request status, user ledger, and an audit row
    7. Commit, then release the lock

REQUEST FLOW:
  ┌──────────┐  apply   ┌─────────┐  approve  ┌──────────┐
  │  (none)  │ ───────▶ │ pending │ ────────▶ │ approved │
  └──────────┘          └─────────┘           └──────────┘
                             │ reject           │    ▲
                             ▼                  │    │
                        ┌──────────┐   reject   │    │ approve
                        │ rejected │ ◀──────────┘    │
                        └──────────┘ ────────────────┘

  Applying never deducts. Only approval moves days out of the balance,
  and only approved->rejected or deleting an approved request puts them
  back.

APPROVAL RE-CHECK:
  Two pending requests can each pass the apply-time check against the
  same balance. Approving them in sequence re-checks the balance; unless
  Config.AllowOverdraft is set, an approval that would take the balance
  below zero fails with *InsufficientBalanceError.

SEE ALSO:
  - transition.go: the status state machine
  - authz.go: who may do what
  - store.go: transaction boundary
*/
package leave

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// DefaultAnnualQuota is granted to self-registered users.
	DefaultAnnualQuota = 20

	maxReasonLength  = 500
	maxCalendarRange = 366
)

// Config holds workflow policy knobs.
type Config struct {
	AllowOverdraft bool
	DefaultQuota   int
}

// Recorder receives workflow events for metrics. Implementations must be
// safe for concurrent use.
type Recorder interface {
	Application(outcome string)
	Transition(from, to Status)
	Overdraft()
}

type nopRecorder struct{}

func (nopRecorder) Application(string)        {}
func (nopRecorder) Transition(Status, Status) {}
func (nopRecorder) Overdraft()                {}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store   Store
	locker  Locker
	cfg     Config
	log     *zap.Logger
	metrics Recorder

	now   func() time.Time
	newID func() string
}

// Option customizes a Service.
type Option func(*Service)

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func WithRecorder(r Recorder) Option { return func(s *Service) { s.metrics = r } }

func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, cfg Config, opts ...Option) *Service {
	if cfg.DefaultQuota <= 0 {
		cfg.DefaultQuota = DefaultAnnualQuota
	}
	s := &Service{
		store:   store,
		locker:  NewKeyedMutex(),
		cfg:     cfg,
		log:     zap.NewNop(),
		metrics: nopRecorder{},
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withUser runs fn inside a transaction while holding the per-user lock.
func (s *Service) withUser(ctx context.Context, userID string, fn func(Tx) error) error {
	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.store.WithTx(ctx, fn)
}

func (s *Service) audit(ctx context.Context, tx Tx, e AuditEntry) error {
	e.ID = s.newID()
	e.CreatedAt = s.now().UTC()
	return tx.AppendAudit(ctx, e)
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

// ApplyInput is a new leave application. LeaveType defaults to full.
type ApplyInput struct {
	StartDate Date
	EndDate   Date
	LeaveType LeaveType
	Reason    string
}

func (in *ApplyInput) normalize() error {
	if in.StartDate.IsZero() {
		return invalid("startDate", "is required")
	}
	if in.EndDate.IsZero() {
		return invalid("endDate", "is required")
	}
	if in.LeaveType == "" {
		in.LeaveType = LeaveFull
	}
	if !in.LeaveType.Valid() {
		return invalid("leaveType", "must be %q or %q", LeaveFull, LeaveHalf)
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if len(in.Reason) > maxReasonLength {
		return invalid("reason", "must be at most %d characters", maxReasonLength)
	}
	return nil
}

// Apply files a pending request for the caller. The balance is checked
// but not deducted.
func (s *Service) Apply(ctx context.Context, caller Principal, in ApplyInput) (*Request, error) {
	if err := Authorize(caller, ActionApply, caller.ID); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		s.metrics.Application("invalid")
		return nil, err
	}

	days := CountDays(in.StartDate, in.EndDate, in.LeaveType)
	if in.EndDate.Before(in.StartDate) {
		s.log.Warn("leave request with reversed date range",
			zap.String("user_id", caller.ID),
			zap.Stringer("start", in.StartDate),
			zap.Stringer("end", in.EndDate),
			zap.String("days", days.String()),
		)
	}

	now := s.now().UTC()
	req := Request{
		ID:           s.newID(),
		UserID:       caller.ID,
		StartDate:    in.StartDate,
		EndDate:      in.EndDate,
		LeaveType:    in.LeaveType,
		Status:       StatusPending,
		Reason:       in.Reason,
		NumberOfDays: days,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.withUser(ctx, caller.ID, func(tx Tx) error {
		user, err := tx.LockUser(ctx, caller.ID)
		if err != nil {
			return err
		}
		if user.RemainingLeaves.LessThan(days) {
			return &InsufficientBalanceError{
				UserID:    user.ID,
				Available: user.RemainingLeaves,
				Requested: days,
			}
		}
		if err := tx.InsertRequest(ctx, req); err != nil {
			return err
		}
		return s.audit(ctx, tx, AuditEntry{
			RequestID: req.ID,
			UserID:    req.UserID,
			ActorID:   caller.ID,
			Action:    AuditApplied,
			ToStatus:  StatusPending,
			Delta:     decimal.Zero,
		})
	})
	if err != nil {
		s.metrics.Application(applicationOutcome(err))
		return nil, err
	}

	s.metrics.Application("accepted")
	s.log.Info("leave request filed",
		zap.String("request_id", req.ID),
		zap.String("user_id", req.UserID),
		zap.String("days", days.String()),
	)
	return &req, nil
}

func applicationOutcome(err error) string {
	switch {
	case IsInsufficientBalance(err):
		return "insufficient_balance"
	case IsNotFound(err):
		return "unknown_user"
	default:
		return "error"
	}
}

// SetStatus moves a request to a new status and applies the ledger delta.
// Re-setting the current status is a no-op.
func (s *Service) SetStatus(ctx context.Context, caller Principal, id string, to Status) (*Request, error) {
	if err := Authorize(caller, ActionSetStatus, ""); err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, invalid("status", "unknown status %q", to)
	}

	current, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		out   Request
		from  Status
		delta decimal.Decimal
	)
	err = s.withUser(ctx, current.UserID, func(tx Tx) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		from = req.Status
		delta, err = Transition(req.Status, to, req.NumberOfDays)
		if err != nil {
			return err
		}
		out = *req
		if from == to {
			return nil
		}

		if !delta.IsZero() {
			user, err := tx.LockUser(ctx, req.UserID)
			if err != nil {
				return err
			}
			next := user.RemainingLeaves.Add(delta)
			if delta.IsNegative() && next.IsNegative() {
				if !s.cfg.AllowOverdraft {
					return &InsufficientBalanceError{
						UserID:    user.ID,
						Available: user.RemainingLeaves,
						Requested: req.NumberOfDays,
					}
				}
				s.metrics.Overdraft()
				s.log.Warn("approval overdraws balance",
					zap.String("request_id", req.ID),
					zap.String("user_id", user.ID),
					zap.String("remaining", next.String()),
				)
			}
			user.RemainingLeaves = next
			user.UpdatedAt = s.now().UTC()
			if err := tx.UpdateUser(ctx, *user); err != nil {
				return err
			}
		}

		out.Status = to
		out.UpdatedAt = s.now().UTC()
		if err := tx.UpdateRequestStatus(ctx, id, to, out.UpdatedAt); err != nil {
			return err
		}
		return s.audit(ctx, tx, AuditEntry{
			RequestID:  id,
			UserID:     req.UserID,
			ActorID:    caller.ID,
			Action:     AuditStatusChanged,
			FromStatus: from,
			ToStatus:   to,
			Delta:      delta,
		})
	})
	if err != nil {
		return nil, err
	}

	if from != to {
		s.metrics.Transition(from, to)
		s.log.Info("leave status changed",
			zap.String("request_id", id),
			zap.String("actor_id", caller.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("delta", delta.String()),
		)
	}
	return &out, nil
}

// Delete removes a request. Deleting an approved request restores its
// days to the owner's balance.
func (s *Service) Delete(ctx context.Context, caller Principal, id string) error {
	current, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if err := Authorize(caller, ActionDelete, current.UserID); err != nil {
		return err
	}

	return s.withUser(ctx, current.UserID, func(tx Tx) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		release := ReleaseOnDelete(req.Status, req.NumberOfDays)
		if !release.IsZero() {
			user, err := tx.LockUser(ctx, req.UserID)
			if err != nil {
				return err
			}
			user.RemainingLeaves = user.RemainingLeaves.Add(release)
			user.UpdatedAt = s.now().UTC()
			if err := tx.UpdateUser(ctx, *user); err != nil {
				return err
			}
		}
		if err := tx.DeleteRequest(ctx, id); err != nil {
			return err
		}
		return s.audit(ctx, tx, AuditEntry{
			RequestID:  id,
			UserID:     req.UserID,
			ActorID:    caller.ID,
			Action:     AuditDeleted,
			FromStatus: req.Status,
			Delta:      release,
		})
	})
}

// Get returns one request, visible to its owner and admins.
func (s *Service) Get(ctx context.Context, caller Principal, id string) (*Request, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, ActionView, req.UserID); err != nil {
		return nil, err
	}
	return req, nil
}

// List returns requests newest first. Non-admins only ever see their own.
func (s *Service) List(ctx context.Context, caller Principal, filter RequestFilter) ([]RequestView, error) {
	if caller.ID == "" || !caller.Role.Valid() {
		return nil, &ForbiddenError{Action: ActionView}
	}
	if !caller.IsAdmin() {
		filter.UserID = caller.ID
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("status", "unknown status %q", filter.Status)
	}
	views, err := s.store.ListRequests(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range views {
		fillOwner(&views[i])
	}
	return views, nil
}

// Calendar returns approved leave overlapping [from, to] for the whole team.
func (s *Service) Calendar(ctx context.Context, caller Principal, from, to Date) ([]RequestView, error) {
	if err := Authorize(caller, ActionCalendar, ""); err != nil {
		return nil, err
	}
	if from.IsZero() || to.IsZero() {
		return nil, invalid("range", "from and to are required")
	}
	if to.Before(from) {
		return nil, invalid("range", "to must not be before from")
	}
	if DaysBetween(from, to) > maxCalendarRange {
		return nil, invalid("range", "must not exceed %d days", maxCalendarRange)
	}
	views, err := s.store.ListRequests(ctx, RequestFilter{Status: StatusApproved, From: from, To: to})
	if err != nil {
		return nil, err
	}
	for i := range views {
		fillOwner(&views[i])
	}
	return views, nil
}

// History returns the audit trail of a request, oldest first.
func (s *Service) History(ctx context.Context, caller Principal, id string) ([]AuditEntry, error) {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return nil, err
	}
	return s.store.ListAudit(ctx, id)
}

func fillOwner(v *RequestView) {
	if v.UserName == "" {
		v.UserName = "Unknown User"
	}
	if v.UserEmail == "" {
		v.UserEmail = "No email"
	}
}

// =============================================================================
// USERS
// =============================================================================

// NewUser is a user to create. PasswordHash is produced by the identity
// provider; this package never sees a clear-text password.
type NewUser struct {
	Name             string
	Email            string
	PasswordHash     string
	Role             Role
	AnnualLeaveQuota *int
}

// CreateUser registers a user. Only an admin caller may pick the role or
// quota; anyone else gets a plain user with the default quota.
func (s *Service) CreateUser(ctx context.Context, caller Principal, in NewUser) (*User, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if email == "" {
		return nil, invalid("email", "is required")
	}
	if in.PasswordHash == "" {
		return nil, invalid("password", "is required")
	}

	role := RoleUser
	quota := s.cfg.DefaultQuota
	if caller.IsAdmin() {
		if in.Role != "" {
			if !in.Role.Valid() {
				return nil, invalid("role", "unknown role %q", in.Role)
			}
			role = in.Role
		}
		if in.AnnualLeaveQuota != nil {
			if *in.AnnualLeaveQuota < 0 {
				return nil, invalid("annualLeaveQuota", "must not be negative")
			}
			quota = *in.AnnualLeaveQuota
		}
	}

	now := s.now().UTC()
	u := User{
		ID:               s.newID(),
		Name:             name,
		Email:            email,
		PasswordHash:     in.PasswordHash,
		Role:             role,
		AnnualLeaveQuota: quota,
		RemainingLeaves:  decimal.NewFromInt(int64(quota)),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user created", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	return &u, nil
}

func (s *Service) GetUser(ctx context.Context, caller Principal, id string) (*User, error) {
	if err := Authorize(caller, ActionViewUser, id); err != nil {
		return nil, err
	}
	return s.store.GetUser(ctx, id)
}

// FindUserByEmail is used by the identity provider at login. It is not
// exposed over HTTP.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.store.GetUserByEmail(ctx, normalizeEmail(email))
}

func (s *Service) ListUsers(ctx context.Context, caller Principal) ([]User, error) {
	if err := Authorize(caller, ActionManageUsers, ""); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx)
}

// UserUpdate carries the admin-editable fields. Nil means unchanged.
type UserUpdate struct {
	Name             *string
	Email            *string
	Role             *Role
	AnnualLeaveQuota *int
}

// UpdateUser edits a user. A quota change moves remaining by the same
// amount so days already consumed stay consumed.
func (s *Service) UpdateUser(ctx context.Context, caller Principal, id string, in UserUpdate) (*User, error) {
	if err := Authorize(caller, ActionManageUsers, ""); err != nil {
		return nil, err
	}
	if in.Role != nil && !in.Role.Valid() {
		return nil, invalid("role", "unknown role %q", *in.Role)
	}
	if in.AnnualLeaveQuota != nil && *in.AnnualLeaveQuota < 0 {
		return nil, invalid("annualLeaveQuota", "must not be negative")
	}
	return s.editUser(ctx, caller, id, func(u *User) (decimal.Decimal, error) {
		if err := applyIdentity(u, in.Name, in.Email); err != nil {
			return decimal.Zero, err
		}
		if in.Role != nil {
			u.Role = *in.Role
		}
		delta := decimal.Zero
		if in.AnnualLeaveQuota != nil {
			delta = decimal.NewFromInt(int64(*in.AnnualLeaveQuota - u.AnnualLeaveQuota))
			u.AnnualLeaveQuota = *in.AnnualLeaveQuota
			u.RemainingLeaves = u.RemainingLeaves.Add(delta)
		}
		return delta, nil
	})
}

// AdjustQuota sets a user's annual quota.
func (s *Service) AdjustQuota(ctx context.Context, caller Principal, id string, quota int) (*User, error) {
	return s.UpdateUser(ctx, caller, id, UserUpdate{AnnualLeaveQuota: &quota})
}

// ProfileUpdate carries the self-editable fields. Nil means unchanged.
type ProfileUpdate struct {
	Name         *string
	Email        *string
	PasswordHash *string
}

// UpdateProfile lets a user edit their own name, email, and password hash.
func (s *Service) UpdateProfile(ctx context.Context, caller Principal, in ProfileUpdate) (*User, error) {
	if err := Authorize(caller, ActionProfile, caller.ID); err != nil {
		return nil, err
	}
	return s.editUser(ctx, caller, caller.ID, func(u *User) (decimal.Decimal, error) {
		if err := applyIdentity(u, in.Name, in.Email); err != nil {
			return decimal.Zero, err
		}
		if in.PasswordHash != nil && *in.PasswordHash != "" {
			u.PasswordHash = *in.PasswordHash
		}
		return decimal.Zero, nil
	})
}

func (s *Service) editUser(ctx context.Context, caller Principal, id string, edit func(*User) (decimal.Decimal, error)) (*User, error) {
	var out User
	err := s.withUser(ctx, id, func(tx Tx) error {
		u, err := tx.LockUser(ctx, id)
		if err != nil {
			return err
		}
		delta, err := edit(u)
		if err != nil {
			return err
		}
		u.UpdatedAt = s.now().UTC()
		if err := tx.UpdateUser(ctx, *u); err != nil {
			return err
		}
		out = *u
		if delta.IsZero() {
			return nil
		}
		return s.audit(ctx, tx, AuditEntry{
			UserID:  id,
			ActorID: caller.ID,
			Action:  AuditQuotaAdjusted,
			Delta:   delta,
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func applyIdentity(u *User, name, email *string) error {
	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			return invalid("name", "must not be empty")
		}
		u.Name = n
	}
	if email != nil {
		e := normalizeEmail(*email)
		if e == "" {
			return invalid("email", "must not be empty")
		}
		u.Email = e
	}
	return nil
}

// DeleteUser removes a user along with their requests and audit trail.
func (s *Service) DeleteUser(ctx context.Context, caller Principal, id string) error {
	if err := Authorize(caller, ActionManageUsers, ""); err != nil {
		return err
	}
	if id == caller.ID {
		return invalid("id", "admins cannot delete their own account")
	}
	err := s.withUser(ctx, id, func(tx Tx) error {
		if _, err := tx.LockUser(ctx, id); err != nil {
			return err
		}
		return tx.DeleteUser(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.Info("user deleted", zap.String("user_id", id), zap.String("actor_id", caller.ID))
	return nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
